package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"policydesk/internal/policy/models"
	id "policydesk/pkg/domain"
	"policydesk/pkg/platform/sentinel"
	txcontext "policydesk/pkg/platform/tx"
)

// Schema creates the policies table. Indexed columns mirror fields of the
// JSONB document that queries and constraints need.
const Schema = `
CREATE TABLE IF NOT EXISTS policies (
	id                BIGSERIAL PRIMARY KEY,
	serial_number     TEXT NOT NULL UNIQUE,
	policy_number     TEXT UNIQUE,
	onboarding_status TEXT NOT NULL,
	version           BIGINT NOT NULL,
	document          JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS policies_onboarding_status_idx ON policies (onboarding_status);
`

const uniqueViolation = "23505"

// PostgresStore persists policies in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed policy store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate policies: %w", err)
	}
	return nil
}

type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) conn(ctx context.Context) dbConn {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Policy) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	var newID int64
	err = s.conn(ctx).QueryRowContext(ctx, `
		INSERT INTO policies (serial_number, policy_number, onboarding_status, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5, $6)
		RETURNING id
	`, p.SerialNumber, nullString(p.PolicyNumber), string(p.OnboardingStatus), doc, p.CreatedAt, p.UpdatedAt).Scan(&newID)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert policy: %w", err)
	}
	p.ID = id.PolicyID(newID)
	p.Version = 1
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, version, document FROM policies WHERE id = $1`, int64(policyID))
	p, err := scanPolicy(row)
	if err != nil {
		return nil, fmt.Errorf("find policy by id: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindBySerial(ctx context.Context, serial string) (*models.Policy, error) {
	row := s.conn(ctx).QueryRowContext(ctx,
		`SELECT id, version, document FROM policies WHERE serial_number = $1`, serial)
	p, err := scanPolicy(row)
	if err != nil {
		return nil, fmt.Errorf("find policy by serial: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SerialExists(ctx context.Context, serial string) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM policies WHERE serial_number = $1)`, serial).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check serial: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*models.Policy, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, version, document FROM policies
		WHERE ($1 = '' OR onboarding_status = $1)
		ORDER BY id
		LIMIT NULLIF($2, 0)
	`, string(filter.Status), filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []*models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("list policies: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return out, nil
}

// Execute locks the row with SELECT ... FOR UPDATE for the duration of
// validate and mutate, then writes the new document with the version bumped.
func (s *PostgresStore) Execute(ctx context.Context, policyID id.PolicyID, validate func(*models.Policy) error, mutate func(*models.Policy)) (*models.Policy, error) {
	var out *models.Policy
	err := txcontext.Run(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id, version, document FROM policies WHERE id = $1 FOR UPDATE`, int64(policyID))
		p, err := scanPolicy(row)
		if err != nil {
			return err
		}
		if err := validate(p); err != nil {
			return err
		}
		mutate(p)

		prev := p.Version
		p.Version = prev + 1
		doc, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal policy: %w", err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE policies
			SET policy_number = $1, onboarding_status = $2, version = $3, document = $4, updated_at = $5
			WHERE id = $6 AND version = $7
		`, nullString(p.PolicyNumber), string(p.OnboardingStatus), p.Version, doc, p.UpdatedAt, int64(p.ID), prev)
		if err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("update policy: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return sentinel.ErrConflict
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*models.Policy, error) {
	var (
		rowID   int64
		version int64
		doc     []byte
	)
	if err := row.Scan(&rowID, &version, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	p := &models.Policy{}
	if err := json.Unmarshal(doc, p); err != nil {
		return nil, fmt.Errorf("unmarshal policy document: %w", err)
	}
	p.ID = id.PolicyID(rowID)
	p.Version = version
	return p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
