package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"policydesk/internal/policy/models"
	id "policydesk/pkg/domain"
	"policydesk/pkg/platform/sentinel"
)

const (
	policiesCollection = "policies"
	countersCollection = "counters"
	policySequence     = "policies"
)

// MongoStore persists policies as documents. Each policy's JSON form is
// stored as-is with _id set to its numeric ID. Updates are compare-and-swap
// on the version field.
type MongoStore struct {
	policies *mongo.Collection
	counters *mongo.Collection
}

// NewMongo constructs a MongoDB-backed policy store.
func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{
		policies: db.Collection(policiesCollection),
		counters: db.Collection(countersCollection),
	}
}

// EnsureIndexes creates the unique serial and policy number indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.policies.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "serialNumber", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "policyNumber", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"policyNumber": bson.M{"$exists": true}}),
		},
		{
			Keys: bson.D{{Key: "onboardingStatus", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("ensure policy indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) nextID(ctx context.Context) (id.PolicyID, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": policySequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("allocate policy id: %w", err)
	}
	return id.PolicyID(counter.Seq), nil
}

func (s *MongoStore) Create(ctx context.Context, p *models.Policy) error {
	exists, err := s.SerialExists(ctx, p.SerialNumber)
	if err != nil {
		return err
	}
	if exists {
		return sentinel.ErrAlreadyUsed
	}
	newID, err := s.nextID(ctx)
	if err != nil {
		return err
	}
	p.ID = newID
	p.Version = 1
	doc, err := toDocument(p)
	if err != nil {
		return err
	}
	if _, err := s.policies.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByID(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	return s.findOne(ctx, bson.M{"_id": int64(policyID)})
}

func (s *MongoStore) FindBySerial(ctx context.Context, serial string) (*models.Policy, error) {
	return s.findOne(ctx, bson.M{"serialNumber": serial})
}

func (s *MongoStore) SerialExists(ctx context.Context, serial string) (bool, error) {
	n, err := s.policies.CountDocuments(ctx, bson.M{"serialNumber": serial}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check serial: %w", err)
	}
	return n > 0, nil
}

func (s *MongoStore) List(ctx context.Context, filter ListFilter) ([]*models.Policy, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["onboardingStatus"] = string(filter.Status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := s.policies.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer cursor.Close(ctx)

	var out []*models.Policy
	for cursor.Next(ctx) {
		p, err := fromDocument(cursor.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return out, nil
}

// Execute reads the policy, runs validate and mutate, and replaces the
// document only if its version is unchanged. A concurrent writer makes it
// fail with sentinel.ErrConflict.
func (s *MongoStore) Execute(ctx context.Context, policyID id.PolicyID, validate func(*models.Policy) error, mutate func(*models.Policy)) (*models.Policy, error) {
	p, err := s.FindByID(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	mutate(p)

	prev := p.Version
	p.Version = prev + 1
	doc, err := toDocument(p)
	if err != nil {
		return nil, err
	}
	res, err := s.policies.ReplaceOne(ctx, bson.M{"_id": int64(policyID), "version": prev}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, sentinel.ErrAlreadyUsed
		}
		return nil, fmt.Errorf("replace policy: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, sentinel.ErrConflict
	}
	return p, nil
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*models.Policy, error) {
	raw, err := s.policies.FindOne(ctx, filter).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find policy: %w", err)
	}
	return fromDocument(raw)
}

func toDocument(p *models.Policy) (bson.M, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}
	var doc bson.M
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, fmt.Errorf("convert policy document: %w", err)
	}
	doc["_id"] = int64(p.ID)
	doc["version"] = p.Version
	return doc, nil
}

func fromDocument(raw bson.Raw) (*models.Policy, error) {
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("convert policy document: %w", err)
	}
	p := &models.Policy{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("unmarshal policy document: %w", err)
	}
	return p, nil
}
