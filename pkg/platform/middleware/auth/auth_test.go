package auth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "policydesk/pkg/domain"
	"policydesk/pkg/requestcontext"
)

type stubValidator map[string]*StaffClaims

func (v stubValidator) ValidateToken(token string) (*StaffClaims, error) {
	if c, ok := v[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad signature")
}

func TestRequireStaff(t *testing.T) {
	validator := stubValidator{
		"good":     {UserID: "u-1", Name: "Yaw", Department: "underwriting"},
		"no-dept":  {UserID: "u-2", Name: "Kofi"},
		"bad-dept": {UserID: "u-3", Department: "claims"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var got requestcontext.StaffActor
	h := RequireStaff(validator, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Actor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(header string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/policies", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	t.Run("valid staff token sets the actor", func(t *testing.T) {
		rec := serve("Bearer good")
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "u-1", got.UserID)
		assert.Equal(t, id.DepartmentUnderwriting, got.Department)
	})

	for name, header := range map[string]string{
		"missing header":     "",
		"wrong scheme":       "Basic abc",
		"invalid token":      "Bearer forged",
		"missing department": "Bearer no-dept",
		"unknown department": "Bearer bad-dept",
	} {
		t.Run(name+" is unauthorized", func(t *testing.T) {
			rec := serve(header)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body["error"])
		})
	}
}
