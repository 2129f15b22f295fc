package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var expiresIn = time.Hour

func Test_GenerateStaffToken(t *testing.T) {
	token, err := jwtService.GenerateStaffToken("uw-7", "Yaw Boateng", id.DepartmentUnderwriting, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "uw-7", claims.UserID)
	assert.Equal(t, "Yaw Boateng", claims.Name)
	assert.Equal(t, "underwriting", claims.Department)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_GenerateStaffToken_RejectsUnknownDepartment(t *testing.T) {
	_, err := jwtService.GenerateStaffToken("x-1", "X", id.Department("claims"), expiresIn)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateStaffToken("bd-1", "Kofi", id.DepartmentBusinessDevelopment, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ValidateToken_WrongKeyOrAudience(t *testing.T) {
	other := NewJWTService("another-key", "test-issuer", "test-audience")
	token, err := other.GenerateStaffToken("bd-1", "Kofi", id.DepartmentBusinessDevelopment, expiresIn)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))

	elsewhere := NewJWTService("test-signing-key", "test-issuer", "other-audience")
	token, err = elsewhere.GenerateStaffToken("bd-1", "Kofi", id.DepartmentBusinessDevelopment, expiresIn)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_Adapter(t *testing.T) {
	token, err := jwtService.GenerateStaffToken("pa-2", "Efua", id.DepartmentPremiumAdministration, expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "premium_administration", claims.Department)
	assert.Equal(t, "Efua", claims.Name)
}
