package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims models.IdentityClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func professorClaims(expiresIn time.Duration) models.IdentityClaims {
	return models.IdentityClaims{
		UserID:           "prof-1",
		Role:             models.RoleProfessor,
		AssignedSubjects: []string{"sub-1"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "school-portal",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "school-portal"})

	claims, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte("secret"), professorClaims(time.Hour)))
	require.NoError(t, err)
	identity := claims.Identity()
	assert.Equal(t, "prof-1", identity.ActorID)
	assert.Equal(t, models.RoleProfessor, identity.Role)
	assert.Equal(t, []string{"sub-1"}, identity.AssignedSubjects)
}

func TestAuthServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret", Issuer: "school-portal"})

	cases := map[string]string{
		"expired":      signToken(t, jwt.SigningMethodHS256, []byte("secret"), professorClaims(-time.Minute)),
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), professorClaims(time.Hour)),
		"wrong method": signToken(t, jwt.SigningMethodHS512, []byte("secret"), professorClaims(time.Hour)),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}

func TestAuthServiceRejectsTokenWithoutRole(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{Secret: "secret"})
	claims := professorClaims(time.Hour)
	claims.Role = ""

	_, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, []byte("secret"), claims))
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}
