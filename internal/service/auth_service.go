package service

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/internal/models"
	appErrors "github.com/noah-isme/academic-records-api/pkg/errors"
)

// AuthConfig defines how identity tokens are verified. Tokens are issued by
// the portal's identity provider; this service never mints them.
type AuthConfig struct {
	Secret string
	Issuer string
}

// AuthService verifies bearer tokens and turns them into identities.
type AuthService struct {
	logger *zap.Logger
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{logger: logger, config: config}
}

// ValidateToken parses and validates an HS256 access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.IdentityClaims, error) {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.IdentityClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, options...)
	if err != nil {
		s.logger.Debug("token rejected", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.IdentityClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if strings.TrimSpace(claims.UserID) == "" || claims.Role == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token is missing user or role")
	}

	return claims, nil
}
