package api

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"imagine/models"
)

type JWT struct {
	Name string      `json:"name"`
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// UserID 從 subject 取出使用者 ID
func (t *JWT) UserID() (uuid.UUID, error) {
	return uuid.Parse(t.Subject)
}

// TokenIssuer 以 Ed25519 簽發與驗證存取 token
type TokenIssuer struct {
	key    ed25519.PrivateKey
	config AuthConfig
}

func NewTokenIssuer(config AuthConfig) (*TokenIssuer, error) {
	if len(config.PrivateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid ed25519 private key")
	}
	if config.ExpireDuration <= 0 {
		config.ExpireDuration = 7 * 24 * time.Hour
	}
	return &TokenIssuer{key: config.PrivateKey, config: config}, nil
}

func (t *TokenIssuer) Issue(user *models.User) (string, error) {
	const op = "TokenIssuer.Issue"
	now := time.Now()
	token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, JWT{
		Name: user.Name,
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.config.ExpireDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    t.config.Issuer,
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
			Audience:  []string{t.config.Audience},
		},
	})
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign JWT, err=%w", op, err)
	}
	return signed, nil
}

func (t *TokenIssuer) ParseAndValidate(tokenString string) (*JWT, error) {
	const op = "TokenIssuer.ParseAndValidate"
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{(&jwt.SigningMethodEd25519{}).Alg()}),
		jwt.WithExpirationRequired(),
	}
	if t.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.config.Issuer))
	}
	if t.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(t.config.Audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &JWT{}, func(token *jwt.Token) (interface{}, error) {
		return t.key.Public(), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("[%s] token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("[%s] token claims are invalid", op)
	}
	return claims, nil
}
