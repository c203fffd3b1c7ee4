package security

import (
	"errors"
	"time"

	"contest_judge/internal/platform/config"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

// TokenAuth verifies bearer tokens issued by the account service. Tokens
// are only minted here for local tooling and tests.
var TokenAuth *jwtauth.JWTAuth

func InitJWT() {
	SetSigningKey(config.AppConfig.JWTKey)
}

func SetSigningKey(key []byte) {
	TokenAuth = jwtauth.New("HS256", key, nil)
}

func GenerateToken(userID, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

func GetUserIDFromClaims(claims map[string]interface{}) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

func GetUserRoleFromClaims(claims map[string]interface{}) (string, error) {
	role, ok := claims["role"].(string)
	if !ok {
		return "", errors.New("role claim is missing or not a string")
	}
	return role, nil
}
