package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"campushub/models"

	"github.com/golang-jwt/jwt"
)

// Load the secret from an environment variable. Fallback to a default (not recommended in production).
var secretKey = []byte(getSecret())

func getSecret() string {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "campushub-dev"
	}
	return secret
}

// GenerateToken creates a signed JWT token carrying the identity a socket or
// API caller presents: subject (user ID), role, and the institution/branch
// scope. The token expires after the specified duration.
func GenerateToken(identity models.Identity, duration time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  identity.UserID,
		"role": string(identity.Role),
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(duration).Unix(),
	}
	if identity.InstitutionID != "" {
		claims["institutionId"] = identity.InstitutionID
	}
	if identity.BranchID != "" {
		claims["branchId"] = identity.BranchID
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secretKey)
}

// HashToken computes a SHA-256 hash of the token string.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateToken parses and validates a token string and returns the token if valid.
func ValidateToken(tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Ensure that the token's signing method is HMAC.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey, nil
	})
}

// ExtractIdentityFromToken validates a token string and returns the identity
// embedded in its claims. Connection handshakes and the auth middleware both
// go through here so a rejected token never produces partial identity state.
func ExtractIdentityFromToken(tokenString string) (models.Identity, error) {
	token, err := ValidateToken(tokenString)
	if err != nil {
		return models.Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return models.Identity{}, errors.New("invalid token")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return models.Identity{}, errors.New("token does not contain a valid 'sub' claim")
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return models.Identity{}, errors.New("token does not contain a valid 'role' claim")
	}

	identity := models.Identity{
		UserID: sub,
		Role:   models.Role(role),
	}
	if inst, ok := claims["institutionId"].(string); ok {
		identity.InstitutionID = inst
	}
	if branch, ok := claims["branchId"].(string); ok {
		identity.BranchID = branch
	}
	return identity, nil
}
