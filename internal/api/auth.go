package api

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt"
	"github.com/studyspot/roomsync/internal/types"
)

// Session tokens are issued by the product's auth service; this service
// only verifies them with the shared signing key.
const (
	tokenCookieKey = "token"

	userIdClaim   = "user-id"
	usernameClaim = "username"
)

type contextKey string

const userKey contextKey = "user"

func WithUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(userKey).(types.User)

	return user, ok
}

func (s *App) extractUserFromToken(tokenString string) (types.User, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return types.User{}, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return types.User{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return types.User{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(float64)
	if !ok {
		return types.User{}, fmt.Errorf("invalid user id claim")
	}

	username, ok := claims[usernameClaim].(string)
	if !ok || username == "" {
		return types.User{}, fmt.Errorf("invalid username claim")
	}

	return types.User{
		Id:       int(userId),
		Username: username,
	}, nil
}
