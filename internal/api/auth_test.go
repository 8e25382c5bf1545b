package api

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/studyspot/roomsync/internal/types"
)

func TestUserFromContext(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		user     types.User
		expected bool
	}{
		{
			name:     "no user",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user set",
			ctx:      WithUser(context.Background(), types.User{Id: 42, Username: "alice"}),
			user:     types.User{Id: 42, Username: "alice"},
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			user, ok := UserFromContext(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserFromContext to return %v", tc.expected)
			assert.Equal(t, tc.user, user, "expected UserFromContext to return %+v", tc.user)
		})
	}
}

func signToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}

	return signed
}

func Test_extractUserFromToken(t *testing.T) {
	signingKey := []byte("test-signing-key")
	app := &App{signingKey: signingKey}

	tcases := []struct {
		name        string
		tokenString string
		expected    types.User
		wantErr     bool
	}{
		{
			name: "valid token",
			tokenString: signToken(t, signingKey, jwt.MapClaims{
				userIdClaim:   1,
				usernameClaim: "alice",
				"exp":         time.Now().Add(time.Hour).Unix(),
			}),
			expected: types.User{Id: 1, Username: "alice"},
		},
		{
			name: "wrong signing key",
			tokenString: signToken(t, []byte("other-key"), jwt.MapClaims{
				userIdClaim:   1,
				usernameClaim: "alice",
				"exp":         time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "expired token",
			tokenString: signToken(t, signingKey, jwt.MapClaims{
				userIdClaim:   1,
				usernameClaim: "alice",
				"exp":         time.Now().Add(-time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "missing user id claim",
			tokenString: signToken(t, signingKey, jwt.MapClaims{
				usernameClaim: "alice",
				"exp":         time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "missing username claim",
			tokenString: signToken(t, signingKey, jwt.MapClaims{
				userIdClaim: 1,
				"exp":       time.Now().Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name:        "garbage token",
			tokenString: "not.a.token",
			wantErr:     true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			user, err := app.extractUserFromToken(tc.tokenString)
			if tc.wantErr {
				assert.Error(t, err, "expected an error")
				return
			}

			assert.NoError(t, err, "expected no error")
			assert.Equal(t, tc.expected, user, "expected user to match token claims")
		})
	}
}
