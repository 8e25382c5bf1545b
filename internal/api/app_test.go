package api

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/studyspot/roomsync/internal/config"
	"github.com/studyspot/roomsync/internal/database"
	"github.com/studyspot/roomsync/internal/testutil"
)

// TestRoutes drives requests through the full handler chain: routing,
// auth middleware and handler.
func TestRoutes(t *testing.T) {
	signingKey := []byte("test-signing-key")
	mockRepo := &database.MockRepository{}
	mockRepo.On("GetSessionByCode", "NOSUCHRM").Return(database.Session{}, sql.ErrNoRows)

	mux := http.NewServeMux()
	NewApp(mux, testutil.TestLogger(t), nil, mockRepo, nil, &config.Config{
		SigningKey: signingKey,
	})

	token := signToken(t, signingKey, jwt.MapClaims{
		userIdClaim:   1,
		usernameClaim: "alice",
		"exp":         time.Now().Add(time.Hour).Unix(),
	})

	tcases := []struct {
		name         string
		method       string
		target       string
		authed       bool
		expectedCode int
	}{
		{
			name:         "rooms requires auth",
			method:       http.MethodGet,
			target:       "/api/rooms?code=NOSUCHRM",
			authed:       false,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "authed lookup reaches the handler",
			method:       http.MethodGet,
			target:       "/api/rooms?code=NOSUCHRM",
			authed:       true,
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "participants requires auth",
			method:       http.MethodGet,
			target:       "/api/participants?code=NOSUCHRM",
			authed:       false,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "websocket endpoint requires auth",
			method:       http.MethodGet,
			target:       "/ws",
			authed:       false,
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "unknown route",
			method:       http.MethodGet,
			target:       "/api/unknown",
			authed:       true,
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.target, nil)
			if tc.authed {
				req.AddCookie(&http.Cookie{Name: tokenCookieKey, Value: token})
			}

			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "expected status code to be %d", tc.expectedCode)
		})
	}
}
