package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func serveWithToken(t *testing.T, secret, header string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin/users/+1000", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	called := false
	AdminJWT(secret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, ok := AdminClaimsFromContext(r.Context())
		assert.True(t, ok, "claims in context")
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, called
}

func TestAdminJWT(t *testing.T) {
	valid := signedAdminToken(t, "secret", AdminClaims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute))},
	})
	noExpiry := signedAdminToken(t, "secret", AdminClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "ops"}})
	expired := signedAdminToken(t, "secret", AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	})
	viewer := signedAdminToken(t, "secret", AdminClaims{
		Role:             "viewer",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
	})

	tests := []struct {
		name     string
		secret   string
		header   string
		wantCode int
	}{
		{"auth disabled", "", "Bearer " + valid, http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"not bearer", "secret", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "other", "Bearer " + valid, http.StatusUnauthorized},
		{"no expiry", "secret", "Bearer " + noExpiry, http.StatusUnauthorized},
		{"expired", "secret", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong role", "secret", "Bearer " + viewer, http.StatusForbidden},
		{"valid", "secret", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, called := serveWithToken(t, tt.secret, tt.header)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantCode == http.StatusOK, called)
		})
	}
}

func TestAdminJWTRejectsOtherAlgorithms(t *testing.T) {
	claims := AdminClaims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	assert.NoError(t, err)

	rec, called := serveWithToken(t, "secret", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func signedAdminToken(t *testing.T, secret string, claims AdminClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
