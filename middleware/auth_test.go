package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	key := []byte("test-key")

	var gotUserID uint
	var gotEmail string
	handler := AuthMiddleware(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, gotEmail, _ = GetUserFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/loans", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, key, jwt.MapClaims{
		"user_id": float64(7),
		"email":   "user@example.com",
	}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
	}
	if gotUserID != 7 {
		t.Errorf("wrong user_id in context: got %v want %v", gotUserID, 7)
	}
	if gotEmail != "user@example.com" {
		t.Errorf("wrong email in context: got %v want %v", gotEmail, "user@example.com")
	}
}

func TestAuthMiddlewareMissingEmailClaim(t *testing.T) {
	key := []byte("test-key")

	handler := AuthMiddleware(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	// Корректно подписанный токен без email не пропускается
	req := httptest.NewRequest("GET", "/api/loans", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, key, jwt.MapClaims{
		"user_id": float64(7),
	}))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	handler := AuthMiddleware([]byte("test-key"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/loans", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusUnauthorized)
	}
}
