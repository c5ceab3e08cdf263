package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func ownerRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/identities/:id", RequireOwner(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireOwner(t *testing.T) {
	const id = "0c5b8f8e-3a49-4a6b-9a2f-1d1d4c9e0a01"

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"matching header", id, "", http.StatusOK},
		{"matching query param", "", "?actor_user_id=" + id, http.StatusOK},
		{"no claim", "", "", http.StatusForbidden},
		{"other identity", "f6a1f0d2-9f7e-4a3c-8b61-2e9d5c7b4a10", "", http.StatusForbidden},
		{"header outranks query", "f6a1f0d2-9f7e-4a3c-8b61-2e9d5c7b4a10", "?actor_user_id=" + id, http.StatusForbidden},
	}

	r := ownerRouter()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/identities/"+id+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("X-User-Id", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", APIKeyMiddleware("sekret"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"valid key", "sekret", http.StatusOK},
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}
