package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type staticTokens map[string]int64

func (s staticTokens) Parse(token string) (int64, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return 0, errors.New("invalid")
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append(mw, func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id})
	})
	r.GET("/x", handlers...)
	return r
}

func do(r http.Handler, auth string) int {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestJWT(t *testing.T) {
	r := newRouter(JWT(staticTokens{"good": 7}))

	cases := []struct {
		auth string
		want int
	}{
		{"", http.StatusUnauthorized},
		{"good", http.StatusUnauthorized},
		{"Bearer bad", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
	}
	for _, tc := range cases {
		if got := do(r, tc.auth); got != tc.want {
			t.Errorf("auth %q: status %d, want %d", tc.auth, got, tc.want)
		}
	}
}

func TestAdmin(t *testing.T) {
	tokens := staticTokens{"admin": 1, "user": 2}
	r := newRouter(JWT(tokens), Admin(func(id int64) bool { return id == 1 }))

	if got := do(r, "Bearer admin"); got != http.StatusOK {
		t.Fatalf("admin: %d", got)
	}
	if got := do(r, "Bearer user"); got != http.StatusForbidden {
		t.Fatalf("user: %d", got)
	}
}

func TestPerUserMemoryFallback(t *testing.T) {
	l := NewLimiter(nil)
	r := newRouter(JWT(staticTokens{"a": 1, "b": 2}), l.PerUser(2, time.Minute))

	for i := 0; i < 2; i++ {
		if got := do(r, "Bearer a"); got != http.StatusOK {
			t.Fatalf("request %d: %d", i, got)
		}
	}
	if got := do(r, "Bearer a"); got != http.StatusTooManyRequests {
		t.Fatalf("over limit: %d", got)
	}
	if got := do(r, "Bearer b"); got != http.StatusOK {
		t.Fatalf("other user limited: %d", got)
	}
}

func TestMemoryWindowResets(t *testing.T) {
	m := newMemoryWindow()
	now := time.Unix(0, 0)
	m.now = func() time.Time { return now }

	m.incr("k", time.Second)
	if n := m.incr("k", time.Second); n != 2 {
		t.Fatalf("count = %d", n)
	}
	now = now.Add(2 * time.Second)
	if n := m.incr("k", time.Second); n != 1 {
		t.Fatalf("after window = %d", n)
	}
}
