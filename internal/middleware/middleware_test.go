package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	auth, err := NewAuth("unit-test-secret")
	if err != nil {
		t.Fatalf("new auth: %v", err)
	}
	return auth
}

func authRouter(auth *Auth, roles ...string) *gin.Engine {
	r := gin.New()
	r.GET("/x", auth.RequireAuth(roles...), func(c *gin.Context) {
		id, _ := ActorID(c)
		c.JSON(http.StatusOK, gin.H{"actor_id": id, "role": Role(c)})
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	auth := newTestAuth(t)
	landscaper, _ := auth.GenerateToken(7, "landscaper", time.Hour)
	expired, _ := auth.GenerateToken(7, "landscaper", -time.Minute)
	other, _ := NewAuth("other-secret")
	forged, _ := other.GenerateToken(7, "admin", time.Hour)

	cases := []struct {
		name   string
		header string
		query  string
		roles  []string
		want   int
	}{
		{"missing", "", "", nil, http.StatusUnauthorized},
		{"bearer", "Bearer " + landscaper, "", nil, http.StatusOK},
		{"query token", "", landscaper, nil, http.StatusOK},
		{"expired", "Bearer " + expired, "", nil, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, "", nil, http.StatusUnauthorized},
		{"role allowed", "Bearer " + landscaper, "", []string{"admin", "landscaper"}, http.StatusOK},
		{"role denied", "Bearer " + landscaper, "", []string{"admin"}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/x"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			authRouter(auth, tc.roles...).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status: got=%d want=%d body=%s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestNewAuthRejectsEmptySecret(t *testing.T) {
	if _, err := NewAuth(""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRateLimitByActor(t *testing.T) {
	auth := newTestAuth(t)
	limiter := NewActorLimiter(0.001, 2)

	r := gin.New()
	r.POST("/samples", auth.RequireAuth(), RateLimitByActor(limiter), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	send := func(actor uint) int {
		token, _ := auth.GenerateToken(actor, "landscaper", time.Hour)
		req := httptest.NewRequest(http.MethodPost, "/samples", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send(1); code != http.StatusCreated {
			t.Fatalf("request %d: got=%d", i, code)
		}
	}
	if code := send(1); code != http.StatusTooManyRequests {
		t.Fatalf("over budget: got=%d want=429", code)
	}
	if code := send(2); code != http.StatusCreated {
		t.Fatalf("other actor throttled: got=%d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status: got=%d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin: got=%q", got)
	}
}
