package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func TestCORSMiddleware_AllowsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := &App{cfg: &Config{Env: "development", PublicBaseURL: "https://civicreport.in"}}

	router := gin.New()
	router.Use(app.corsMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	tests := []string{
		"https://civicreport.in",
		devCORSOriginLocalhost,
		devCORSOriginLoopback,
	}

	for _, origin := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", origin)
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != origin {
			t.Fatalf("expected allow origin %q, got %q", origin, got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Fatalf("expected credentials header true, got %q", got)
		}
	}
}

func TestCORSMiddleware_BlocksUnlistedOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := &App{cfg: &Config{Env: "production", PublicBaseURL: "https://civicreport.in"}}

	router := gin.New()
	router.Use(app.corsMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, origin := range []string{"https://evil.example", devCORSOriginLocalhost} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", origin)
		router.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Fatalf("expected no allow-origin header for %q, got %q", origin, got)
		}
		if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
			t.Fatalf("expected no credentials header, got %q", got)
		}
	}
}

func TestCORSMiddleware_AnswersPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := &App{cfg: &Config{Env: "production", PublicBaseURL: "https://civicreport.in"}}

	router := gin.New()
	router.Use(app.corsMiddleware())
	router.PATCH("/ping", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "https://civicreport.in")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET,POST,PATCH,OPTIONS" {
		t.Fatalf("unexpected allow-methods %q", got)
	}
}

func TestPruneRateLimiterState_RemovesIdleVisitors(t *testing.T) {
	now := time.Now().UTC()
	app := &App{
		cfg:          &Config{ReportRateLimitPerMinute: 5},
		rateLimiters: map[string]*visitorLimiter{},
	}

	app.allowRequest("stale", now.Add(-rateLimiterIdleTTL))
	app.allowRequest("recent", now.Add(-time.Minute))

	app.pruneRateLimiterState(now)

	if _, ok := app.rateLimiters["stale"]; ok {
		t.Fatal("expected stale visitor to be pruned")
	}
	if _, ok := app.rateLimiters["recent"]; !ok {
		t.Fatal("expected recent visitor to remain")
	}
}

func TestAllowRequest_BurstThenRefill(t *testing.T) {
	now := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	app := &App{
		cfg:          &Config{ReportRateLimitPerMinute: 6},
		rateLimiters: map[string]*visitorLimiter{},
	}

	for i := 0; i < reportRateBurst; i++ {
		if !app.allowRequest("10.0.0.1", now) {
			t.Fatalf("request %d should be inside the burst", i+1)
		}
	}
	if app.allowRequest("10.0.0.1", now) {
		t.Fatal("expected burst to be exhausted")
	}
	if !app.allowRequest("10.0.0.2", now) {
		t.Fatal("expected other visitors to have their own bucket")
	}
	// 6 per minute refills one token every 10 seconds.
	if !app.allowRequest("10.0.0.1", now.Add(10*time.Second)) {
		t.Fatal("expected a token after the refill interval")
	}
}

func TestAdminSessionToken_RoundTrip(t *testing.T) {
	app := &App{cfg: &Config{AppSigningSecret: testSigningSecret}}

	token, err := app.createAdminSessionToken(AdminSession{Email: "admin@civicreport.in", Role: adminRole})
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	session, err := app.verifyAdminSessionToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if session.Email != "admin@civicreport.in" || session.Role != adminRole {
		t.Fatalf("unexpected session %+v", session)
	}

	other := &App{cfg: &Config{AppSigningSecret: "fedcba9876543210"}}
	if _, err := other.verifyAdminSessionToken(token); err == nil {
		t.Fatal("expected token signed with another secret to be rejected")
	}
}

func TestVerifyAdminSessionToken_RejectsBadClaims(t *testing.T) {
	app := &App{cfg: &Config{AppSigningSecret: testSigningSecret}}

	tests := []struct {
		name   string
		claims jwt.MapClaims
	}{
		{
			name:   "unknown role",
			claims: jwt.MapClaims{"email": "admin@civicreport.in", "role": "citizen", "exp": time.Now().Add(time.Hour).Unix()},
		},
		{
			name:   "missing email",
			claims: jwt.MapClaims{"role": adminRole, "exp": time.Now().Add(time.Hour).Unix()},
		},
		{
			name:   "email wrong shape",
			claims: jwt.MapClaims{"email": map[string]any{"bad": "shape"}, "role": adminRole, "exp": time.Now().Add(time.Hour).Unix()},
		},
		{
			name:   "expired",
			claims: jwt.MapClaims{"email": "admin@civicreport.in", "role": adminRole, "exp": time.Now().Add(-time.Minute).Unix()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString([]byte(testSigningSecret))
			if err != nil {
				t.Fatalf("failed to sign token: %v", err)
			}
			if _, err := app.verifyAdminSessionToken(tokenString); err == nil {
				t.Fatal("expected token to be rejected")
			}
		})
	}
}

func TestRequireRole_ForbidsOtherRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := &App{cfg: &Config{}}

	router := gin.New()
	router.GET("/guarded", func(c *gin.Context) {
		c.Set("adminSession", AdminSession{Email: "viewer@civicreport.in", Role: "viewer"})
		c.Next()
	}, app.requireRole(adminRole), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/anonymous", app.requireRole(adminRole), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guarded", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anonymous", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
