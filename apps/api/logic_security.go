package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const adminRole = "admin"

var (
	adminRoles            = []string{adminRole}
	errInvalidCredentials = &apiError{Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "Invalid email or password"}
)

type AdminSession struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (a *App) createAdminSessionToken(session AdminSession) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"email": session.Email,
		"role":  session.Role,
		"iat":   now.Unix(),
		"exp":   now.Add(adminSessionDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.AppSigningSecret))
}

func (a *App) verifyAdminSessionToken(tokenString string) (*AdminSession, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.AppSigningSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid session token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if email == "" || !containsString(adminRoles, role) {
		return nil, fmt.Errorf("invalid session payload")
	}
	return &AdminSession{Email: email, Role: role}, nil
}

// authenticateAdmin checks the configured admin account. Unknown email and
// wrong password return the same error.
func (a *App) authenticateAdmin(email, password string) (AdminSession, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if a.cfg.AdminEmail == "" || a.cfg.AdminPasswordHash == "" {
		return AdminSession{}, &apiError{Status: http.StatusServiceUnavailable, Code: "admin_not_configured", Message: "Admin login is not configured"}
	}
	if email != a.cfg.AdminEmail {
		return AdminSession{}, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.cfg.AdminPasswordHash), []byte(password)); err != nil {
		return AdminSession{}, errInvalidCredentials
	}
	return AdminSession{Email: email, Role: adminRole}, nil
}

// bearerToken reads the Authorization header, then ?token= for websocket
// clients that cannot set headers.
func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}

func (a *App) requireAdminSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Admin session required"})
			c.Abort()
			return
		}
		session, err := a.verifyAdminSessionToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Admin session required"})
			c.Abort()
			return
		}
		c.Set("adminSession", *session)
		c.Next()
	}
}

func (a *App) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := getAdminSession(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "Admin session required"})
			c.Abort()
			return
		}
		if session.Role != role {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": "Insufficient role"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func getAdminSession(c *gin.Context) (AdminSession, error) {
	value, ok := c.Get("adminSession")
	if !ok {
		return AdminSession{}, fmt.Errorf("missing session")
	}
	session, ok := value.(AdminSession)
	if !ok {
		return AdminSession{}, fmt.Errorf("invalid session")
	}
	return session, nil
}

// visitorLimiter is a token bucket per client IP.
type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (a *App) reportRatePerMinute() int {
	if a.cfg == nil || a.cfg.ReportRateLimitPerMinute < 1 {
		return defaultReportRatePerMinute
	}
	return a.cfg.ReportRateLimitPerMinute
}

func (a *App) allowRequest(key string, now time.Time) bool {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()

	visitor, ok := a.rateLimiters[key]
	if !ok {
		every := time.Minute / time.Duration(a.reportRatePerMinute())
		visitor = &visitorLimiter{limiter: rate.NewLimiter(rate.Every(every), reportRateBurst)}
		a.rateLimiters[key] = visitor
	}
	visitor.lastSeen = now
	return visitor.limiter.AllowN(now, 1)
}

// reportRateLimit guards the public write endpoints per client IP.
func (a *App) reportRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.allowRequest(c.ClientIP(), a.now()) {
			a.metrics.rateLimited.Inc()
			c.Header("Retry-After", "60")
			writeAPIError(c, &apiError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "Too many requests, please try again later"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) startRateLimiterCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				a.pruneRateLimiterState(now)
			}
		}
	}()
}

func (a *App) pruneRateLimiterState(now time.Time) {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()
	for key, visitor := range a.rateLimiters {
		if now.Sub(visitor.lastSeen) >= rateLimiterIdleTTL {
			delete(a.rateLimiters, key)
		}
	}
}
