package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"civicreport/libs/mailer"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdminEmail    = "admin@civicreport.in"
	testAdminPassword = "correct horse battery"
)

type testApp struct {
	*App
	router       *gin.Engine
	mail         *mailer.RecorderProvider
	newReports   chan Report
	statusEmails chan statusNotification
}

type statusNotification struct {
	report   Report
	previous Status
}

// newTestApp builds an App on the memory store with the seeded Delhi reports,
// a fixed clock and sequential ids. Notification hooks feed channels so tests
// can wait for the background goroutines.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &Config{
		Env:                      "test",
		StoreDriver:              "memory",
		PublicBaseURL:            "https://civicreport.in",
		AppSigningSecret:         testSigningSecret,
		AdminEmail:               testAdminEmail,
		AdminPasswordHash:        string(hash),
		ReportRateLimitPerMinute: defaultReportRatePerMinute,
		DefaultLanguage:          "en",
		GeocoderProvider:         "offline",
	}
	recorder := mailer.NewRecorderProvider()
	app := newApp(cfg, logger, newDocumentStore(newMemoryBackend(), logger), mailer.New(recorder, "noreply@civicreport.local"))
	app.now = func() time.Time { return analyticsNow }
	nextID := 0
	app.newID = func() string {
		nextID++
		return fmt.Sprintf("r-%d", nextID)
	}
	app.geocoder = nil

	ta := &testApp{
		App:          app,
		mail:         recorder,
		newReports:   make(chan Report, 8),
		statusEmails: make(chan statusNotification, 8),
	}
	app.notifyMunicipality = func(ctx context.Context, report Report) error {
		ta.newReports <- report
		return nil
	}
	app.notifyCitizen = func(ctx context.Context, report Report, previous Status) error {
		ta.statusEmails <- statusNotification{report: report, previous: previous}
		return nil
	}

	router, err := app.router()
	require.NoError(t, err)
	ta.router = router
	return ta
}

func (ta *testApp) adminToken(t *testing.T) string {
	t.Helper()
	token, err := ta.createAdminSessionToken(AdminSession{Email: testAdminEmail, Role: adminRole})
	require.NoError(t, err)
	return token
}

func (ta *testApp) do(method, target, body, token string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for background task")
	}
	var zero T
	return zero
}

func TestAdminLogin(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		status   int
	}{
		{"valid credentials", "Admin@CivicReport.in ", testAdminPassword, http.StatusOK},
		{"wrong password", testAdminEmail, "nope", http.StatusUnauthorized},
		{"unknown email", "someone@example.com", testAdminPassword, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ta := newTestApp(t)
			body := fmt.Sprintf(`{"email":%q,"password":%q}`, tt.email, tt.password)
			rec := ta.do(http.MethodPost, "/api/v1/admin/login", body, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				assert.Contains(t, rec.Body.String(), "invalid_credentials")
				return
			}

			resp := decodeJSON[struct {
				Token     string `json:"token"`
				Email     string `json:"email"`
				Role      string `json:"role"`
				ExpiresIn int    `json:"expiresIn"`
			}](t, rec)
			assert.Equal(t, testAdminEmail, resp.Email)
			assert.Equal(t, adminRole, resp.Role)
			assert.Equal(t, 8*60*60, resp.ExpiresIn)

			session := ta.do(http.MethodGet, "/api/v1/admin/session", "", resp.Token)
			require.Equal(t, http.StatusOK, session.Code)
			assert.Contains(t, session.Body.String(), testAdminEmail)
		})
	}
}

func TestAdminLogin_NotConfigured(t *testing.T) {
	ta := newTestApp(t)
	ta.cfg.AdminPasswordHash = ""

	rec := ta.do(http.MethodPost, "/api/v1/admin/login", `{"email":"admin@civicreport.in","password":"x"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin_not_configured")
}

func TestAdminRoutesRequireSession(t *testing.T) {
	ta := newTestApp(t)

	routes := []struct{ method, target string }{
		{http.MethodGet, "/api/v1/admin/reports"},
		{http.MethodGet, "/api/v1/admin/analytics"},
		{http.MethodPatch, "/api/v1/admin/reports/1/status"},
		{http.MethodGet, "/api/v1/admin/exports/reports.csv"},
	}
	for _, route := range routes {
		rec := ta.do(route.method, route.target, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.target)

		rec = ta.do(route.method, route.target, "", "not-a-jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s with bad token", route.method, route.target)
	}
}

func TestAdminSessionAcceptsQueryToken(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(http.MethodGet, "/api/v1/admin/session?token="+ta.adminToken(t), "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateStatusHandler_RecordsTimelineAndNotifies(t *testing.T) {
	ta := newTestApp(t)
	token := ta.adminToken(t)

	rec := ta.do(http.MethodPatch, "/api/v1/admin/reports/1/status", `{"status":"resolved","comment":"  Filled and resurfaced  "}`, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeJSON[LocalizedReport](t, rec)
	assert.Equal(t, StatusResolved, got.Status)
	assert.Equal(t, "Resolved", got.StatusDisplay)
	assert.Equal(t, "Filled and resurfaced", got.AdminComment)
	require.NotNil(t, got.UpdatedAt)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, got.ResolvedAt.Equal(analyticsNow))

	require.NotEmpty(t, got.Timeline)
	last := got.Timeline[len(got.Timeline)-1]
	assert.Equal(t, StatusResolved, last.Status)
	assert.Equal(t, adminUser, last.User)
	assert.Equal(t, "Filled and resurfaced", last.Comment)

	notification := waitFor(t, ta.statusEmails)
	assert.Equal(t, StatusSubmitted, notification.previous)
	assert.Equal(t, "1", notification.report.ID)

	stored, err := ta.findReport(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, stored.Status)
}

func TestUpdateStatusHandler_SameStatusSkipsNotification(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(http.MethodPatch, "/api/v1/admin/reports/2/status", `{"status":"In Progress"}`, ta.adminToken(t))
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeJSON[LocalizedReport](t, rec)
	assert.Nil(t, got.ResolvedAt)
	assert.Len(t, got.Timeline, 1)

	select {
	case n := <-ta.statusEmails:
		t.Fatalf("unexpected notification for %s", n.report.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUpdateStatusHandler_Errors(t *testing.T) {
	ta := newTestApp(t)
	token := ta.adminToken(t)

	rec := ta.do(http.MethodPatch, "/api/v1/admin/reports/1/status", `{"status":"archived"}`, token)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status"`)

	rec = ta.do(http.MethodPatch, "/api/v1/admin/reports/missing/status", `{"status":"resolved"}`, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "report_not_found")

	rec = ta.do(http.MethodPatch, "/api/v1/admin/reports/1/status", `{"status":`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCommentIsAttributedToAdmin(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(http.MethodPost, "/api/v1/admin/reports/3/comments", `{"text":"Crew dispatched","user":"Ravi"}`, ta.adminToken(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decodeJSON[LocalizedReport](t, rec)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, adminUser, got.Comments[0].User)
	assert.Equal(t, "Crew dispatched", got.Comments[0].Text)
}

func TestAdminListShowsCitizenDetails(t *testing.T) {
	ta := newTestApp(t)
	sub := validSubmission()
	_, err := ta.createReport(context.Background(), sub, "en")
	require.NoError(t, err)

	rec := ta.do(http.MethodGet, "/api/v1/admin/reports?q=asha", "", ta.adminToken(t))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[struct {
		Reports    []LocalizedReport `json:"reports"`
		Pagination Pagination        `json:"pagination"`
	}](t, rec)
	require.Len(t, resp.Reports, 1)
	assert.Equal(t, "Asha", resp.Reports[0].CitizenName)
	assert.Equal(t, "+91 98200 00000", resp.Reports[0].CitizenPhone)
	assert.Equal(t, 1, resp.Pagination.Total)

	detail := ta.do(http.MethodGet, "/api/v1/admin/reports/r-1", "", ta.adminToken(t))
	require.Equal(t, http.StatusOK, detail.Code)
	assert.Contains(t, detail.Body.String(), "+91 98200 00000")
}

func TestAnalyticsHandler(t *testing.T) {
	ta := newTestApp(t)
	token := ta.adminToken(t)

	rec := ta.do(http.MethodGet, "/api/v1/admin/analytics?window=30d", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[Analytics](t, rec)
	assert.Equal(t, "30d", got.Window)
	assert.Equal(t, 8, got.Total)
	assert.Equal(t, 2, got.Resolved)
	assert.Equal(t, 3, got.InProgress)
	assert.Equal(t, 3, got.Submitted)

	rec = ta.do(http.MethodGet, "/api/v1/admin/analytics?category=pothole", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeJSON[Analytics](t, rec).Total)

	rec = ta.do(http.MethodGet, "/api/v1/admin/analytics?category=volcano", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_category")
}

func TestPredictiveAndPerformanceHandlers(t *testing.T) {
	ta := newTestApp(t)
	token := ta.adminToken(t)

	rec := ta.do(http.MethodGet, "/api/v1/admin/analytics/predictive", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	predictive := decodeJSON[map[string]any](t, rec)
	assert.Contains(t, predictive, "costEstimate")
	assert.Contains(t, predictive, "priorityIssues")

	rec = ta.do(http.MethodGet, "/api/v1/admin/analytics/performance", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	performance := decodeJSON[PerformanceMetrics](t, rec)
	assert.GreaterOrEqual(t, performance.Satisfaction, 0)
}

func TestPredictiveAndPerformanceHandlers_RespectFilters(t *testing.T) {
	ta := newTestApp(t)
	token := ta.adminToken(t)

	// Only reports 1 and 2 fall inside the last seven days.
	rec := ta.do(http.MethodGet, "/api/v1/admin/analytics/predictive?window=7d", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	predictive := decodeJSON[PredictiveAnalytics](t, rec)
	var categories []Category
	for _, entry := range predictive.CostBreakdown {
		categories = append(categories, entry.Category)
	}
	assert.ElementsMatch(t, []Category{CategoryPothole, CategoryTrafficLight}, categories)

	rec = ta.do(http.MethodGet, "/api/v1/admin/analytics/predictive?category=bench", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	predictive = decodeJSON[PredictiveAnalytics](t, rec)
	require.Len(t, predictive.CostBreakdown, 1)
	assert.Equal(t, CategoryBench, predictive.CostBreakdown[0].Category)

	rec = ta.do(http.MethodGet, "/api/v1/admin/analytics/performance?window=7d&category=bench", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, PerformanceMetrics{}, decodeJSON[PerformanceMetrics](t, rec))

	for _, target := range []string{"/api/v1/admin/analytics/predictive", "/api/v1/admin/analytics/performance", "/api/v1/admin/analytics/trends"} {
		rec = ta.do(http.MethodGet, target+"?category=volcano", "", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestTrendsHandler_RespectsCategory(t *testing.T) {
	ta := newTestApp(t)
	token := ta.adminToken(t)

	rec := ta.do(http.MethodGet, "/api/v1/admin/analytics/trends?days=14&category=pothole", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	total := 0
	for _, bucket := range decodeJSON[TrendAnalysis](t, rec).Daily {
		total += bucket.Total
	}
	assert.Equal(t, 1, total)
}

func TestTrendsHandler(t *testing.T) {
	ta := newTestApp(t)
	token := ta.adminToken(t)

	rec := ta.do(http.MethodGet, "/api/v1/admin/analytics/trends", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	trends := decodeJSON[TrendAnalysis](t, rec)
	assert.Len(t, trends.Daily, 7)
	assert.Len(t, trends.Weekly, 1)

	rec = ta.do(http.MethodGet, "/api/v1/admin/analytics/trends?window=30d", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeJSON[TrendAnalysis](t, rec).Daily, 30)

	for _, days := range []string{"0", "91", "abc"} {
		rec = ta.do(http.MethodGet, "/api/v1/admin/analytics/trends?days="+days, "", token)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "days=%s", days)
	}
}

func TestMunicipalityStatsHandler(t *testing.T) {
	ta := newTestApp(t)
	token := ta.adminToken(t)

	rec := ta.do(http.MethodGet, "/api/v1/admin/stats?municipality=delhi", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeJSON[MunicipalityStats](t, rec)
	assert.Equal(t, MunicipalityStats{Municipality: "delhi", Total: 8, Resolved: 2, InProgress: 3, Pending: 3}, stats)

	rec = ta.do(http.MethodGet, "/api/v1/admin/stats?municipality=mumbai", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeJSON[MunicipalityStats](t, rec).Total)

	rec = ta.do(http.MethodGet, "/api/v1/admin/stats?municipality=atlantis", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
