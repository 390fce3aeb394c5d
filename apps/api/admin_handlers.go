package main

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type adminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *App) adminLoginHandler(c *gin.Context) {
	var req adminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid JSON body"})
		return
	}

	session, err := a.authenticateAdmin(req.Email, req.Password)
	if err != nil {
		a.log.Warn("admin login rejected", "email", strings.ToLower(strings.TrimSpace(req.Email)), "ip", c.ClientIP())
		writeAPIError(c, err)
		return
	}

	token, err := a.createAdminSessionToken(session)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	a.log.Info("admin logged in", "email", session.Email)
	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"email":     session.Email,
		"role":      session.Role,
		"expiresIn": int(adminSessionDuration.Seconds()),
	})
}

func (a *App) adminSessionHandler(c *gin.Context) {
	session, err := getAdminSession(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (a *App) adminListReportsHandler(c *gin.Context) {
	a.writeReportList(c, true)
}

func (a *App) adminGetReportHandler(c *gin.Context) {
	report, err := a.findReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, translateReport(report, a.requestLanguage(c)))
}

func (a *App) updateStatusHandler(c *gin.Context) {
	lang := a.requestLanguage(c)
	var req StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid JSON body"})
		return
	}
	req.Comment = strings.TrimSpace(req.Comment)
	if err := a.validator.Struct(req, lang); err != nil {
		writeAPIError(c, err)
		return
	}
	status, _ := parseStatus(req.Status)

	report, previous, err := a.updateReportStatus(c.Request.Context(), c.Param("id"), status, req.Comment)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	session, _ := getAdminSession(c)
	a.log.Info("report status updated", "report_id", report.ID, "from", previous, "to", status, "admin", session.Email)

	if previous != status {
		a.runInBackground("notify_citizen", func(ctx context.Context) error {
			return a.notifyCitizen(ctx, report, previous)
		})
	}

	c.JSON(http.StatusOK, translateReport(report, lang))
}

// updateReportStatus records the transition on the timeline and returns the
// updated report with the status it had before.
func (a *App) updateReportStatus(ctx context.Context, id string, status Status, comment string) (Report, Status, error) {
	var (
		updated  Report
		previous Status
	)
	now := a.now()
	_, err := a.mutateReports(ctx, func(reports []Report) ([]Report, error) {
		idx := findReportIndex(reports, id)
		if idx < 0 {
			return nil, errReportNotFound
		}
		r := reports[idx]
		previous = r.Status

		r.Status = status
		r.AdminComment = comment
		r.UpdatedAt = timePtr(now)
		if status == StatusResolved {
			r.ResolvedAt = timePtr(now)
		} else {
			r.ResolvedAt = nil
		}
		r.Timeline = append(append([]TimelineEntry(nil), r.Timeline...), TimelineEntry{
			Status:    status,
			User:      adminUser,
			Timestamp: now,
			Comment:   comment,
		})

		reports[idx] = r
		updated = r
		return reports, nil
	})
	if err != nil {
		return Report{}, "", err
	}
	a.metrics.statusChanges.WithLabelValues(string(status)).Inc()
	return updated, previous, nil
}

func (a *App) municipalityStatsHandler(c *gin.Context) {
	municipality := strings.TrimSpace(c.Query("municipality"))
	if municipality != "" && !strings.EqualFold(municipality, "all") && !isValidMunicipality(municipality) {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_municipality", Message: "Unknown municipality"})
		return
	}
	reports, err := a.store.Load(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, computeMunicipalityStats(reports, municipality))
}

// analyticsScope is the report set selected by ?window= and ?category=.
type analyticsScope struct {
	window   string
	days     int
	category Category
	reports  []Report
}

func (a *App) loadAnalyticsScope(c *gin.Context) (analyticsScope, bool) {
	category, ok := parseCategoryFilter(c.Query("category"))
	if !ok {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_category", Message: "Unknown category"})
		return analyticsScope{}, false
	}
	reports, err := a.store.Load(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return analyticsScope{}, false
	}
	window, days := parseAnalyticsWindow(c.Query("window"))
	return analyticsScope{
		window:   window,
		days:     days,
		category: category,
		reports:  filterAnalyticsReports(reports, days, category, a.now()),
	}, true
}

func (a *App) loadAnalytics(c *gin.Context) (Analytics, bool) {
	scope, ok := a.loadAnalyticsScope(c)
	if !ok {
		return Analytics{}, false
	}
	analytics := summarizeReports(scope.reports, a.now())
	analytics.Window = scope.window
	analytics.Category = "all"
	if scope.category != "" {
		analytics.Category = string(scope.category)
	}
	return analytics, true
}

func (a *App) analyticsHandler(c *gin.Context) {
	analytics, ok := a.loadAnalytics(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func (a *App) predictiveAnalyticsHandler(c *gin.Context) {
	scope, ok := a.loadAnalyticsScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, computePredictiveAnalytics(scope.reports, a.now()))
}

func (a *App) performanceHandler(c *gin.Context) {
	scope, ok := a.loadAnalyticsScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, computePerformanceMetrics(scope.reports, a.now()))
}

// trendsHandler takes ?days=N (1-90) or a ?window=7d|30d|90d; the default is
// one week. Buckets only count reports inside the analytics window.
func (a *App) trendsHandler(c *gin.Context) {
	days := 7
	if raw := strings.TrimSpace(c.Query("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > analyticsWindows["90d"] {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_days", Message: "days must be between 1 and 90"})
			return
		}
		days = parsed
	} else if raw := c.Query("window"); raw != "" {
		_, days = parseAnalyticsWindow(raw)
	}

	scope, ok := a.loadAnalyticsScope(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, computeTrendAnalysis(scope.reports, days, a.now()))
}
