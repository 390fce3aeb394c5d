package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-pdf/fpdf"
	geojson "github.com/paulmach/go.geojson"
)

var csvHeaders = []string{
	"id", "title", "category", "status", "priority", "municipality",
	"latitude", "longitude", "location", "citizen_name", "citizen_phone", "citizen_email",
	"reported_at", "updated_at", "resolved_at", "ai_category", "ai_confidence", "comments",
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func buildReportsCSV(reports []Report) ([]byte, error) {
	buffer := bytes.NewBuffer(nil)
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeaders); err != nil {
		return nil, err
	}
	for _, r := range reports {
		aiCategory, aiConfidence := "", ""
		if r.AIAnalysis != nil {
			aiCategory = string(r.AIAnalysis.Category)
			aiConfidence = strconv.FormatFloat(r.AIAnalysis.Confidence, 'f', 2, 64)
		}
		row := []string{
			r.ID,
			r.Title,
			string(r.Category),
			string(r.Status),
			r.Priority,
			r.Municipality,
			strconv.FormatFloat(r.Latitude, 'f', 6, 64),
			strconv.FormatFloat(r.Longitude, 'f', 6, 64),
			r.Location,
			r.CitizenName,
			r.CitizenPhone,
			r.CitizenEmail,
			r.Timestamp.UTC().Format(time.RFC3339),
			formatOptionalTime(r.UpdatedAt),
			formatOptionalTime(r.ResolvedAt),
			aiCategory,
			aiConfidence,
			strconv.Itoa(len(r.Comments)),
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// reportFeature is a Point feature without contact details or images.
func reportFeature(r Report, lang string) *geojson.Feature {
	feature := geojson.NewPointFeature([]float64{r.Longitude, r.Latitude})
	feature.ID = r.ID
	feature.SetProperty("id", r.ID)
	feature.SetProperty("title", r.Title)
	feature.SetProperty("category", string(r.Category))
	feature.SetProperty("categoryDisplay", categoryLabel(lang, r.Category))
	feature.SetProperty("status", string(r.Status))
	feature.SetProperty("statusDisplay", statusLabel(lang, r.Status))
	feature.SetProperty("municipality", r.Municipality)
	feature.SetProperty("timestamp", r.Timestamp.UTC().Format(time.RFC3339))
	if r.Priority != "" {
		feature.SetProperty("priority", r.Priority)
	}
	return feature
}

func buildReportsGeoJSON(reports []Report, lang string) ([]byte, error) {
	collection := geojson.NewFeatureCollection()
	for _, r := range reports {
		collection.AddFeature(reportFeature(r, lang))
	}
	return collection.MarshalJSON()
}

// buildAnalyticsPDF renders the dashboard summary. Core PDF fonts only cover
// Latin-1, so labels are always English.
func buildAnalyticsPDF(analytics Analytics, now time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Civic issue analytics")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	scope := "all categories"
	if analytics.Category != "" && analytics.Category != "all" {
		if category, ok := parseCategory(analytics.Category); ok {
			scope = category.DisplayName()
		}
	}
	pdf.Cell(0, 7, fmt.Sprintf("Window: %s (%s)", analytics.Window, scope))
	pdf.Ln(6)
	pdf.Cell(0, 7, "Generated: "+now.UTC().Format("2006-01-02 15:04 UTC"))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Overview")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	overview := [][2]string{
		{"Total reports", strconv.Itoa(analytics.Total)},
		{"Submitted", strconv.Itoa(analytics.Submitted)},
		{"In progress", strconv.Itoa(analytics.InProgress)},
		{"Resolved", strconv.Itoa(analytics.Resolved)},
		{"Rejected", strconv.Itoa(analytics.Rejected)},
		{"Resolution rate", fmt.Sprintf("%.1f%%", analytics.ResolutionRate)},
		{"Average resolution time", fmt.Sprintf("%.1f days", analytics.AvgResolutionDays)},
	}
	for _, row := range overview {
		pdf.CellFormat(70, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, row[1], "", 1, "L", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 8, "Reports by category")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	if len(analytics.CategoryStats) == 0 {
		pdf.Cell(0, 6, "No reports in this window.")
		pdf.Ln(6)
	}
	for _, entry := range analytics.CategoryStats {
		pdf.Cell(0, 6, tr(fmt.Sprintf("- %s: %d", entry.Category.DisplayName(), entry.Count)))
		pdf.Ln(6)
	}

	if len(analytics.Insights) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Insights")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		for _, insight := range analytics.Insights {
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("%s: %s", insight.Title, insight.Description)), "", "L", false)
			pdf.Ln(1)
		}
	}

	if len(analytics.Recommendations) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.Cell(0, 8, "Recommendations")
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "", 10)
		for _, rec := range analytics.Recommendations {
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(rec.Priority)), rec.Title, rec.Description)), "", "L", false)
			pdf.Ln(1)
		}
	}

	buffer := bytes.NewBuffer(nil)
	if err := pdf.Output(buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func writeAttachment(c *gin.Context, contentType, fileName string, body []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	c.Data(http.StatusOK, contentType, body)
}

// exportedReports applies the admin list filters without pagination.
func (a *App) exportedReports(c *gin.Context) ([]Report, bool) {
	query, err := parseReportQuery(c.Request.URL.Query(), true)
	if err != nil {
		writeAPIError(c, err)
		return nil, false
	}
	reports, err := a.store.Load(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return nil, false
	}
	return queryReports(reports, query), true
}

func exportFileName(prefix, ext string, now time.Time) string {
	return fmt.Sprintf("%s-%s.%s", prefix, now.UTC().Format("20060102"), ext)
}

func (a *App) exportCSVHandler(c *gin.Context) {
	reports, ok := a.exportedReports(c)
	if !ok {
		return
	}
	body, err := buildReportsCSV(reports)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	session, _ := getAdminSession(c)
	a.log.Info("reports exported", "format", "csv", "count", len(reports), "admin", session.Email)
	writeAttachment(c, "text/csv; charset=utf-8", exportFileName("reports", "csv", a.now()), body)
}

func (a *App) exportGeoJSONHandler(c *gin.Context) {
	reports, ok := a.exportedReports(c)
	if !ok {
		return
	}
	body, err := buildReportsGeoJSON(reports, a.requestLanguage(c))
	if err != nil {
		writeAPIError(c, err)
		return
	}
	session, _ := getAdminSession(c)
	a.log.Info("reports exported", "format", "geojson", "count", len(reports), "admin", session.Email)
	writeAttachment(c, "application/geo+json", exportFileName("reports", "geojson", a.now()), body)
}

func (a *App) exportAnalyticsPDFHandler(c *gin.Context) {
	analytics, ok := a.loadAnalytics(c)
	if !ok {
		return
	}
	body, err := buildAnalyticsPDF(analytics, a.now())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	writeAttachment(c, "application/pdf", exportFileName("analytics-"+analytics.Window, "pdf", a.now()), body)
}
