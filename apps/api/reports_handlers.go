package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	citizenUser = "Citizen"
	adminUser   = "Admin"
)

var errReportNotFound = &apiError{Status: http.StatusNotFound, Code: "report_not_found", Message: "Report not found"}

// publicReport strips contact details before a report leaves the admin API.
func publicReport(r Report) Report {
	r.CitizenName = ""
	r.CitizenPhone = ""
	r.CitizenEmail = ""
	return r
}

func publicReports(reports []Report) []Report {
	out := make([]Report, 0, len(reports))
	for _, r := range reports {
		out = append(out, publicReport(r))
	}
	return out
}

func (a *App) listReportsHandler(c *gin.Context) {
	a.writeReportList(c, false)
}

func (a *App) writeReportList(c *gin.Context, admin bool) {
	query, err := parseReportQuery(c.Request.URL.Query(), admin)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	reports, err := a.store.Load(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}

	matched := queryReports(reports, query)
	page := buildPagination(len(matched), query.Page, query.PerPage)
	items := pageOf(matched, page)
	if !admin {
		items = publicReports(items)
	}

	c.JSON(http.StatusOK, gin.H{
		"reports":    translateReports(items, a.requestLanguage(c)),
		"pagination": page,
	})
}

func (a *App) findReport(ctx context.Context, id string) (Report, error) {
	reports, err := a.store.Load(ctx)
	if err != nil {
		return Report{}, err
	}
	idx := findReportIndex(reports, id)
	if idx < 0 {
		return Report{}, errReportNotFound
	}
	return reports[idx], nil
}

func (a *App) getReportHandler(c *gin.Context) {
	report, err := a.findReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, translateReport(publicReport(report), a.requestLanguage(c)))
}

func optionalFloat(raw string) (*float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, false
	}
	return &value, true
}

// parseReportSubmission accepts the JSON form body (images as data URLs) or
// multipart with "images" file parts.
func parseReportSubmission(c *gin.Context, lang string) (ReportSubmission, error) {
	var sub ReportSubmission
	contentType := strings.ToLower(c.GetHeader("Content-Type"))

	if strings.Contains(contentType, "application/json") {
		if err := c.ShouldBindJSON(&sub); err != nil {
			return sub, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid JSON body"}
		}
		return sub, nil
	}

	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		return sub, &apiError{Status: http.StatusBadRequest, Code: "invalid_multipart", Message: "Invalid multipart form"}
	}

	fields := map[string]string{}
	lat, ok := optionalFloat(c.PostForm("latitude"))
	if !ok {
		fields["latitude"] = translate(lang, "latitudeInvalid")
	}
	lng, ok := optionalFloat(c.PostForm("longitude"))
	if !ok {
		fields["longitude"] = translate(lang, "longitudeInvalid")
	}
	if len(fields) > 0 {
		return sub, &validationError{Fields: fields}
	}

	sub = ReportSubmission{
		Title:        c.PostForm("title"),
		Category:     c.PostForm("category"),
		Description:  c.PostForm("description"),
		Latitude:     lat,
		Longitude:    lng,
		Location:     c.PostForm("location"),
		Municipality: c.PostForm("municipality"),
		Priority:     c.PostForm("priority"),
		CitizenName:  c.PostForm("citizenName"),
		CitizenPhone: c.PostForm("citizenPhone"),
		CitizenEmail: c.PostForm("citizenEmail"),
	}

	for _, fileHeader := range c.Request.MultipartForm.File["images"] {
		opened, err := fileHeader.Open()
		if err != nil {
			return sub, err
		}
		data, readErr := io.ReadAll(io.LimitReader(opened, maxImageBytes+1))
		_ = opened.Close()
		if readErr != nil {
			return sub, readErr
		}
		if len(data) > maxImageBytes {
			return sub, &validationError{Fields: map[string]string{"images": translate(lang, "imageInvalid")}}
		}

		mimeType := fileHeader.Header.Get("Content-Type")
		if mimeType == "" || mimeType == "application/octet-stream" {
			mimeType = http.DetectContentType(data)
		}
		mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
		sub.Images = append(sub.Images, encodeImageDataURL(mimeType, data))
	}

	return sub, nil
}

func (a *App) createReportHandler(c *gin.Context) {
	lang := a.requestLanguage(c)
	sub, err := parseReportSubmission(c, lang)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	report, err := a.createReport(c.Request.Context(), sub, lang)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	a.runInBackground("notify_municipality", func(ctx context.Context) error {
		return a.notifyMunicipality(ctx, report)
	})
	if report.Location == "" && a.geocoder != nil {
		a.runInBackground("geocode_location", func(ctx context.Context) error {
			return a.fillReportLocation(ctx, report.ID, report.Latitude, report.Longitude)
		})
	}

	c.JSON(http.StatusCreated, translateReport(report, lang))
}

// createReport validates, classifies the first image and prepends the new
// report to the store.
func (a *App) createReport(ctx context.Context, sub ReportSubmission, lang string) (Report, error) {
	sub.normalize()
	if err := a.validator.Struct(sub, lang); err != nil {
		return Report{}, err
	}

	category, _ := parseCategory(sub.Category)
	municipality, _ := municipalityByID(sub.Municipality)
	now := a.now()

	report := Report{
		ID:           a.newID(),
		Title:        sub.Title,
		Category:     category,
		Description:  sub.Description,
		Latitude:     *sub.Latitude,
		Longitude:    *sub.Longitude,
		Location:     sub.Location,
		Timestamp:    now,
		Status:       StatusSubmitted,
		Priority:     sub.Priority,
		Municipality: municipality.ID,
		CitizenName:  sub.CitizenName,
		CitizenPhone: sub.CitizenPhone,
		CitizenEmail: sub.CitizenEmail,
		Images:       sub.Images,
		Timeline:     []TimelineEntry{{Status: StatusSubmitted, User: citizenUser, Timestamp: now}},
		Comments:     []Comment{},
	}

	if len(sub.Images) > 0 && a.classifier != nil {
		img, err := decodeImageDataURL(sub.Images[0])
		if err == nil {
			analysis, classifyErr := a.classifier.Classify(ctx, img)
			if classifyErr != nil {
				a.log.Warn("image classification failed", "report_id", report.ID, "err", classifyErr)
			} else {
				a.metrics.classifications.WithLabelValues(string(analysis.Category)).Inc()
				report.AIAnalysis = &analysis
			}
		}
	}

	if _, err := a.mutateReports(ctx, func(reports []Report) ([]Report, error) {
		return append([]Report{report}, reports...), nil
	}); err != nil {
		return Report{}, fmt.Errorf("save report: %w", err)
	}

	a.metrics.reportsSubmitted.WithLabelValues(string(report.Category)).Inc()
	a.log.Info("report created", "report_id", report.ID, "category", report.Category, "municipality", report.Municipality)
	return report, nil
}

// addCommentHandler serves both the citizen and the admin route; the admin
// session decides the author label.
func (a *App) addCommentHandler(c *gin.Context) {
	lang := a.requestLanguage(c)
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid JSON body"})
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	req.User = strings.TrimSpace(req.User)
	if err := a.validator.Struct(req, lang); err != nil {
		writeAPIError(c, err)
		return
	}

	user := citizenUser
	if req.User != "" {
		user = req.User
	}
	admin := false
	if _, err := getAdminSession(c); err == nil {
		user = adminUser
		admin = true
	}

	report, err := a.appendComment(c.Request.Context(), c.Param("id"), Comment{Text: req.Text, User: user, Timestamp: a.now()})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if !admin {
		report = publicReport(report)
	}
	c.JSON(http.StatusCreated, translateReport(report, lang))
}

func (a *App) appendComment(ctx context.Context, id string, comment Comment) (Report, error) {
	var updated Report
	_, err := a.mutateReports(ctx, func(reports []Report) ([]Report, error) {
		idx := findReportIndex(reports, id)
		if idx < 0 {
			return nil, errReportNotFound
		}
		reports[idx].Comments = append(append([]Comment(nil), reports[idx].Comments...), comment)
		updated = reports[idx]
		return reports, nil
	})
	return updated, err
}

// classifyHandler runs the simulated classifier on one uploaded image
// without creating a report.
func (a *App) classifyHandler(c *gin.Context) {
	img, err := readClassifyImage(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	result, err := a.classifier.Classify(c.Request.Context(), img)
	if err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Code: "invalid_image", Message: err.Error()})
		return
	}
	a.metrics.classifications.WithLabelValues(string(result.Category)).Inc()

	lang := a.requestLanguage(c)
	c.JSON(http.StatusOK, gin.H{
		"analysis":        result,
		"categoryDisplay": categoryLabel(lang, result.Category),
	})
}

func readClassifyImage(c *gin.Context) (ImageInput, error) {
	invalid := &apiError{Status: http.StatusBadRequest, Code: "invalid_image", Message: "An image under 5MB is required"}

	if strings.Contains(strings.ToLower(c.GetHeader("Content-Type")), "application/json") {
		var body struct {
			Image string `json:"image"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			return ImageInput{}, &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Invalid JSON body"}
		}
		img, err := decodeImageDataURL(body.Image)
		if err != nil {
			return ImageInput{}, invalid
		}
		return img, nil
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return ImageInput{}, invalid
	}
	opened, err := fileHeader.Open()
	if err != nil {
		return ImageInput{}, err
	}
	defer opened.Close()
	data, err := io.ReadAll(io.LimitReader(opened, maxImageBytes+1))
	if err != nil {
		return ImageInput{}, err
	}
	if len(data) > maxImageBytes {
		return ImageInput{}, invalid
	}
	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return ImageInput{Filename: fileHeader.Filename, MimeType: mimeType, Data: data}, nil
}
