package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	maxImageCount    = 3
	maxImageBytes    = 5 * 1024 * 1024
	maxCommentLength = 1000
	maxTitleLength   = 200
)

var allowedPriorities = []string{"low", "medium", "high", "urgent"}

// validationError carries field-keyed messages for a 422 response.
type validationError struct {
	Fields map[string]string
}

func (e *validationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	return "validation failed: " + strings.Join(keys, ", ")
}

type ReportSubmission struct {
	Title        string   `json:"title" validate:"required,max=200"`
	Category     string   `json:"category" validate:"required,category"`
	Description  string   `json:"description" validate:"required"`
	Latitude     *float64 `json:"latitude" validate:"required,geo_lat"`
	Longitude    *float64 `json:"longitude" validate:"required,geo_lng"`
	Location     string   `json:"location"`
	Municipality string   `json:"municipality" validate:"required,municipality"`
	Priority     string   `json:"priority" validate:"omitempty,priority"`
	CitizenName  string   `json:"citizenName" validate:"required"`
	CitizenPhone string   `json:"citizenPhone" validate:"required"`
	CitizenEmail string   `json:"citizenEmail" validate:"omitempty,email"`
	Images       []string `json:"images" validate:"max=3,dive,image_data_url"`
}

type StatusUpdateRequest struct {
	Status  string `json:"status" validate:"required,status"`
	Comment string `json:"comment" validate:"max=1000"`
}

type CommentRequest struct {
	Text string `json:"text" validate:"required,max=1000"`
	User string `json:"user" validate:"max=100"`
}

// fieldMessages maps "<field>.<tag>" and then "<field>" to a translation key.
var fieldMessages = map[string]string{
	"title":              "titleRequired",
	"title.max":          "textTooLong",
	"category":           "categoryRequired",
	"description":        "descriptionRequired",
	"latitude.required":  "locationRequired",
	"latitude":           "latitudeInvalid",
	"longitude.required": "locationRequired",
	"longitude":          "longitudeInvalid",
	"municipality":       "municipalityRequired",
	"priority":           "priorityInvalid",
	"citizenName":        "nameRequired",
	"citizenPhone":       "phoneRequired",
	"citizenEmail":       "emailInvalid",
	"images.max":         "tooManyImages",
	"images":             "imageInvalid",
	"status":             "statusInvalid",
	"comment":            "textTooLong",
	"text.required":      "commentRequired",
	"text":               "textTooLong",
	"user":               "textTooLong",
}

// reportValidator wraps go-playground validator with the report rules.
type reportValidator struct {
	validate *validator.Validate
}

func newReportValidator() *reportValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("category", validateCategory)
	_ = v.RegisterValidation("municipality", validateMunicipality)
	_ = v.RegisterValidation("status", validateStatus)
	_ = v.RegisterValidation("priority", validatePriority)
	_ = v.RegisterValidation("geo_lat", validateLatitude)
	_ = v.RegisterValidation("geo_lng", validateLongitude)
	_ = v.RegisterValidation("image_data_url", validateImageDataURL)

	return &reportValidator{validate: v}
}

func validateCategory(fl validator.FieldLevel) bool {
	_, ok := parseCategory(fl.Field().String())
	return ok
}

func validateMunicipality(fl validator.FieldLevel) bool {
	return isValidMunicipality(fl.Field().String())
}

func validateStatus(fl validator.FieldLevel) bool {
	_, ok := parseStatus(fl.Field().String())
	return ok
}

func validatePriority(fl validator.FieldLevel) bool {
	value := strings.ToLower(fl.Field().String())
	for _, allowed := range allowedPriorities {
		if value == allowed {
			return true
		}
	}
	return false
}

func validateLatitude(fl validator.FieldLevel) bool {
	value := fl.Field().Float()
	return value >= -90 && value <= 90
}

func validateLongitude(fl validator.FieldLevel) bool {
	value := fl.Field().Float()
	return value >= -180 && value <= 180
}

func validateImageDataURL(fl validator.FieldLevel) bool {
	_, err := decodeImageDataURL(fl.Field().String())
	return err == nil
}

// Struct validates input and returns a *validationError with messages in lang.
func (rv *reportValidator) Struct(input any, lang string) error {
	err := rv.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := fieldKey(fe)
		if _, exists := fields[field]; exists {
			continue
		}
		fields[field] = translate(lang, messageKey(field, fe.Tag()))
	}
	return &validationError{Fields: fields}
}

// fieldKey collapses images[2] to images and latitude/longitude misses to
// location, matching the form's error slots.
func fieldKey(fe validator.FieldError) string {
	field := fe.Field()
	if idx := strings.IndexByte(field, '['); idx > 0 {
		field = field[:idx]
	}
	if fe.Tag() == "required" && (field == "latitude" || field == "longitude") {
		return "location"
	}
	return field
}

func messageKey(field, tag string) string {
	if field == "location" {
		return "locationRequired"
	}
	if key, ok := fieldMessages[field+"."+tag]; ok {
		return key
	}
	if key, ok := fieldMessages[field]; ok {
		return key
	}
	return field
}

// normalize trims every free-text field before validation.
func (s *ReportSubmission) normalize() {
	s.Title = strings.TrimSpace(s.Title)
	s.Category = strings.ToLower(strings.TrimSpace(s.Category))
	s.Description = strings.TrimSpace(s.Description)
	s.Location = strings.TrimSpace(s.Location)
	s.Municipality = strings.ToLower(strings.TrimSpace(s.Municipality))
	s.Priority = strings.ToLower(strings.TrimSpace(s.Priority))
	s.CitizenName = strings.TrimSpace(s.CitizenName)
	s.CitizenPhone = strings.TrimSpace(s.CitizenPhone)
	s.CitizenEmail = strings.ToLower(strings.TrimSpace(s.CitizenEmail))
}

// decodeImageDataURL accepts data:image/<type>;base64,<payload> up to 5MB.
func decodeImageDataURL(dataURL string) (ImageInput, error) {
	meta, payload, found := strings.Cut(dataURL, ",")
	if !found {
		return ImageInput{}, fmt.Errorf("invalid data URL")
	}
	if !strings.HasPrefix(meta, "data:image/") || !strings.HasSuffix(meta, ";base64") {
		return ImageInput{}, errUnsupportedImage
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxImageBytes+3 {
		return ImageInput{}, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ImageInput{}, fmt.Errorf("decode image payload: %w", err)
	}
	if len(decoded) > maxImageBytes {
		return ImageInput{}, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	mimeType := strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")
	return ImageInput{MimeType: mimeType, Data: decoded}, nil
}

func encodeImageDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
