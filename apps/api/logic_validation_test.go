package main

import (
	"errors"
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func validSubmission() ReportSubmission {
	return ReportSubmission{
		Title:        "Open manhole",
		Category:     "drainage",
		Description:  "Manhole cover missing near the bus stop",
		Latitude:     floatPtr(19.07),
		Longitude:    floatPtr(72.88),
		Municipality: "mumbai",
		CitizenName:  "Asha",
		CitizenPhone: "+91 98200 00000",
	}
}

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var vErr *validationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validationError, got %v", err)
	}
	return vErr.Fields
}

func TestReportValidator_AcceptsValidSubmission(t *testing.T) {
	submission := validSubmission()
	submission.CitizenEmail = "asha@example.com"
	submission.Images = []string{encodeImageDataURL("image/png", []byte{0x89, 'P', 'N', 'G'})}

	if err := newReportValidator().Struct(submission, "en"); err != nil {
		t.Fatalf("expected valid submission, got %v", err)
	}
}

func TestReportValidator_RequiredFields(t *testing.T) {
	submission := ReportSubmission{}
	submission.normalize()

	fields := validationFields(t, newReportValidator().Struct(submission, "en"))

	want := map[string]string{
		"title":        "Title is required",
		"category":     "Please select an issue type",
		"description":  "Description is required",
		"location":     "Location is required",
		"municipality": "Please select municipality",
		"citizenName":  "Name is required",
		"citizenPhone": "Phone number is required",
	}
	for field, message := range want {
		if fields[field] != message {
			t.Fatalf("field %s: got %q want %q", field, fields[field], message)
		}
	}
	if len(fields) != len(want) {
		t.Fatalf("unexpected extra fields: %v", fields)
	}
}

func TestReportValidator_WhitespaceOnlyIsMissing(t *testing.T) {
	submission := validSubmission()
	submission.Title = "   "
	submission.normalize()

	fields := validationFields(t, newReportValidator().Struct(submission, "en"))
	if fields["title"] != "Title is required" {
		t.Fatalf("expected title error, got %v", fields)
	}
}

func TestReportValidator_LocalizedMessages(t *testing.T) {
	submission := validSubmission()
	submission.CitizenName = ""

	fields := validationFields(t, newReportValidator().Struct(submission, "hi"))
	if fields["citizenName"] != "नाम आवश्यक है" {
		t.Fatalf("expected hindi message, got %q", fields["citizenName"])
	}
}

func TestReportValidator_RangeAndLookupRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ReportSubmission)
		field   string
		message string
	}{
		{"latitude out of range", func(s *ReportSubmission) { s.Latitude = floatPtr(91) }, "latitude", "Latitude must be between -90 and 90"},
		{"longitude out of range", func(s *ReportSubmission) { s.Longitude = floatPtr(-180.5) }, "longitude", "Longitude must be between -180 and 180"},
		{"unknown category", func(s *ReportSubmission) { s.Category = "volcano" }, "category", "Please select an issue type"},
		{"unknown municipality", func(s *ReportSubmission) { s.Municipality = "atlantis" }, "municipality", "Please select municipality"},
		{"bad email", func(s *ReportSubmission) { s.CitizenEmail = "not-an-email" }, "citizenEmail", "Email is invalid"},
		{"bad priority", func(s *ReportSubmission) { s.Priority = "whenever" }, "priority", "Priority must be low, medium, high or urgent"},
		{"non image", func(s *ReportSubmission) { s.Images = []string{"data:text/plain;base64,aGk="} }, "images", "Image must be an image file under 5MB"},
		{"too many images", func(s *ReportSubmission) {
			img := encodeImageDataURL("image/jpeg", []byte{1})
			s.Images = []string{img, img, img, img}
		}, "images", "At most 3 images are allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submission := validSubmission()
			tt.mutate(&submission)
			fields := validationFields(t, newReportValidator().Struct(submission, "en"))
			if fields[tt.field] != tt.message {
				t.Fatalf("field %s: got %q want %q (all: %v)", tt.field, fields[tt.field], tt.message, fields)
			}
		})
	}
}

func TestReportValidator_StatusUpdate(t *testing.T) {
	v := newReportValidator()
	if err := v.Struct(StatusUpdateRequest{Status: "in-progress"}, "en"); err != nil {
		t.Fatalf("expected loose status spelling to pass, got %v", err)
	}

	fields := validationFields(t, v.Struct(StatusUpdateRequest{Status: "archived"}, "en"))
	if fields["status"] != "Please select a valid status" {
		t.Fatalf("unexpected status message %q", fields["status"])
	}

	fields = validationFields(t, v.Struct(StatusUpdateRequest{Status: "Resolved", Comment: strings.Repeat("x", maxCommentLength+1)}, "en"))
	if fields["comment"] != "Text is too long" {
		t.Fatalf("unexpected comment message %q", fields["comment"])
	}
}

func TestReportValidator_Comment(t *testing.T) {
	fields := validationFields(t, newReportValidator().Struct(CommentRequest{}, "en"))
	if fields["text"] != "Comment is required" {
		t.Fatalf("unexpected comment message %q", fields["text"])
	}
}

func TestDecodeImageDataURL(t *testing.T) {
	img, err := decodeImageDataURL(encodeImageDataURL("image/webp", []byte("abc")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if img.MimeType != "image/webp" || string(img.Data) != "abc" {
		t.Fatalf("unexpected decode result %+v", img)
	}

	oversized := encodeImageDataURL("image/jpeg", make([]byte, maxImageBytes+1))
	if _, err := decodeImageDataURL(oversized); err == nil {
		t.Fatal("expected oversized image to be rejected")
	}
	if _, err := decodeImageDataURL("data:image/png;base64"); err == nil {
		t.Fatal("expected missing payload to be rejected")
	}
}
