package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"civicreport/libs/mailer"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func emailTestReport() Report {
	report := seededSampleReports()[0]
	report.CitizenName = "Asha <Verma>"
	report.CitizenPhone = "+91-9876543210"
	report.CitizenEmail = "asha@example.in"
	report.Location = "Connaught Place, New Delhi"
	return report
}

func TestBuildNewReportEmail(t *testing.T) {
	ta := newTestApp(t)
	m, _ := municipalityByID("delhi")

	msg := ta.buildNewReportEmail(emailTestReport(), m)

	if msg.To[0] != "admin@mcd.gov.in" {
		t.Errorf("wrong recipient: %s", msg.To[0])
	}
	if msg.Subject != "New Pothole report: Large Pothole on Connaught Place Road" {
		t.Errorf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Asha &lt;Verma&gt;") {
		t.Error("citizen name should be escaped in HTML body")
	}
	if !strings.Contains(msg.HTML, "https://civicreport.in/reports/1") {
		t.Error("body should link to the report")
	}
	if !strings.Contains(msg.Text, "Connaught Place, New Delhi") {
		t.Error("text body should contain the location")
	}
	if msg.Tags["kind"] != "new_report" || msg.Tags["municipality"] != "delhi" {
		t.Errorf("unexpected tags %v", msg.Tags)
	}
}

func TestBuildNewReportEmail_FallsBackToCoordinates(t *testing.T) {
	ta := newTestApp(t)
	m, _ := municipalityByID("delhi")
	report := emailTestReport()
	report.Location = ""

	msg := ta.buildNewReportEmail(report, m)
	if !strings.Contains(msg.Text, "28.61390, 77.20900") {
		t.Errorf("expected coordinates in text body, got %q", msg.Text)
	}
}

func TestBuildStatusChangeEmail(t *testing.T) {
	ta := newTestApp(t)
	report := emailTestReport()
	report.Status = StatusResolved
	report.AdminComment = "Filled & resurfaced"

	msg := ta.buildStatusChangeEmail(report, StatusSubmitted)

	if msg.To[0] != "asha@example.in" {
		t.Errorf("wrong recipient: %s", msg.To[0])
	}
	if !strings.Contains(msg.Subject, "Resolved") {
		t.Errorf("subject should name the new status, got %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Submitted") {
		t.Error("body should name the previous status")
	}
	if !strings.Contains(msg.HTML, "Filled &amp; resurfaced") {
		t.Error("admin comment should be escaped into the body")
	}
	if msg.Tags["status"] != string(StatusResolved) {
		t.Errorf("unexpected tags %v", msg.Tags)
	}
}

func TestSendStatusChangeEmail(t *testing.T) {
	ta := newTestApp(t)

	noEmail := emailTestReport()
	noEmail.CitizenEmail = "  "
	if err := ta.sendStatusChangeEmail(context.Background(), noEmail, StatusSubmitted); err != nil {
		t.Fatalf("expected no-op without citizen email, got %v", err)
	}
	if len(ta.mail.Sent()) != 0 {
		t.Fatalf("expected no email, got %d", len(ta.mail.Sent()))
	}

	report := emailTestReport()
	report.Status = StatusInProgress
	if err := ta.sendStatusChangeEmail(context.Background(), report, StatusSubmitted); err != nil {
		t.Fatalf("send: %v", err)
	}
	sent := ta.mail.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sent))
	}
	if sent[0].From != "noreply@civicreport.local" {
		t.Errorf("expected default from address, got %q", sent[0].From)
	}
	if got := testutil.ToFloat64(ta.metrics.emailsSent.WithLabelValues("status_change", "sent")); got != 1 {
		t.Errorf("expected one sent status_change email metric, got %v", got)
	}
}

func TestSendNewReportEmail(t *testing.T) {
	ta := newTestApp(t)

	if err := ta.sendNewReportEmail(context.Background(), emailTestReport()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent := ta.mail.Sent(); len(sent) != 1 || sent[0].To[0] != "admin@mcd.gov.in" {
		t.Fatalf("unexpected sent messages %+v", sent)
	}

	report := emailTestReport()
	report.Municipality = "atlantis"
	if err := ta.sendNewReportEmail(context.Background(), report); err == nil {
		t.Fatal("expected error for unknown municipality")
	}
}

func TestSendNewReportEmail_ProviderFailureCounted(t *testing.T) {
	ta := newTestApp(t)
	ta.mail.Err = errors.New("provider down")

	if err := ta.sendNewReportEmail(context.Background(), emailTestReport()); err == nil {
		t.Fatal("expected provider error")
	}
	if got := testutil.ToFloat64(ta.metrics.emailsSent.WithLabelValues("new_report", "failed")); got != 1 {
		t.Errorf("expected one failed new_report metric, got %v", got)
	}
}

func TestSendMunicipalityDigests(t *testing.T) {
	ta := newTestApp(t)

	sent, err := ta.sendMunicipalityDigests(context.Background())
	if err != nil {
		t.Fatalf("failed to send digests: %v", err)
	}

	// Only Delhi has open reports in the seed data.
	if sent != 1 {
		t.Fatalf("expected 1 digest, got %d", sent)
	}
	messages := ta.mail.Sent()
	if len(messages) != 1 {
		t.Fatalf("expected 1 email sent, got %d", len(messages))
	}
	msg := messages[0]
	if msg.To[0] != "admin@mcd.gov.in" {
		t.Errorf("wrong recipient for digest: %s", msg.To[0])
	}
	if !strings.Contains(msg.Text, "Pending: 3") || !strings.Contains(msg.Text, "In progress: 3") {
		t.Errorf("unexpected digest body %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "https://civicreport.in/admin?municipality=delhi") {
		t.Errorf("digest should link to the dashboard, got %q", msg.Text)
	}
}

func TestSendMunicipalityDigests_ContinuesAfterFailure(t *testing.T) {
	ta := newTestApp(t)
	ta.mailer = mailer.New(&mailer.RecorderProvider{Err: errors.New("boom")}, "noreply@civicreport.local")

	sent, err := ta.sendMunicipalityDigests(context.Background())
	if err != nil {
		t.Fatalf("expected per-municipality failures to be logged, got %v", err)
	}
	if sent != 0 {
		t.Fatalf("expected 0 sent, got %d", sent)
	}
}

func TestBuildPublicURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://civicreport.in/", "/reports/1", "https://civicreport.in/reports/1"},
		{"https://civicreport.in", "reports/1", "https://civicreport.in/reports/1"},
		{"", "/reports/1", "/reports/1"},
	}
	for _, tt := range tests {
		if got := buildPublicURL(tt.base, tt.path); got != tt.want {
			t.Errorf("buildPublicURL(%q, %q) = %q, want %q", tt.base, tt.path, got, tt.want)
		}
	}
}
