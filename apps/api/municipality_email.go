package main

import (
	"context"
	"fmt"
	"html"
	"strings"

	"civicreport/libs/mailer"
)

func buildPublicURL(baseURL, path string) string {
	if strings.HasPrefix(path, "/") {
		return strings.TrimRight(baseURL, "/") + path
	}
	return strings.TrimRight(baseURL, "/") + "/" + path
}

func (a *App) emailLanguage() string {
	if a.cfg != nil && a.cfg.DefaultLanguage != "" {
		return a.cfg.DefaultLanguage
	}
	return fallbackLanguage
}

func (a *App) reportURL(report Report) string {
	base := ""
	if a.cfg != nil {
		base = a.cfg.PublicBaseURL
	}
	return buildPublicURL(base, "/reports/"+report.ID)
}

func (a *App) buildNewReportEmail(report Report, m Municipality) mailer.Message {
	lang := a.emailLanguage()
	category := categoryLabel(lang, report.Category)
	subject := fmt.Sprintf("New %s report: %s", category, report.Title)

	location := report.Location
	if location == "" {
		location = fmt.Sprintf("%.5f, %.5f", report.Latitude, report.Longitude)
	}

	body := fmt.Sprintf(`
		<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; line-height: 1.6; color: #333;">
			<h2>%s</h2>
			<p>A citizen has reported a new issue for <strong>%s</strong>.</p>
			<table style="border-collapse: collapse;">
				<tr><td style="padding: 4px 12px 4px 0; color: #666;">Category</td><td>%s</td></tr>
				<tr><td style="padding: 4px 12px 4px 0; color: #666;">Location</td><td>%s</td></tr>
				<tr><td style="padding: 4px 12px 4px 0; color: #666;">Reported by</td><td>%s (%s)</td></tr>
			</table>
			<p>%s</p>
			<p style="margin: 30px 0;">
				<a href="%s" style="background-color: #2563eb; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; font-weight: bold; display: inline-block;">
					View report
				</a>
			</p>
		</div>
	`,
		html.EscapeString(report.Title),
		html.EscapeString(m.Name),
		html.EscapeString(category),
		html.EscapeString(location),
		html.EscapeString(report.CitizenName),
		html.EscapeString(report.CitizenPhone),
		html.EscapeString(report.Description),
		a.reportURL(report),
	)

	text := fmt.Sprintf(
		"A new issue was reported for %s.\n\n%s\nCategory: %s\nLocation: %s\nReported by: %s (%s)\n\n%s\n\nView report: %s",
		m.Name, report.Title, category, location, report.CitizenName, report.CitizenPhone, report.Description, a.reportURL(report),
	)

	return mailer.Message{
		To:      []string{m.AdminEmail},
		Subject: subject,
		HTML:    body,
		Text:    text,
		Tags:    map[string]string{"kind": "new_report", "municipality": m.ID},
	}
}

func (a *App) buildStatusChangeEmail(report Report, previous Status) mailer.Message {
	lang := a.emailLanguage()
	status := statusLabel(lang, report.Status)
	subject := fmt.Sprintf("Your report \"%s\" is now %s", report.Title, status)

	comment := ""
	if report.AdminComment != "" {
		comment = fmt.Sprintf(`<p style="border-left: 3px solid #ddd; padding-left: 12px; color: #555;">%s</p>`, html.EscapeString(report.AdminComment))
	}

	body := fmt.Sprintf(`
		<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; line-height: 1.6; color: #333;">
			<h2>Dear %s,</h2>
			<p>The status of your report <strong>%s</strong> changed from %s to <strong>%s</strong>.</p>
			%s
			<p><a href="%s">Follow the progress of your report</a></p>
			<p style="font-size: 14px; color: #666;">Thank you for helping improve your city.</p>
		</div>
	`,
		html.EscapeString(report.CitizenName),
		html.EscapeString(report.Title),
		html.EscapeString(statusLabel(lang, previous)),
		html.EscapeString(status),
		comment,
		a.reportURL(report),
	)

	text := fmt.Sprintf(
		"Dear %s,\n\nThe status of your report \"%s\" changed from %s to %s.\n%s\nFollow the progress: %s",
		report.CitizenName, report.Title, statusLabel(lang, previous), status, report.AdminComment, a.reportURL(report),
	)

	return mailer.Message{
		To:      []string{report.CitizenEmail},
		Subject: subject,
		HTML:    body,
		Text:    text,
		Tags:    map[string]string{"kind": "status_change", "status": string(report.Status)},
	}
}

// sendNewReportEmail notifies the municipality the report was filed with.
func (a *App) sendNewReportEmail(ctx context.Context, report Report) error {
	m, ok := municipalityByID(report.Municipality)
	if !ok {
		return fmt.Errorf("unknown municipality %q", report.Municipality)
	}
	_, err := a.mailer.Send(ctx, a.buildNewReportEmail(report, m))
	a.metrics.observeEmail("new_report", err)
	return err
}

// sendStatusChangeEmail is a no-op for reports without a citizen email.
func (a *App) sendStatusChangeEmail(ctx context.Context, report Report, previous Status) error {
	if strings.TrimSpace(report.CitizenEmail) == "" {
		return nil
	}
	_, err := a.mailer.Send(ctx, a.buildStatusChangeEmail(report, previous))
	a.metrics.observeEmail("status_change", err)
	return err
}

func (a *App) buildMunicipalityDigestEmail(m Municipality, stats MunicipalityStats) mailer.Message {
	subject := fmt.Sprintf("Weekly issue summary - %s", m.Name)
	dashboardURL := buildPublicURL(a.cfg.PublicBaseURL, "/admin?municipality="+m.ID)

	body := fmt.Sprintf(`
		<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; line-height: 1.6; color: #333;">
			<h2>Dear administrator of %s,</h2>
			<p>There are currently <strong>%d</strong> reports waiting for review and <strong>%d</strong> in progress.</p>
			<p>%d of %d reports have been resolved so far.</p>
			<p style="margin: 30px 0;">
				<a href="%s" style="background-color: #2563eb; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; font-weight: bold; display: inline-block;">
					Open dashboard
				</a>
			</p>
		</div>
	`, html.EscapeString(m.Name), stats.Pending, stats.InProgress, stats.Resolved, stats.Total, dashboardURL)

	text := fmt.Sprintf(
		"Dear administrator of %s,\n\nPending: %d\nIn progress: %d\nResolved: %d of %d\n\nDashboard: %s",
		m.Name, stats.Pending, stats.InProgress, stats.Resolved, stats.Total, dashboardURL,
	)

	return mailer.Message{
		To:      []string{m.AdminEmail},
		Subject: subject,
		HTML:    body,
		Text:    text,
		Tags:    map[string]string{"kind": "digest", "municipality": m.ID},
	}
}

// sendMunicipalityDigests mails every municipality with open reports a
// summary of its queue. Municipalities without pending or in-progress
// reports are skipped.
func (a *App) sendMunicipalityDigests(ctx context.Context) (int, error) {
	reports, err := a.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load reports: %w", err)
	}

	sent := 0
	for _, m := range indianMunicipalities {
		stats := computeMunicipalityStats(reports, m.ID)
		if stats.Pending+stats.InProgress == 0 {
			a.log.Info("skipping municipality digest (no open reports)", "municipality", m.ID)
			continue
		}
		_, err := a.mailer.Send(ctx, a.buildMunicipalityDigestEmail(m, stats))
		a.metrics.observeEmail("digest", err)
		if err != nil {
			a.log.Error("failed to send municipality digest", "municipality", m.ID, "err", err)
			continue
		}
		a.log.Info("sent municipality digest", "municipality", m.ID, "pending", stats.Pending, "in_progress", stats.InProgress)
		sent++
	}
	return sent, nil
}

// runInBackground detaches fn from the request so a slow mail provider
// never delays the response.
func (a *App) runInBackground(task string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTaskTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.log.Error("background task failed", "task", task, "err", err)
		}
	}()
}
