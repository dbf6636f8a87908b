package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/illenko/usagewatch/internal/analyzer"
	"github.com/illenko/usagewatch/pkg/models"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templatesFS, "templates/alert.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templatesFS, "templates/alert.txt.tmpl"))
)

type alertView struct {
	Label           string
	Severity        models.Severity
	Message         string
	Value           string
	Capacity        string
	Percentage      float64
	GrowthRate      float64
	DaysToThreshold int
	Projected       bool
	CriticalLevel   float64
}

type messageView struct {
	SiteName    string
	GeneratedAt string
	Alerts      []alertView
}

type rendered struct {
	Subject string
	HTML    string
	Text    string
}

// render builds one combined message with a section per alert.
func render(siteName, subjectPrefix string, alerts []models.Alert, now time.Time, loc *time.Location) (rendered, error) {
	view := messageView{
		SiteName:    siteName,
		GeneratedAt: now.In(loc).Format("2006-01-02 15:04 MST"),
	}

	severity := models.SeverityWarning
	labels := make([]string, 0, len(alerts))
	for _, a := range alerts {
		if a.Severity == models.SeverityCritical {
			severity = models.SeverityCritical
		}
		labels = append(labels, a.MetricType.Label())
		view.Alerts = append(view.Alerts, alertView{
			Label:           a.MetricType.Label(),
			Severity:        a.Severity,
			Message:         a.Message,
			Value:           analyzer.FormatValue(a.MetricType, a.Value),
			Capacity:        analyzer.FormatValue(a.MetricType, a.Capacity),
			Percentage:      a.Percentage,
			GrowthRate:      a.GrowthRate,
			DaysToThreshold: a.DaysToThreshold,
			Projected:       a.DaysToThreshold < analyzer.NotProjected,
			CriticalLevel:   analyzer.CriticalLevel,
		})
	}

	subject := fmt.Sprintf("%s usage alert: %s", strings.ToUpper(string(severity)), strings.Join(labels, ", "))
	if subjectPrefix != "" {
		subject = subjectPrefix + " " + subject
	}

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return rendered{}, fmt.Errorf("failed to render html body: %w", err)
	}
	if err := textTemplate.Execute(&text, view); err != nil {
		return rendered{}, fmt.Errorf("failed to render text body: %w", err)
	}

	return rendered{Subject: subject, HTML: html.String(), Text: text.String()}, nil
}
