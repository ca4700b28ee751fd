package distribute

import (
	"html"
	"strconv"
	"strings"

	"github.com/mhartwell/siteworks/internal/analysis"
	"github.com/mhartwell/siteworks/internal/store"
)

// Templates are the tenant-configurable email fragments. Empty fields fall
// back to the built-in defaults.
type Templates struct {
	Subject string
	Header  string
	Footer  string
}

const (
	defaultSubjectTemplate = "Daily Site Report — {project_name} — {report_date}"
	defaultHeaderTemplate  = "Please find attached the daily site report for {project_name}, {report_date}."
	defaultFooterTemplate  = "This report was generated automatically by Siteworks."
)

func (t Templates) withDefaults() Templates {
	if strings.TrimSpace(t.Subject) == "" {
		t.Subject = defaultSubjectTemplate
	}
	if strings.TrimSpace(t.Header) == "" {
		t.Header = defaultHeaderTemplate
	}
	if strings.TrimSpace(t.Footer) == "" {
		t.Footer = defaultFooterTemplate
	}
	return t
}

func substitute(template string, rep store.Report, client store.Client) string {
	return strings.NewReplacer(
		"{project_name}", rep.ProjectName,
		"{report_date}", rep.ReportDate,
		"{client_name}", client.Name,
	).Replace(template)
}

// summaryHTML builds the HTML body shared by the email and the webhook
// payload. Logo sources are passed in because the two channels reference
// images differently (cid embeds vs data URLs).
func summaryHTML(rep store.Report, client store.Client, a analysis.StructuredAnalysis, tpl Templates, clientLogoSrc, platformLogoSrc string) string {
	tpl = tpl.withDefaults()

	var b strings.Builder
	b.WriteString("<html><body style='font-family:Helvetica,Arial,sans-serif;color:#1c1917;'>")
	if clientLogoSrc != "" {
		b.WriteString("<img src='" + clientLogoSrc + "' alt='' style='max-height:48px;'><br>")
	}
	b.WriteString("<p>" + html.EscapeString(substitute(tpl.Header, rep, client)) + "</p>")

	b.WriteString("<table cellpadding='4' style='border-collapse:collapse;font-size:13px;'>")
	writeRow(&b, "Project", rep.ProjectName)
	writeRow(&b, "Date", rep.ReportDate)
	writeRow(&b, "Weather", a.SiteConditions.Weather)
	if a.Workforce.TotalWorkers > 0 {
		writeRow(&b, "Workers on site", itoa(a.Workforce.TotalWorkers))
		writeRow(&b, "Man-hours", ftoa(a.Workforce.ManHours))
	}
	if a.PhotoDocumentation.TotalImages > 0 {
		writeRow(&b, "Photos", itoa(a.PhotoDocumentation.TotalImages))
	}
	b.WriteString("</table>")

	if s := strings.TrimSpace(a.WorksSummary.Summary); s != "" {
		b.WriteString("<p>" + html.EscapeString(s) + "</p>")
	}
	if len(a.WorksSummary.Activities) > 0 {
		b.WriteString("<ul>")
		for _, act := range a.WorksSummary.Activities {
			b.WriteString("<li>" + html.EscapeString(act) + "</li>")
		}
		b.WriteString("</ul>")
	}

	b.WriteString("<p style='color:#78716c;font-size:11px;'>" + html.EscapeString(substitute(tpl.Footer, rep, client)) + "</p>")
	if platformLogoSrc != "" {
		b.WriteString("<img src='" + platformLogoSrc + "' alt='' style='max-height:28px;'>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func writeRow(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString("<tr><td style='border:1px solid #d6d3d1;'><strong>" + html.EscapeString(label) +
		"</strong></td><td style='border:1px solid #d6d3d1;'>" + html.EscapeString(value) + "</td></tr>")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
