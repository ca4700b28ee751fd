package pdfrender

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"log"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/mhartwell/siteworks/internal/analysis"
	"github.com/mhartwell/siteworks/internal/store"
)

// FileReader resolves a storage reference to raw bytes.
type FileReader interface {
	Download(ctx context.Context, ref string) ([]byte, error)
}

// Document is everything the renderer needs for one report PDF.
type Document struct {
	Report   store.Report
	Client   store.Client
	Analysis analysis.StructuredAnalysis
	Images   []store.Image
}

const defaultBrandColor = "#1f3a5f"

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)

// composeHTML builds the complete printable document. All image bytes are
// base64-inlined so the render is deterministic and works offline; an
// unreadable image degrades to an empty slot rather than aborting.
func composeHTML(ctx context.Context, files FileReader, doc Document) string {
	a := doc.Analysis
	brand := strings.TrimSpace(doc.Client.BrandColor)
	if !hexColorRe.MatchString(brand) {
		brand = defaultBrandColor
	}

	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset='utf-8'><title>Daily Report</title>")
	b.WriteString("<style>" + documentCSS(brand) + "</style></head><body>")

	// Header: branding color bar, logo, client name.
	b.WriteString("<header class='brand-header'>")
	if logo := inlineImage(ctx, files, doc.Client.LogoPath); logo != "" {
		b.WriteString("<img class='brand-logo' src='" + logo + "' alt=''>")
	}
	b.WriteString("<h1>" + html.EscapeString(doc.Client.Name) + " — Daily Site Report</h1>")
	b.WriteString("</header>")

	// Metadata block.
	b.WriteString("<section class='report-meta'>")
	writeMetaRow(&b, "Project", doc.Report.ProjectName)
	writeMetaRow(&b, "Date", doc.Report.ReportDate)
	writeMetaRow(&b, "Reference", referencePrefix(doc.Report.ID))
	writeMetaRow(&b, "Status", string(doc.Report.Status))
	b.WriteString("</section>")

	if strings.TrimSpace(a.WorksSummary.Summary) != "" || len(a.WorksSummary.Activities) > 0 {
		b.WriteString("<section><h2>Works Summary</h2>")
		if s := strings.TrimSpace(a.WorksSummary.Summary); s != "" {
			b.WriteString("<div class='summary'>" + markdownToHTML(s) + "</div>")
		}
		if len(a.WorksSummary.Activities) > 0 {
			b.WriteString("<ul>")
			for _, act := range a.WorksSummary.Activities {
				b.WriteString("<li>" + html.EscapeString(act) + "</li>")
			}
			b.WriteString("</ul>")
		}
		b.WriteString("</section>")
	}

	if a.Workforce.TotalWorkers > 0 {
		b.WriteString("<section><h2>Workforce</h2><div class='stat-block'>")
		b.WriteString(statCell("Workers", fmt.Sprintf("%d", a.Workforce.TotalWorkers)))
		b.WriteString(statCell("Hours", trimFloat(a.Workforce.HoursWorked)))
		b.WriteString(statCell("Man-hours", trimFloat(a.Workforce.ManHours)))
		b.WriteString("</div>")
		if len(a.Workforce.WorkerNames) > 0 {
			b.WriteString("<p class='worker-names'>" + html.EscapeString(strings.Join(a.Workforce.WorkerNames, ", ")) + "</p>")
		}
		b.WriteString("</section>")
	}

	if len(a.Materials) > 0 {
		b.WriteString("<section><h2>Materials</h2><table><thead><tr><th>Material</th><th>Quantity</th><th>Unit</th></tr></thead><tbody>")
		for _, m := range a.Materials {
			b.WriteString("<tr><td>" + html.EscapeString(m.Material) + "</td><td>" +
				html.EscapeString(m.Quantity) + "</td><td>" + html.EscapeString(m.Unit) + "</td></tr>")
		}
		b.WriteString("</tbody></table></section>")
	}

	if len(a.Equipment) > 0 {
		b.WriteString("<section><h2>Plant &amp; Equipment</h2><ul>")
		for _, e := range a.Equipment {
			b.WriteString("<li>" + html.EscapeString(e) + "</li>")
		}
		b.WriteString("</ul></section>")
	}

	if len(a.SafetyIncidents) > 0 {
		b.WriteString("<section><h2>Safety</h2><ul class='safety'>")
		for _, si := range a.SafetyIncidents {
			b.WriteString("<li>" + safetyIncidentHTML(si) + "</li>")
		}
		b.WriteString("</ul></section>")
	}

	if s := strings.TrimSpace(a.DelaysImpact); s != "" {
		b.WriteString("<section><h2>Delays &amp; Weather Impact</h2><p>" + html.EscapeString(s) + "</p>")
		if w := strings.TrimSpace(a.SiteConditions.Weather); w != "" {
			b.WriteString("<p class='weather'>Conditions: " + html.EscapeString(w) + "</p>")
		}
		b.WriteString("</section>")
	}

	if len(a.NextDayPlan) > 0 {
		b.WriteString("<section><h2>Plan for Next Day</h2><ul>")
		for _, p := range a.NextDayPlan {
			b.WriteString("<li>" + html.EscapeString(p) + "</li>")
		}
		b.WriteString("</ul></section>")
	}

	if len(doc.Images) > 0 {
		b.WriteString("<section><h2>Photo Documentation</h2><div class='photo-grid'>")
		for _, img := range doc.Images {
			b.WriteString("<figure>")
			if src := inlineImage(ctx, files, img.FilePath); src != "" {
				b.WriteString("<img src='" + src + "' alt=''>")
			} else {
				b.WriteString("<div class='photo-missing'></div>")
			}
			caption := img.AIDescription
			if idx := img.ImageOrder; idx >= 0 && idx < len(a.PhotoDocumentation.Descriptions) {
				caption = a.PhotoDocumentation.Descriptions[idx]
			}
			b.WriteString("<figcaption>" + html.EscapeString(caption) + "</figcaption></figure>")
		}
		b.WriteString("</div></section>")
	}

	if n := strings.TrimSpace(a.ComplianceNote); n != "" {
		b.WriteString("<footer class='compliance'>" + html.EscapeString(n) + "</footer>")
	}

	b.WriteString("</body></html>")
	return b.String()
}

func safetyIncidentHTML(si analysis.SafetyIncident) string {
	if si.IsStructured() {
		d := si.Structured
		out := "<strong>" + html.EscapeString(d.Person) + "</strong>: " + html.EscapeString(d.Description)
		if strings.TrimSpace(d.ActionTaken) != "" {
			out += " <em>(action: " + html.EscapeString(d.ActionTaken) + ")</em>"
		}
		return out
	}
	return html.EscapeString(si.Text)
}

// inlineImage downloads a storage reference and returns it as a data URL, or
// "" when the bytes cannot be read.
func inlineImage(ctx context.Context, files FileReader, ref string) string {
	if strings.TrimSpace(ref) == "" || files == nil {
		return ""
	}
	data, err := files.Download(ctx, ref)
	if err != nil {
		log.Printf("pdfrender: inline image %s: %v", ref, err)
		return ""
	}
	return "data:" + sniffImageType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func sniffImageType(data []byte) string {
	switch {
	case len(data) > 3 && data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G':
		return "image/png"
	case len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8:
		return "image/jpeg"
	case len(data) > 5 && string(data[:6]) == "GIF87a" || len(data) > 5 && string(data[:6]) == "GIF89a":
		return "image/gif"
	case len(data) > 11 && string(data[8:12]) == "WEBP":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func markdownToHTML(src string) string {
	var out strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(src), &out); err != nil {
		return "<p>" + html.EscapeString(src) + "</p>"
	}
	return out.String()
}

func writeMetaRow(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString("<div><strong>" + label + ":</strong> " + html.EscapeString(value) + "</div>")
}

func statCell(label, value string) string {
	return "<div class='stat'><span class='stat-value'>" + html.EscapeString(value) +
		"</span><span class='stat-label'>" + html.EscapeString(label) + "</span></div>"
}

func referencePrefix(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.1f", f)
	return strings.TrimSuffix(s, ".0")
}

func documentCSS(brand string) string {
	return `
html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}
body{font-family:Helvetica,Arial,sans-serif;color:#1c1917;margin:0;padding:0.4rem 0;font-size:11pt;}
.brand-header{border-bottom:4px solid ` + brand + `;padding:0.4rem 0 0.6rem;display:flex;align-items:center;gap:0.8rem;}
.brand-header h1{font-size:15pt;color:` + brand + `;margin:0;}
.brand-logo{max-height:52px;max-width:160px;}
.report-meta{margin:0.7rem 0;color:#44403c;font-size:9.5pt;}
.report-meta strong{color:#1c1917;}
section{margin:0.8rem 0;}
h2{font-size:12pt;color:` + brand + `;border-bottom:1px solid #d6d3d1;padding-bottom:2px;}
table{width:100%;border-collapse:collapse;font-size:9.5pt;}
th,td{border:1px solid #a8a29e;padding:0.3rem 0.45rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;font-weight:700;}
.stat-block{display:flex;gap:1.2rem;}
.stat{text-align:center;border:1px solid #d6d3d1;border-radius:4px;padding:0.4rem 1rem;}
.stat-value{display:block;font-size:14pt;font-weight:700;color:` + brand + `;}
.stat-label{display:block;font-size:8.5pt;color:#57534e;text-transform:uppercase;}
.photo-grid{display:grid;grid-template-columns:1fr 1fr;gap:0.6rem;}
.photo-grid figure{margin:0;break-inside:avoid;}
.photo-grid img{width:100%;max-height:280px;object-fit:cover;border:1px solid #d6d3d1;}
.photo-missing{width:100%;height:180px;background:#f5f5f4;border:1px dashed #a8a29e;}
figcaption{font-size:8.5pt;color:#57534e;margin-top:2px;}
.compliance{margin-top:1rem;font-size:8.5pt;color:#78716c;border-top:1px solid #d6d3d1;padding-top:0.4rem;}
.worker-names{font-size:9.5pt;color:#44403c;}
@media print{ @page{size:A4;margin:12mm;} }
`
}
