package analysis

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MockAnalysis synthesizes a structured analysis from the form text alone,
// for deployments without vision credentials. Identical input always yields
// identical output, and it never fails.
func MockAnalysis(req Request) StructuredAnalysis {
	workers, names := parseLabour(req.Labour)
	hours := parseHours(req.HoursWorked)
	activities := splitActivities(req.WorksPerformed)

	captions := make([]string, len(req.Photos))
	for i := range captions {
		captions[i] = genericCaption(i)
	}

	summary := strings.TrimSpace(req.WorksPerformed)
	if summary == "" {
		summary = "No works recorded for this date."
	}

	a := StructuredAnalysis{
		ReportMetadata: ReportMetadata{
			ProjectName: req.ProjectName,
			ReportDate:  req.ReportDate,
		},
		SiteConditions: SiteConditions{
			Weather: bucketWeather(req.Delays),
			Notes:   strings.TrimSpace(req.Delays),
		},
		Workforce: Workforce{
			TotalWorkers: workers,
			HoursWorked:  hours,
			ManHours:     float64(workers) * hours,
			WorkerNames:  names,
		},
		WorksSummary: WorksSummary{
			Summary:    summary,
			Activities: activities,
		},
		Materials:      parseMaterials(req.Materials),
		Equipment:      splitList(req.Plant),
		ComplianceNote: "Generated without AI review; details reflect the submitted form only.",
		DelaysImpact:   strings.TrimSpace(req.Delays),
		PhotoDocumentation: PhotoDocumentation{
			TotalImages:  len(req.Photos),
			Descriptions: captions,
		},
		NextDayPlan: []string{"Continue works as per programme."},
	}
	if s := strings.TrimSpace(req.Safety); s != "" {
		a.SafetyIncidents = []SafetyIncident{{Text: s}}
	}
	return a
}

var (
	nameListSepRe = regexp.MustCompile(`[–—\-:]`)
	firstIntRe    = regexp.MustCompile(`\d+`)
	firstFloatRe  = regexp.MustCompile(`\d+(\.\d+)?`)
)

// parseLabour extracts a worker count and names from free text such as
// "4 × Labourers – Jack, Josh, Daniel & Simon". A trailing name list
// introduced by a dash or colon wins; otherwise the first integer in the
// text, defaulting to 1.
func parseLabour(labour string) (int, []string) {
	labour = strings.TrimSpace(labour)
	if labour == "" {
		return 1, []string{}
	}

	if locs := nameListSepRe.FindAllStringIndex(labour, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		tail := labour[last[1]:]
		if names := parseNameList(tail); len(names) > 0 {
			return len(names), names
		}
	}
	if m := firstIntRe.FindString(labour); m != "" {
		if n, err := strconv.Atoi(m); err == nil && n > 0 {
			return n, []string{}
		}
	}
	return 1, []string{}
}

func parseNameList(tail string) []string {
	parts := strings.FieldsFunc(tail, func(r rune) bool { return r == ',' || r == '&' })
	var names []string
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if name == "" || len(name) > 40 || strings.ContainsAny(name, "0123456789") {
			return nil
		}
		names = append(names, name)
	}
	return names
}

func parseHours(raw string) float64 {
	if m := firstFloatRe.FindString(raw); m != "" {
		if h, err := strconv.ParseFloat(m, 64); err == nil {
			return h
		}
	}
	return 8
}

func bucketWeather(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "rain"):
		return "Rainy"
	case strings.Contains(lower, "cloud"):
		return "Cloudy"
	default:
		return "Clear"
	}
}

// splitActivities breaks works-performed text into bullet activities on
// sentence boundaries.
func splitActivities(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == ';' || r == '\n'
	})
	var activities []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			activities = append(activities, s)
		}
	}
	return activities
}

func splitList(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	var items []string
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			items = append(items, s)
		}
	}
	return items
}

func parseMaterials(text string) []Material {
	var materials []Material
	for _, item := range splitList(text) {
		m := Material{Material: item}
		if q := firstFloatRe.FindString(item); q != "" {
			m.Quantity = q
			m.Material = strings.TrimSpace(strings.Replace(item, q, "", 1))
		}
		materials = append(materials, m)
	}
	return materials
}

func genericCaption(i int) string {
	return fmt.Sprintf("Site progress photo %d", i+1)
}
