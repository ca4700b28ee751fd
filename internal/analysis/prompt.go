package analysis

import (
	"strconv"
	"strings"
)

// builtinPromptTemplate is the last-resort analysis prompt. Placeholders are
// substituted literally before the vision call.
const builtinPromptTemplate = `You are reviewing a construction site daily report dated {report_date} for the project "{project_name}". The field worker submitted the following:

Works performed: {works_performed}
Labour on site: {labour}
Plant and equipment: {plant}
Hours worked: {hours_worked}
Materials used or delivered: {materials}
Delays and weather: {delays}
Safety notes: {safety}

{photo_count} site photograph(s) are attached. Describe each photograph in order.

Produce a single JSON object with exactly these fields:
  report_metadata {project_name, report_date}
  site_conditions {weather, notes}
  workforce {total_workers, hours_worked, man_hours, worker_names}
  works_summary {summary, activities}
  materials [{material, quantity, unit}]
  equipment [string]
  compliance_note
  safety_incidents [string or {person, description, action_taken}]
  delays_impact
  photo_documentation {total_images, descriptions}
  next_day_plan [string]`

// ResolveTemplate picks the analysis prompt in override order: the client's
// own template, then the tenant-wide default, then the built-in.
func ResolveTemplate(clientTemplate, tenantDefault string) string {
	if t := strings.TrimSpace(clientTemplate); t != "" {
		return t
	}
	if t := strings.TrimSpace(tenantDefault); t != "" {
		return t
	}
	return builtinPromptTemplate
}

// RenderPrompt substitutes the named placeholders into the template.
func RenderPrompt(template string, req Request) string {
	r := strings.NewReplacer(
		"{report_date}", req.ReportDate,
		"{project_name}", req.ProjectName,
		"{works_performed}", req.WorksPerformed,
		"{labour}", req.Labour,
		"{plant}", req.Plant,
		"{hours_worked}", req.HoursWorked,
		"{materials}", req.Materials,
		"{delays}", req.Delays,
		"{safety}", req.Safety,
		"{photo_count}", strconv.Itoa(len(req.Photos)),
	)
	return r.Replace(template)
}
