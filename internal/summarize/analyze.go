package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/planscan-tech/planscan/internal/pdf"
)

// fire-alarm keywords used to pick out relevant sheets before prompting.
var faKeywords = []string{
	"fire alarm", "special systems", "power plan", "smoke detector",
	"heat detector", "pull station", "notification", "speaker strobe",
	"horn strobe", "facp", "annunciator", "relay", "duct detector",
	"module", "smoke control", "mechanical",
}

// ProjectInfo is high-level project metadata extracted from cover sheets.
type ProjectInfo struct {
	ProjectName     string `json:"project_name"`
	ProjectLocation string `json:"project_location"`
	ProjectType     string `json:"project_type"`
	Owner           string `json:"owner"`
	Engineer        string `json:"engineer"`
	Architect       string `json:"architect"`
	ScopeSummary    string `json:"scope_summary"`
}

// MechanicalDevice is an HVAC device that interfaces with the fire alarm
// system, per the drawing notes.
type MechanicalDevice struct {
	Device   string `json:"device"`
	Location string `json:"location"`
	Action   string `json:"action"`
}

// TextAnalysis is the assistant's full output for one document.
type TextAnalysis struct {
	ProjectInfo       ProjectInfo        `json:"project_info"`
	FireAlarmPages    []int              `json:"fire_alarm_pages"`
	FireAlarmNotes    []string           `json:"fire_alarm_notes"`
	MechanicalDevices []MechanicalDevice `json:"mechanical_devices"`
}

const (
	coverTextLimit = 15000
	notesTextLimit = 30000
)

// AnalyzePages runs the full text analysis over extracted page text:
// keyword page identification locally, then cover, notes, and mechanical
// extraction through the model. Individual prompt failures degrade to
// empty sections.
func (c *Client) AnalyzePages(ctx context.Context, pages []pdf.PageText) (*TextAnalysis, error) {
	if !c.Available() {
		return nil, fmt.Errorf("text analysis assistant is not configured")
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no page text to analyze")
	}

	result := &TextAnalysis{
		FireAlarmPages: identifyFireAlarmPages(pages),
	}

	if info, err := c.analyzeCoverPages(ctx, pages); err != nil {
		slog.Warn("cover page analysis failed", "error", err)
	} else {
		result.ProjectInfo = info
	}

	if notes, err := c.extractNotes(ctx, pages, result.FireAlarmPages); err != nil {
		slog.Warn("note extraction failed", "error", err)
	} else {
		result.FireAlarmNotes = notes
	}

	if mech, err := c.extractMechanicalDevices(ctx, pages); err != nil {
		slog.Warn("mechanical device extraction failed", "error", err)
	} else {
		result.MechanicalDevices = mech
	}

	return result, nil
}

// identifyFireAlarmPages picks pages whose text mentions fire-alarm
// keywords. Pure keyword matching, no model call.
func identifyFireAlarmPages(pages []pdf.PageText) []int {
	var out []int
	for _, p := range pages {
		text := strings.ToLower(p.Text)
		for _, k := range faKeywords {
			if strings.Contains(text, k) {
				out = append(out, p.PageNumber)
				break
			}
		}
	}
	return out
}

func (c *Client) analyzeCoverPages(ctx context.Context, pages []pdf.PageText) (ProjectInfo, error) {
	n := len(pages)
	if n > 3 {
		n = 3
	}
	var sb strings.Builder
	for _, p := range pages[:n] {
		sb.WriteString(p.Text)
		sb.WriteString("\n")
	}
	prompt := fmt.Sprintf(`You are analyzing the cover pages of a construction PDF.
Extract the following details and return JSON only:
{
  "project_name": string,
  "project_location": string,
  "project_type": string,
  "owner": string,
  "engineer": string,
  "architect": string,
  "scope_summary": string
}

COVER PAGE TEXT:
%s`, truncate(sb.String(), coverTextLimit))

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return ProjectInfo{}, err
	}
	var info ProjectInfo
	if err := parseJSON(raw, &info); err != nil {
		return ProjectInfo{}, err
	}
	return info, nil
}

func (c *Client) extractNotes(ctx context.Context, pages []pdf.PageText, faPages []int) ([]string, error) {
	selected := make(map[int]bool, len(faPages))
	for _, n := range faPages {
		selected[n] = true
	}
	var sb strings.Builder
	for _, p := range pages {
		if selected[p.PageNumber] {
			sb.WriteString(p.Text)
			sb.WriteString("\n")
		}
	}
	prompt := fmt.Sprintf(`Extract concise bullet points summarizing all fire alarm related notes.
Return JSON array of strings only.
TEXT:
%s`, truncate(sb.String(), notesTextLimit))

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var notes []string
	if err := parseJSON(raw, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (c *Client) extractMechanicalDevices(ctx context.Context, pages []pdf.PageText) ([]MechanicalDevice, error) {
	var sb strings.Builder
	for _, p := range pages {
		if strings.Contains(strings.ToLower(p.Text), "mech") {
			sb.WriteString(p.Text)
			sb.WriteString("\n")
		}
	}
	prompt := fmt.Sprintf(`Identify any mechanical or HVAC devices that interface with the fire alarm system.
Return a JSON array of objects each like:
[
  {"device": "smoke damper", "location": "RTU-3", "action": "supervised"}
]

TEXT:
%s`, truncate(sb.String(), notesTextLimit))

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	var devices []MechanicalDevice
	if err := parseJSON(raw, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

var (
	fenceOpenRe  = regexp.MustCompile("(?i)^```(?:json)?")
	fenceCloseRe = regexp.MustCompile("```$")
	jsonBodyRe   = regexp.MustCompile(`(?s)\{.*\}|\[.*\]`)
)

// parseJSON tolerantly extracts a JSON document from a model response,
// stripping code fences and surrounding prose.
func parseJSON(raw string, v any) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimSpace(fenceOpenRe.ReplaceAllString(cleaned, ""))
	cleaned = strings.TrimSpace(fenceCloseRe.ReplaceAllString(cleaned, ""))
	if m := jsonBodyRe.FindString(cleaned); m != "" {
		cleaned = m
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
