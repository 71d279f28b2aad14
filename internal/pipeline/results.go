package pipeline

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/planscan-tech/planscan/internal/detector"
	"github.com/planscan-tech/planscan/internal/tilecache"
	"github.com/planscan-tech/planscan/internal/tiler"
)

// Device is a resolved fire-alarm device located on a page, in page-image
// pixel coordinates (center position plus dimensions).
type Device struct {
	Type       string  `json:"device_type"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	PageNumber int     `json:"page_number"`
}

// PageAnalysis holds the outcome for a single page. A page that could not
// be analyzed reports its reason here instead of aborting the document;
// downstream consumers can distinguish "no devices" from "not analyzed".
type PageAnalysis struct {
	PageNumber      int                      `json:"page_number"`
	Width           int                      `json:"width"`
	Height          int                      `json:"height"`
	IsFireAlarmPage bool                     `json:"is_fire_alarm_page"`
	PageType        string                   `json:"page_type"`
	Devices         []Device                 `json:"devices"`
	Detections      []detector.PageDetection `json:"detections,omitempty"`
	TileStats       tiler.Stats              `json:"tile_stats"`
	RunStats        RunStats                 `json:"processing_stats"`
	FailureReason   string                   `json:"failure_reason,omitempty"`
}

// DocumentAnalysis aggregates all page results for one PDF.
type DocumentAnalysis struct {
	Filename         string          `json:"filename"`
	TotalPages       int             `json:"total_pages_scanned"`
	PagesWithDevices int             `json:"pages_with_devices"`
	TotalDevices     int             `json:"total_devices"`
	DeviceSummary    map[string]int  `json:"device_summary"`
	Pages            []PageAnalysis  `json:"page_analyses"`
	Elapsed          time.Duration   `json:"elapsed_ns"`
	CacheStats       tilecache.Stats `json:"cache_stats"`
}

// ToJSON serializes the document analysis for export.
func (d *DocumentAnalysis) ToJSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// classifyPageType mirrors the drawing-sheet heuristics used by estimators:
// duct/damper devices mark mechanical sheets, dense pages are special
// systems, the rest are power plans.
func classifyPageType(devices []Device) string {
	if len(devices) == 0 {
		return "other"
	}
	for _, d := range devices {
		t := strings.ToLower(d.Type)
		if strings.Contains(t, "mechanical") || strings.Contains(t, "duct") || strings.Contains(t, "damper") {
			return "mechanical"
		}
	}
	if len(devices) > 5 {
		return "special_systems"
	}
	return "power_plan"
}
