package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPageType(t *testing.T) {
	dev := func(types ...string) []Device {
		out := make([]Device, len(types))
		for i, typ := range types {
			out[i] = Device{Type: typ}
		}
		return out
	}

	tests := []struct {
		name    string
		devices []Device
		want    string
	}{
		{"no devices", nil, "other"},
		{"duct device", dev("smoke_detector", "duct_detector"), "mechanical"},
		{"damper device", dev("fire_damper"), "mechanical"},
		{"mechanical wins over density", dev("duct_detector", "a", "b", "c", "d", "e", "f"), "mechanical"},
		{"dense page", dev("a", "b", "c", "d", "e", "f"), "special_systems"},
		{"few devices", dev("smoke_detector", "pull_station"), "power_plan"},
		{"five devices is still power plan", dev("a", "b", "c", "d", "e"), "power_plan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyPageType(tt.devices))
		})
	}
}

func TestDocumentAnalysisToJSON(t *testing.T) {
	doc := &DocumentAnalysis{
		Filename:         "site.pdf",
		TotalPages:       2,
		PagesWithDevices: 1,
		TotalDevices:     3,
		DeviceSummary:    map[string]int{"smoke_detector": 3},
		Pages: []PageAnalysis{
			{PageNumber: 1, Devices: []Device{{Type: "smoke_detector", X: 560, Y: 560}}},
			{PageNumber: 2, FailureReason: "page could not be rasterized"},
		},
	}

	data, err := doc.ToJSON()
	require.NoError(t, err)

	var round map[string]any
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Equal(t, "site.pdf", round["filename"])
	assert.Equal(t, float64(3), round["total_devices"])

	pages, ok := round["page_analyses"].([]any)
	require.True(t, ok)
	require.Len(t, pages, 2)

	first := pages[0].(map[string]any)
	_, hasFailure := first["failure_reason"]
	assert.False(t, hasFailure, "failure_reason omitted on successful pages")

	second := pages[1].(map[string]any)
	assert.Equal(t, "page could not be rasterized", second["failure_reason"])
}
