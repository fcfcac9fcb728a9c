package charts

import (
	"bytes"
	"errors"
	"testing"

	"budgetlens/internal/core"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func foodPoints() []core.SeriesPoint {
	return []core.SeriesPoint{
		{Month: "2023-12", Value: 100},
		{Month: "2024-01", Value: 100},
		{Month: "2024-02", Value: 100},
		{Month: "2024-03", Value: 100},
		{Month: "2024-04", Value: 100},
		{Month: "2024-05", Value: 500},
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		sc   SeriesChart
	}{
		{"basic statistics", SeriesChart{Category: "Food", CurrencySymbol: "₱", Points: foodPoints()}},
		{"with forecast", SeriesChart{Category: "Food", CurrencySymbol: "₱", Points: foodPoints(), Forecast: core.Trained(155, 5)}},
		{"all zero", SeriesChart{Category: "Rent", Points: []core.SeriesPoint{{Month: "2024-01"}, {Month: "2024-02"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			png, err := Render(tt.sc)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if !bytes.HasPrefix(png, pngMagic) {
				t.Fatalf("output is not a PNG (%d bytes)", len(png))
			}
		})
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := Render(SeriesChart{Points: foodPoints()[:1]}); !errors.Is(err, ErrNotEnoughPoints) {
		t.Fatalf("expected ErrNotEnoughPoints, got %v", err)
	}
	bad := []core.SeriesPoint{{Month: "2024-01"}, {Month: "2024-13"}}
	if _, err := Render(SeriesChart{Points: bad}); err == nil {
		t.Fatal("expected error for malformed month key")
	}
}
