package core

import (
	"errors"
	"testing"
	"time"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Params
		want error
	}{
		{"defaults", Params{ViewedMonth: 0, ViewedYear: 2024}.WithDefaults(), nil},
		{"month too high", Params{ViewedMonth: 12, LookbackMonths: 6, MinDataPoints: 6}, ErrInvalidMonth},
		{"negative month", Params{ViewedMonth: -1, LookbackMonths: 6, MinDataPoints: 6}, ErrInvalidMonth},
		{"zero lookback", Params{LookbackMonths: 0, MinDataPoints: 6}, ErrInvalidLookback},
		{"negative lookback", Params{LookbackMonths: -3, MinDataPoints: 6}, ErrInvalidLookback},
		{"zero min points", Params{LookbackMonths: 6}, ErrInvalidMinDataPoints},
		{"longest lookback", Params{ViewedYear: 2024, LookbackMonths: MaxLookbackMonths, MinDataPoints: 6}, nil},
		{"lookback too long", Params{ViewedYear: 2024, LookbackMonths: MaxLookbackMonths + 1, MinDataPoints: 6}, ErrInvalidLookback},
		{"huge lookback", Params{ViewedYear: 2024, LookbackMonths: 20000000, MinDataPoints: 6}, ErrInvalidLookback},
		{"last year", Params{ViewedMonth: 11, ViewedYear: MaxViewedYear, LookbackMonths: 6, MinDataPoints: 6}, nil},
		{"year too high", Params{ViewedYear: MaxViewedYear + 1, LookbackMonths: 6, MinDataPoints: 6}, ErrInvalidYear},
		{"negative year", Params{ViewedYear: -1, LookbackMonths: 6, MinDataPoints: 6}, ErrInvalidYear},
		{"window before year zero", Params{ViewedMonth: 2, ViewedYear: 0, LookbackMonths: 4, MinDataPoints: 6}, ErrInvalidYear},
		{"window starts at year zero", Params{ViewedMonth: 2, ViewedYear: 0, LookbackMonths: 3, MinDataPoints: 6}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams(time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC))
	if p.ViewedMonth != 2 || p.ViewedYear != 2025 || p.LookbackMonths != 6 || p.MinDataPoints != 6 {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if p.Key() != "2025-03/6/6" {
		t.Fatalf("unexpected key: %s", p.Key())
	}
}

func TestModelInfoBasis(t *testing.T) {
	trained := Trained(10, 5).ModelInfo()
	if !trained.Trained || trained.WindowSize != 5 {
		t.Fatalf("unexpected model info: %+v", trained)
	}
	if trained.Basis() != "ML model used for prediction." {
		t.Fatalf("unexpected basis: %s", trained.Basis())
	}
	skipped := Skipped(ReasonTrainingFailed).ModelInfo()
	if skipped.Trained || skipped.Reason != ReasonTrainingFailed {
		t.Fatalf("unexpected model info: %+v", skipped)
	}
}
