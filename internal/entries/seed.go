package entries

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"budgetlens/internal/core"
)

// SeedOptions configures Seed. Zero values take the defaults below.
type SeedOptions struct {
	Months int
	// StartOffset is the first seeded month relative to Now (0 = this month).
	StartOffset     int
	IncomeAmount    decimal.Decimal
	FoodAmount      decimal.Decimal
	TransportAmount decimal.Decimal
	Now             time.Time
}

const (
	DefaultSeedMonths  = 6
	SeedFoodDay        = 5
	SeedTransportDay   = 15
	seedFoodCategory   = "Food"
	seedTransportLabel = "Transport"
)

func (o SeedOptions) withDefaults() SeedOptions {
	if o.Months <= 0 {
		o.Months = DefaultSeedMonths
	}
	if o.IncomeAmount.IsZero() {
		o.IncomeAmount = decimal.NewFromInt(12000)
	}
	if o.FoodAmount.IsZero() {
		o.FoodAmount = decimal.NewFromInt(100)
	}
	if o.TransportAmount.IsZero() {
		o.TransportAmount = decimal.NewFromInt(60)
	}
	if o.Now.IsZero() {
		o.Now = time.Now()
	}
	return o
}

// SeedEntries builds the demo data set: per month a Food expense on the 5th,
// a Transport expense on the 15th and a monthly income.
func SeedEntries(opts SeedOptions) []core.Entry {
	opts = opts.withDefaults()
	startMonth := int(opts.Now.Month()) - 1 + opts.StartOffset

	out := make([]core.Entry, 0, opts.Months*3)
	for i := 0; i < opts.Months; i++ {
		key := core.NewMonthKey(opts.Now.Year(), startMonth+i)
		year, month0, _ := key.YearMonth()
		out = append(out,
			core.Expense{
				Amount:   opts.FoodAmount,
				Date:     fmt.Sprintf("%s-%02d", key, SeedFoodDay),
				Category: seedFoodCategory,
			},
			core.Expense{
				Amount:   opts.TransportAmount,
				Date:     fmt.Sprintf("%s-%02d", key, SeedTransportDay),
				Category: seedTransportLabel,
			},
			core.Income{
				Amount:    opts.IncomeAmount,
				Frequency: core.Monthly,
				Month:     month0,
				Year:      year,
			},
		)
	}
	return out
}

// Seed appends the demo data set to w and returns how many entries were
// written before any error. Batch writers get the whole set at once.
func Seed(ctx context.Context, w Writer, opts SeedOptions) (int, error) {
	set := SeedEntries(opts)
	if bw, ok := w.(BatchWriter); ok {
		ids, err := bw.AddMany(ctx, set)
		if err != nil {
			return 0, fmt.Errorf("seed batch: %w", err)
		}
		return len(ids), nil
	}

	written := 0
	for _, e := range set {
		if _, err := w.Add(ctx, e); err != nil {
			return written, fmt.Errorf("seed entry %d: %w", written, err)
		}
		written++
	}
	return written, nil
}
