// Package stats computes spending statistics over archived invoices.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/labfin/invoice-archiver/internal/models"
)

// PeriodTotal is the spend total for one calendar period (a month or a day).
type PeriodTotal struct {
	Period string          `json:"period"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// HeatmapDay is one cell of the spending heatmap. Level buckets the day's
// spend into 0..4 relative to the busiest day in the window.
type HeatmapDay struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
	Level  int             `json:"level"`
}

// Snapshot is the full statistics view over a set of archive entries.
type Snapshot struct {
	TotalAmount      decimal.Decimal `json:"total_amount"`
	InvoiceCount     int             `json:"invoice_count"`
	AverageAmount    decimal.Decimal `json:"average_amount"`
	Last30DaysAmount decimal.Decimal `json:"last_30_days_amount"`
	Monthly          []PeriodTotal   `json:"monthly"`
	Daily            []PeriodTotal   `json:"daily"`
	PaymentMethods   map[string]int  `json:"payment_methods"`
}

// heatmapDays is the size of the heatmap window, today included.
const heatmapDays = 365

// Aggregate computes a Snapshot from archive entries. It never mutates its
// input and tolerates entries without a decoded record.
func Aggregate(entries []models.ArchiveEntry, today time.Time) Snapshot {
	snap := Snapshot{
		TotalAmount:      decimal.Zero,
		AverageAmount:    decimal.Zero,
		Last30DaysAmount: decimal.Zero,
		PaymentMethods:   make(map[string]int),
	}

	monthly := make(map[string]*PeriodTotal)
	daily := make(map[string]*PeriodTotal)
	// The trailing window is measured in calendar days, so today's
	// time-of-day must not push the cutoff past a midnight-dated invoice.
	cutoff := truncateToDay(today).AddDate(0, 0, -30)

	for _, entry := range entries {
		rec := entry.Record
		if rec == nil {
			continue
		}

		snap.InvoiceCount++
		snap.TotalAmount = snap.TotalAmount.Add(rec.Amount)
		snap.PaymentMethods[rec.PaymentMethod]++

		if !rec.InvoiceDate.Before(cutoff) {
			snap.Last30DaysAmount = snap.Last30DaysAmount.Add(rec.Amount)
		}

		accumulate(monthly, rec.InvoiceDate.Format("2006-01"), rec.Amount)
		accumulate(daily, rec.InvoiceDate.Format("2006-01-02"), rec.Amount)
	}

	if snap.InvoiceCount > 0 {
		snap.AverageAmount = snap.TotalAmount.Div(decimal.NewFromInt(int64(snap.InvoiceCount))).Round(2)
	}

	snap.Monthly = sortPeriods(monthly)
	snap.Daily = sortPeriods(daily)
	return snap
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func accumulate(buckets map[string]*PeriodTotal, period string, amount decimal.Decimal) {
	bucket, ok := buckets[period]
	if !ok {
		bucket = &PeriodTotal{Period: period, Amount: decimal.Zero}
		buckets[period] = bucket
	}
	bucket.Amount = bucket.Amount.Add(amount)
	bucket.Count++
}

func sortPeriods(buckets map[string]*PeriodTotal) []PeriodTotal {
	out := make([]PeriodTotal, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, *bucket)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// Heatmap builds a 365-day spending heatmap ending at today. Every day in
// the window gets a cell; days with no spend stay at level 0, and the rest
// are bucketed into quartiles of the busiest day's amount.
func Heatmap(entries []models.ArchiveEntry, today time.Time) []HeatmapDay {
	byDay := make(map[string]*HeatmapDay)

	start := today.AddDate(0, 0, -(heatmapDays - 1))
	for i := 0; i < heatmapDays; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		byDay[date] = &HeatmapDay{Date: date, Amount: decimal.Zero}
	}

	maxAmount := decimal.Zero
	for _, entry := range entries {
		rec := entry.Record
		if rec == nil {
			continue
		}
		day, ok := byDay[rec.InvoiceDate.Format("2006-01-02")]
		if !ok {
			continue
		}
		day.Amount = day.Amount.Add(rec.Amount)
		day.Count++
		if day.Amount.GreaterThan(maxAmount) {
			maxAmount = day.Amount
		}
	}

	out := make([]HeatmapDay, 0, heatmapDays)
	for i := 0; i < heatmapDays; i++ {
		date := start.AddDate(0, 0, i).Format("2006-01-02")
		day := byDay[date]
		day.Level = level(day.Amount, maxAmount)
		out = append(out, *day)
	}
	return out
}

// level maps a day's amount onto 0..4 using quartiles of the max day.
func level(amount, max decimal.Decimal) int {
	if amount.IsZero() || max.IsZero() {
		return 0
	}
	switch {
	case amount.LessThanOrEqual(max.Mul(decimal.NewFromFloat(0.25))):
		return 1
	case amount.LessThanOrEqual(max.Mul(decimal.NewFromFloat(0.5))):
		return 2
	case amount.LessThanOrEqual(max.Mul(decimal.NewFromFloat(0.75))):
		return 3
	default:
		return 4
	}
}
