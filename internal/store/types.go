// Package store persists deals, their temperature time series, dynamic
// scoring parameters, and the subscriber registry in Postgres.
//
// Per-deal mutations (upsert + history append) run inside a single
// transaction so a mid-cycle crash leaves either both applied or neither.
package store

import "time"

// RawDeal is one listing as extracted from the source site. Produced by the
// scraper; the store and scorer consume it.
type RawDeal struct {
	URL         string
	Title       string
	Merchant    string
	ImageURL    string
	Price       string
	Discount    string
	Coupon      string
	Description string
	Temperature float64
	// TemperatureOK distinguishes a parsed 0° reading from a missing or
	// unparsable temperature field — a cold deal is well-formed, an absent
	// temperature is not.
	TemperatureOK bool
	PublishedAt   time.Time
	Expired       bool
}

// Valid reports whether the record carries the minimum fields the pipeline
// needs. Malformed records are skipped and logged, never fail the cycle.
func (d RawDeal) Valid() bool {
	return d.URL != "" && d.TemperatureOK && !d.PublishedAt.IsZero()
}

// Observation is the scored state of a deal at one cycle, appended as a
// deal_history row.
type Observation struct {
	Temperature float64
	Hours       float64 // hours since published
	Velocity    float64 // temperature per minute
	ViralScore  float64
	FinalScore  float64
}

// HistoryRow is one persisted deal_history record.
type HistoryRow struct {
	ID          int64
	DealID      int64
	ObservedAt  time.Time
	Temperature float64
	Hours       float64
	Velocity    float64
	ViralScore  float64
	FinalScore  float64
}
