package model

import (
	"sort"
	"strings"
	"time"
)

// UnknownModel labels usage whose bucket did not name a model.
const UnknownModel = "unknown"

const dateLayout = "2006-01-02"

// DateFromUnix formats epoch seconds as a UTC calendar date.
func DateFromUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(dateLayout)
}

// DateFromTimestamp extracts the UTC calendar date from an RFC 3339 timestamp.
// Unparseable input falls back to the text before "T".
func DateFromTimestamp(ts string) string {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC().Format(dateLayout)
	}
	date, _, _ := strings.Cut(ts, "T")
	return date
}

// UsageAccumulator folds provider buckets into per-day and per-model totals.
// The zero value is not usable; use NewUsageAccumulator.
type UsageAccumulator struct {
	days      map[string]*DailyUsage
	models    map[string]*ModelUsage
	totalCost float64
	costSeen  bool
}

// NewUsageAccumulator returns an empty accumulator.
func NewUsageAccumulator() *UsageAccumulator {
	return &UsageAccumulator{
		days:   make(map[string]*DailyUsage),
		models: make(map[string]*ModelUsage),
	}
}

func (a *UsageAccumulator) day(date string) *DailyUsage {
	d, ok := a.days[date]
	if !ok {
		d = &DailyUsage{Date: date}
		a.days[date] = d
	}
	return d
}

func (a *UsageAccumulator) model(name string) *ModelUsage {
	if name == "" {
		name = UnknownModel
	}
	m, ok := a.models[name]
	if !ok {
		m = &ModelUsage{Model: name}
		a.models[name] = m
	}
	return m
}

// AddTokens records token and request counts for a day and model.
func (a *UsageAccumulator) AddTokens(date, model string, input, output, requests int64) {
	d := a.day(date)
	d.InputTokens += input
	d.OutputTokens += output
	d.Requests += requests

	m := a.model(model)
	m.InputTokens += input
	m.OutputTokens += output
	m.Requests += requests
}

// AddCost records a cost in display units for a day and, when lineItem is
// non-empty, for that line item. Use an empty lineItem for costs that carry
// no model attribution.
func (a *UsageAccumulator) AddCost(date, lineItem string, cost float64) {
	a.costSeen = true
	a.totalCost += cost

	d := a.day(date)
	d.Cost = addFloat(d.Cost, cost)

	if lineItem != "" {
		m := a.model(lineItem)
		m.Cost = addFloat(m.Cost, cost)
	}
}

// MarkCostSeen records that a cost series was fetched, so TotalCost reports
// zero instead of nil when the series had no buckets.
func (a *UsageAccumulator) MarkCostSeen() {
	a.costSeen = true
}

// Daily returns the per-day totals sorted ascending by date.
func (a *UsageAccumulator) Daily() []DailyUsage {
	out := make([]DailyUsage, 0, len(a.days))
	for _, d := range a.days {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// ModelsByTokens returns per-model totals sorted by combined token volume,
// largest first. Ties are broken by name for stable output.
func (a *UsageAccumulator) ModelsByTokens() []ModelUsage {
	out := a.modelSlice()
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].TotalTokens(), out[j].TotalTokens()
		if ti != tj {
			return ti > tj
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// ModelsByCost returns per-model totals sorted by cost, largest first.
func (a *UsageAccumulator) ModelsByCost() []ModelUsage {
	out := a.modelSlice()
	sort.Slice(out, func(i, j int) bool {
		ci, cj := derefFloat(out[i].Cost), derefFloat(out[j].Cost)
		if ci != cj {
			return ci > cj
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// TotalCost returns the summed cost, or nil when no cost was recorded.
func (a *UsageAccumulator) TotalCost() *float64 {
	if !a.costSeen {
		return nil
	}
	v := a.totalCost
	return &v
}

func (a *UsageAccumulator) modelSlice() []ModelUsage {
	out := make([]ModelUsage, 0, len(a.models))
	for _, m := range a.models {
		out = append(out, *m)
	}
	return out
}

func addFloat(p *float64, v float64) *float64 {
	sum := derefFloat(p) + v
	return &sum
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
