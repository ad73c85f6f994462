package model

import (
	"fmt"
	"time"
)

// Window bounds defaults for usage requests.
const (
	DefaultWindowDays = 30
	MaxWindowDays     = 90
)

// Window is the time range a usage fetch covers, ending at End.
type Window struct {
	Days  int
	Start time.Time
	End   time.Time
}

// NewWindow builds a window of days ending at now. Non-positive values fall
// back to DefaultWindowDays and values above MaxWindowDays are capped.
func NewWindow(days int, now time.Time) Window {
	days = ClampWindowDays(days)
	end := now.UTC()
	return Window{
		Days:  days,
		Start: end.Add(-time.Duration(days) * 24 * time.Hour),
		End:   end,
	}
}

// ClampWindowDays applies the window defaults to a requested day count.
func ClampWindowDays(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	if days > MaxWindowDays {
		return MaxWindowDays
	}
	return days
}

// Period is the serialized form of a Window.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DailyUsage aggregates one UTC day. Date is formatted as YYYY-MM-DD.
type DailyUsage struct {
	Date         string   `json:"date"`
	InputTokens  int64    `json:"inputTokens"`
	OutputTokens int64    `json:"outputTokens"`
	Requests     int64    `json:"requests"`
	Cost         *float64 `json:"cost,omitempty"`
}

// ModelUsage aggregates one model (or cost line item) over the window.
type ModelUsage struct {
	Model        string   `json:"model"`
	InputTokens  int64    `json:"inputTokens"`
	OutputTokens int64    `json:"outputTokens"`
	Requests     int64    `json:"requests"`
	Cost         *float64 `json:"cost,omitempty"`
}

// TotalTokens returns input plus output tokens.
func (m ModelUsage) TotalTokens() int64 {
	return m.InputTokens + m.OutputTokens
}

// RateLimit is one rate-limit category as reported by the provider. ResetAt
// is kept verbatim because providers disagree on its format.
type RateLimit struct {
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	ResetAt   string `json:"reset"`
}

// RateLimits groups the recognized rate-limit categories. Nil categories were
// not reported.
type RateLimits struct {
	Requests     *RateLimit `json:"requests,omitempty"`
	InputTokens  *RateLimit `json:"inputTokens,omitempty"`
	OutputTokens *RateLimit `json:"outputTokens,omitempty"`
	Tokens       *RateLimit `json:"tokens,omitempty"`
}

// IsEmpty reports whether no category was reported.
func (r RateLimits) IsEmpty() bool {
	return r.Requests == nil && r.InputTokens == nil && r.OutputTokens == nil && r.Tokens == nil
}

// SessionDailyCount is a per-day message count from the consumer web API.
type SessionDailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// SessionUsage describes consumer plan usage obtained with a session credential.
type SessionUsage struct {
	CurrentPlan      string              `json:"currentPlan"`
	UsageLevel       string              `json:"usageLevel"`
	ResetAt          string              `json:"resetAt,omitempty"`
	DailyUsage       []SessionDailyCount `json:"dailyUsage,omitempty"`
	OrganizationName string              `json:"organizationName,omitempty"`
}

// UsageSnapshot is the normalized usage of one provider over one window.
type UsageSnapshot struct {
	Provider       ProviderID    `json:"provider"`
	Period         Period        `json:"period"`
	TotalCost      *float64      `json:"totalCost,omitempty"`
	DailyUsage     []DailyUsage  `json:"dailyUsage"`
	ModelBreakdown []ModelUsage  `json:"modelBreakdown"`
	RateLimits     *RateLimits   `json:"rateLimits,omitempty"`
	Note           string        `json:"note,omitempty"`
	HasAdminKey    *bool         `json:"hasAdminKey,omitempty"`
	SessionUsage   *SessionUsage `json:"sessionUsage,omitempty"`
}

// NewUsageSnapshot returns an empty snapshot for the provider and window with
// non-nil breakdown slices.
func NewUsageSnapshot(provider ProviderID, w Window) *UsageSnapshot {
	return &UsageSnapshot{
		Provider:       provider,
		Period:         Period{Start: w.Start, End: w.End},
		DailyUsage:     []DailyUsage{},
		ModelBreakdown: []ModelUsage{},
	}
}

// AddNote appends a sentence to the snapshot note.
func (s *UsageSnapshot) AddNote(note string) {
	if note == "" {
		return
	}
	if s.Note == "" {
		s.Note = note
		return
	}
	s.Note = s.Note + " " + note
}

// ModelRateLimit is a static per-model rate limit. RPD of zero means the tier
// has no daily cap.
type ModelRateLimit struct {
	Model string `json:"model"`
	RPM   int    `json:"rpm"`
	TPM   int    `json:"tpm"`
	RPD   int    `json:"rpd"`
}

// ModelLimitsSnapshot is the reduced shape for providers without usage
// history: the models the key can reach and their documented limits.
type ModelLimitsSnapshot struct {
	Provider        ProviderID       `json:"provider"`
	AvailableModels []string         `json:"availableModels"`
	RateLimits      []ModelRateLimit `json:"rateLimits"`
	Tier            Tier             `json:"tier"`
	Note            string           `json:"note"`
}

// Report is the tagged result of a usage fetch. Exactly one of Usage and
// ModelLimits is set.
type Report struct {
	Provider    ProviderID           `json:"provider"`
	Usage       *UsageSnapshot       `json:"usage,omitempty"`
	ModelLimits *ModelLimitsSnapshot `json:"modelLimits,omitempty"`
}

// Body returns whichever snapshot shape the report carries.
func (r Report) Body() any {
	if r.ModelLimits != nil {
		return r.ModelLimits
	}
	return r.Usage
}

// CacheKey identifies a cached report.
type CacheKey struct {
	Provider   ProviderID
	WindowDays int
}

// String formats the key as "provider:days".
func (k CacheKey) String() string {
	return fmt.Sprintf("%s:%d", k.Provider, k.WindowDays)
}

// CacheEntry is a cached report and the time it was fetched.
type CacheEntry struct {
	Key       CacheKey  `json:"-"`
	Report    Report    `json:"report"`
	FetchedAt time.Time `json:"fetchedAt"`
}
