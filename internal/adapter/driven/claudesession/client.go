// Package claudesession implements the SessionClient port against the
// claude.ai consumer web API, authenticated with a browser session cookie.
package claudesession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// DefaultBaseURL is the consumer web root.
const DefaultBaseURL = "https://claude.ai"

const (
	userAgent         = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	organizationsPath = "/api/organizations"
	unknownValue      = "unknown"
)

// ErrNoOrganization means the session is valid but belongs to no organization.
var ErrNoOrganization = errors.New("no organizations found")

// Compile-time interface satisfaction check.
var _ driven.SessionClient = (*Client)(nil)

// Client implements driven.SessionClient.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type organizationRef struct {
	UUID string `json:"uuid"`
}

// ValidateSessionCredential reports whether the session lists at least one
// organization.
func (c *Client) ValidateSessionCredential(ctx context.Context, sessionKey string) (bool, error) {
	orgs, err := c.organizations(ctx, sessionKey)
	if err != nil {
		var fe *model.FetchError
		if errors.As(err, &fe) && fe.Status != 0 {
			slog.Debug("claude session rejected", "status", fe.Status)
			return false, nil
		}
		return false, err
	}
	return len(orgs) > 0, nil
}

// FetchSessionUsage resolves the first organization of the session and reads
// its plan and usage concurrently. Either detail request may fail; the
// corresponding fields then stay "unknown".
func (c *Client) FetchSessionUsage(ctx context.Context, sessionKey string) (model.SessionUsage, error) {
	orgs, err := c.organizations(ctx, sessionKey)
	if err != nil {
		return model.SessionUsage{}, err
	}
	if len(orgs) == 0 || orgs[0].UUID == "" {
		return model.SessionUsage{}, ErrNoOrganization
	}
	orgPath := organizationsPath + "/" + orgs[0].UUID

	var (
		info  *organizationInfo
		usage *usagePayload
		g     errgroup.Group
	)
	g.Go(func() error {
		var v organizationInfo
		if err := c.get(ctx, sessionKey, orgPath, &v); err != nil {
			slog.Warn("claude organization lookup failed", "error", err)
			return nil
		}
		info = &v
		return nil
	})
	g.Go(func() error {
		var v usagePayload
		if err := c.get(ctx, sessionKey, orgPath+"/usage", &v); err != nil {
			slog.Warn("claude usage lookup failed", "error", err)
			return nil
		}
		usage = &v
		return nil
	})
	_ = g.Wait()

	out := model.SessionUsage{CurrentPlan: unknownValue, UsageLevel: unknownValue}
	if info != nil {
		info.apply(&out)
	}
	if usage != nil {
		usage.apply(&out)
	}
	return out, nil
}

func (c *Client) organizations(ctx context.Context, sessionKey string) ([]organizationRef, error) {
	var orgs []organizationRef
	if err := c.get(ctx, sessionKey, organizationsPath, &orgs); err != nil {
		return nil, err
	}
	return orgs, nil
}

func (c *Client) get(ctx context.Context, sessionKey, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Cookie", "sessionKey="+sessionKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	_, err = upstream.Do(c.http, req, model.ProviderAnthropic, path, v)
	return err
}

// stringList decodes a JSON array of strings, ignoring non-string elements.
// Any other JSON value decodes to an empty list.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*l = nil
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if json.Unmarshal(r, &s) == nil {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

// organizationInfo is the subset of GET /api/organizations/{id} used to
// derive the plan.
type organizationInfo struct {
	Name            string     `json:"name"`
	DisplayName     string     `json:"display_name"`
	PlanDisplayName string     `json:"plan_display_name"`
	ActiveFlags     stringList `json:"active_flags"`
	Capabilities    stringList `json:"capabilities"`
	Billing         *struct {
		Plan string `json:"plan"`
	} `json:"billing"`
}

func (o *organizationInfo) apply(out *model.SessionUsage) {
	out.OrganizationName = o.Name
	if out.OrganizationName == "" {
		out.OrganizationName = o.DisplayName
	}

	switch {
	case o.Billing != nil && o.Billing.Plan != "":
		out.CurrentPlan = o.Billing.Plan
	case slices.Contains(o.ActiveFlags, "max_plan"):
		out.CurrentPlan = "Max"
	case slices.Contains(o.ActiveFlags, "pro_plan"), slices.Contains(o.Capabilities, "pro"):
		out.CurrentPlan = "Pro"
	case o.PlanDisplayName != "":
		out.CurrentPlan = o.PlanDisplayName
	}
}

// usagePayload covers both known shapes of GET /api/organizations/{id}/usage:
// v2 reports usage_level and reset_at, v1 reports status and expires_at.
// Every field decodes leniently so one unexpected value never hides the rest.
type usagePayload struct {
	UsageLevel looseString    `json:"usage_level"`
	Status     looseString    `json:"status"`
	ResetAt    looseString    `json:"reset_at"`
	ExpiresAt  looseString    `json:"expires_at"`
	DailyUsage dailyUsageList `json:"daily_usage"`
}

func (u *usagePayload) apply(out *model.SessionUsage) {
	switch {
	case u.UsageLevel != "":
		out.UsageLevel = string(u.UsageLevel)
	case u.Status != "":
		out.UsageLevel = string(u.Status)
	}

	out.ResetAt = string(u.ResetAt)
	if out.ResetAt == "" {
		out.ResetAt = string(u.ExpiresAt)
	}

	if u.DailyUsage == nil {
		return
	}
	out.DailyUsage = make([]model.SessionDailyCount, 0, len(u.DailyUsage))
	for _, d := range u.DailyUsage {
		var n int64
		switch {
		case d.Count.set:
			n = d.Count.value
		case d.NumMessages.set:
			n = d.NumMessages.value
		}
		out.DailyUsage = append(out.DailyUsage, model.SessionDailyCount{Date: string(d.Date), Count: n})
	}
}

// looseString decodes a JSON string. Any other value decodes to "".
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var v string
	if json.Unmarshal(data, &v) != nil {
		v = ""
	}
	*s = looseString(v)
	return nil
}

// looseCount decodes a JSON number, truncating fractions. Null and
// non-numeric values leave it unset.
type looseCount struct {
	value int64
	set   bool
}

func (c *looseCount) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var f float64
	if json.Unmarshal(data, &f) == nil {
		c.value, c.set = int64(f), true
	}
	return nil
}

type sessionDay struct {
	Date        looseString `json:"date"`
	Count       looseCount  `json:"count"`
	NumMessages looseCount  `json:"num_messages"`
}

// dailyUsageList decodes a JSON array of day objects, skipping elements that
// are not objects. Any non-array value decodes to nil.
type dailyUsageList []sessionDay

func (l *dailyUsageList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		*l = nil
		return nil
	}
	out := make([]sessionDay, 0, len(raw))
	for _, r := range raw {
		var d sessionDay
		if json.Unmarshal(r, &d) == nil {
			out = append(out, d)
		}
	}
	*l = out
	return nil
}
