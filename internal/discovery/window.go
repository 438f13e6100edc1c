package discovery

import "time"

// RunHistory is what the window policy needs to know about a search's past.
type RunHistory struct {
	// HasFinished is true if any run of this search ever reached a finish
	// timestamp, regardless of status.
	HasFinished bool
	// LastSuccessFinishedAt is the finish time of the most recent successful,
	// non-blocked run, if any.
	LastSuccessFinishedAt *time.Time
}

// WindowPolicy chooses a platform date-filter code from run history.
// Healthy, frequently-run searches get the narrow recent window; runs after
// a gap get the wider fallback window; first runs stay unbounded so the
// backlog is not missed.
type WindowPolicy struct {
	RecentThreshold time.Duration
	RecentCode      string
	FallbackCode    string
}

// DefaultWindowPolicy matches the documented defaults: a 30h recency
// threshold, "last 24h" and "last 7 days" window codes.
func DefaultWindowPolicy() WindowPolicy {
	return WindowPolicy{
		RecentThreshold: 30 * time.Hour,
		RecentCode:      "r86400",
		FallbackCode:    "r604800",
	}
}

// Choose returns the window code for this run. An explicitly configured,
// non-empty window always wins; the policy only fills in when the configured
// filter is the "any time" sentinel (empty string). An empty return value
// means unbounded.
func (p WindowPolicy) Choose(configured string, hist RunHistory, now time.Time) string {
	if configured != "" {
		return configured
	}
	if !hist.HasFinished {
		return ""
	}
	if hist.LastSuccessFinishedAt == nil {
		return p.FallbackCode
	}
	if now.Sub(*hist.LastSuccessFinishedAt) <= p.RecentThreshold {
		return p.RecentCode
	}
	return p.FallbackCode
}
