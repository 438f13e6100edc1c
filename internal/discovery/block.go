package discovery

import "strings"

// BlockRules configures the block classifier for one platform. The lists are
// data, not code: new adversarial signatures are added through configuration.
type BlockRules struct {
	StatusCodes    []int
	ChallengePaths []string
	BodyPhrases    []string
	// TransportSignatures are substrings of transport-level error messages
	// that look structurally like an anti-scraping edge response. Matching
	// failures count toward the circuit breaker.
	TransportSignatures []string
}

// Detector classifies fetched pages and transport errors as blocked.
// All methods are total and side-effect free.
type Detector struct {
	statuses  map[int]struct{}
	paths     []string
	phrases   []string
	transport []string
}

// NewDetector builds a Detector from the platform's rules. Body phrases and
// transport signatures are matched case-insensitively.
func NewDetector(rules BlockRules) *Detector {
	statuses := make(map[int]struct{}, len(rules.StatusCodes))
	for _, code := range rules.StatusCodes {
		statuses[code] = struct{}{}
	}
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			s = strings.TrimSpace(strings.ToLower(s))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return &Detector{
		statuses:  statuses,
		paths:     lower(rules.ChallengePaths),
		phrases:   lower(rules.BodyPhrases),
		transport: lower(rules.TransportSignatures),
	}
}

// Blocked reports whether a fetched page is a block/challenge response.
func (d *Detector) Blocked(statusCode int, body, finalURL string) bool {
	if _, ok := d.statuses[statusCode]; ok {
		return true
	}
	urlLower := strings.ToLower(finalURL)
	for _, p := range d.paths {
		if strings.Contains(urlLower, p) {
			return true
		}
	}
	if len(d.phrases) == 0 || body == "" {
		return false
	}
	bodyLower := strings.ToLower(body)
	for _, phrase := range d.phrases {
		if strings.Contains(bodyLower, phrase) {
			return true
		}
	}
	return false
}

// TransportBlocked reports whether a transport failure matches a known
// adversarial-edge signature and should count toward the block streak.
func (d *Detector) TransportBlocked(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range d.transport {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
