// Package platform holds the per-platform configuration: block detection
// rules, pagination geometry, politeness settings and search-URL building.
// Everything here is data; the pagination engine stays platform-agnostic.
package platform

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jobradar/jobradar/internal/discovery"
)

// Window codes follow the LinkedIn f_TPR convention; the other platforms
// translate them into their own date filters.
const (
	WindowPastDay  = "r86400"
	WindowPastWeek = "r604800"
)

// Config describes one supported platform.
type Config struct {
	Name string
	// PageSize is the nominal listing count per result page, used to
	// derive page numbers from item offsets.
	PageSize int
	// Concurrency caps parallel search runs on this platform.
	Concurrency int
	// Delay is the politeness pause between page fetches of one search.
	Delay time.Duration
	// Headless marks platforms that only render listings client-side.
	Headless   bool
	BlockRules discovery.BlockRules

	buildURL func(discovery.PageRequest) (string, error)
}

// SearchURL builds the result-page URL for one page request.
func (c Config) SearchURL(req discovery.PageRequest) (string, error) {
	return c.buildURL(req)
}

var registry = map[string]Config{
	"linkedin": {
		Name:        "linkedin",
		PageSize:    25,
		Concurrency: 2,
		Delay:       2 * time.Second,
		BlockRules: discovery.BlockRules{
			StatusCodes:    []int{403, 429, 999},
			ChallengePaths: []string{"/checkpoint/"},
			BodyPhrases: []string{
				"please verify",
				"unusual activity",
				"csrf check failed",
			},
			TransportSignatures: []string{
				"net::err_connection_reset",
				"net::err_connection_closed",
				"connection reset by peer",
			},
		},
		buildURL: linkedinURL,
	},
	"stepstone": {
		Name:        "stepstone",
		PageSize:    25,
		Concurrency: 1,
		Delay:       3 * time.Second,
		Headless:    true,
		BlockRules: discovery.BlockRules{
			StatusCodes: []int{403, 429, 503},
			BodyPhrases: []string{
				"access denied",
				"verify you are a human",
				"are you a robot",
			},
			TransportSignatures: []string{
				"net::err_connection_reset",
				"net::err_http2_protocol_error",
			},
		},
		buildURL: stepstoneURL,
	},
	"xing": {
		Name:        "xing",
		PageSize:    20,
		Concurrency: 1,
		Delay:       3 * time.Second,
		Headless:    true,
		BlockRules: discovery.BlockRules{
			StatusCodes: []int{403, 429, 503},
			BodyPhrases: []string{
				"access denied",
				"verify you are a human",
			},
			TransportSignatures: []string{
				"net::err_connection_reset",
			},
		},
		buildURL: xingURL,
	},
}

// Lookup returns the configuration of a platform by name.
func Lookup(name string) (Config, error) {
	cfg, ok := registry[strings.ToLower(name)]
	if !ok {
		return Config{}, fmt.Errorf("unknown platform %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return cfg, nil
}

// Names lists the supported platform names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// linkedinURL targets the guest pagination endpoint the LinkedIn UI uses
// for infinite scroll. It pages by item offset via start.
func linkedinURL(req discovery.PageRequest) (string, error) {
	s := req.Search
	if s.Keywords == "" {
		return "", fmt.Errorf("search %s: keywords required", s.Name)
	}
	params := url.Values{}
	params.Set("keywords", s.Keywords)
	if s.Location != "" {
		params.Set("location", s.Location)
	}
	if s.GeoID != "" {
		params.Set("geoId", s.GeoID)
	}
	params.Set("start", strconv.Itoa(req.Offset))
	for k, v := range s.Facets {
		if v != "" {
			params.Set(k, v)
		}
	}
	if s.Window != "" {
		params.Set("f_TPR", s.Window)
	}
	return "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search?" + params.Encode(), nil
}

// stepstoneURL pages by page number; the window narrows via the ag facet
// which only supports 1 and 7 day buckets.
func stepstoneURL(req discovery.PageRequest) (string, error) {
	s := req.Search
	if s.Keywords == "" {
		return "", fmt.Errorf("search %s: keywords required", s.Name)
	}
	path := "/jobs/" + slugify(s.Keywords)
	if s.Location != "" {
		path += "/in-" + slugify(s.Location)
	}

	params := url.Values{}
	params.Set("radius", "30")
	page := req.Offset/25 + 1
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
		params.Set("action", "paging_next")
	}
	switch s.Window {
	case WindowPastDay:
		params.Set("ag", "age_1")
	case WindowPastWeek:
		params.Set("ag", "age_7")
	}
	return "https://www.stepstone.de" + path + "?" + params.Encode(), nil
}

// xingURL pages by item offset; the window maps onto sincePeriod days.
func xingURL(req discovery.PageRequest) (string, error) {
	s := req.Search
	if s.Keywords == "" {
		return "", fmt.Errorf("search %s: keywords required", s.Name)
	}
	params := url.Values{}
	params.Set("keywords", s.Keywords)
	if s.Location != "" {
		params.Set("location", s.Location)
	}
	if cityID := s.Facets["city_id"]; cityID != "" {
		params.Set("cityId", cityID)
	}
	if req.Offset > 0 {
		params.Set("offset", strconv.Itoa(req.Offset))
	}
	switch s.Window {
	case WindowPastDay:
		params.Set("sincePeriod", "1")
	case WindowPastWeek:
		params.Set("sincePeriod", "7")
	}
	return "https://www.xing.com/jobs/search?" + params.Encode(), nil
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
