// Package extract parses job identifiers out of result-page HTML. Each
// platform gets a small rule set (card selector, link selector, id
// patterns); full field parsing of titles and companies stays out of the
// discovery path.
package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jobradar/jobradar/internal/discovery"
)

type rules struct {
	// cardSel selects one result card per listing.
	cardSel string
	// linkSel selects the job link inside a card; empty means the card
	// itself is the link.
	linkSel string
	// urnAttr optionally names a card attribute carrying an entity URN
	// that the id patterns also match.
	urnAttr    string
	idPatterns []*regexp.Regexp
	baseURL    string
}

// Extractor implements discovery.Extractor for one platform.
type Extractor struct {
	platform string
	rules    rules
}

var platformRules = map[string]rules{
	"linkedin": {
		// the guest pagination endpoint returns bare <li> cards
		cardSel: "li",
		linkSel: "a.base-card__full-link",
		urnAttr: "data-entity-urn",
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/jobs/view/(?:[^/?#]*-)?(\d+)`),
			regexp.MustCompile(`[?&]currentJobId=(\d+)`),
			regexp.MustCompile(`urn:li:jobPosting:(\d+)`),
		},
		baseURL: "https://www.linkedin.com",
	},
	"stepstone": {
		cardSel: `article[id^="job-item-"]`,
		linkSel: "a",
		urnAttr: "id",
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`^job-item-(\d+)$`),
			regexp.MustCompile(`--(\d+)-inline\.html`),
		},
		baseURL: "https://www.stepstone.de",
	},
	"xing": {
		cardSel: `a[href*="/jobs/"]`,
		idPatterns: []*regexp.Regexp{
			regexp.MustCompile(`/jobs/(?:[^/?#]*-)?(\d+)(?:[/?#]|$)`),
		},
		baseURL: "https://www.xing.com",
	},
}

// ForPlatform returns the extractor for a platform.
func ForPlatform(name string) (*Extractor, error) {
	r, ok := platformRules[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("no extraction rules for platform %q", name)
	}
	return &Extractor{platform: strings.ToLower(name), rules: r}, nil
}

// Extract pulls job identifiers from one result page, in display order.
// Cards without an identifiable job id are skipped, never an error; an
// empty page yields an empty slice.
func (e *Extractor) Extract(body string) ([]discovery.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s page: %w", e.platform, err)
	}

	var listings []discovery.Listing
	doc.Find(e.rules.cardSel).Each(func(_ int, card *goquery.Selection) {
		link := card
		if e.rules.linkSel != "" {
			link = card.Find(e.rules.linkSel).First()
		}
		href, _ := link.Attr("href")

		id := e.jobID(href)
		if id == "" && e.rules.urnAttr != "" {
			urn, _ := card.Attr(e.rules.urnAttr)
			id = e.jobID(urn)
		}
		if id == "" {
			return
		}

		listings = append(listings, discovery.Listing{
			JobID:  id,
			JobURL: e.canonicalURL(href),
			Rank:   len(listings),
		})
	})
	return listings, nil
}

func (e *Extractor) jobID(s string) string {
	if s == "" {
		return ""
	}
	for _, re := range e.rules.idPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return m[1]
		}
	}
	return ""
}

// canonicalURL absolutizes the href and strips query and fragment, so the
// same job never yields tracking-parameter URL variants.
func (e *Extractor) canonicalURL(href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(e.rules.baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	abs := base.ResolveReference(ref)
	abs.RawQuery = ""
	abs.Fragment = ""
	return abs.String()
}
