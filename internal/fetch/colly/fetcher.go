// Package collyfetch implements page fetching with gocolly for platforms
// that serve listings in plain HTML.
package collyfetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jobradar/jobradar/internal/discovery"
)

// URLBuilder turns a page request into a platform result-page URL.
type URLBuilder func(discovery.PageRequest) (string, error)

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	AcceptLanguage string
	Timeout        time.Duration
}

// Fetcher implements discovery.Fetcher using the Colly collector.
type Fetcher struct {
	cfg      Config
	buildURL URLBuilder
	base     *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config, buildURL URLBuilder) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	// retried offsets revisit the same URL, so revisits must be allowed
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	// refusal pages (403, 429, 999) must reach block classification as
	// responses, not errors
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{cfg: cfg, buildURL: buildURL, base: c}
}

// FetchPage fetches one result page. Responses with any status code come
// back as a PageResult; only transport-level failures surface as errors.
func (f *Fetcher) FetchPage(ctx context.Context, req discovery.PageRequest) (discovery.PageResult, error) {
	pageURL, err := f.buildURL(req)
	if err != nil {
		return discovery.PageResult{}, fmt.Errorf("build url: %w", err)
	}

	var (
		result    discovery.PageResult
		transport error
	)
	start := time.Now()

	collector := f.base.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		if f.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.cfg.AcceptLanguage)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		result = discovery.PageResult{
			StatusCode: r.StatusCode,
			Body:       string(r.Body),
			FinalURL:   r.Request.URL.String(),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		transport = err
	})

	if err := f.visit(ctx, collector, pageURL); err != nil {
		return discovery.PageResult{}, err
	}
	if transport != nil {
		return discovery.PageResult{}, fmt.Errorf("fetch %s: %w", pageURL, transport)
	}
	if result.StatusCode == 0 {
		return discovery.PageResult{}, fmt.Errorf("fetch %s: no response received", pageURL)
	}
	return result, nil
}

func (f *Fetcher) visit(ctx context.Context, collector *colly.Collector, pageURL string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(pageURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", pageURL, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
