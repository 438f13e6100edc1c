package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobradar/jobradar/internal/clock/system"
	"github.com/jobradar/jobradar/internal/config"
	collyfetch "github.com/jobradar/jobradar/internal/fetch/colly"
	"github.com/jobradar/jobradar/internal/fetch/headless"
	idgen "github.com/jobradar/jobradar/internal/id/uuid"
	"github.com/jobradar/jobradar/internal/platform"
	"github.com/jobradar/jobradar/internal/publisher"
	memorypublisher "github.com/jobradar/jobradar/internal/publisher/memory"
	"github.com/jobradar/jobradar/internal/runner"
	"github.com/jobradar/jobradar/internal/store"
)

func testApp(cfg config.Config) *App {
	return &App{
		cfg:    cfg,
		logger: zap.NewNop(),
		events: memorypublisher.New(),
		clock:  system.New(),
		ids:    idgen.New(),
	}
}

func TestMaintenanceOptionsFromConfig(t *testing.T) {
	t.Parallel()

	a := testApp(config.Config{Lifecycle: config.LifecycleConfig{
		StaleAfterDays:      60,
		HardDeleteAfterDays: 120,
		MaxCrawlAgeHours:    36,
	}})

	opts := a.MaintenanceOptions("manual", true)
	require.NoError(t, opts.Validate())
	assert.Equal(t, "manual", opts.Trigger)
	assert.True(t, opts.DryRun)
	assert.Equal(t, platform.Names(), opts.Platforms)
}

func TestWithRunDeadlineBoundsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := withRunDeadline(context.Background(), time.Hour)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Hour), deadline, time.Minute)
}

func TestWithRunDeadlineZeroDisablesBound(t *testing.T) {
	t.Parallel()

	ctx, cancel := withRunDeadline(context.Background(), 0)
	defer cancel()

	_, ok := ctx.Deadline()
	assert.False(t, ok)
}

func TestBuildFetcherPlainHTTPForLinkedIn(t *testing.T) {
	t.Parallel()

	a := testApp(config.Config{Crawl: config.CrawlConfig{
		UserAgent:      "agent",
		TimeoutSeconds: 5,
	}})
	pcfg, err := platform.Lookup("linkedin")
	require.NoError(t, err)

	fetcher, closeFetcher, err := a.buildFetcher(pcfg)
	require.NoError(t, err)
	defer closeFetcher()
	assert.IsType(t, &collyfetch.Fetcher{}, fetcher)
}

func TestBuildFetcherNoopWhenHeadlessDisabled(t *testing.T) {
	t.Parallel()

	a := testApp(config.Config{Headless: config.HeadlessConfig{Enabled: false}})
	pcfg, err := platform.Lookup("stepstone")
	require.NoError(t, err)

	fetcher, closeFetcher, err := a.buildFetcher(pcfg)
	require.NoError(t, err)
	defer closeFetcher()
	assert.IsType(t, &headless.Noop{}, fetcher)
}

func TestPublishCrawlFinished(t *testing.T) {
	t.Parallel()

	pub := memorypublisher.New()
	a := testApp(config.Config{})
	a.events = pub

	a.publishCrawlFinished(context.Background(), runner.Report{
		RunID:          uuid.New(),
		Platform:       "xing",
		Trigger:        "manual",
		Status:         store.CrawlSuccess,
		PagesFetched:   3,
		JobsDiscovered: 12,
		Duration:       time.Second,
	})

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, topicCrawlFinished, msgs[0].Topic)
	event, ok := msgs[0].Payload.(publisher.CrawlFinishedEvent)
	require.True(t, ok)
	assert.Equal(t, "xing", event.Platform)
	assert.Equal(t, 12, event.JobsDiscovered)
	assert.NotEmpty(t, event.EventID)
}
