package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atlaslabs/newsbase/crawler"
	"github.com/atlaslabs/newsbase/fetch"
	"github.com/atlaslabs/newsbase/ingest"
	"github.com/atlaslabs/newsbase/metadata"
)

// SourceStore is the metadata collaborator the poller needs; satisfied
// by *metadata.Store.
type SourceStore interface {
	ListActiveSources(ctx context.Context, kind string) ([]metadata.Source, error)
	GetSource(ctx context.Context, userID, id int64) (*metadata.Source, error)
	TouchSource(ctx context.Context, id int64, at time.Time, fetchErr error) error
}

// Ingester is the acquisition collaborator; satisfied by
// *ingest.Coordinator.
type Ingester interface {
	Ingest(ctx context.Context, cand ingest.Candidate) (int64, error)
}

// NotifierFunc is called the moment a Source crosses into the error
// state (spec §4.18 "active -> error (soft) when consecutive failures
// >= 3"). This is SPEC_FULL's substitute for the original Python
// crawler's EmailService alert (spec.md §1 scopes email delivery out),
// so a deployment can plug in paging/Slack/metrics without this
// package depending on any of those transports.
type NotifierFunc func(src metadata.Source)

// errorStateThreshold is the consecutive-failure count spec §4.18
// names for the active -> error transition.
const errorStateThreshold = 3

// maxBackoffMultiplier caps the adaptive re-poll interval at 16x the
// source's configured cadence (spec §4.18).
const maxBackoffMultiplier = 16

// Poller registers one scheduler job per active source (spec §4.11:
// "one interval job per source") and knows how to run a single
// source's poll on demand, so the same code path serves both the
// ticking scheduler and a manual "poll now" API call. It also owns
// the source state machine of spec §4.18: a run of consecutive
// failures backs the job's own re-poll interval off exponentially,
// capped at 16x cadence, and fires notify once when the source enters
// the soft error state.
//
// Grounded on original_source/backend/app/crawlers/scheduler.py's
// job-per-feed registration, translated onto Scheduler.Register.
type Poller struct {
	sources   SourceStore
	ingester  Ingester
	fetcher   *fetch.Fetcher
	scheduler *Scheduler
	notify    NotifierFunc
}

// NewPoller constructs a Poller over its collaborators. notify may be
// nil, in which case entering the error state is only logged.
func NewPoller(sources SourceStore, ingester Ingester, fetcher *fetch.Fetcher, sched *Scheduler, notify NotifierFunc) *Poller {
	if notify == nil {
		notify = func(src metadata.Source) {
			slog.Warn("scheduler: source entered error state",
				"source_id", src.ID, "url", src.URL, "consecutive_failures", src.ConsecutiveFailures)
		}
	}
	return &Poller{sources: sources, ingester: ingester, fetcher: fetcher, scheduler: sched, notify: notify}
}

// RegisterAll loads every active RSS source and registers a ticking
// job for it. Web sources are polled on the same cadence but scraped
// singly (they have no feed to enumerate multiple new items from),
// matching spec §4.8/§4.9's split between feed-based and single-page
// acquisition.
func (p *Poller) RegisterAll(ctx context.Context) error {
	for _, kind := range []string{"rss", "web"} {
		srcs, err := p.sources.ListActiveSources(ctx, kind)
		if err != nil {
			return fmt.Errorf("listing active %s sources: %w", kind, err)
		}
		for _, src := range srcs {
			p.RegisterSource(src)
		}
	}
	return nil
}

// RegisterSource (re)registers a single source's ticking job at its
// base cadence, used both by RegisterAll at startup and by the API
// when a source is created or its cadence changes (spec §4.11
// "reschedule on cadence change"). A source mid-backoff gets its
// normal cadence back; the next failure will re-establish it.
func (p *Poller) RegisterSource(src metadata.Source) {
	p.registerJob(src, baseInterval(src))
}

func baseInterval(src metadata.Source) time.Duration {
	interval := time.Duration(src.CadenceSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return interval
}

func (p *Poller) registerJob(src metadata.Source, interval time.Duration) {
	srcID := src.ID
	p.scheduler.Register(Job{
		ID:       fmt.Sprintf("source-%d", srcID),
		Kind:     JobPollRSSSource,
		UserID:   src.UserID,
		SourceID: srcID,
		Interval: interval,
		Run: func(ctx context.Context) error {
			return p.PollSource(ctx, src.UserID, srcID)
		},
	})
}

// UnregisterSource stops a source's ticking job, e.g. when it's
// deactivated or deleted.
func (p *Poller) UnregisterSource(sourceID int64) {
	p.scheduler.Unregister(fmt.Sprintf("source-%d", sourceID))
}

// PollSource fetches a single source's content, ingests every new
// item, and records the poll outcome on the source row (spec §4.18's
// consecutive-failure tracking). It never returns an error solely
// because an individual item duplicated existing content.
func (p *Poller) PollSource(ctx context.Context, userID, sourceID int64) error {
	src, err := p.sources.GetSource(ctx, userID, sourceID)
	if err != nil {
		return fmt.Errorf("loading source %d: %w", sourceID, err)
	}

	var pollErr error
	switch src.Kind {
	case "rss":
		pollErr = p.pollRSS(ctx, *src)
	case "web":
		pollErr = p.pollWeb(ctx, *src)
	default:
		pollErr = fmt.Errorf("unknown source kind %q", src.Kind)
	}

	if err := p.sources.TouchSource(ctx, sourceID, time.Now(), pollErr); err != nil {
		slog.Warn("poller: failed to record poll outcome", "source_id", sourceID, "error", err)
	}
	p.reschedule(*src, pollErr)
	return pollErr
}

// reschedule re-registers src's job with an interval reflecting the
// outcome of the poll that just ran: a clean run restores the base
// cadence, failures below the error threshold keep it, each failure
// from the threshold on doubles the interval (2x at the threshold,
// capped at 16x cadence), and crossing the failure threshold for the
// first time fires notify (spec §4.18).
func (p *Poller) reschedule(src metadata.Source, pollErr error) {
	failures := 0
	if pollErr != nil {
		failures = src.ConsecutiveFailures + 1
	}

	if pollErr != nil && src.ConsecutiveFailures < errorStateThreshold && failures >= errorStateThreshold {
		src.ConsecutiveFailures = failures
		p.notify(src)
	}

	base := baseInterval(src)
	interval := base
	if failures >= errorStateThreshold {
		shift := min(failures-errorStateThreshold+1, 4) // 2^4 == maxBackoffMultiplier
		interval = base * time.Duration(1<<uint(shift))
		if capped := base * maxBackoffMultiplier; interval > capped {
			interval = capped
		}
	}

	p.registerJob(src, interval)
}

// rssLookback is the default since window (spec §4.7 "since defaults
// to now-24h") applied when a source has never been polled
// successfully before.
const rssLookback = 24 * time.Hour

func (p *Poller) pollRSS(ctx context.Context, src metadata.Source) error {
	since := time.Now().Add(-rssLookback)
	if src.LastFetchedAt != nil {
		since = *src.LastFetchedAt
	}

	items, err := crawler.FetchAndParse(ctx, p.fetcher, src.URL, since)
	if err != nil {
		return fmt.Errorf("fetching feed %s: %w", src.URL, err)
	}
	for _, item := range items {
		publishedAt := item.PublishedAt
		if publishedAt.IsZero() {
			publishedAt = time.Now()
		}
		_, err := p.ingester.Ingest(ctx, ingest.Candidate{
			UserID:      src.UserID,
			Title:       item.Title,
			Content:     item.Content,
			SourceURL:   item.Link,
			SourceType:  "rss",
			Tags:        src.AutoTags,
			PublishedAt: &publishedAt,
		})
		if err != nil && err != ingest.ErrDuplicate {
			slog.Warn("poller: failed to ingest feed item", "source_id", src.ID, "link", item.Link, "error", err)
		}
	}
	return nil
}

func (p *Poller) pollWeb(ctx context.Context, src metadata.Source) error {
	article, err := crawler.FetchAndScrape(ctx, p.fetcher, src.URL)
	if err != nil {
		return fmt.Errorf("scraping %s: %w", src.URL, err)
	}
	if article.Content == "" {
		return fmt.Errorf("no extractable content at %s", src.URL)
	}
	_, err = p.ingester.Ingest(ctx, ingest.Candidate{
		UserID:     src.UserID,
		Title:      article.Title,
		Content:    article.Content,
		SourceURL:  src.URL,
		SourceType: "web",
		Tags:       src.AutoTags,
	})
	if err != nil && err != ingest.ErrDuplicate {
		return err
	}
	return nil
}
