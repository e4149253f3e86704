package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"fleetinv/services/eventlog"
)

const (
	DefaultEventLimit         = 100
	MaxEventLimit             = 1000
	DefaultCorrelationTimeout = 3 * time.Second

	maxEventFetch = 16 * MaxEventLimit
)

// EventSource is the external syslog store. Hosts are matched by exact
// string equality; there is no shared key with the catalog.
type EventSource interface {
	RecentByHost(ctx context.Context, host string, limit int) ([]eventlog.Event, error)
}

// LogView is an asset's log section. Available is false when the event
// store could not be queried; Events is then empty and Error says why.
type LogView struct {
	AssetID   int64            `json:"asset_id"`
	Hostname  string           `json:"hostname"`
	Events    []eventlog.Event `json:"events"`
	Available bool             `json:"logs_available"`
	Error     string           `json:"logs_error,omitempty"`
}

// CorrelatorConfig bounds event store lookups. Zero values take the defaults.
type CorrelatorConfig struct {
	Timeout time.Duration
	Limit   int
}

// Correlator joins assets to the event store by hostname. Historical events
// recorded under a previous hostname are not found after a rename.
type Correlator struct {
	catalog Catalog
	source  EventSource
	timeout time.Duration
	limit   int
	logger  zerolog.Logger
	metrics *Metrics
}

// NewCorrelator wires a Correlator. A nil source makes every lookup
// unavailable.
func NewCorrelator(catalog Catalog, source EventSource, cfg CorrelatorConfig, logger zerolog.Logger, metrics *Metrics) (*Correlator, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCorrelationTimeout
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultEventLimit
	}
	if cfg.Limit > MaxEventLimit {
		cfg.Limit = MaxEventLimit
	}
	return &Correlator{
		catalog: catalog,
		source:  source,
		timeout: cfg.Timeout,
		limit:   cfg.Limit,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// RecentEvents returns up to limit events for the asset's current hostname,
// newest first. limit <= 0 uses the configured default. It fails with
// ErrNotFound for an unknown asset and ErrCorrelationUnavailable when the
// event store errors or exceeds the timeout.
func (c *Correlator) RecentEvents(ctx context.Context, assetID int64, limit int) ([]eventlog.Event, error) {
	hostname, err := c.catalog.AssetHostname(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return c.eventsForHost(ctx, hostname, limit)
}

// View resolves the asset and returns its log section. Only catalog errors
// are returned; event store failures are reported inside the view.
func (c *Correlator) View(ctx context.Context, assetID int64, limit int) (LogView, error) {
	hostname, err := c.catalog.AssetHostname(ctx, assetID)
	if err != nil {
		return LogView{}, err
	}
	return c.ViewFor(ctx, assetID, hostname, limit), nil
}

// ViewFor builds the log section for an asset already loaded by the caller.
func (c *Correlator) ViewFor(ctx context.Context, assetID int64, hostname string, limit int) LogView {
	view := LogView{AssetID: assetID, Hostname: hostname, Events: []eventlog.Event{}}

	events, err := c.eventsForHost(ctx, hostname, limit)
	if err != nil {
		view.Error = err.Error()
		return view
	}
	view.Events = events
	view.Available = true
	return view
}

func (c *Correlator) eventsForHost(ctx context.Context, hostname string, limit int) ([]eventlog.Event, error) {
	if limit <= 0 {
		limit = c.limit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}

	if c.source == nil {
		c.metrics.correlationFailed()
		return nil, fmt.Errorf("%w: event store not configured", ErrCorrelationUnavailable)
	}

	events, err := c.collect(ctx, hostname, limit)
	if err != nil {
		c.metrics.correlationFailed()
		c.logger.Warn().Err(err).Str("hostname", hostname).Msg("event store lookup failed")
		return nil, fmt.Errorf("%w: %v", ErrCorrelationUnavailable, err)
	}
	return events, nil
}

// collect fetches events under the correlation timeout and keeps exact host
// matches. When a source compares case-insensitively, case variants can fill
// the page; the fetch is then widened until limit exact matches are found or
// the source runs dry.
func (c *Correlator) collect(ctx context.Context, hostname string, limit int) ([]eventlog.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	size := limit
	for {
		events, err := c.fetch(ctx, hostname, size)
		if err != nil {
			return nil, err
		}

		out := make([]eventlog.Event, 0, len(events))
		for _, ev := range events {
			if ev.FromHost == hostname {
				out = append(out, ev)
			}
		}
		if len(out) >= limit || len(events) < size || size >= maxEventFetch {
			sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
			if len(out) > limit {
				out = out[:limit]
			}
			return out, nil
		}
		size = min(size*4, maxEventFetch)
	}
}

type fetchResult struct {
	events []eventlog.Event
	err    error
}

// fetch queries the source and gives up when ctx is done even if the source
// ignores its context.
func (c *Correlator) fetch(ctx context.Context, hostname string, limit int) ([]eventlog.Event, error) {
	done := make(chan fetchResult, 1)
	go func() {
		events, err := c.source.RecentByHost(ctx, hostname, limit)
		done <- fetchResult{events: events, err: err}
	}()

	select {
	case res := <-done:
		return res.events, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
