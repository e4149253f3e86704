package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"fleetinv/pkg/bus"
)

const (
	DefaultSnapshotSubject = "fleetinv.agent.snapshots"
	defaultDurable         = "inventory-snapshots"
)

// Subscriber delivers raw messages from a subject. *bus.Bus implements it.
type Subscriber interface {
	Subscribe(ctx context.Context, subj, durable string, fn func(ctx context.Context, data []byte) error) (io.Closer, error)
}

// IngestorConfig configures an Ingestor. Empty fields take defaults.
type IngestorConfig struct {
	Subject string
	Durable string
	// AfterCommit runs after a snapshot has been reconciled successfully.
	AfterCommit func(ctx context.Context, snap Snapshot, raw []byte)
}

// Ingestor reconciles snapshots that agents publish on the bus instead of
// posting over HTTP.
type Ingestor struct {
	reconciler *Reconciler
	sub        Subscriber
	cfg        IngestorConfig
	logger     zerolog.Logger

	subMu  sync.Mutex
	closer io.Closer
}

// NewIngestor constructs an Ingestor for the provided dependencies.
func NewIngestor(reconciler *Reconciler, sub Subscriber, cfg IngestorConfig, logger zerolog.Logger) (*Ingestor, error) {
	if reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	if cfg.Subject == "" {
		cfg.Subject = DefaultSnapshotSubject
	}
	if cfg.Durable == "" {
		cfg.Durable = defaultDurable
	}
	return &Ingestor{reconciler: reconciler, sub: sub, cfg: cfg, logger: logger}, nil
}

// Start subscribes to snapshot messages and processes them until ctx is cancelled.
func (i *Ingestor) Start(ctx context.Context) error {
	if i == nil {
		return errors.New("nil ingestor")
	}

	closer, err := i.sub.Subscribe(ctx, i.cfg.Subject, i.cfg.Durable, i.handleSnapshot)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", i.cfg.Subject, err)
	}

	i.subMu.Lock()
	i.closer = closer
	i.subMu.Unlock()

	i.logger.Info().Str("subject", i.cfg.Subject).Msg("snapshot ingestor started")
	return nil
}

// Close stops the underlying subscription if it was created.
func (i *Ingestor) Close() error {
	if i == nil {
		return nil
	}

	i.subMu.Lock()
	defer i.subMu.Unlock()

	if i.closer == nil {
		return nil
	}
	err := i.closer.Close()
	i.closer = nil
	return err
}

// handleSnapshot reconciles one message. Malformed payloads are poison and
// never redelivered; persistence failures are returned for redelivery.
func (i *Ingestor) handleSnapshot(ctx context.Context, data []byte) error {
	snap, err := DecodeSnapshot(data)
	if err != nil {
		i.logger.Warn().Err(err).Msg("dropping malformed snapshot message")
		return fmt.Errorf("%w: %v", bus.ErrPoison, err)
	}

	if _, err := i.reconciler.Reconcile(ctx, snap); err != nil {
		return err
	}

	if i.cfg.AfterCommit != nil {
		i.cfg.AfterCommit(ctx, snap, data)
	}
	return nil
}
