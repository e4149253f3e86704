package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Outcome says whether a reconciliation inserted or overwrote an asset.
type Outcome int

const (
	Created Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Result is the outcome of reconciling one snapshot.
type Result struct {
	AssetID int64
	Outcome Outcome
}

// Reconciler maps snapshots onto catalog assets.
type Reconciler struct {
	catalog Catalog
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewReconciler wires a Reconciler. metrics may be nil.
func NewReconciler(catalog Catalog, logger zerolog.Logger, metrics *Metrics) (*Reconciler, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	return &Reconciler{
		catalog: catalog,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Reconcile matches snap against the catalog and creates or overwrites the
// asset in a single transaction. Child collections of an existing asset are
// replaced wholesale. Storage failures surface as *PersistenceError after a
// full rollback.
func (r *Reconciler) Reconcile(ctx context.Context, snap Snapshot) (Result, error) {
	started := time.Now()
	snap = snap.clone()

	var res Result
	err := r.catalog.InTx(ctx, func(tx CatalogTx) error {
		candidates, err := tx.FindCandidates(ctx, snap.Hostname, UUIDSuffix(snap.UUID))
		if err != nil {
			return &PersistenceError{Op: "find candidates", Err: err}
		}

		id, kind := Match(snap, candidates)
		if kind == NoMatch {
			res, err = r.create(ctx, tx, snap)
			return err
		}

		r.logger.Debug().Int64("asset_id", id).Stringer("match", kind).Str("hostname", snap.Hostname).Msg("snapshot matched existing asset")
		res, err = r.update(ctx, tx, id, snap)
		return err
	})
	if err != nil {
		var perr *PersistenceError
		if !errors.As(err, &perr) {
			err = &PersistenceError{Op: "transaction", Err: err}
		}
		r.metrics.observeReconcile("error", started)
		r.logger.Error().Err(err).Str("hostname", snap.Hostname).Str("uuid", snap.UUID).Msg("reconcile snapshot")
		return Result{}, err
	}

	r.metrics.observeReconcile(res.Outcome.String(), started)
	r.logger.Info().
		Int64("asset_id", res.AssetID).
		Str("hostname", snap.Hostname).
		Stringer("outcome", res.Outcome).
		Msg("snapshot reconciled")
	return res, nil
}

func (r *Reconciler) create(ctx context.Context, tx CatalogTx, snap Snapshot) (Result, error) {
	id, err := tx.InsertAsset(ctx, snap)
	if err != nil {
		return Result{}, &PersistenceError{Op: "insert asset", Err: err}
	}
	if err := tx.InsertChildren(ctx, id, snap); err != nil {
		return Result{}, &PersistenceError{Op: "insert children", Err: err}
	}
	if err := tx.InsertAudit(ctx, AuditEntry{
		AssetID: id,
		Action:  auditCreated,
		Details: map[string]any{"changes": computeDiff(nil, snap.scalars())},
		At:      r.now(),
	}); err != nil {
		return Result{}, &PersistenceError{Op: "insert audit", Err: err}
	}
	return Result{AssetID: id, Outcome: Created}, nil
}

func (r *Reconciler) update(ctx context.Context, tx CatalogTx, id int64, snap Snapshot) (Result, error) {
	previous, err := tx.LockAsset(ctx, id)
	if err != nil {
		return Result{}, &PersistenceError{Op: "lock asset", Err: err}
	}
	if err := tx.UpdateAsset(ctx, id, snap); err != nil {
		return Result{}, &PersistenceError{Op: "update asset", Err: err}
	}
	if err := tx.DeleteChildren(ctx, id); err != nil {
		return Result{}, &PersistenceError{Op: "delete children", Err: err}
	}
	if err := tx.InsertChildren(ctx, id, snap); err != nil {
		return Result{}, &PersistenceError{Op: "insert children", Err: err}
	}
	if err := tx.InsertAudit(ctx, AuditEntry{
		AssetID: id,
		Action:  auditUpdated,
		Details: map[string]any{"changes": computeDiff(previous.scalars(), snap.scalars())},
		At:      r.now(),
	}); err != nil {
		return Result{}, &PersistenceError{Op: "insert audit", Err: err}
	}
	return Result{AssetID: id, Outcome: Updated}, nil
}
