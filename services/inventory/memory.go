package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Catalog operations a fault hook can intercept.
const (
	OpFindCandidates    = "find_candidates"
	OpLockAsset         = "lock_asset"
	OpInsertAsset       = "insert_asset"
	OpUpdateAsset       = "update_asset"
	OpDeleteChildren    = "delete_children"
	OpInsertLogins      = "insert_logins"
	OpInsertInterfaces  = "insert_interfaces"
	OpInsertFilesystems = "insert_filesystems"
	OpInsertDisk        = "insert_disk"
	OpInsertGPUs        = "insert_gpus"
	OpInsertAudit       = "insert_audit"
)

// MemoryCatalog is an in-process Catalog. Transactions are serialized and
// work on a private copy of the state that replaces the committed state only
// when the transaction succeeds.
type MemoryCatalog struct {
	mu    sync.Mutex
	state memoryState
	fault func(op string) error
}

type memoryState struct {
	nextID int64
	assets map[int64]Asset
	audit  []AuditEntry
}

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{state: memoryState{assets: map[int64]Asset{}}}
}

// SetFault installs a hook consulted before every write step. A non-nil
// return aborts the step with that error. Pass nil to clear it.
func (c *MemoryCatalog) SetFault(fn func(op string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fault = fn
}

// AuditLog returns the committed audit entries in insertion order.
func (c *MemoryCatalog) AuditLog() []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AuditEntry(nil), c.state.audit...)
}

func (c *MemoryCatalog) InTx(ctx context.Context, fn func(tx CatalogTx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := c.state.copy()
	if err := fn(&memoryTx{state: &work, fault: c.fault}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.state = work
	return nil
}

func (c *MemoryCatalog) ListAssets(ctx context.Context, filter HostnameFilter) ([]AssetSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]AssetSummary, 0, len(c.state.assets))
	for _, asset := range c.state.assets {
		if filter.Matches(asset.Hostname) {
			out = append(out, asset.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *MemoryCatalog) GetAsset(ctx context.Context, id int64) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	asset, ok := c.state.assets[id]
	if !ok {
		return Asset{}, ErrNotFound
	}
	asset.Snapshot = asset.Snapshot.clone()
	return asset, nil
}

func (c *MemoryCatalog) AssetHostname(ctx context.Context, id int64) (string, error) {
	asset, err := c.GetAsset(ctx, id)
	if err != nil {
		return "", err
	}
	return asset.Hostname, nil
}

func (c *MemoryCatalog) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s memoryState) copy() memoryState {
	out := memoryState{
		nextID: s.nextID,
		assets: make(map[int64]Asset, len(s.assets)),
		audit:  append([]AuditEntry(nil), s.audit...),
	}
	for id, asset := range s.assets {
		asset.Snapshot = asset.Snapshot.clone()
		out.assets[id] = asset
	}
	return out
}

type memoryTx struct {
	state *memoryState
	fault func(op string) error
}

func (tx *memoryTx) check(op string) error {
	if tx.fault == nil {
		return nil
	}
	return tx.fault(op)
}

func (tx *memoryTx) FindCandidates(_ context.Context, hostname, uuidSuffix string) ([]Candidate, error) {
	if err := tx.check(OpFindCandidates); err != nil {
		return nil, err
	}
	var out []Candidate
	for _, asset := range tx.state.assets {
		if asset.Hostname == hostname || (uuidSuffix != "" && strings.HasSuffix(asset.UUID, uuidSuffix)) {
			out = append(out, Candidate{ID: asset.ID, Hostname: asset.Hostname, UUID: asset.UUID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) LockAsset(_ context.Context, id int64) (Snapshot, error) {
	if err := tx.check(OpLockAsset); err != nil {
		return Snapshot{}, err
	}
	asset, ok := tx.state.assets[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return asset.Snapshot.clone(), nil
}

func (tx *memoryTx) InsertAsset(_ context.Context, snap Snapshot) (int64, error) {
	if err := tx.check(OpInsertAsset); err != nil {
		return 0, err
	}
	if err := tx.uuidTaken(0, snap.UUID); err != nil {
		return 0, err
	}
	tx.state.nextID++
	now := time.Now().UTC()
	scalars := snap.clone()
	scalars.Logins, scalars.Interfaces, scalars.Filesystems, scalars.Disk, scalars.GPUs =
		[]LoginEntry{}, []InterfaceAddress{}, []MountedFilesystem{}, nil, []GPUDevice{}
	tx.state.assets[tx.state.nextID] = Asset{
		ID:        tx.state.nextID,
		Snapshot:  scalars,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return tx.state.nextID, nil
}

func (tx *memoryTx) UpdateAsset(_ context.Context, id int64, snap Snapshot) error {
	if err := tx.check(OpUpdateAsset); err != nil {
		return err
	}
	asset, ok := tx.state.assets[id]
	if !ok {
		return ErrNotFound
	}
	if err := tx.uuidTaken(id, snap.UUID); err != nil {
		return err
	}
	next := snap.clone()
	next.Logins, next.Interfaces, next.Filesystems, next.Disk, next.GPUs =
		asset.Logins, asset.Interfaces, asset.Filesystems, asset.Disk, asset.GPUs
	asset.Snapshot = next
	asset.UpdatedAt = time.Now().UTC()
	tx.state.assets[id] = asset
	return nil
}

func (tx *memoryTx) DeleteChildren(_ context.Context, id int64) error {
	if err := tx.check(OpDeleteChildren); err != nil {
		return err
	}
	asset, ok := tx.state.assets[id]
	if !ok {
		return ErrNotFound
	}
	asset.Logins = []LoginEntry{}
	asset.Interfaces = []InterfaceAddress{}
	asset.Filesystems = []MountedFilesystem{}
	asset.Disk = nil
	asset.GPUs = []GPUDevice{}
	tx.state.assets[id] = asset
	return nil
}

func (tx *memoryTx) InsertChildren(_ context.Context, id int64, snap Snapshot) error {
	asset, ok := tx.state.assets[id]
	if !ok {
		return ErrNotFound
	}
	// Each collection lands before the next fault check so a failure leaves
	// the transaction half written.
	defer func() { tx.state.assets[id] = asset }()

	src := snap.clone()
	if err := tx.check(OpInsertLogins); err != nil {
		return err
	}
	asset.Logins = append(asset.Logins, src.Logins...)
	if err := tx.check(OpInsertInterfaces); err != nil {
		return err
	}
	asset.Interfaces = append(asset.Interfaces, src.Interfaces...)
	if err := tx.check(OpInsertFilesystems); err != nil {
		return err
	}
	asset.Filesystems = append(asset.Filesystems, src.Filesystems...)
	if src.Disk != nil {
		if err := tx.check(OpInsertDisk); err != nil {
			return err
		}
		if asset.Disk != nil {
			return errDuplicateDisk
		}
		asset.Disk = src.Disk
	}
	if err := tx.check(OpInsertGPUs); err != nil {
		return err
	}
	asset.GPUs = append(asset.GPUs, src.GPUs...)
	return nil
}

func (tx *memoryTx) InsertAudit(_ context.Context, entry AuditEntry) error {
	if err := tx.check(OpInsertAudit); err != nil {
		return err
	}
	tx.state.audit = append(tx.state.audit, entry)
	return nil
}

func (tx *memoryTx) uuidTaken(self int64, id string) error {
	for _, asset := range tx.state.assets {
		if asset.ID != self && asset.UUID == id {
			return errDuplicateUUID
		}
	}
	return nil
}
