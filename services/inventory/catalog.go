package inventory

import (
	"context"
	"strings"
	"time"
)

// Catalog is the persisted asset store the reconciliation engine writes to and
// the query service reads from.
type Catalog interface {
	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx CatalogTx) error) error
	ListAssets(ctx context.Context, filter HostnameFilter) ([]AssetSummary, error)
	// GetAsset returns the full graph or ErrNotFound.
	GetAsset(ctx context.Context, id int64) (Asset, error)
	// AssetHostname returns the current hostname or ErrNotFound.
	AssetHostname(ctx context.Context, id int64) (string, error)
	Ping(ctx context.Context) error
}

// CatalogTx is the write surface available inside a catalog transaction.
type CatalogTx interface {
	// FindCandidates returns every asset whose hostname equals hostname or
	// whose uuid ends with uuidSuffix, ordered by ascending id.
	FindCandidates(ctx context.Context, hostname, uuidSuffix string) ([]Candidate, error)
	// LockAsset takes a row lock on the asset and returns its current snapshot.
	LockAsset(ctx context.Context, id int64) (Snapshot, error)
	InsertAsset(ctx context.Context, snap Snapshot) (int64, error)
	UpdateAsset(ctx context.Context, id int64, snap Snapshot) error
	DeleteChildren(ctx context.Context, id int64) error
	InsertChildren(ctx context.Context, id int64, snap Snapshot) error
	InsertAudit(ctx context.Context, entry AuditEntry) error
}

// Candidate is an asset row that may correspond to an incoming snapshot.
type Candidate struct {
	ID       int64  `db:"id"`
	Hostname string `db:"hostname"`
	UUID     string `db:"uuid"`
}

// AuditEntry records one reconciliation outcome.
type AuditEntry struct {
	AssetID int64
	Action  string
	Details map[string]any
	At      time.Time
}

// HostnameFilter selects assets by hostname suffix. A nil Suffixes list
// matches every asset; an empty non-nil list with Exclude false matches none.
type HostnameFilter struct {
	Suffixes []string
	Exclude  bool
}

// All reports whether the filter places no restriction on hostnames.
func (f HostnameFilter) All() bool {
	return f.Suffixes == nil
}

// Matches reports whether hostname passes the filter.
func (f HostnameFilter) Matches(hostname string) bool {
	if f.All() {
		return true
	}
	for _, suffix := range f.Suffixes {
		if strings.HasSuffix(hostname, suffix) {
			return !f.Exclude
		}
	}
	return f.Exclude
}

// likeEscaper escapes LIKE metacharacters so suffixes are matched literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func suffixPattern(suffix string) string {
	return "%" + likeEscaper.Replace(suffix)
}
