package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleetinv/pkg/db"
)

const assetSummaryColumns = `id, hostname, uuid, distribution, kernel_version, logged_in_user,
       cpu_model, memory_total_gb, collection_datetime, motherboard_model, patrimony`

// GormCatalog is the PostgreSQL-backed Catalog. Writes go through gorm
// transactions; listings and lookups use the pgx pool directly.
type GormCatalog struct {
	orm  *gorm.DB
	pool *pgxpool.Pool
}

// NewGormCatalog builds a catalog over a gorm handle and the pool it shares.
func NewGormCatalog(orm *gorm.DB, pool *pgxpool.Pool) (*GormCatalog, error) {
	if orm == nil {
		return nil, errors.New("gorm handle is required")
	}
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	return &GormCatalog{orm: orm, pool: pool}, nil
}

func (c *GormCatalog) InTx(ctx context.Context, fn func(tx CatalogTx) error) error {
	return c.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (c *GormCatalog) ListAssets(ctx context.Context, filter HostnameFilter) ([]AssetSummary, error) {
	query, args, ok := listQuery(filter)
	if !ok {
		return []AssetSummary{}, nil
	}

	var out []AssetSummary
	if err := db.Select(ctx, c.pool, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	if out == nil {
		out = []AssetSummary{}
	}
	return out, nil
}

// listQuery renders the filter as SQL. ok is false when no row can match.
func listQuery(filter HostnameFilter) (string, []any, bool) {
	var b strings.Builder
	b.WriteString("SELECT " + assetSummaryColumns + "\nFROM assets")

	if filter.All() {
		b.WriteString("\nORDER BY id")
		return b.String(), nil, true
	}
	if len(filter.Suffixes) == 0 {
		if !filter.Exclude {
			return "", nil, false
		}
		b.WriteString("\nORDER BY id")
		return b.String(), nil, true
	}

	clauses := make([]string, 0, len(filter.Suffixes))
	args := make([]any, 0, len(filter.Suffixes))
	for i, suffix := range filter.Suffixes {
		clauses = append(clauses, fmt.Sprintf(`hostname LIKE $%d ESCAPE '\'`, i+1))
		args = append(args, suffixPattern(suffix))
	}
	cond := "(" + strings.Join(clauses, " OR ") + ")"
	if filter.Exclude {
		cond = "NOT " + cond
	}
	b.WriteString("\nWHERE " + cond + "\nORDER BY id")
	return b.String(), args, true
}

func (c *GormCatalog) GetAsset(ctx context.Context, id int64) (Asset, error) {
	var model assetModel
	err := c.orm.WithContext(ctx).
		Preload("Logins", orderByID).
		Preload("Interfaces", orderByID).
		Preload("Filesystems", orderByID).
		Preload("Disk").
		Preload("GPUs", orderByID).
		First(&model, "id = ?", id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Asset{}, ErrNotFound
	case err != nil:
		return Asset{}, fmt.Errorf("get asset %d: %w", id, err)
	}
	return model.toAsset(), nil
}

func orderByID(tx *gorm.DB) *gorm.DB { return tx.Order("id") }

func (c *GormCatalog) AssetHostname(ctx context.Context, id int64) (string, error) {
	var hostname string
	err := db.Get(ctx, c.pool, &hostname, `SELECT hostname FROM assets WHERE id = $1`, id)
	switch {
	case pgxscan.NotFound(err):
		return "", ErrNotFound
	case err != nil:
		return "", fmt.Errorf("asset hostname %d: %w", id, err)
	}
	return hostname, nil
}

func (c *GormCatalog) Ping(ctx context.Context) error {
	return db.Ping(ctx, c.pool)
}

type gormTx struct {
	db *gorm.DB
}

func (tx *gormTx) FindCandidates(ctx context.Context, hostname, uuidSuffix string) ([]Candidate, error) {
	q := tx.db.WithContext(ctx).Model(&assetModel{}).Select("id", "hostname", "uuid")
	if uuidSuffix == "" {
		q = q.Where("hostname = ?", hostname)
	} else {
		q = q.Where(`hostname = ? OR uuid LIKE ? ESCAPE '\'`, hostname, suffixPattern(uuidSuffix))
	}

	var out []Candidate
	if err := q.Order("id").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (tx *gormTx) LockAsset(ctx context.Context, id int64) (Snapshot, error) {
	var model assetModel
	err := tx.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	return model.toAsset().Snapshot, nil
}

func (tx *gormTx) InsertAsset(ctx context.Context, snap Snapshot) (int64, error) {
	model := newAssetModel(snap)
	if err := tx.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error; err != nil {
		return 0, err
	}
	return model.ID, nil
}

func (tx *gormTx) UpdateAsset(ctx context.Context, id int64, snap Snapshot) error {
	values := snap.scalars()
	values["updated_at"] = time.Now().UTC()

	res := tx.db.WithContext(ctx).Model(&assetModel{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (tx *gormTx) DeleteChildren(ctx context.Context, id int64) error {
	orm := tx.db.WithContext(ctx)
	for _, model := range []any{&loginModel{}, &interfaceModel{}, &filesystemModel{}, &diskModel{}, &gpuModel{}} {
		if err := orm.Where("asset_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	return nil
}

func (tx *gormTx) InsertChildren(ctx context.Context, id int64, snap Snapshot) error {
	orm := tx.db.WithContext(ctx)
	logins, ifaces, filesystems, disk, gpus := childRows(id, snap)

	if len(logins) > 0 {
		if err := orm.Create(&logins).Error; err != nil {
			return fmt.Errorf("logins: %w", err)
		}
	}
	if len(ifaces) > 0 {
		if err := orm.Create(&ifaces).Error; err != nil {
			return fmt.Errorf("interfaces: %w", err)
		}
	}
	if len(filesystems) > 0 {
		if err := orm.Create(&filesystems).Error; err != nil {
			return fmt.Errorf("filesystems: %w", err)
		}
	}
	if disk != nil {
		if err := orm.Create(disk).Error; err != nil {
			return fmt.Errorf("disk: %w", err)
		}
	}
	if len(gpus) > 0 {
		if err := orm.Create(&gpus).Error; err != nil {
			return fmt.Errorf("gpus: %w", err)
		}
	}
	return nil
}

func (tx *gormTx) InsertAudit(ctx context.Context, entry AuditEntry) error {
	model := auditModel{
		AssetID: entry.AssetID,
		Action:  entry.Action,
		Details: toJSONMap(entry.Details),
		At:      entry.At,
	}
	return tx.db.WithContext(ctx).Create(&model).Error
}
