package migrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func init() {
	goose.AddMigrationContext(upInit, downInit)
}

type Asset struct {
	ID                 int64     `gorm:"type:bigserial;primaryKey"`
	Hostname           string    `gorm:"type:varchar(120);not null;index"`
	UUID               string    `gorm:"column:uuid;type:varchar(36);not null;uniqueIndex"`
	Distribution       string    `gorm:"type:varchar(120);not null"`
	KernelVersion      string    `gorm:"type:varchar(120);not null"`
	LoggedInUser       string    `gorm:"type:varchar(120);not null"`
	CPUModel           string    `gorm:"column:cpu_model;type:varchar(255);not null"`
	MemoryTotalGB      float64   `gorm:"column:memory_total_gb;not null"`
	CollectionDatetime string    `gorm:"type:varchar(120);not null"`
	MotherboardModel   *string   `gorm:"type:varchar(255)"`
	Patrimony          *string   `gorm:"type:varchar(50)"`
	CreatedAt          time.Time `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	UpdatedAt          time.Time `gorm:"type:timestamptz;not null;default:now();autoUpdateTime"`
}

type AssetLogin struct {
	ID       int64  `gorm:"type:bigserial;primaryKey"`
	AssetID  int64  `gorm:"not null;index"`
	User     string `gorm:"column:user_name;type:varchar(120);not null"`
	TTY      string `gorm:"column:tty;type:varchar(120);not null"`
	SourceIP string `gorm:"column:source_ip;type:varchar(120);not null"`
	LoggedAt string `gorm:"column:logged_at;type:varchar(120);not null"`
	Asset    Asset  `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (AssetLogin) TableName() string { return "asset_logins" }

type AssetInterface struct {
	ID        int64  `gorm:"type:bigserial;primaryKey"`
	AssetID   int64  `gorm:"not null;index"`
	Interface string `gorm:"column:interface_name;type:varchar(120);not null"`
	IP        string `gorm:"column:ip;type:varchar(120);not null"`
	MAC       string `gorm:"column:mac;type:varchar(120);not null"`
	Asset     Asset  `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type AssetFilesystem struct {
	ID         int64   `gorm:"type:bigserial;primaryKey"`
	AssetID    int64   `gorm:"not null;index"`
	Device     string  `gorm:"type:varchar(255);not null"`
	Mountpoint string  `gorm:"type:varchar(255);not null"`
	FSType     string  `gorm:"column:fstype;type:varchar(120);not null"`
	TotalGB    float64 `gorm:"column:total_gb;not null"`
	UsedGB     float64 `gorm:"column:used_gb;not null"`
	FreeGB     float64 `gorm:"column:free_gb;not null"`
	Asset      Asset   `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type AssetDisk struct {
	ID      int64   `gorm:"type:bigserial;primaryKey"`
	AssetID int64   `gorm:"not null;uniqueIndex"`
	TotalGB float64 `gorm:"column:total_gb;not null"`
	FreeGB  float64 `gorm:"column:free_gb;not null"`
	Asset   Asset   `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

type AssetGPU struct {
	ID            int64   `gorm:"type:bigserial;primaryKey"`
	AssetID       int64   `gorm:"not null;index"`
	GPUIndex      int     `gorm:"column:gpu_index;not null"`
	Name          string  `gorm:"type:varchar(255);not null"`
	DriverVersion string  `gorm:"type:varchar(120);not null"`
	MemoryTotalMB float64 `gorm:"column:memory_total_mb;not null"`
	MemoryFreeMB  float64 `gorm:"column:memory_free_mb;not null"`
	MemoryUsedMB  float64 `gorm:"column:memory_used_mb;not null"`
	TemperatureC  float64 `gorm:"column:temperature_c;not null"`
	Asset         Asset   `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (AssetGPU) TableName() string { return "asset_gpus" }

type AssetAudit struct {
	ID      int64             `gorm:"type:bigserial;primaryKey"`
	AssetID int64             `gorm:"not null;index"`
	Action  string            `gorm:"type:text;not null"`
	Details datatypes.JSONMap `gorm:"type:jsonb"`
	At      time.Time         `gorm:"type:timestamptz;not null;default:now();autoCreateTime"`
	Asset   Asset             `gorm:"foreignKey:AssetID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (AssetAudit) TableName() string { return "asset_audit" }

func openTx(tx *sql.Tx) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: tx, PreferSimpleProtocol: true}), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{SingularTable: false},
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}

func upInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	if err := gormDB.WithContext(ctx).AutoMigrate(
		&Asset{},
		&AssetLogin{},
		&AssetInterface{},
		&AssetFilesystem{},
		&AssetDisk{},
		&AssetGPU{},
		&AssetAudit{},
	); err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	for _, child := range []any{&AssetLogin{}, &AssetInterface{}, &AssetFilesystem{}, &AssetDisk{}, &AssetGPU{}, &AssetAudit{}} {
		if m.HasConstraint(child, "Asset") {
			continue
		}
		if err := m.CreateConstraint(child, "Asset"); err != nil {
			return err
		}
	}

	return nil
}

func downInit(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropTable(
		&AssetAudit{},
		&AssetGPU{},
		&AssetDisk{},
		&AssetFilesystem{},
		&AssetInterface{},
		&AssetLogin{},
		&Asset{},
	)
}
