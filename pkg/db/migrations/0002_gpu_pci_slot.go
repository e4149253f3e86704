package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upGPUSlot, downGPUSlot)
}

// AssetGPUSlot adds the PCI slot reported by the lspci GPU fallback.
type AssetGPUSlot struct {
	PCISlot string `gorm:"column:pci_slot;type:varchar(32);not null;default:''"`
}

func (AssetGPUSlot) TableName() string { return "asset_gpus" }

func upGPUSlot(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	m := gormDB.WithContext(ctx).Migrator()
	if m.HasColumn(&AssetGPUSlot{}, "PCISlot") {
		return nil
	}
	return m.AddColumn(&AssetGPUSlot{}, "PCISlot")
}

func downGPUSlot(ctx context.Context, tx *sql.Tx) error {
	gormDB, err := openTx(tx)
	if err != nil {
		return err
	}

	return gormDB.WithContext(ctx).Migrator().DropColumn(&AssetGPUSlot{}, "PCISlot")
}
