package inventory

import (
	"time"

	"gorm.io/datatypes"
)

type assetModel struct {
	ID                 int64   `gorm:"primaryKey"`
	Hostname           string  `gorm:"column:hostname"`
	UUID               string  `gorm:"column:uuid"`
	Distribution       string  `gorm:"column:distribution"`
	KernelVersion      string  `gorm:"column:kernel_version"`
	LoggedInUser       string  `gorm:"column:logged_in_user"`
	CPUModel           string  `gorm:"column:cpu_model"`
	MemoryTotalGB      float64 `gorm:"column:memory_total_gb"`
	CollectionDatetime string  `gorm:"column:collection_datetime"`
	MotherboardModel   *string `gorm:"column:motherboard_model"`
	Patrimony          *string `gorm:"column:patrimony"`
	CreatedAt          time.Time
	UpdatedAt          time.Time

	Logins      []loginModel      `gorm:"foreignKey:AssetID"`
	Interfaces  []interfaceModel  `gorm:"foreignKey:AssetID"`
	Filesystems []filesystemModel `gorm:"foreignKey:AssetID"`
	Disk        *diskModel        `gorm:"foreignKey:AssetID"`
	GPUs        []gpuModel        `gorm:"foreignKey:AssetID"`
}

func (assetModel) TableName() string { return "assets" }

type loginModel struct {
	ID       int64  `gorm:"primaryKey"`
	AssetID  int64  `gorm:"column:asset_id"`
	User     string `gorm:"column:user_name"`
	TTY      string `gorm:"column:tty"`
	SourceIP string `gorm:"column:source_ip"`
	LoggedAt string `gorm:"column:logged_at"`
}

func (loginModel) TableName() string { return "asset_logins" }

type interfaceModel struct {
	ID        int64  `gorm:"primaryKey"`
	AssetID   int64  `gorm:"column:asset_id"`
	Interface string `gorm:"column:interface_name"`
	IP        string `gorm:"column:ip"`
	MAC       string `gorm:"column:mac"`
}

func (interfaceModel) TableName() string { return "asset_interfaces" }

type filesystemModel struct {
	ID         int64   `gorm:"primaryKey"`
	AssetID    int64   `gorm:"column:asset_id"`
	Device     string  `gorm:"column:device"`
	Mountpoint string  `gorm:"column:mountpoint"`
	FSType     string  `gorm:"column:fstype"`
	TotalGB    float64 `gorm:"column:total_gb"`
	UsedGB     float64 `gorm:"column:used_gb"`
	FreeGB     float64 `gorm:"column:free_gb"`
}

func (filesystemModel) TableName() string { return "asset_filesystems" }

type diskModel struct {
	ID      int64   `gorm:"primaryKey"`
	AssetID int64   `gorm:"column:asset_id"`
	TotalGB float64 `gorm:"column:total_gb"`
	FreeGB  float64 `gorm:"column:free_gb"`
}

func (diskModel) TableName() string { return "asset_disks" }

type gpuModel struct {
	ID            int64   `gorm:"primaryKey"`
	AssetID       int64   `gorm:"column:asset_id"`
	GPUIndex      int     `gorm:"column:gpu_index"`
	PCISlot       string  `gorm:"column:pci_slot"`
	Name          string  `gorm:"column:name"`
	DriverVersion string  `gorm:"column:driver_version"`
	MemoryTotalMB float64 `gorm:"column:memory_total_mb"`
	MemoryFreeMB  float64 `gorm:"column:memory_free_mb"`
	MemoryUsedMB  float64 `gorm:"column:memory_used_mb"`
	TemperatureC  float64 `gorm:"column:temperature_c"`
}

func (gpuModel) TableName() string { return "asset_gpus" }

type auditModel struct {
	ID      int64             `gorm:"primaryKey"`
	AssetID int64             `gorm:"column:asset_id"`
	Action  string            `gorm:"column:action"`
	Details datatypes.JSONMap `gorm:"column:details;type:jsonb"`
	At      time.Time         `gorm:"column:at"`
}

func (auditModel) TableName() string { return "asset_audit" }

func newAssetModel(snap Snapshot) assetModel {
	return assetModel{
		Hostname:           snap.Hostname,
		UUID:               snap.UUID,
		Distribution:       snap.Distribution,
		KernelVersion:      snap.KernelVersion,
		LoggedInUser:       snap.LoggedInUser,
		CPUModel:           snap.CPUModel,
		MemoryTotalGB:      snap.MemoryTotalGB,
		CollectionDatetime: snap.CollectionDatetime,
		MotherboardModel:   cloneString(snap.MotherboardModel),
		Patrimony:          cloneString(snap.Patrimony),
	}
}

func (m assetModel) toAsset() Asset {
	asset := Asset{
		ID: m.ID,
		Snapshot: Snapshot{
			Hostname:           m.Hostname,
			UUID:               m.UUID,
			Distribution:       m.Distribution,
			KernelVersion:      m.KernelVersion,
			LoggedInUser:       m.LoggedInUser,
			CPUModel:           m.CPUModel,
			MemoryTotalGB:      m.MemoryTotalGB,
			CollectionDatetime: m.CollectionDatetime,
			MotherboardModel:   m.MotherboardModel,
			Patrimony:          m.Patrimony,
			Logins:             make([]LoginEntry, 0, len(m.Logins)),
			Interfaces:         make([]InterfaceAddress, 0, len(m.Interfaces)),
			Filesystems:        make([]MountedFilesystem, 0, len(m.Filesystems)),
			GPUs:               make([]GPUDevice, 0, len(m.GPUs)),
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	for _, l := range m.Logins {
		asset.Logins = append(asset.Logins, LoginEntry{User: l.User, TTY: l.TTY, SourceIP: l.SourceIP, Timestamp: l.LoggedAt})
	}
	for _, i := range m.Interfaces {
		asset.Interfaces = append(asset.Interfaces, InterfaceAddress{Name: i.Interface, IP: i.IP, MAC: i.MAC})
	}
	for _, f := range m.Filesystems {
		asset.Filesystems = append(asset.Filesystems, MountedFilesystem{
			Device: f.Device, Mountpoint: f.Mountpoint, FSType: f.FSType,
			TotalGB: f.TotalGB, UsedGB: f.UsedGB, FreeGB: f.FreeGB,
		})
	}
	if m.Disk != nil {
		asset.Disk = &DiskSummary{TotalGB: m.Disk.TotalGB, FreeGB: m.Disk.FreeGB}
	}
	for _, g := range m.GPUs {
		asset.GPUs = append(asset.GPUs, GPUDevice{
			Index: g.GPUIndex, PCISlot: g.PCISlot, Name: g.Name, DriverVersion: g.DriverVersion,
			MemoryTotalMB: g.MemoryTotalMB, MemoryFreeMB: g.MemoryFreeMB,
			MemoryUsedMB: g.MemoryUsedMB, TemperatureC: g.TemperatureC,
		})
	}
	return asset
}

// childRows converts the snapshot's collections to rows owned by assetID.
func childRows(assetID int64, snap Snapshot) ([]loginModel, []interfaceModel, []filesystemModel, *diskModel, []gpuModel) {
	logins := make([]loginModel, 0, len(snap.Logins))
	for _, l := range snap.Logins {
		logins = append(logins, loginModel{AssetID: assetID, User: l.User, TTY: l.TTY, SourceIP: l.SourceIP, LoggedAt: l.Timestamp})
	}
	ifaces := make([]interfaceModel, 0, len(snap.Interfaces))
	for _, i := range snap.Interfaces {
		ifaces = append(ifaces, interfaceModel{AssetID: assetID, Interface: i.Name, IP: i.IP, MAC: i.MAC})
	}
	filesystems := make([]filesystemModel, 0, len(snap.Filesystems))
	for _, f := range snap.Filesystems {
		filesystems = append(filesystems, filesystemModel{
			AssetID: assetID, Device: f.Device, Mountpoint: f.Mountpoint, FSType: f.FSType,
			TotalGB: f.TotalGB, UsedGB: f.UsedGB, FreeGB: f.FreeGB,
		})
	}
	var disk *diskModel
	if snap.Disk != nil {
		disk = &diskModel{AssetID: assetID, TotalGB: snap.Disk.TotalGB, FreeGB: snap.Disk.FreeGB}
	}
	gpus := make([]gpuModel, 0, len(snap.GPUs))
	for _, g := range snap.GPUs {
		gpus = append(gpus, gpuModel{
			AssetID: assetID, GPUIndex: g.Index, PCISlot: g.PCISlot, Name: g.Name, DriverVersion: g.DriverVersion,
			MemoryTotalMB: g.MemoryTotalMB, MemoryFreeMB: g.MemoryFreeMB,
			MemoryUsedMB: g.MemoryUsedMB, TemperatureC: g.TemperatureC,
		})
	}
	return logins, ifaces, filesystems, disk, gpus
}

func toJSONMap(src map[string]any) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range src {
		out[k] = v
	}
	return out
}
