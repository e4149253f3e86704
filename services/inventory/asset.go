package inventory

import "time"

// Snapshot is one validated report of an asset's current facts. Child
// collections use the field names the agents send.
type Snapshot struct {
	Hostname           string  `json:"hostname"`
	UUID               string  `json:"uuid"`
	Distribution       string  `json:"distribution"`
	KernelVersion      string  `json:"kernel_version"`
	LoggedInUser       string  `json:"logged_in_user"`
	CPUModel           string  `json:"cpu_model"`
	MemoryTotalGB      float64 `json:"memory_total_gb"`
	CollectionDatetime string  `json:"collection_datetime"`
	MotherboardModel   *string `json:"motherboard_model"`
	Patrimony          *string `json:"patrimony"`

	Logins      []LoginEntry        `json:"user_login_history"`
	Interfaces  []InterfaceAddress  `json:"ip_and_mac_addresses"`
	Filesystems []MountedFilesystem `json:"mounted_filesystems"`
	Disk        *DiskSummary        `json:"disk_info"`
	GPUs        []GPUDevice         `json:"gpu_info"`
}

// LoginEntry is one row of the login history reported by `last`.
type LoginEntry struct {
	User      string `json:"user"`
	TTY       string `json:"tty"`
	SourceIP  string `json:"ip"`
	Timestamp string `json:"datetime"`
}

// InterfaceAddress pairs a network interface with its IPv4 and MAC address.
type InterfaceAddress struct {
	Name string `json:"interface"`
	IP   string `json:"ip"`
	MAC  string `json:"mac"`
}

// MountedFilesystem describes a mounted filesystem; sizes are in GB.
type MountedFilesystem struct {
	Device     string  `json:"device"`
	Mountpoint string  `json:"mountpoint"`
	FSType     string  `json:"fstype"`
	TotalGB    float64 `json:"total"`
	UsedGB     float64 `json:"used"`
	FreeGB     float64 `json:"free"`
}

// DiskSummary is the root disk usage; an asset has at most one.
type DiskSummary struct {
	TotalGB float64 `json:"total"`
	FreeGB  float64 `json:"free"`
}

// GPUDevice is a GPU as seen by the vendor tool; memory is in MB. Devices
// found through lspci carry their PCI slot and are numbered in listing order.
type GPUDevice struct {
	Index         int     `json:"gpu_id"`
	PCISlot       string  `json:"pci_slot,omitempty"`
	Name          string  `json:"name"`
	DriverVersion string  `json:"driver_version"`
	MemoryTotalMB float64 `json:"memory_total"`
	MemoryFreeMB  float64 `json:"memory_free"`
	MemoryUsedMB  float64 `json:"memory_used"`
	TemperatureC  float64 `json:"temperature"`
}

// Asset is a catalogued machine: its identifier plus the facts of the last
// snapshot matched to it.
type Asset struct {
	ID int64 `json:"id"`
	Snapshot
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AssetSummary carries an asset's scalar facts for listings.
type AssetSummary struct {
	ID                 int64   `json:"id" db:"id"`
	Hostname           string  `json:"hostname" db:"hostname"`
	UUID               string  `json:"uuid" db:"uuid"`
	Distribution       string  `json:"distribution" db:"distribution"`
	KernelVersion      string  `json:"kernel_version" db:"kernel_version"`
	LoggedInUser       string  `json:"logged_in_user" db:"logged_in_user"`
	CPUModel           string  `json:"cpu_model" db:"cpu_model"`
	MemoryTotalGB      float64 `json:"memory_total_gb" db:"memory_total_gb"`
	CollectionDatetime string  `json:"collection_datetime" db:"collection_datetime"`
	MotherboardModel   *string `json:"motherboard_model" db:"motherboard_model"`
	Patrimony          *string `json:"patrimony" db:"patrimony"`
}

// Summary drops the child collections.
func (a Asset) Summary() AssetSummary {
	return AssetSummary{
		ID:                 a.ID,
		Hostname:           a.Hostname,
		UUID:               a.UUID,
		Distribution:       a.Distribution,
		KernelVersion:      a.KernelVersion,
		LoggedInUser:       a.LoggedInUser,
		CPUModel:           a.CPUModel,
		MemoryTotalGB:      a.MemoryTotalGB,
		CollectionDatetime: a.CollectionDatetime,
		MotherboardModel:   a.MotherboardModel,
		Patrimony:          a.Patrimony,
	}
}

// scalars returns the overwritable scalar facts keyed by field name.
func (s Snapshot) scalars() map[string]any {
	return map[string]any{
		"hostname":            s.Hostname,
		"uuid":                s.UUID,
		"distribution":        s.Distribution,
		"kernel_version":      s.KernelVersion,
		"logged_in_user":      s.LoggedInUser,
		"cpu_model":           s.CPUModel,
		"memory_total_gb":     s.MemoryTotalGB,
		"collection_datetime": s.CollectionDatetime,
		"motherboard_model":   optional(s.MotherboardModel),
		"patrimony":           optional(s.Patrimony),
	}
}

// clone deep-copies the snapshot so stored state never aliases caller
// slices. Child collections come back non-nil.
func (s Snapshot) clone() Snapshot {
	out := s
	out.MotherboardModel = cloneString(s.MotherboardModel)
	out.Patrimony = cloneString(s.Patrimony)
	out.Logins = append(make([]LoginEntry, 0, len(s.Logins)), s.Logins...)
	out.Interfaces = append(make([]InterfaceAddress, 0, len(s.Interfaces)), s.Interfaces...)
	out.Filesystems = append(make([]MountedFilesystem, 0, len(s.Filesystems)), s.Filesystems...)
	out.GPUs = append(make([]GPUDevice, 0, len(s.GPUs)), s.GPUs...)
	if s.Disk != nil {
		disk := *s.Disk
		out.Disk = &disk
	}
	return out
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
