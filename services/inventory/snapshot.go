package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// snapshotWire is the accepted ingestion document. Scalars are pointers so a
// missing key can be told apart from a zero value; uuid1 and
// linux_distribution are the names older agents send.
type snapshotWire struct {
	Hostname           *string           `json:"hostname"`
	UUID               *string           `json:"uuid"`
	UUID1              *string           `json:"uuid1"`
	Distribution       *distributionName `json:"distribution"`
	LinuxDistribution  *distributionName `json:"linux_distribution"`
	KernelVersion      *string           `json:"kernel_version"`
	LoggedInUser       *string           `json:"logged_in_user"`
	CPUModel           *string           `json:"cpu_model"`
	MemoryTotalGB      *float64          `json:"memory_total_gb"`
	CollectionDatetime *string           `json:"collection_datetime"`
	MotherboardModel   *string           `json:"motherboard_model"`
	Patrimony          *string           `json:"patrimony"`

	Logins      []LoginEntry        `json:"user_login_history"`
	Interfaces  []InterfaceAddress  `json:"ip_and_mac_addresses"`
	Filesystems []MountedFilesystem `json:"mounted_filesystems"`
	Disk        *diskWire           `json:"disk_info"`
	GPUs        []gpuWire           `json:"gpu_info"`
}

// diskWire lets an empty disk_info object count as absent.
type diskWire struct {
	TotalGB *float64 `json:"total"`
	FreeGB  *float64 `json:"free"`
}

func (d *diskWire) summary() *DiskSummary {
	if d == nil || (d.TotalGB == nil && d.FreeGB == nil) {
		return nil
	}
	var out DiskSummary
	if d.TotalGB != nil {
		out.TotalGB = *d.TotalGB
	}
	if d.FreeGB != nil {
		out.FreeGB = *d.FreeGB
	}
	return &out
}

// gpuWire overrides gpu_id, which the lspci fallback of older agents sends
// as a PCI slot string such as "01:00.0".
type gpuWire struct {
	GPUDevice
	ID gpuID `json:"gpu_id"`
}

type gpuID struct {
	index    int
	slot     string
	numbered bool
}

func (g *gpuID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		if n != math.Trunc(n) {
			return fmt.Errorf("gpu_id %v is not an integer", n)
		}
		*g = gpuID{index: int(n), numbered: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("gpu_id must be a number or a string")
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		*g = gpuID{index: n, numbered: true}
		return nil
	}
	*g = gpuID{slot: s}
	return nil
}

// device resolves the wire entry at position pos in gpu_info.
func (w gpuWire) device(pos int) GPUDevice {
	d := w.GPUDevice
	if w.ID.numbered {
		d.Index = w.ID.index
		return d
	}
	d.Index = pos
	if d.PCISlot == "" {
		d.PCISlot = w.ID.slot
	}
	return d
}

// distributionName accepts either a string or the [name, version] pair
// produced by early agents.
type distributionName string

func (d *distributionName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*d = distributionName(s)
		return nil
	}
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return errors.New("distribution must be a string or a [name, version] array")
	}
	*d = distributionName(strings.TrimSpace(strings.Join(parts, " ")))
	return nil
}

// DecodeSnapshot parses and validates an ingestion document. Unknown keys are
// ignored so newer agents can report facts the catalog does not store yet.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Snapshot{}, ErrNoData
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Snapshot{}, fmt.Errorf("%w: document must be a JSON object", ErrMalformedSnapshot)
		}
		return Snapshot{}, ErrNoData
	}
	if len(fields) == 0 {
		return Snapshot{}, ErrNoData
	}

	var wire snapshotWire
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return wire.validate()
}

func (w snapshotWire) validate() (Snapshot, error) {
	var missing []string
	required := func(name string, v *string, allowBlank bool) string {
		if v == nil || (!allowBlank && strings.TrimSpace(*v) == "") {
			missing = append(missing, name)
			return ""
		}
		return *v
	}

	uuidValue := w.UUID
	if uuidValue == nil {
		uuidValue = w.UUID1
	}
	dist := w.Distribution
	if dist == nil {
		dist = w.LinuxDistribution
	}
	var distValue *string
	if dist != nil {
		s := string(*dist)
		distValue = &s
	}

	snap := Snapshot{
		Hostname:           required("hostname", w.Hostname, false),
		UUID:               required("uuid", uuidValue, false),
		Distribution:       required("distribution", distValue, true),
		KernelVersion:      required("kernel_version", w.KernelVersion, true),
		LoggedInUser:       required("logged_in_user", w.LoggedInUser, true),
		CPUModel:           required("cpu_model", w.CPUModel, true),
		CollectionDatetime: required("collection_datetime", w.CollectionDatetime, true),
		MotherboardModel:   w.MotherboardModel,
		Patrimony:          w.Patrimony,
		Logins:             w.Logins,
		Interfaces:         w.Interfaces,
		Filesystems:        w.Filesystems,
		Disk:               w.Disk.summary(),
	}
	if w.GPUs != nil {
		snap.GPUs = make([]GPUDevice, 0, len(w.GPUs))
		for i, g := range w.GPUs {
			snap.GPUs = append(snap.GPUs, g.device(i))
		}
	}
	if w.MemoryTotalGB == nil {
		missing = append(missing, "memory_total_gb")
	} else {
		snap.MemoryTotalGB = *w.MemoryTotalGB
	}

	if len(missing) > 0 {
		return Snapshot{}, fmt.Errorf("%w: missing required fields: %s", ErrMalformedSnapshot, strings.Join(missing, ", "))
	}
	if !validUUID(snap.UUID) {
		return Snapshot{}, fmt.Errorf("%w: uuid %q is not an RFC 4122 string", ErrMalformedSnapshot, snap.UUID)
	}

	return snap.clone(), nil
}

func validUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// UUIDSuffix returns the part of id after its final '-'.
func UUIDSuffix(id string) string {
	if i := strings.LastIndexByte(id, '-'); i >= 0 {
		return id[i+1:]
	}
	return id
}
