package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleetinv/services/inventory"
)

const collectionLayout = "2006-01-02 15:04:05"

var nvidiaSMIArgs = []string{
	"--query-gpu=index,name,driver_version,memory.total,memory.free,memory.used,temperature.gpu",
	"--format=csv,noheader,nounits",
}

type fsUsage struct {
	Total uint64
	Used  uint64
	Free  uint64
}

// Collector gathers the local machine facts that make up a snapshot.
type Collector struct {
	root    string
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
	statfs  func(path string) (fsUsage, error)
	ifaces  func() ([]InterfaceInfo, error)
	newUUID func() (uuid.UUID, error)
	now     func() time.Time
	logger  zerolog.Logger
}

// InterfaceInfo is the subset of a network interface the snapshot keeps.
type InterfaceInfo struct {
	Name  string
	MAC   string
	Addrs []net.Addr
}

// NewCollector returns a Collector reading the live system.
func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		root:    "/",
		run:     runCommand,
		statfs:  statfs,
		ifaces:  systemInterfaces,
		newUUID: uuid.NewUUID,
		now:     time.Now,
		logger:  logger,
	}
}

// Collect builds a snapshot. Individual facts that cannot be read are logged and
// leave their field empty; only hostname and uuid failures are fatal.
func (c *Collector) Collect(ctx context.Context, patrimony string) (inventory.Snapshot, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return inventory.Snapshot{}, fmt.Errorf("read hostname: %w", err)
	}

	id, err := c.newUUID()
	if err != nil {
		return inventory.Snapshot{}, fmt.Errorf("generate uuid: %w", err)
	}

	snap := inventory.Snapshot{
		Hostname:           hostname,
		UUID:               id.String(),
		Distribution:       c.distribution(),
		KernelVersion:      c.kernelRelease(),
		LoggedInUser:       loggedInUser(),
		CPUModel:           c.cpuModel(),
		MemoryTotalGB:      c.memoryTotalGB(),
		CollectionDatetime: c.now().Format(collectionLayout),
		MotherboardModel:   c.motherboardModel(),
		Logins:             c.loginHistory(ctx),
		Interfaces:         c.interfaces(),
		Filesystems:        c.filesystems(),
		Disk:               c.rootDisk(),
		GPUs:               c.gpus(ctx),
	}
	if p := strings.TrimSpace(patrimony); p != "" {
		snap.Patrimony = &p
	}
	return snap, nil
}

func (c *Collector) readFile(path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(c.root, path))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Collector) distribution() string {
	for _, path := range []string{"etc/os-release", "usr/lib/os-release"} {
		raw, err := c.readFile(path)
		if err == nil {
			return parseOSRelease(raw)
		}
	}
	c.logger.Warn().Msg("os-release not found")
	return ""
}

func (c *Collector) kernelRelease() string {
	raw, err := c.readFile("proc/sys/kernel/osrelease")
	if err != nil {
		c.logger.Warn().Err(err).Msg("read kernel release")
		return ""
	}
	return strings.TrimSpace(raw)
}

func (c *Collector) cpuModel() string {
	raw, err := c.readFile("proc/cpuinfo")
	if err != nil {
		c.logger.Warn().Err(err).Msg("read cpuinfo")
		return "Unknown"
	}
	if model := parseCPUModel(raw); model != "" {
		return model
	}
	return "Unknown"
}

func (c *Collector) memoryTotalGB() float64 {
	raw, err := c.readFile("proc/meminfo")
	if err != nil {
		c.logger.Warn().Err(err).Msg("read meminfo")
		return 0
	}
	gb, _ := parseMemTotalGB(raw)
	return gb
}

func (c *Collector) motherboardModel() *string {
	model := "Unknown"
	raw, err := c.readFile("sys/class/dmi/id/board_name")
	if err == nil {
		model = strings.TrimSpace(raw)
	} else if !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn().Err(err).Msg("read motherboard model")
	}
	return &model
}

func (c *Collector) loginHistory(ctx context.Context) []inventory.LoginEntry {
	out, err := c.run(ctx, "last", "-F")
	if err != nil {
		c.logger.Warn().Err(err).Msg("run last")
		return []inventory.LoginEntry{}
	}
	return parseLastOutput(string(out))
}

func (c *Collector) interfaces() []inventory.InterfaceAddress {
	ifaces, err := c.ifaces()
	if err != nil {
		c.logger.Warn().Err(err).Msg("list interfaces")
		return []inventory.InterfaceAddress{}
	}

	out := make([]inventory.InterfaceAddress, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.MAC == "" {
			continue
		}
		ip := firstIPv4(iface.Addrs)
		if ip == "" {
			continue
		}
		out = append(out, inventory.InterfaceAddress{Name: iface.Name, IP: ip, MAC: iface.MAC})
	}
	return out
}

func firstIPv4(addrs []net.Addr) string {
	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}

func (c *Collector) filesystems() []inventory.MountedFilesystem {
	raw, err := c.readFile("proc/mounts")
	if err != nil {
		c.logger.Warn().Err(err).Msg("read mounts")
		return []inventory.MountedFilesystem{}
	}

	mounts := parseMounts(raw)
	out := make([]inventory.MountedFilesystem, 0, len(mounts))
	for _, m := range mounts {
		usage, err := c.statfs(m.Mountpoint)
		if err != nil {
			c.logger.Debug().Err(err).Str("mountpoint", m.Mountpoint).Msg("statfs")
			continue
		}
		out = append(out, inventory.MountedFilesystem{
			Device:     m.Device,
			Mountpoint: m.Mountpoint,
			FSType:     m.FSType,
			TotalGB:    roundGB(usage.Total),
			UsedGB:     roundGB(usage.Used),
			FreeGB:     roundGB(usage.Free),
		})
	}
	return out
}

func (c *Collector) rootDisk() *inventory.DiskSummary {
	usage, err := c.statfs("/")
	if err != nil {
		c.logger.Warn().Err(err).Msg("statfs /")
		return nil
	}
	return &inventory.DiskSummary{TotalGB: roundGB(usage.Total), FreeGB: roundGB(usage.Free)}
}

func (c *Collector) gpus(ctx context.Context) []inventory.GPUDevice {
	out, err := c.run(ctx, "nvidia-smi", nvidiaSMIArgs...)
	if err == nil {
		if gpus := parseNvidiaSMI(string(out)); len(gpus) > 0 {
			return gpus
		}
	} else if !errors.Is(err, exec.ErrNotFound) {
		c.logger.Warn().Err(err).Msg("run nvidia-smi")
	}

	out, err = c.run(ctx, "lspci")
	if err != nil {
		c.logger.Debug().Err(err).Msg("run lspci")
		return []inventory.GPUDevice{}
	}
	if gpus := parseLspciVGA(string(out)); gpus != nil {
		return gpus
	}
	return []inventory.GPUDevice{}
}

// loggedInUser prefers the invoking session's login name over the
// effective user.
func loggedInUser() string {
	for _, key := range []string{"SUDO_USER", "LOGNAME", "USER"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Output()
}

func systemInterfaces() ([]InterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, InterfaceInfo{
			Name:  iface.Name,
			MAC:   iface.HardwareAddr.String(),
			Addrs: addrs,
		})
	}
	return out, nil
}
