package agent

import (
	"bufio"
	"math"
	"strconv"
	"strings"

	"fleetinv/services/inventory"
)

const bytesPerGB = 1 << 30

// roundGB converts bytes to gigabytes rounded to two decimals.
func roundGB(bytes uint64) float64 {
	return math.Round(float64(bytes)/bytesPerGB*100) / 100
}

// parseCPUModel returns the first "model name" value in /proc/cpuinfo.
func parseCPUModel(raw string) string {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) == "model name" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// parseMemTotalGB reads MemTotal (kB) from /proc/meminfo.
func parseMemTotalGB(raw string) (float64, bool) {
	for _, line := range strings.Split(raw, "\n") {
		key, rest, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "MemTotal" {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return 0, false
		}
		return roundGB(kb * 1024), true
	}
	return 0, false
}

// parseOSRelease builds "NAME VERSION_ID" from an os-release file.
func parseOSRelease(raw string) string {
	values := map[string]string{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[key] = strings.Trim(value, `"'`)
	}

	name := values["NAME"]
	if version := values["VERSION_ID"]; version != "" {
		return strings.TrimSpace(name + " " + version)
	}
	return name
}

// parseLastOutput keeps the most recent entry per user from `last -F`,
// which lists newest sessions first.
func parseLastOutput(raw string) []inventory.LoginEntry {
	var (
		order  []string
		latest = map[string]inventory.LoginEntry{}
	)
	for _, line := range strings.Split(raw, "\n") {
		parts := strings.Fields(line)
		if len(parts) < 7 || parts[0] == "wtmp" || parts[0] == "btmp" {
			continue
		}
		if _, seen := latest[parts[0]]; seen {
			continue
		}
		order = append(order, parts[0])
		latest[parts[0]] = inventory.LoginEntry{
			User:      parts[0],
			TTY:       parts[1],
			SourceIP:  parts[2],
			Timestamp: strings.Join(parts[3:7], " "),
		}
	}

	out := make([]inventory.LoginEntry, 0, len(order))
	for _, user := range order {
		out = append(out, latest[user])
	}
	return out
}

// parseNvidiaSMI reads the CSV produced by nvidiaSMIArgs. Columns that
// the driver reports as unsupported are left at zero.
func parseNvidiaSMI(raw string) []inventory.GPUDevice {
	var gpus []inventory.GPUDevice
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, ",")
		if len(cols) < 7 {
			continue
		}
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		index, err := strconv.Atoi(cols[0])
		if err != nil {
			continue
		}
		gpus = append(gpus, inventory.GPUDevice{
			Index:         index,
			Name:          cols[1],
			DriverVersion: cols[2],
			MemoryTotalMB: parseNumber(cols[3]),
			MemoryFreeMB:  parseNumber(cols[4]),
			MemoryUsedMB:  parseNumber(cols[5]),
			TemperatureC:  parseNumber(cols[6]),
		})
	}
	return gpus
}

// parseLspciVGA is the fallback when nvidia-smi is absent: one entry per
// VGA controller, numbered in listing order and tagged with its PCI slot.
func parseLspciVGA(raw string) []inventory.GPUDevice {
	var gpus []inventory.GPUDevice
	for _, line := range strings.Split(raw, "\n") {
		if !strings.Contains(strings.ToLower(line), "vga") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		gpus = append(gpus, inventory.GPUDevice{
			Index:   len(gpus),
			PCISlot: fields[0],
			Name:    strings.Join(fields[1:], " "),
		})
	}
	return gpus
}

func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

type mountEntry struct {
	Device     string
	Mountpoint string
	FSType     string
}

// parseMounts lists device-backed mounts from /proc/mounts, skipping
// squashfs images and duplicate mountpoints.
func parseMounts(raw string) []mountEntry {
	var (
		out  []mountEntry
		seen = map[string]struct{}{}
	)
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if !strings.HasPrefix(fields[0], "/dev/") || fields[2] == "squashfs" {
			continue
		}
		mountpoint := unescapeMount(fields[1])
		if _, ok := seen[mountpoint]; ok {
			continue
		}
		seen[mountpoint] = struct{}{}
		out = append(out, mountEntry{
			Device:     fields[0],
			Mountpoint: mountpoint,
			FSType:     fields[2],
		})
	}
	return out
}

// unescapeMount decodes the octal escapes the kernel uses for spaces and
// tabs in mount paths.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
