package agent

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleetinv/services/inventory"
)

var testUUID = uuid.MustParse("5f0c8e2a-8a4b-11ef-9c2d-0242ac120002")

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "etc/os-release", "NAME=\"Ubuntu\"\nVERSION_ID=\"22.04\"\n")
	writeFile(t, root, "proc/sys/kernel/osrelease", "5.15.0-105-generic\n")
	writeFile(t, root, "proc/cpuinfo", "processor\t: 0\nmodel name\t: AMD Ryzen 5 5600G\n")
	writeFile(t, root, "proc/meminfo", "MemTotal:       16777216 kB\n")
	writeFile(t, root, "proc/mounts", "/dev/nvme0n1p2 / ext4 rw 0 0\n/dev/loop3 /snap/x/1 squashfs ro 0 0\n")

	return &Collector{
		root: root,
		run: func(_ context.Context, name string, _ ...string) ([]byte, error) {
			switch name {
			case "last":
				return []byte("ana      tty7         :0               Tue Oct 15 08:00:01 2024   still logged in\n"), nil
			case "nvidia-smi":
				return []byte("0, NVIDIA RTX A2000, 550.54.14, 6138, 6000, 138, 35\n"), nil
			}
			return nil, errors.New("unexpected command " + name)
		},
		statfs: func(string) (fsUsage, error) {
			return fsUsage{Total: 100 << 30, Used: 40 << 30, Free: 60 << 30}, nil
		},
		ifaces: func() ([]InterfaceInfo, error) {
			return []InterfaceInfo{
				{Name: "lo", Addrs: []net.Addr{&net.IPNet{IP: net.IPv4(127, 0, 0, 1)}}},
				{Name: "enp3s0", MAC: "00:1a:2b:3c:4d:5e", Addrs: []net.Addr{
					&net.IPNet{IP: net.ParseIP("fe80::1")},
					&net.IPNet{IP: net.IPv4(10, 1, 2, 3)},
				}},
			}, nil
		},
		newUUID: func() (uuid.UUID, error) { return testUUID, nil },
		now:     func() time.Time { return time.Date(2024, 10, 15, 9, 30, 0, 0, time.UTC) },
		logger:  zerolog.Nop(),
	}
}

func TestCollectBuildsValidSnapshot(t *testing.T) {
	c := newTestCollector(t)

	snap, err := c.Collect(context.Background(), " PAT-0042 ")
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if snap.UUID != testUUID.String() {
		t.Fatalf("uuid = %q", snap.UUID)
	}
	if snap.Distribution != "Ubuntu 22.04" || snap.KernelVersion != "5.15.0-105-generic" {
		t.Fatalf("distribution/kernel = %q/%q", snap.Distribution, snap.KernelVersion)
	}
	if snap.CPUModel != "AMD Ryzen 5 5600G" || snap.MemoryTotalGB != 16 {
		t.Fatalf("cpu/memory = %q/%v", snap.CPUModel, snap.MemoryTotalGB)
	}
	if snap.CollectionDatetime != "2024-10-15 09:30:00" {
		t.Fatalf("collection_datetime = %q", snap.CollectionDatetime)
	}
	if snap.Patrimony == nil || *snap.Patrimony != "PAT-0042" {
		t.Fatalf("patrimony = %v", snap.Patrimony)
	}
	if snap.MotherboardModel == nil || *snap.MotherboardModel != "Unknown" {
		t.Fatalf("motherboard = %v", snap.MotherboardModel)
	}
	if len(snap.Logins) != 1 || snap.Logins[0].User != "ana" {
		t.Fatalf("logins = %+v", snap.Logins)
	}
	if len(snap.Interfaces) != 1 || snap.Interfaces[0].IP != "10.1.2.3" {
		t.Fatalf("interfaces = %+v", snap.Interfaces)
	}
	if len(snap.Filesystems) != 1 || snap.Filesystems[0].UsedGB != 40 {
		t.Fatalf("filesystems = %+v", snap.Filesystems)
	}
	if snap.Disk == nil || snap.Disk.TotalGB != 100 || snap.Disk.FreeGB != 60 {
		t.Fatalf("disk = %+v", snap.Disk)
	}
	if len(snap.GPUs) != 1 || snap.GPUs[0].Name != "NVIDIA RTX A2000" {
		t.Fatalf("gpus = %+v", snap.GPUs)
	}

	body, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := inventory.DecodeSnapshot(body); err != nil {
		t.Fatalf("collected snapshot rejected by decoder: %v", err)
	}
}

func TestReportOncePostsToUpload(t *testing.T) {
	var gotPath, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"message":"Data saved successfully"}`)
	}))
	defer srv.Close()

	spool := t.TempDir()
	cfg := Config{API: srv.URL + "/", SpoolDir: spool}
	svc, err := NewService(cfg, newTestCollector(t), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if gotPath != "/api/upload" {
		t.Fatalf("path = %q, want /api/upload", gotPath)
	}
	if gotType != "application/json" {
		t.Fatalf("content type = %q", gotType)
	}
	snap, err := inventory.DecodeSnapshot(gotBody)
	if err != nil {
		t.Fatalf("server received undecodable body: %v", err)
	}
	if snap.UUID != testUUID.String() {
		t.Fatalf("uuid = %q", snap.UUID)
	}

	if _, err := os.Stat(filepath.Join(spool, "system_info_"+testUUID.String()+".json")); err != nil {
		t.Fatalf("spool file missing: %v", err)
	}
}

func TestReportOnceRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"missing field: uuid"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	svc, err := NewService(Config{API: srv.URL}, newTestCollector(t), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	err = svc.ReportOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("ReportOnce() error = %v, want status 400", err)
	}
}

type recordingPublisher struct {
	subject string
	payload []byte
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, subj string, v any) error {
	if p.err != nil {
		return p.err
	}
	p.subject = subj
	data, err := json.Marshal(v)
	p.payload = data
	return err
}

func TestReportOncePublishesToBus(t *testing.T) {
	pub := &recordingPublisher{}
	cfg := Config{NATSURL: "nats://bus:4222"}
	if err := cfg.normalize(false); err != nil {
		t.Fatalf("normalize() error = %v", err)
	}

	svc, err := NewService(cfg, newTestCollector(t), pub, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := svc.ReportOnce(context.Background()); err != nil {
		t.Fatalf("ReportOnce() error = %v", err)
	}

	if pub.subject != inventory.DefaultSnapshotSubject {
		t.Fatalf("subject = %q, want %q", pub.subject, inventory.DefaultSnapshotSubject)
	}
	if _, err := inventory.DecodeSnapshot(pub.payload); err != nil {
		t.Fatalf("published payload rejected: %v", err)
	}

	pub.err = errors.New("no responders")
	if err := svc.ReportOnce(context.Background()); err == nil {
		t.Fatal("ReportOnce() error = nil, want publish failure")
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name          string
		cfg           Config
		allowInsecure bool
		wantErr       bool
		wantEvery     time.Duration
	}{
		{name: "https one-shot", cfg: Config{API: "https://inventory.example"}},
		{name: "interval", cfg: Config{API: "https://inventory.example", Interval: "1h"}, wantEvery: time.Hour},
		{name: "plain http rejected", cfg: Config{API: "http://apps.dacom:5000"}, wantErr: true},
		{name: "plain http allowed", cfg: Config{API: "http://apps.dacom:5000"}, allowInsecure: true},
		{name: "missing scheme", cfg: Config{API: "apps.dacom:5000/"}, wantErr: true},
		{name: "no destination", cfg: Config{}, wantErr: true},
		{name: "bad interval", cfg: Config{API: "https://x", Interval: "hourly"}, wantErr: true},
		{name: "negative interval", cfg: Config{API: "https://x", Interval: "-5m"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.normalize(tt.allowInsecure)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.Every() != tt.wantEvery {
				t.Fatalf("Every() = %v, want %v", cfg.Every(), tt.wantEvery)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.conf")
	writeFile(t, dir, "agent.conf", `{"api":"https://inventory.example","patrimony":"PAT-7","interval":"30m"}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Patrimony != "PAT-7" || cfg.Every() != 30*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.conf")); err == nil {
		t.Fatal("LoadConfig(missing) error = nil")
	}
}
