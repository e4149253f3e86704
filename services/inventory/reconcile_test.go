package inventory

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func sampleSnapshot(hostname, id string) Snapshot {
	board := "B450M"
	return Snapshot{
		Hostname:           hostname,
		UUID:               id,
		Distribution:       "Ubuntu 22.04",
		KernelVersion:      "6.5.0-27-generic",
		LoggedInUser:       "aluno",
		CPUModel:           "AMD Ryzen 5 3600",
		MemoryTotalGB:      15.54,
		CollectionDatetime: "2024-03-01 12:00:00",
		MotherboardModel:   &board,
		Logins: []LoginEntry{
			{User: "aluno", TTY: "tty7", SourceIP: "0.0.0.0", Timestamp: "Fri Mar  1 11:58:01 2024"},
		},
		Interfaces: []InterfaceAddress{
			{Name: "enp3s0", IP: "10.0.0.5", MAC: "02:42:ac:12:00:02"},
			{Name: "wlp4s0", IP: "10.0.1.5", MAC: "02:42:ac:12:00:03"},
		},
		Filesystems: []MountedFilesystem{
			{Device: "/dev/nvme0n1p2", Mountpoint: "/", FSType: "ext4", TotalGB: 233.7, UsedGB: 40.1, FreeGB: 181.6},
		},
		Disk: &DiskSummary{TotalGB: 233.7, FreeGB: 181.6},
		GPUs: []GPUDevice{},
	}
}

func newTestReconciler(t *testing.T, catalog Catalog) *Reconciler {
	t.Helper()
	r, err := NewReconciler(catalog, zerolog.New(io.Discard), nil)
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}
	return r
}

func mustReconcile(t *testing.T, r *Reconciler, snap Snapshot) Result {
	t.Helper()
	res, err := r.Reconcile(context.Background(), snap)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	return res
}

func mustGet(t *testing.T, c Catalog, id int64) Asset {
	t.Helper()
	asset, err := c.GetAsset(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAsset(%d) error = %v", id, err)
	}
	return asset
}

func TestReconcileCreatesAsset(t *testing.T) {
	catalog := NewMemoryCatalog()
	r := newTestReconciler(t, catalog)
	snap := sampleSnapshot("lab-e100", "6f1c2a3e-9b4d-11ee-8c90-0242ac120002")

	res := mustReconcile(t, r, snap)
	if res.Outcome != Created {
		t.Fatalf("Outcome = %v, want created", res.Outcome)
	}

	got := mustGet(t, catalog, res.AssetID)
	if !reflect.DeepEqual(got.Snapshot, snap) {
		t.Fatalf("stored snapshot = %+v\nwant %+v", got.Snapshot, snap)
	}

	audit := catalog.AuditLog()
	if len(audit) != 1 || audit[0].Action != "asset_created" || audit[0].AssetID != res.AssetID {
		t.Fatalf("audit = %+v, want one asset_created entry", audit)
	}
}

func TestReconcileReplacesChildrenOnHostnameMatch(t *testing.T) {
	catalog := NewMemoryCatalog()
	r := newTestReconciler(t, catalog)

	first := mustReconcile(t, r, sampleSnapshot("lab-e100", "6f1c2a3e-9b4d-11ee-8c90-0242ac120002"))

	next := sampleSnapshot("lab-e100", "a0b1c2d3-0000-11ef-9999-0a0a0a0a0a0a")
	next.KernelVersion = "6.8.0-40-generic"
	next.Interfaces = []InterfaceAddress{{Name: "eth0", IP: "10.0.0.9", MAC: "aa:bb:cc:dd:ee:ff"}}
	next.Filesystems = []MountedFilesystem{}
	next.Disk = nil
	next.GPUs = []GPUDevice{{Index: 0, Name: "GTX 1650", DriverVersion: "550.54", MemoryTotalMB: 4096}}

	res := mustReconcile(t, r, next)
	if res.Outcome != Updated || res.AssetID != first.AssetID {
		t.Fatalf("Reconcile() = %+v, want updated asset %d", res, first.AssetID)
	}

	got := mustGet(t, catalog, res.AssetID)
	if !reflect.DeepEqual(got.Snapshot, next) {
		t.Fatalf("stored snapshot = %+v\nwant %+v", got.Snapshot, next)
	}

	audit := catalog.AuditLog()
	if len(audit) != 2 || audit[1].Action != "asset_updated" {
		t.Fatalf("audit = %+v, want created then updated", audit)
	}
	changes, _ := audit[1].Details["changes"].(map[string]any)
	if _, ok := changes["kernel_version"]; !ok {
		t.Fatalf("update diff %v is missing kernel_version", changes)
	}
	if _, ok := changes["cpu_model"]; ok {
		t.Fatalf("update diff %v lists unchanged cpu_model", changes)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	snap := sampleSnapshot("lab-e101", "6f1c2a3e-9b4d-11ee-8c90-0242ac120002")

	once := NewMemoryCatalog()
	mustReconcile(t, newTestReconciler(t, once), snap)

	twice := NewMemoryCatalog()
	r := newTestReconciler(t, twice)
	if res := mustReconcile(t, r, snap); res.Outcome != Created {
		t.Fatalf("first Outcome = %v, want created", res.Outcome)
	}
	if res := mustReconcile(t, r, snap); res.Outcome != Updated {
		t.Fatalf("second Outcome = %v, want updated", res.Outcome)
	}

	ctx := context.Background()
	listOnce, _ := once.ListAssets(ctx, HostnameFilter{})
	listTwice, _ := twice.ListAssets(ctx, HostnameFilter{})
	if !reflect.DeepEqual(listOnce, listTwice) {
		t.Fatalf("list after two submissions = %+v, want %+v", listTwice, listOnce)
	}
	if !reflect.DeepEqual(mustGet(t, once, 1).Snapshot, mustGet(t, twice, 1).Snapshot) {
		t.Fatal("detail after two submissions differs from a single submission")
	}
}

func TestReconcileMatchesUUIDSuffix(t *testing.T) {
	catalog := NewMemoryCatalog()
	r := newTestReconciler(t, catalog)

	first := mustReconcile(t, r, sampleSnapshot("old-name", "6f1c2a3e-9b4d-11ee-8c90-0242ac120002"))
	res := mustReconcile(t, r, sampleSnapshot("new-name", "70aa0000-1111-11ef-8c90-0242ac120002"))

	if res.Outcome != Updated || res.AssetID != first.AssetID {
		t.Fatalf("Reconcile() = %+v, want updated asset %d", res, first.AssetID)
	}
	got := mustGet(t, catalog, res.AssetID)
	if got.Hostname != "new-name" || got.UUID != "70aa0000-1111-11ef-8c90-0242ac120002" {
		t.Fatalf("identity after update = %q/%q, want overwritten", got.Hostname, got.UUID)
	}
}

func TestReconcilePrefersExactUUID(t *testing.T) {
	catalog := NewMemoryCatalog()
	r := newTestReconciler(t, catalog)

	a := mustReconcile(t, r, sampleSnapshot("host-a", "aaaaaaaa-0000-11ee-8c90-aaaaaaaaaaaa"))
	b := mustReconcile(t, r, sampleSnapshot("host-b", "bbbbbbbb-0000-11ee-8c90-bbbbbbbbbbbb"))

	res := mustReconcile(t, r, sampleSnapshot("host-a", "bbbbbbbb-0000-11ee-8c90-bbbbbbbbbbbb"))
	if res.AssetID != b.AssetID {
		t.Fatalf("matched asset %d, want %d (exact uuid) over %d (hostname)", res.AssetID, b.AssetID, a.AssetID)
	}
}

func TestReconcileRollsBackOnChildFailure(t *testing.T) {
	catalog := NewMemoryCatalog()
	r := newTestReconciler(t, catalog)

	created := mustReconcile(t, r, sampleSnapshot("lab-e102", "6f1c2a3e-9b4d-11ee-8c90-0242ac120002"))
	before := mustGet(t, catalog, created.AssetID)
	auditBefore := len(catalog.AuditLog())

	tests := []string{OpUpdateAsset, OpDeleteChildren, OpInsertLogins, OpInsertInterfaces, OpInsertDisk, OpInsertGPUs, OpInsertAudit}
	for _, op := range tests {
		t.Run(op, func(t *testing.T) {
			injected := errors.New("disk full")
			catalog.SetFault(func(got string) error {
				if got == op {
					return injected
				}
				return nil
			})
			defer catalog.SetFault(nil)

			next := sampleSnapshot("lab-e102", "6f1c2a3e-9b4d-11ee-8c90-0242ac120002")
			next.CPUModel = "changed"
			next.Interfaces = []InterfaceAddress{{Name: "eth9", IP: "192.0.2.1", MAC: "00:00:00:00:00:01"}}
			next.GPUs = []GPUDevice{{Name: "new"}}

			_, err := r.Reconcile(context.Background(), next)
			var perr *PersistenceError
			if !errors.As(err, &perr) {
				t.Fatalf("Reconcile() error = %v, want *PersistenceError", err)
			}
			if !errors.Is(err, injected) {
				t.Fatalf("Reconcile() error = %v, want it to wrap the storage fault", err)
			}

			after := mustGet(t, catalog, created.AssetID)
			if !reflect.DeepEqual(after.Snapshot, before.Snapshot) {
				t.Fatalf("asset changed after failed reconcile:\n got %+v\nwant %+v", after.Snapshot, before.Snapshot)
			}
			if n := len(catalog.AuditLog()); n != auditBefore {
				t.Fatalf("audit entries = %d, want %d", n, auditBefore)
			}
		})
	}
}

func TestReconcileCreateFailureLeavesNoAsset(t *testing.T) {
	catalog := NewMemoryCatalog()
	r := newTestReconciler(t, catalog)
	catalog.SetFault(func(op string) error {
		if op == OpInsertFilesystems {
			return errors.New("constraint violation")
		}
		return nil
	})

	if _, err := r.Reconcile(context.Background(), sampleSnapshot("lab-e103", "6f1c2a3e-9b4d-11ee-8c90-0242ac120002")); err == nil {
		t.Fatal("Reconcile() error = nil, want failure")
	}

	list, err := catalog.ListAssets(context.Background(), HostnameFilter{})
	if err != nil {
		t.Fatalf("ListAssets() error = %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("ListAssets() = %+v, want no assets", list)
	}
}

func TestReconcileConcurrentSameIdentity(t *testing.T) {
	catalog := NewMemoryCatalog()
	r := newTestReconciler(t, catalog)

	const workers = 8
	outcomes := make([]Outcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := r.Reconcile(context.Background(), sampleSnapshot("lab-e104", "6f1c2a3e-9b4d-11ee-8c90-0242ac120002"))
			if err != nil {
				t.Errorf("Reconcile() error = %v", err)
				return
			}
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	created := 0
	for _, o := range outcomes {
		if o == Created {
			created++
		}
	}
	if created != 1 {
		t.Fatalf("created outcomes = %d, want 1", created)
	}

	asset := mustGet(t, catalog, 1)
	if len(asset.Interfaces) != 2 || len(asset.Logins) != 1 {
		t.Fatalf("children duplicated: %d interfaces, %d logins", len(asset.Interfaces), len(asset.Logins))
	}
}
