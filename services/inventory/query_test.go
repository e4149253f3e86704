package inventory

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"
)

func seedHosts(t *testing.T, hosts ...string) *MemoryCatalog {
	t.Helper()
	catalog := NewMemoryCatalog()
	r := newTestReconciler(t, catalog)
	ids := []string{
		"00000001-0000-11ee-8c90-000000000001",
		"00000002-0000-11ee-8c90-000000000002",
		"00000003-0000-11ee-8c90-000000000003",
		"00000004-0000-11ee-8c90-000000000004",
	}
	for i, host := range hosts {
		mustReconcile(t, r, sampleSnapshot(host, ids[i]))
	}
	return catalog
}

func hostnames(list []AssetSummary) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Hostname)
	}
	return out
}

func TestQueryServiceListAssets(t *testing.T) {
	catalog := seedHosts(t, "lab-e100", "lab-e200", "office-e100")
	q, err := NewQueryService(catalog, SiteFilter{Codes: DefaultSiteCodes, Complement: DefaultComplementSite})
	if err != nil {
		t.Fatalf("NewQueryService() error = %v", err)
	}

	tests := []struct {
		room string
		want []string
	}{
		{room: "", want: []string{"lab-e100", "lab-e200", "office-e100"}},
		{room: "e100", want: []string{"lab-e100", "office-e100"}},
		{room: "E100", want: []string{"lab-e100", "office-e100"}},
		{room: "e101", want: []string{}},
		{room: "dacom", want: []string{"lab-e200"}},
		{room: "e999", want: []string{}},
	}

	for _, tt := range tests {
		t.Run("room="+tt.room, func(t *testing.T) {
			got, err := q.ListAssets(context.Background(), tt.room)
			if err != nil {
				t.Fatalf("ListAssets() error = %v", err)
			}
			if !reflect.DeepEqual(hostnames(got), tt.want) {
				t.Fatalf("ListAssets(%q) = %v, want %v", tt.room, hostnames(got), tt.want)
			}
		})
	}
}

func TestQueryServiceGetAssetDetail(t *testing.T) {
	catalog := seedHosts(t, "lab-e100")
	q, err := NewQueryService(catalog, SiteFilter{})
	if err != nil {
		t.Fatalf("NewQueryService() error = %v", err)
	}

	asset, err := q.GetAssetDetail(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetAssetDetail() error = %v", err)
	}
	if asset.Hostname != "lab-e100" || len(asset.Interfaces) != 2 || asset.Disk == nil {
		t.Fatalf("GetAssetDetail() = %+v, want full graph", asset)
	}

	if _, err := q.GetAssetDetail(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetAssetDetail(42) error = %v, want ErrNotFound", err)
	}
}

func TestHostnameFilterMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter HostnameFilter
		host   string
		want   bool
	}{
		{name: "no filter", filter: HostnameFilter{}, host: "anything", want: true},
		{name: "suffix hit", filter: HostnameFilter{Suffixes: []string{"e100"}}, host: "lab-e100", want: true},
		{name: "suffix miss", filter: HostnameFilter{Suffixes: []string{"e100"}}, host: "lab-e1000", want: false},
		{name: "exclude hit", filter: HostnameFilter{Suffixes: []string{"e100"}, Exclude: true}, host: "lab-e100", want: false},
		{name: "exclude miss", filter: HostnameFilter{Suffixes: []string{"e100"}, Exclude: true}, host: "lab-e200", want: true},
		{name: "empty include", filter: HostnameFilter{Suffixes: []string{}}, host: "lab-e100", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.host); got != tt.want {
				t.Fatalf("Matches(%q) = %v, want %v", tt.host, got, tt.want)
			}
		})
	}
}

func TestListQuery(t *testing.T) {
	tests := []struct {
		name      string
		filter    HostnameFilter
		wantOK    bool
		wantArgs  []any
		wantWhere string
	}{
		{name: "all", filter: HostnameFilter{}, wantOK: true},
		{name: "empty include", filter: HostnameFilter{Suffixes: []string{}}, wantOK: false},
		{
			name:      "include escapes wildcards",
			filter:    HostnameFilter{Suffixes: []string{"e_1", "50%"}},
			wantOK:    true,
			wantArgs:  []any{`%e\_1`, `%50\%`},
			wantWhere: `WHERE (hostname LIKE $1 ESCAPE '\' OR hostname LIKE $2 ESCAPE '\')`,
		},
		{
			name:      "exclude",
			filter:    HostnameFilter{Suffixes: []string{"e100"}, Exclude: true},
			wantOK:    true,
			wantArgs:  []any{"%e100"},
			wantWhere: `WHERE NOT (hostname LIKE $1 ESCAPE '\')`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, ok := listQuery(tt.filter)
			if ok != tt.wantOK {
				t.Fatalf("listQuery() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Fatalf("listQuery() args = %#v, want %#v", args, tt.wantArgs)
			}
			if tt.wantWhere != "" && !slices.Contains(strings.Split(query, "\n"), tt.wantWhere) {
				t.Fatalf("listQuery() = %q, want line %q", query, tt.wantWhere)
			}
		})
	}
}
