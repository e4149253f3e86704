package inventory

import (
	"context"
	"errors"
	"strings"
)

// DefaultSiteCodes are the room codes hostnames end with on the main campus.
var DefaultSiteCodes = []string{"e003", "e006", "e007", "e100", "e101", "e102", "e103", "e104", "e105"}

// DefaultComplementSite selects hosts that end with none of the site codes.
const DefaultComplementSite = "dacom"

// SiteFilter turns a room/site value from a request into a HostnameFilter.
type SiteFilter struct {
	Codes      []string
	Complement string
}

// Resolve maps room to a filter. An empty room selects every asset; a code
// from Codes selects hosts ending with it; Complement selects hosts ending
// with none of the codes. ok is false for any other value.
func (s SiteFilter) Resolve(room string) (HostnameFilter, bool) {
	room = strings.TrimSpace(room)
	if room == "" {
		return HostnameFilter{}, true
	}
	if s.Complement != "" && strings.EqualFold(room, s.Complement) {
		return HostnameFilter{Suffixes: append([]string{}, s.Codes...), Exclude: true}, true
	}
	for _, code := range s.Codes {
		if strings.EqualFold(room, code) {
			return HostnameFilter{Suffixes: []string{code}}, true
		}
	}
	return HostnameFilter{}, false
}

// Rooms lists every accepted filter value, complement last.
func (s SiteFilter) Rooms() []string {
	out := append([]string{}, s.Codes...)
	if s.Complement != "" {
		out = append(out, s.Complement)
	}
	return out
}

// QueryService answers catalog reads.
type QueryService struct {
	catalog Catalog
	sites   SiteFilter
}

// NewQueryService wires a QueryService.
func NewQueryService(catalog Catalog, sites SiteFilter) (*QueryService, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	return &QueryService{catalog: catalog, sites: sites}, nil
}

// Sites returns the configured site filter.
func (q *QueryService) Sites() SiteFilter { return q.sites }

// ListAssets returns asset summaries ordered by id, narrowed by room when it
// is non-empty. An unrecognized room yields an empty list.
func (q *QueryService) ListAssets(ctx context.Context, room string) ([]AssetSummary, error) {
	filter, ok := q.sites.Resolve(room)
	if !ok {
		return []AssetSummary{}, nil
	}
	return q.catalog.ListAssets(ctx, filter)
}

// GetAssetDetail returns the asset and all its child facts or ErrNotFound.
func (q *QueryService) GetAssetDetail(ctx context.Context, id int64) (Asset, error) {
	return q.catalog.GetAsset(ctx, id)
}
