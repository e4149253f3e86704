package inventory

import "testing"

func TestMatch(t *testing.T) {
	snap := Snapshot{Hostname: "lab-e100", UUID: "11111111-2222-11ee-8c90-0242ac120002"}

	tests := []struct {
		name       string
		candidates []Candidate
		wantID     int64
		wantKind   MatchKind
	}{
		{
			name:     "no candidates",
			wantKind: NoMatch,
		},
		{
			name: "unrelated rows",
			candidates: []Candidate{
				{ID: 1, Hostname: "lab-e200", UUID: "11111111-2222-11ee-8c90-aaaaaaaaaaaa"},
			},
			wantKind: NoMatch,
		},
		{
			name: "hostname only",
			candidates: []Candidate{
				{ID: 4, Hostname: "lab-e100", UUID: "99999999-2222-11ee-8c90-aaaaaaaaaaaa"},
			},
			wantID:   4,
			wantKind: MatchHostname,
		},
		{
			name: "uuid suffix beats hostname",
			candidates: []Candidate{
				{ID: 2, Hostname: "lab-e100", UUID: "99999999-2222-11ee-8c90-aaaaaaaaaaaa"},
				{ID: 9, Hostname: "renamed", UUID: "33333333-4444-11ee-8c90-0242ac120002"},
			},
			wantID:   9,
			wantKind: MatchUUIDSuffix,
		},
		{
			name: "exact uuid beats suffix",
			candidates: []Candidate{
				{ID: 3, Hostname: "other", UUID: "33333333-4444-11ee-8c90-0242ac120002"},
				{ID: 8, Hostname: "other", UUID: "11111111-2222-11ee-8c90-0242ac120002"},
			},
			wantID:   8,
			wantKind: MatchUUID,
		},
		{
			name: "lowest id wins within a kind",
			candidates: []Candidate{
				{ID: 12, Hostname: "lab-e100", UUID: "aaaaaaaa-2222-11ee-8c90-aaaaaaaaaaaa"},
				{ID: 5, Hostname: "lab-e100", UUID: "bbbbbbbb-2222-11ee-8c90-bbbbbbbbbbbb"},
				{ID: 7, Hostname: "lab-e100", UUID: "cccccccc-2222-11ee-8c90-cccccccccccc"},
			},
			wantID:   5,
			wantKind: MatchHostname,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, kind := Match(snap, tt.candidates)
			if kind != tt.wantKind {
				t.Fatalf("Match() kind = %v, want %v", kind, tt.wantKind)
			}
			if kind != NoMatch && id != tt.wantID {
				t.Fatalf("Match() id = %d, want %d", id, tt.wantID)
			}
		})
	}
}
