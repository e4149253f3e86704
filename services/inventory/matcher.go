package inventory

import "strings"

// MatchKind names the signal that tied a snapshot to an existing asset.
type MatchKind int

// Match kinds in increasing order of precedence.
const (
	NoMatch MatchKind = iota
	MatchHostname
	MatchUUIDSuffix
	MatchUUID
)

func (k MatchKind) String() string {
	switch k {
	case MatchUUID:
		return "uuid"
	case MatchUUIDSuffix:
		return "uuid_suffix"
	case MatchHostname:
		return "hostname"
	default:
		return "none"
	}
}

// Match picks the existing asset a snapshot belongs to. An exact uuid beats a
// uuid suffix match, which beats a hostname match; within one kind the lowest
// id wins. Candidates need not be sorted.
func Match(snap Snapshot, candidates []Candidate) (int64, MatchKind) {
	suffix := UUIDSuffix(snap.UUID)

	var (
		bestID   int64
		bestKind = NoMatch
	)
	for _, c := range candidates {
		kind := classify(snap, suffix, c)
		if kind == NoMatch {
			continue
		}
		if kind > bestKind || (kind == bestKind && c.ID < bestID) {
			bestID, bestKind = c.ID, kind
		}
	}
	return bestID, bestKind
}

func classify(snap Snapshot, suffix string, c Candidate) MatchKind {
	switch {
	case c.UUID == snap.UUID:
		return MatchUUID
	case suffix != "" && strings.HasSuffix(c.UUID, suffix):
		return MatchUUIDSuffix
	case c.Hostname == snap.Hostname:
		return MatchHostname
	default:
		return NoMatch
	}
}
