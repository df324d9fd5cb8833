package match

import (
	"context"
	"time"
)

// ScorePair bundles both sides of a score update.
type ScorePair struct {
	Home SideScore
	Away SideScore
}

// Update is one freshness-guarded mutation of a match row. Nil fields are
// left untouched. Kickoff timestamps are write-once: the store only fills
// them when the column is still empty.
type Update struct {
	Status            *Status
	Score             *ScorePair
	FirstHalfKickoff  *int64
	SecondHalfKickoff *int64
	OvertimeKickoff   *int64
	Incidents         *[]Incident
	Statistics        *[]StatLine
	Timeline          *[]TimelineEntry

	// ProviderUpdateTime, when set, makes the write conditional on being
	// strictly newer than the stored provider time. When nil, a write that
	// carries status or score is conditional on strictly more than
	// GuardWindow having elapsed since the stored local ingestion time;
	// collection-only writes (incidents, statistics, timeline) replace
	// unconditionally.
	ProviderUpdateTime *int64
	IngestedAt         int64
	GuardWindow        time.Duration
}

// Guarded reports whether a timestamp-less write must pass the guard
// window check. Collection replaces are not guarded.
func (u Update) Guarded() bool {
	return u.Status != nil || u.Score != nil ||
		u.FirstHalfKickoff != nil || u.SecondHalfKickoff != nil || u.OvertimeKickoff != nil
}

// IsEmpty reports whether the update carries no mutations.
func (u Update) IsEmpty() bool {
	return u.Status == nil && u.Score == nil &&
		u.FirstHalfKickoff == nil && u.SecondHalfKickoff == nil && u.OvertimeKickoff == nil &&
		u.Incidents == nil && u.Statistics == nil && u.Timeline == nil
}

// Repository persists live match state. ApplyUpdate must express the
// freshness predicate and the mutation as a single conditional statement so
// concurrent handlers for the same match cannot both pass a staleness check
// against the same stale snapshot.
type Repository interface {
	Get(ctx context.Context, matchID string) (LiveState, bool, error)
	Create(ctx context.Context, state LiveState) error
	ApplyUpdate(ctx context.Context, matchID string, upd Update) (bool, error)
}
