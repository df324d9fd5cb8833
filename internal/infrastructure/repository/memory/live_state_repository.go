package memory

import (
	"context"
	"sync"
	"time"

	"github.com/riskibarqy/matchlive/internal/domain/match"
)

// LiveStateRepository is the in-process implementation used by tests and
// the storage-less dev mode. It honors the same freshness predicate as the
// SQL store.
type LiveStateRepository struct {
	mu     sync.RWMutex
	states map[string]match.LiveState
}

func NewLiveStateRepository() *LiveStateRepository {
	return &LiveStateRepository{states: make(map[string]match.LiveState)}
}

func (r *LiveStateRepository) Get(_ context.Context, matchID string) (match.LiveState, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[matchID]
	return state, ok, nil
}

func (r *LiveStateRepository) Create(_ context.Context, state match.LiveState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.states[state.MatchID]; exists {
		return nil
	}
	r.states[state.MatchID] = state
	return nil
}

func (r *LiveStateRepository) ApplyUpdate(_ context.Context, matchID string, upd match.Update) (bool, error) {
	if upd.IsEmpty() {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[matchID]
	if !ok {
		return false, nil
	}

	if upd.ProviderUpdateTime != nil {
		if state.ProviderUpdateTime >= *upd.ProviderUpdateTime {
			return false, nil
		}
		state.ProviderUpdateTime = *upd.ProviderUpdateTime
	} else if upd.Guarded() {
		// Strictly more than the guard window must have elapsed.
		guardSeconds := int64(upd.GuardWindow / time.Second)
		if state.LastIngestionTime >= upd.IngestedAt-guardSeconds {
			return false, nil
		}
	}

	if upd.Status != nil {
		state.Status = *upd.Status
	}
	if upd.Score != nil {
		state.Home = upd.Score.Home
		state.Away = upd.Score.Away
	}
	if upd.FirstHalfKickoff != nil && state.FirstHalfKickoff == 0 {
		state.FirstHalfKickoff = *upd.FirstHalfKickoff
	}
	if upd.SecondHalfKickoff != nil && state.SecondHalfKickoff == 0 {
		state.SecondHalfKickoff = *upd.SecondHalfKickoff
	}
	if upd.OvertimeKickoff != nil && state.OvertimeKickoff == 0 {
		state.OvertimeKickoff = *upd.OvertimeKickoff
	}
	if upd.Incidents != nil {
		state.Incidents = append([]match.Incident(nil), (*upd.Incidents)...)
	}
	if upd.Statistics != nil {
		state.Statistics = append([]match.StatLine(nil), (*upd.Statistics)...)
	}
	if upd.Timeline != nil {
		state.Timeline = append([]match.TimelineEntry(nil), (*upd.Timeline)...)
	}
	state.LastIngestionTime = upd.IngestedAt

	r.states[matchID] = state
	return true, nil
}

// Len reports how many matches hold state, for test assertions.
func (r *LiveStateRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}
