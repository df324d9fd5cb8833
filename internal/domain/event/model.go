package event

import "github.com/riskibarqy/matchlive/internal/domain/match"

// Kind discriminates the domain event union.
type Kind string

const (
	KindScoreChange      Kind = "SCORE_CHANGE"
	KindGoal             Kind = "GOAL"
	KindGoalCancelled    Kind = "GOAL_CANCELLED"
	KindCard             Kind = "CARD"
	KindSubstitution     Kind = "SUBSTITUTION"
	KindMatchStateChange Kind = "MATCH_STATE_CHANGE"
)

// Event is one derived domain fact emitted to subscribers. Events are not
// persisted by this core.
type Event struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"type"`
	MatchID   string `json:"match_id"`
	Timestamp int64  `json:"timestamp"` // epoch millis

	// SCORE_CHANGE / GOAL_CANCELLED
	HomeScore int `json:"home_score,omitempty"`
	AwayScore int `json:"away_score,omitempty"`
	PrevHome  int `json:"prev_home_score,omitempty"`
	PrevAway  int `json:"prev_away_score,omitempty"`

	// GOAL / CARD / SUBSTITUTION
	Side       match.Side `json:"side,omitempty"`
	MatchTime  string     `json:"match_time,omitempty"`
	PlayerID   string     `json:"player_id,omitempty"`
	PlayerName string     `json:"player_name,omitempty"`
	Detail     string     `json:"detail,omitempty"`

	// MATCH_STATE_CHANGE
	FromStatus match.Status `json:"from_status,omitempty"`
	ToStatus   match.Status `json:"to_status,omitempty"`
}

// Handler consumes emitted events. Implementations must not block for long;
// dispatch happens on a per-subscriber buffer.
type Handler func(Event)

// Publisher fans events out to registered subscribers in-process.
type Publisher interface {
	Publish(Event)
}
