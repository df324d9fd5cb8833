package postgres

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type liveStateTableModel struct {
	MatchID string `db:"match_id"`
	Status  string `db:"status"`

	HomeScoreRegular   int `db:"home_score_regular"`
	HomeScoreHalftime  int `db:"home_score_halftime"`
	HomeScoreOvertime  int `db:"home_score_overtime"`
	HomeScorePenalties int `db:"home_score_penalties"`
	HomeScoreDisplay   int `db:"home_score_display"`
	HomeRedCards       int `db:"home_red_cards"`
	HomeYellowCards    int `db:"home_yellow_cards"`
	HomeCorners        int `db:"home_corners"`

	AwayScoreRegular   int `db:"away_score_regular"`
	AwayScoreHalftime  int `db:"away_score_halftime"`
	AwayScoreOvertime  int `db:"away_score_overtime"`
	AwayScorePenalties int `db:"away_score_penalties"`
	AwayScoreDisplay   int `db:"away_score_display"`
	AwayRedCards       int `db:"away_red_cards"`
	AwayYellowCards    int `db:"away_yellow_cards"`
	AwayCorners        int `db:"away_corners"`

	// Legacy single-element score arrays still read by older consumers.
	HomeScores pq.Int64Array `db:"home_scores"`
	AwayScores pq.Int64Array `db:"away_scores"`

	FirstHalfKickoffTS  sql.NullInt64 `db:"first_half_kickoff_ts"`
	SecondHalfKickoffTS sql.NullInt64 `db:"second_half_kickoff_ts"`
	OvertimeKickoffTS   sql.NullInt64 `db:"overtime_kickoff_ts"`

	ProviderUpdateTime sql.NullInt64 `db:"provider_update_time"`
	LastEventTS        int64         `db:"last_event_ts"`

	Incidents  []byte `db:"incidents"`
	Statistics []byte `db:"statistics"`
	Tlive      []byte `db:"tlive"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
