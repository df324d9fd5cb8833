package postgres

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/riskibarqy/matchlive/internal/domain/match"
	qb "github.com/riskibarqy/matchlive/internal/platform/querybuilder"
)

// LiveStateRepository persists per-match live state. All mutations go
// through a single conditional UPDATE so the freshness guard and the row
// change are one atomic statement; there is no read-modify-write window.
type LiveStateRepository struct {
	db *sqlx.DB
}

func NewLiveStateRepository(db *sqlx.DB) *LiveStateRepository {
	return &LiveStateRepository{db: db}
}

func (r *LiveStateRepository) Get(ctx context.Context, matchID string) (match.LiveState, bool, error) {
	query, args, err := qb.Select("*").From("live_match_states").
		Where(qb.Eq("match_id", matchID)).
		Limit(1).
		ToSQL()
	if err != nil {
		return match.LiveState{}, false, fmt.Errorf("build select live state query: %w", err)
	}

	var row liveStateTableModel
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNotFound(err) {
			return match.LiveState{}, false, nil
		}
		return match.LiveState{}, false, fmt.Errorf("select live state: %w", err)
	}

	state, err := liveStateFromRow(row)
	if err != nil {
		return match.LiveState{}, false, err
	}
	return state, true, nil
}

func (r *LiveStateRepository) Create(ctx context.Context, state match.LiveState) error {
	incidents, statistics, tlive, err := marshalCollections(state.Incidents, state.Statistics, state.Timeline)
	if err != nil {
		return err
	}

	query, args, err := qb.InsertInto("live_match_states").
		Columns(
			"match_id", "status",
			"home_score_regular", "home_score_halftime", "home_score_overtime",
			"home_score_penalties", "home_score_display",
			"home_red_cards", "home_yellow_cards", "home_corners",
			"away_score_regular", "away_score_halftime", "away_score_overtime",
			"away_score_penalties", "away_score_display",
			"away_red_cards", "away_yellow_cards", "away_corners",
			"home_scores", "away_scores",
			"last_event_ts", "incidents", "statistics", "tlive",
		).
		Values(
			state.MatchID, string(state.Status),
			state.Home.Regular, state.Home.Halftime, state.Home.Overtime,
			state.Home.Penalty, state.Home.Display(),
			state.Home.RedCards, state.Home.Yellows, state.Home.Corners,
			state.Away.Regular, state.Away.Halftime, state.Away.Overtime,
			state.Away.Penalty, state.Away.Display(),
			state.Away.RedCards, state.Away.Yellows, state.Away.Corners,
			pq.Int64Array{int64(state.Home.Display())}, pq.Int64Array{int64(state.Away.Display())},
			state.LastIngestionTime, incidents, statistics, tlive,
		).
		Suffix("ON CONFLICT (match_id) DO NOTHING").
		ToSQL()
	if err != nil {
		return fmt.Errorf("build insert live state query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert live state: %w", err)
	}
	return nil
}

// ApplyUpdate performs the conditional write. The WHERE predicate encodes
// the freshness rule: a timestamped update must be strictly newer than the
// stored provider time, a timestamp-less status or score write must fall
// outside the guard window since the last accepted write, and collection
// replaces go through unconditionally. A false return with nil error means
// the row rejected the update as stale.
func (r *LiveStateRepository) ApplyUpdate(ctx context.Context, matchID string, upd match.Update) (bool, error) {
	if upd.IsEmpty() {
		return false, nil
	}

	builder := qb.Update("live_match_states")

	if upd.Status != nil {
		builder.Set("status", string(*upd.Status))
	}
	if upd.Score != nil {
		applyScoreColumns(builder, *upd.Score)
	}
	if upd.FirstHalfKickoff != nil {
		builder.SetExpr("first_half_kickoff_ts", "COALESCE(first_half_kickoff_ts, ?)", *upd.FirstHalfKickoff)
	}
	if upd.SecondHalfKickoff != nil {
		builder.SetExpr("second_half_kickoff_ts", "COALESCE(second_half_kickoff_ts, ?)", *upd.SecondHalfKickoff)
	}
	if upd.OvertimeKickoff != nil {
		builder.SetExpr("overtime_kickoff_ts", "COALESCE(overtime_kickoff_ts, ?)", *upd.OvertimeKickoff)
	}
	if upd.Incidents != nil {
		payload, err := sonic.Marshal(*upd.Incidents)
		if err != nil {
			return false, fmt.Errorf("marshal incidents: %w", err)
		}
		builder.Set("incidents", payload)
	}
	if upd.Statistics != nil {
		payload, err := marshalStatistics(*upd.Statistics)
		if err != nil {
			return false, fmt.Errorf("marshal statistics: %w", err)
		}
		builder.Set("statistics", payload)
	}
	if upd.Timeline != nil {
		payload, err := sonic.Marshal(*upd.Timeline)
		if err != nil {
			return false, fmt.Errorf("marshal timeline: %w", err)
		}
		builder.Set("tlive", payload)
	}

	if upd.ProviderUpdateTime != nil {
		builder.SetExpr("provider_update_time", "GREATEST(COALESCE(provider_update_time, 0), ?)", *upd.ProviderUpdateTime)
	}
	builder.Set("last_event_ts", upd.IngestedAt)
	builder.SetExpr("updated_at", "NOW()")

	conditions := []qb.Condition{qb.Eq("match_id", matchID)}
	switch {
	case upd.ProviderUpdateTime != nil:
		conditions = append(conditions,
			qb.Expr("(provider_update_time IS NULL OR provider_update_time < ?)", *upd.ProviderUpdateTime))
	case upd.Guarded():
		guardSeconds := int64(upd.GuardWindow / time.Second)
		// Strictly more than the guard window must have elapsed.
		conditions = append(conditions,
			qb.Expr("last_event_ts < ?", upd.IngestedAt-guardSeconds))
	}

	query, args, err := builder.Where(conditions...).ToSQL()
	if err != nil {
		return false, fmt.Errorf("build update live state query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update live state: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update live state rows affected: %w", err)
	}
	return affected > 0, nil
}

func applyScoreColumns(builder *qb.UpdateBuilder, score match.ScorePair) {
	builder.
		Set("home_score_regular", score.Home.Regular).
		Set("home_score_halftime", score.Home.Halftime).
		Set("home_score_overtime", score.Home.Overtime).
		Set("home_score_penalties", score.Home.Penalty).
		Set("home_score_display", score.Home.Display()).
		Set("home_red_cards", score.Home.RedCards).
		Set("home_yellow_cards", score.Home.Yellows).
		Set("home_corners", score.Home.Corners).
		Set("away_score_regular", score.Away.Regular).
		Set("away_score_halftime", score.Away.Halftime).
		Set("away_score_overtime", score.Away.Overtime).
		Set("away_score_penalties", score.Away.Penalty).
		Set("away_score_display", score.Away.Display()).
		Set("away_red_cards", score.Away.RedCards).
		Set("away_yellow_cards", score.Away.Yellows).
		Set("away_corners", score.Away.Corners).
		Set("home_scores", pq.Int64Array{int64(score.Home.Display())}).
		Set("away_scores", pq.Int64Array{int64(score.Away.Display())})
}

func liveStateFromRow(row liveStateTableModel) (match.LiveState, error) {
	state := match.LiveState{
		MatchID: row.MatchID,
		Status:  match.NormalizeStatus(row.Status),
		Home: match.SideScore{
			Regular:  row.HomeScoreRegular,
			Halftime: row.HomeScoreHalftime,
			Overtime: row.HomeScoreOvertime,
			Penalty:  row.HomeScorePenalties,
			RedCards: row.HomeRedCards,
			Yellows:  row.HomeYellowCards,
			Corners:  row.HomeCorners,
		},
		Away: match.SideScore{
			Regular:  row.AwayScoreRegular,
			Halftime: row.AwayScoreHalftime,
			Overtime: row.AwayScoreOvertime,
			Penalty:  row.AwayScorePenalties,
			RedCards: row.AwayRedCards,
			Yellows:  row.AwayYellowCards,
			Corners:  row.AwayCorners,
		},
		FirstHalfKickoff:   row.FirstHalfKickoffTS.Int64,
		SecondHalfKickoff:  row.SecondHalfKickoffTS.Int64,
		OvertimeKickoff:    row.OvertimeKickoffTS.Int64,
		ProviderUpdateTime: row.ProviderUpdateTime.Int64,
		LastIngestionTime:  row.LastEventTS,
	}

	if len(row.Incidents) > 0 {
		if err := sonic.Unmarshal(row.Incidents, &state.Incidents); err != nil {
			return match.LiveState{}, fmt.Errorf("unmarshal incidents: %w", err)
		}
	}
	if len(row.Statistics) > 0 {
		stats, err := unmarshalStatistics(row.Statistics)
		if err != nil {
			return match.LiveState{}, fmt.Errorf("unmarshal statistics: %w", err)
		}
		state.Statistics = stats
	}
	if len(row.Tlive) > 0 {
		if err := sonic.Unmarshal(row.Tlive, &state.Timeline); err != nil {
			return match.LiveState{}, fmt.Errorf("unmarshal timeline: %w", err)
		}
	}
	return state, nil
}

func marshalCollections(incidents []match.Incident, stats []match.StatLine, timeline []match.TimelineEntry) ([]byte, []byte, []byte, error) {
	if incidents == nil {
		incidents = []match.Incident{}
	}
	if timeline == nil {
		timeline = []match.TimelineEntry{}
	}

	incidentsJSON, err := sonic.Marshal(incidents)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal incidents: %w", err)
	}
	statsJSON, err := marshalStatistics(stats)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal statistics: %w", err)
	}
	timelineJSON, err := sonic.Marshal(timeline)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal timeline: %w", err)
	}
	return incidentsJSON, statsJSON, timelineJSON, nil
}

// statSides is the stored value pair of one named statistic.
type statSides struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// marshalStatistics stores stat lines as a JSON object keyed by statistic
// type; readers of the statistics column expect an object, not an array.
func marshalStatistics(lines []match.StatLine) ([]byte, error) {
	doc := make(map[string]statSides, len(lines))
	for _, line := range lines {
		doc[strconv.Itoa(line.Type)] = statSides{Home: line.Home, Away: line.Away}
	}
	return sonic.Marshal(doc)
}

func unmarshalStatistics(raw []byte) ([]match.StatLine, error) {
	var doc map[string]statSides
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	lines := make([]match.StatLine, 0, len(doc))
	for key, sides := range doc {
		statType, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("statistic key %q: %w", key, err)
		}
		lines = append(lines, match.StatLine{Type: statType, Home: sides.Home, Away: sides.Away})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Type < lines[j].Type })
	return lines, nil
}
