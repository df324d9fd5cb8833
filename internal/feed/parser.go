package feed

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	sonic "github.com/bytedance/sonic"

	"github.com/riskibarqy/matchlive/internal/domain/match"
)

// Parse turns one raw broker payload into zero or more typed messages. The
// wire format is deliberately permissive; three shapes occur:
//
//	(a) a single keyed object {id, score|stats|incidents|tlive}
//	(b) a positional array ([id, status, home[7], away[7], ts] for scores,
//	    [id, items] for everything else)
//	(c) an object whose keys are stringified small integers, each value
//	    being one of the above (several matches multiplexed in one payload)
//
// Parse never does I/O and keeps no state. A payload that cannot be
// classified at all returns an error; a multiplexed sub-message that cannot
// be used is skipped with a warning so the rest of the batch survives.
func Parse(raw []byte) (Result, error) {
	var root any
	if err := sonic.Unmarshal(raw, &root); err != nil {
		return Result{}, fmt.Errorf("decode payload: %w", err)
	}

	switch value := root.(type) {
	case []any:
		msg, err := parsePositional(value)
		if err != nil {
			return Result{}, err
		}
		return Result{Messages: []Message{msg}}, nil
	case map[string]any:
		if isMultiplexed(value) {
			return parseMultiplexed(value), nil
		}
		msg, err := parseKeyed(value)
		if err != nil {
			return Result{}, err
		}
		return Result{Messages: []Message{msg}}, nil
	default:
		return Result{}, fmt.Errorf("unrecognized payload shape %T", root)
	}
}

// isMultiplexed reports whether every key of the object is a stringified
// small integer, the shape providers use to batch several matches.
func isMultiplexed(obj map[string]any) bool {
	if len(obj) == 0 {
		return false
	}
	for key := range obj {
		if _, err := strconv.Atoi(key); err != nil {
			return false
		}
	}
	return true
}

func parseMultiplexed(obj map[string]any) Result {
	// Deterministic order keeps downstream processing stable under test.
	keys := make([]int, 0, len(obj))
	for key := range obj {
		idx, _ := strconv.Atoi(key)
		keys = append(keys, idx)
	}
	sort.Ints(keys)

	result := Result{}
	for _, idx := range keys {
		sub := obj[strconv.Itoa(idx)]
		msg, err := parseSub(sub)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("sub-message %d skipped: %v", idx, err))
			continue
		}
		result.Messages = append(result.Messages, msg)
	}
	return result
}

func parseSub(value any) (Message, error) {
	switch sub := value.(type) {
	case []any:
		return parsePositional(sub)
	case map[string]any:
		return parseKeyed(sub)
	default:
		return nil, fmt.Errorf("unrecognized sub-message shape %T", value)
	}
}

// parsePositional handles the array forms. A five-slot array with two
// nested seven-slot arrays is a score; a two-slot array is an item batch
// whose kind is sniffed from the first item.
func parsePositional(arr []any) (Message, error) {
	if len(arr) == 5 {
		return parseScoreArray(arr)
	}
	if len(arr) == 2 {
		id := asID(arr[0])
		if id == "" {
			return nil, fmt.Errorf("item batch without match id")
		}
		items, ok := arr[1].([]any)
		if !ok {
			return nil, fmt.Errorf("item batch for %s is not an array", id)
		}
		return parseItemBatch(id, items)
	}
	return nil, fmt.Errorf("positional payload has %d slots", len(arr))
}

func parseScoreArray(arr []any) (Message, error) {
	id := asID(arr[0])
	if id == "" {
		return nil, fmt.Errorf("score payload without match id")
	}

	code, ok := asInt(arr[1])
	if !ok {
		return nil, fmt.Errorf("score payload for %s has non-numeric status", id)
	}
	status, known := match.StatusFromCode(code)
	if !known {
		return nil, fmt.Errorf("score payload for %s has unknown status code %d", id, code)
	}

	home, err := parseSideScore(arr[2])
	if err != nil {
		return nil, fmt.Errorf("home side for %s: %w", id, err)
	}
	away, err := parseSideScore(arr[3])
	if err != nil {
		return nil, fmt.Errorf("away side for %s: %w", id, err)
	}

	ts, _ := asInt64(arr[4])

	return ScoreMessage{
		ID:         id,
		StatusCode: code,
		Status:     status,
		Home:       home,
		Away:       away,
		Timestamp:  ts,
	}, nil
}

// parseSideScore indexes one team's seven-slot array:
// [regular, halftime, red, yellow, corners, overtime, penalty].
func parseSideScore(value any) (match.SideScore, error) {
	arr, ok := value.([]any)
	if !ok {
		return match.SideScore{}, fmt.Errorf("side score is not an array")
	}
	if len(arr) < 7 {
		return match.SideScore{}, fmt.Errorf("side score has %d slots, expected 7", len(arr))
	}

	slots := make([]int, 7)
	for i := 0; i < 7; i++ {
		n, ok := asInt(arr[i])
		if !ok {
			return match.SideScore{}, fmt.Errorf("side score slot %d is not numeric", i)
		}
		slots[i] = n
	}

	return match.SideScore{
		Regular:  slots[0],
		Halftime: slots[1],
		RedCards: slots[2],
		Yellows:  slots[3],
		Corners:  slots[4],
		Overtime: slots[5],
		Penalty:  slots[6],
	}, nil
}

// parseKeyed handles the single keyed object shape.
func parseKeyed(obj map[string]any) (Message, error) {
	id := asID(obj["id"])
	if id == "" {
		return nil, fmt.Errorf("keyed payload without match id")
	}

	if value, ok := obj["score"]; ok {
		return parseKeyedScore(id, value)
	}
	if value, ok := obj["stats"]; ok {
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("stats for %s is not an array", id)
		}
		return parseStats(id, items)
	}
	if value, ok := obj["incidents"]; ok {
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("incidents for %s is not an array", id)
		}
		return parseIncidents(id, items)
	}
	if value, ok := obj["tlive"]; ok {
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("tlive for %s is not an array", id)
		}
		return parseTimeline(id, items)
	}

	return nil, fmt.Errorf("keyed payload for %s has no recognized channel", id)
}

// parseKeyedScore accepts the positional score array nested under "score",
// with or without the leading id slot repeated.
func parseKeyedScore(id string, value any) (Message, error) {
	arr, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("score for %s is not an array", id)
	}

	switch len(arr) {
	case 5:
		msg, err := parseScoreArray(arr)
		if err != nil {
			return nil, err
		}
		score := msg.(ScoreMessage)
		if score.ID != id {
			return nil, fmt.Errorf("score id %s does not match envelope id %s", score.ID, id)
		}
		return score, nil
	case 4:
		padded := append([]any{id}, arr...)
		return parseScoreArray(padded)
	default:
		return nil, fmt.Errorf("score for %s has %d slots", id, len(arr))
	}
}

// parseItemBatch sniffs which channel an [id, items] batch belongs to from
// the shape of its first item. Empty batches cannot be classified and are
// skipped.
func parseItemBatch(id string, items []any) (Message, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("empty item batch for %s", id)
	}

	switch first := items[0].(type) {
	case []any:
		switch len(first) {
		case 3:
			if _, numeric := asInt(first[0]); numeric {
				return parseStats(id, items)
			}
			return parseTimeline(id, items)
		default:
			return parseIncidents(id, items)
		}
	case map[string]any:
		if _, ok := first["data"]; ok {
			return parseTimeline(id, items)
		}
		if _, ok := first["home"]; ok {
			return parseStats(id, items)
		}
		return parseIncidents(id, items)
	default:
		return nil, fmt.Errorf("item batch for %s has unrecognized item shape %T", id, items[0])
	}
}

func parseStats(id string, items []any) (Message, error) {
	stats := make([]match.StatLine, 0, len(items))
	for idx, item := range items {
		line, err := parseStatLine(item)
		if err != nil {
			return nil, fmt.Errorf("stat %d for %s: %w", idx, id, err)
		}
		stats = append(stats, line)
	}
	return StatsMessage{ID: id, Stats: stats}, nil
}

func parseStatLine(item any) (match.StatLine, error) {
	switch value := item.(type) {
	case []any:
		if len(value) < 3 {
			return match.StatLine{}, fmt.Errorf("stat tuple has %d slots", len(value))
		}
		typ, ok1 := asInt(value[0])
		home, ok2 := asInt(value[1])
		away, ok3 := asInt(value[2])
		if !ok1 || !ok2 || !ok3 {
			return match.StatLine{}, fmt.Errorf("stat tuple has non-numeric slots")
		}
		return match.StatLine{Type: typ, Home: home, Away: away}, nil
	case map[string]any:
		typ, _ := asInt(value["type"])
		home, _ := asInt(value["home"])
		away, _ := asInt(value["away"])
		if typ == 0 {
			return match.StatLine{}, fmt.Errorf("stat object without type")
		}
		return match.StatLine{Type: typ, Home: home, Away: away}, nil
	default:
		return match.StatLine{}, fmt.Errorf("stat item has shape %T", item)
	}
}

func parseIncidents(id string, items []any) (Message, error) {
	incidents := make([]match.Incident, 0, len(items))
	for idx, item := range items {
		incident, err := parseIncident(item)
		if err != nil {
			return nil, fmt.Errorf("incident %d for %s: %w", idx, id, err)
		}
		incidents = append(incidents, incident)
	}
	return IncidentsMessage{ID: id, Incidents: incidents}, nil
}

// incidentTupleLen is the positional incident layout size:
// [position, time, type, side, playerID, playerName, assistID, assistName,
// inID, inName, outID, outName, homeScore, awayScore, reason, varReason,
// varResult, text].
const incidentTupleLen = 18

func parseIncident(item any) (match.Incident, error) {
	switch value := item.(type) {
	case []any:
		if len(value) < incidentTupleLen {
			return match.Incident{}, fmt.Errorf("incident tuple has %d slots, expected %d", len(value), incidentTupleLen)
		}
		typ, ok := asInt(value[2])
		if !ok {
			return match.Incident{}, fmt.Errorf("incident tuple has non-numeric type")
		}
		side, _ := asInt(value[3])
		position, _ := asInt(value[0])
		home, _ := asInt(value[12])
		away, _ := asInt(value[13])
		varReason, _ := asInt(value[15])
		varResult, _ := asInt(value[16])
		return match.Incident{
			Position:   position,
			Time:       asString(value[1]),
			Type:       typ,
			Side:       match.Side(side),
			PlayerID:   asID(value[4]),
			PlayerName: asString(value[5]),
			AssistID:   asID(value[6]),
			AssistName: asString(value[7]),
			InID:       asID(value[8]),
			InName:     asString(value[9]),
			OutID:      asID(value[10]),
			OutName:    asString(value[11]),
			HomeScore:  home,
			AwayScore:  away,
			Reason:     asString(value[14]),
			VARReason:  varReason,
			VARResult:  varResult,
			Text:       asString(value[17]),
		}, nil
	case map[string]any:
		typ, ok := asInt(value["type"])
		if !ok {
			return match.Incident{}, fmt.Errorf("incident object without type")
		}
		side, _ := asInt(value["side"])
		position, _ := asInt(value["position"])
		home, _ := asInt(value["home_score"])
		away, _ := asInt(value["away_score"])
		varReason, _ := asInt(value["var_reason"])
		varResult, _ := asInt(value["var_result"])
		return match.Incident{
			Position:   position,
			Time:       asString(value["time"]),
			Type:       typ,
			Side:       match.Side(side),
			PlayerID:   asID(value["player_id"]),
			PlayerName: asString(value["player_name"]),
			AssistID:   asID(value["assist_id"]),
			AssistName: asString(value["assist_name"]),
			InID:       asID(value["in_id"]),
			InName:     asString(value["in_name"]),
			OutID:      asID(value["out_id"]),
			OutName:    asString(value["out_name"]),
			HomeScore:  home,
			AwayScore:  away,
			Reason:     asString(value["reason"]),
			VARReason:  varReason,
			VARResult:  varResult,
			Text:       asString(value["text"]),
		}, nil
	default:
		return match.Incident{}, fmt.Errorf("incident item has shape %T", item)
	}
}

func parseTimeline(id string, items []any) (Message, error) {
	entries := make([]match.TimelineEntry, 0, len(items))
	for idx, item := range items {
		entry, err := parseTimelineEntry(item)
		if err != nil {
			return nil, fmt.Errorf("tlive %d for %s: %w", idx, id, err)
		}
		entries = append(entries, entry)
	}
	return TimelineMessage{ID: id, Entries: entries}, nil
}

func parseTimelineEntry(item any) (match.TimelineEntry, error) {
	switch value := item.(type) {
	case []any:
		if len(value) < 2 {
			return match.TimelineEntry{}, fmt.Errorf("tlive tuple has %d slots", len(value))
		}
		side := 0
		if len(value) >= 3 {
			side, _ = asInt(value[2])
		}
		return match.TimelineEntry{
			Time: asString(value[0]),
			Text: asString(value[1]),
			Side: match.Side(side),
		}, nil
	case map[string]any:
		text := asString(value["data"])
		if text == "" {
			return match.TimelineEntry{}, fmt.Errorf("tlive object without text")
		}
		side, _ := asInt(value["position"])
		return match.TimelineEntry{
			Time: asString(value["time"]),
			Text: text,
			Side: match.Side(side),
		}, nil
	default:
		return match.TimelineEntry{}, fmt.Errorf("tlive item has shape %T", item)
	}
}

// asID normalizes match and player identifiers, which arrive as strings or
// numbers depending on the provider's mood.
func asID(value any) string {
	switch id := value.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		if id == 0 {
			return ""
		}
		return strconv.FormatInt(int64(id), 10)
	case int64:
		if id == 0 {
			return ""
		}
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

func asString(value any) string {
	switch text := value.(type) {
	case string:
		return text
	case float64:
		return strconv.FormatInt(int64(text), 10)
	default:
		return ""
	}
}

func asInt(value any) (int, bool) {
	switch n := value.(type) {
	case float64:
		return int(n), true
	case int64:
		return int(n), true
	case int:
		return n, true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func asInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
