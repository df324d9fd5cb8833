package feed

import (
	"fmt"
	"testing"

	"github.com/riskibarqy/matchlive/internal/domain/match"
)

const scorePayload = `["m-100", 2, [1, 0, 0, 1, 3, 0, 0], [0, 0, 1, 2, 1, 0, 0], 1756400000]`

func TestParse_ScoreArray(t *testing.T) {
	result, err := Parse([]byte(scorePayload))
	if err != nil {
		t.Fatalf("parse score payload: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("unexpected message count: %d", len(result.Messages))
	}

	score, ok := result.Messages[0].(ScoreMessage)
	if !ok {
		t.Fatalf("unexpected message type %T", result.Messages[0])
	}
	if score.ID != "m-100" {
		t.Fatalf("unexpected match id: %s", score.ID)
	}
	if score.Status != match.StatusFirstHalf {
		t.Fatalf("unexpected status: %s", score.Status)
	}
	if score.Home.Regular != 1 || score.Home.Yellows != 1 || score.Home.Corners != 3 {
		t.Fatalf("unexpected home side: %+v", score.Home)
	}
	if score.Away.RedCards != 1 || score.Away.Yellows != 2 {
		t.Fatalf("unexpected away side: %+v", score.Away)
	}
	if score.Timestamp != 1756400000 {
		t.Fatalf("unexpected timestamp: %d", score.Timestamp)
	}
}

func TestParse_KeyedScoreWithNumericID(t *testing.T) {
	payload := `{"id": 8821, "score": [8821, 8, [2, 1, 0, 0, 5, 0, 0], [2, 0, 0, 2, 3, 0, 0], 1756400555]}`

	result, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse keyed score: %v", err)
	}

	score := result.Messages[0].(ScoreMessage)
	if score.ID != "8821" {
		t.Fatalf("numeric id should normalize to string, got %q", score.ID)
	}
	if score.Status != match.StatusEnded {
		t.Fatalf("unexpected status: %s", score.Status)
	}
}

func TestParse_StatsBatch(t *testing.T) {
	payload := `["m-7", [[23, 6, 2], [25, 54, 46]]]`

	result, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse stats batch: %v", err)
	}

	stats, ok := result.Messages[0].(StatsMessage)
	if !ok {
		t.Fatalf("unexpected message type %T", result.Messages[0])
	}
	if len(stats.Stats) != 2 {
		t.Fatalf("unexpected stat count: %d", len(stats.Stats))
	}
	if stats.Stats[0].Type != 23 || stats.Stats[0].Home != 6 || stats.Stats[0].Away != 2 {
		t.Fatalf("unexpected first stat: %+v", stats.Stats[0])
	}
}

func TestParse_IncidentTuple(t *testing.T) {
	payload := `["m-7", [[1, "23", 1, 1, "p-9", "R. Lewandowski", "p-10", "P. Gavi", "", "", "", "", 1, 0, "", 0, 0, "Goal!"]]]`

	result, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse incidents: %v", err)
	}

	incidents, ok := result.Messages[0].(IncidentsMessage)
	if !ok {
		t.Fatalf("unexpected message type %T", result.Messages[0])
	}
	if len(incidents.Incidents) != 1 {
		t.Fatalf("unexpected incident count: %d", len(incidents.Incidents))
	}

	goal := incidents.Incidents[0]
	if goal.Type != match.IncidentGoal {
		t.Fatalf("unexpected incident type: %d", goal.Type)
	}
	if goal.PlayerName != "R. Lewandowski" || goal.AssistName != "P. Gavi" {
		t.Fatalf("unexpected players: %+v", goal)
	}
	if goal.HomeScore != 1 || goal.AwayScore != 0 {
		t.Fatalf("unexpected running score: %+v", goal)
	}
	if goal.Side != match.SideHome {
		t.Fatalf("unexpected side: %d", goal.Side)
	}
}

func TestParse_TimelineBatch(t *testing.T) {
	payload := `{"id": "m-7", "tlive": [{"time": "45+2", "data": "Half time, 1-0.", "position": 0}]}`

	result, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse timeline: %v", err)
	}

	timeline, ok := result.Messages[0].(TimelineMessage)
	if !ok {
		t.Fatalf("unexpected message type %T", result.Messages[0])
	}
	if timeline.Entries[0].Text != "Half time, 1-0." {
		t.Fatalf("unexpected entry text: %q", timeline.Entries[0].Text)
	}
	if timeline.Entries[0].Time != "45+2" {
		t.Fatalf("unexpected entry time: %q", timeline.Entries[0].Time)
	}
}

// A multiplexed envelope must yield exactly the messages its sub-payloads
// yield individually, in key order.
func TestParse_MultiplexedMatchesIndividualParses(t *testing.T) {
	subs := []string{
		scorePayload,
		`{"id": "m-200", "tlive": [["12", "Corner, away team.", 2]]}`,
		`["m-300", [[23, 3, 1]]]`,
	}
	payload := fmt.Sprintf(`{"0": %s, "1": %s, "2": %s}`, subs[0], subs[1], subs[2])

	combined, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse multiplexed payload: %v", err)
	}
	if len(combined.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", combined.Warnings)
	}
	if len(combined.Messages) != len(subs) {
		t.Fatalf("unexpected message count: %d", len(combined.Messages))
	}

	for i, sub := range subs {
		individual, err := Parse([]byte(sub))
		if err != nil {
			t.Fatalf("parse sub-payload %d: %v", i, err)
		}
		if got, want := fmt.Sprintf("%+v", combined.Messages[i]), fmt.Sprintf("%+v", individual.Messages[0]); got != want {
			t.Fatalf("sub-message %d mismatch:\n got %s\nwant %s", i, got, want)
		}
	}
}

// One broken sub-message must not sink the rest of the batch.
func TestParse_MultiplexedSkipsMalformedSub(t *testing.T) {
	payload := fmt.Sprintf(`{"0": %s, "1": ["m-9", 2, "not-a-side", [], 0], "2": {"id": "m-10", "tlive": [["3", "Kick off."]]}}`, scorePayload)

	result, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("parse multiplexed payload: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("unexpected message count: %d", len(result.Messages))
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
}

func TestParse_UnknownStatusCodeRejected(t *testing.T) {
	payload := `["m-1", 42, [0,0,0,0,0,0,0], [0,0,0,0,0,0,0], 0]`
	if _, err := Parse([]byte(payload)); err == nil {
		t.Fatal("expected error for unknown status code")
	}
}

func TestParse_GarbageRejected(t *testing.T) {
	if _, err := Parse([]byte(`{{{`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
	if _, err := Parse([]byte(`42`)); err == nil {
		t.Fatal("expected error for scalar payload")
	}
}
