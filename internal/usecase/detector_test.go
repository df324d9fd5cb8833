package usecase

import (
	"testing"
	"time"

	"github.com/riskibarqy/matchlive/internal/domain/event"
	"github.com/riskibarqy/matchlive/internal/domain/match"
	"github.com/riskibarqy/matchlive/internal/platform/logging"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	return NewDetector(DetectorConfig{}, nil, logging.NewNop())
}

func TestDetector_FromIncidents_MapsGoalCardSubstitution(t *testing.T) {
	d := newTestDetector(t)

	events := d.FromIncidents("m-1", []match.Incident{
		{Type: match.IncidentGoal, Time: "23", Side: match.SideHome, PlayerID: "p-9", PlayerName: "Striker"},
		{Type: match.IncidentYellowCard, Time: "31", Side: match.SideAway, PlayerID: "p-4"},
		{Type: match.IncidentSubstitution, Time: "60", Side: match.SideHome, InName: "Sub In", OutName: "Sub Out"},
		{Type: match.IncidentCorner, Time: "12", Side: match.SideHome},
	})

	if len(events) != 3 {
		t.Fatalf("unexpected event count: %d", len(events))
	}
	if events[0].Kind != event.KindGoal || events[0].PlayerName != "Striker" {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Kind != event.KindCard || events[1].Detail != "yellow" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
	if events[2].Kind != event.KindSubstitution || events[2].Detail != "Sub In for Sub Out" {
		t.Fatalf("unexpected third event: %+v", events[2])
	}
	for _, evt := range events {
		if evt.ID == "" {
			t.Fatalf("event without id: %+v", evt)
		}
	}
}

func TestDetector_FromIncidents_SuppressesRetransmission(t *testing.T) {
	d := newTestDetector(t)

	goal := match.Incident{Type: match.IncidentGoal, Time: "23", Side: match.SideHome, PlayerID: "p-9"}

	first := d.FromIncidents("m-1", []match.Incident{goal})
	if len(first) != 1 {
		t.Fatalf("first batch should emit, got %d events", len(first))
	}

	// The broker redelivers the same incident list moments later.
	second := d.FromIncidents("m-1", []match.Incident{goal})
	if len(second) != 0 {
		t.Fatalf("retransmission inside suppress window should emit nothing, got %d events", len(second))
	}
}

func TestDetector_FromIncidents_EmitsAgainAfterSuppressWindow(t *testing.T) {
	d := NewDetector(DetectorConfig{SuppressWindow: 5 * time.Second}, nil, logging.NewNop())
	current := time.Unix(1756400000, 0)
	d.now = func() time.Time { return current }

	goal := match.Incident{Type: match.IncidentGoal, Time: "23", PlayerID: "p-9"}

	if got := len(d.FromIncidents("m-1", []match.Incident{goal})); got != 1 {
		t.Fatalf("first emission expected, got %d", got)
	}

	current = current.Add(6 * time.Second)
	if got := len(d.FromIncidents("m-1", []match.Incident{goal})); got != 1 {
		t.Fatalf("emission after suppress window expected, got %d", got)
	}
}

func TestDetector_FromScoreDelta_ScoreChange(t *testing.T) {
	d := newTestDetector(t)

	prev := match.ScorePair{Home: match.SideScore{Regular: 1}, Away: match.SideScore{}}
	next := match.ScorePair{Home: match.SideScore{Regular: 2}, Away: match.SideScore{}}

	events := d.FromScoreDelta("m-1", prev, next)
	if len(events) != 1 {
		t.Fatalf("unexpected event count: %d", len(events))
	}
	evt := events[0]
	if evt.Kind != event.KindScoreChange {
		t.Fatalf("unexpected kind: %s", evt.Kind)
	}
	if evt.HomeScore != 2 || evt.PrevHome != 1 {
		t.Fatalf("unexpected scores: %+v", evt)
	}
}

func TestDetector_FromScoreDelta_RollbackIsGoalCancelled(t *testing.T) {
	d := newTestDetector(t)

	prev := match.ScorePair{Home: match.SideScore{Regular: 2}, Away: match.SideScore{Regular: 1}}
	next := match.ScorePair{Home: match.SideScore{Regular: 1}, Away: match.SideScore{Regular: 1}}

	events := d.FromScoreDelta("m-1", prev, next)
	if len(events) != 1 {
		t.Fatalf("unexpected event count: %d", len(events))
	}
	if events[0].Kind != event.KindGoalCancelled {
		t.Fatalf("unexpected kind: %s", events[0].Kind)
	}
}

func TestDetector_FromScoreDelta_NoChangeNoEvent(t *testing.T) {
	d := newTestDetector(t)

	score := match.ScorePair{Home: match.SideScore{Regular: 1}}
	if events := d.FromScoreDelta("m-1", score, score); len(events) != 0 {
		t.Fatalf("unchanged score should emit nothing, got %d events", len(events))
	}
}
