package feed

import "github.com/riskibarqy/matchlive/internal/domain/match"

// Message is one typed unit extracted from a broker payload. A single
// payload may multiplex several messages for different matches.
type Message interface {
	MatchID() string
}

// ScoreMessage carries the full decomposed score plus the provider's status
// code for one match.
type ScoreMessage struct {
	ID         string
	StatusCode int
	Status     match.Status
	Home       match.SideScore
	Away       match.SideScore
	// Timestamp is the provider's freshness marker in epoch seconds, zero
	// when the payload did not carry one.
	Timestamp int64
}

func (m ScoreMessage) MatchID() string { return m.ID }

// StatsMessage carries the featured-match statistic lines for one match.
type StatsMessage struct {
	ID    string
	Stats []match.StatLine
}

func (m StatsMessage) MatchID() string { return m.ID }

// IncidentsMessage carries one full-replace incident batch for one match.
type IncidentsMessage struct {
	ID        string
	Incidents []match.Incident
}

func (m IncidentsMessage) MatchID() string { return m.ID }

// TimelineMessage carries one full-replace live commentary batch for one
// match.
type TimelineMessage struct {
	ID      string
	Entries []match.TimelineEntry
}

func (m TimelineMessage) MatchID() string { return m.ID }

// Result is the outcome of parsing one payload. Warnings describe
// sub-messages that were skipped without failing the rest of the payload.
type Result struct {
	Messages []Message
	Warnings []string
}
