package match

import "strings"

// Status is the lifecycle phase of a live match.
type Status string

const (
	StatusNotStarted      Status = "NOT_STARTED"
	StatusFirstHalf       Status = "FIRST_HALF"
	StatusHalfTime        Status = "HALF_TIME"
	StatusSecondHalf      Status = "SECOND_HALF"
	StatusOvertime        Status = "OVERTIME"
	StatusPenaltyShootout Status = "PENALTY_SHOOTOUT"
	StatusEnded           Status = "ENDED"
	StatusCancelled       Status = "CANCELLED"
	StatusInterrupted     Status = "INTERRUPTED"
)

// Provider status codes carried in the second slot of array-form score
// payloads.
const (
	CodeNotStarted      = 1
	CodeFirstHalf       = 2
	CodeHalfTime        = 3
	CodeSecondHalf      = 4
	CodeOvertime        = 5
	CodePenaltyShootout = 7
	CodeEnded           = 8
	CodeInterrupted     = 10
	CodeCancelled       = 12
)

func StatusFromCode(code int) (Status, bool) {
	switch code {
	case CodeNotStarted:
		return StatusNotStarted, true
	case CodeFirstHalf:
		return StatusFirstHalf, true
	case CodeHalfTime:
		return StatusHalfTime, true
	case CodeSecondHalf:
		return StatusSecondHalf, true
	case CodeOvertime:
		return StatusOvertime, true
	case CodePenaltyShootout:
		return StatusPenaltyShootout, true
	case CodeEnded:
		return StatusEnded, true
	case CodeInterrupted:
		return StatusInterrupted, true
	case CodeCancelled:
		return StatusCancelled, true
	default:
		return "", false
	}
}

func NormalizeStatus(value string) Status {
	status := Status(strings.ToUpper(strings.TrimSpace(value)))
	if status == "" {
		return StatusNotStarted
	}
	return status
}

// IsTerminal reports whether the status ends the match outright. ENDED is
// deliberately absent: a knockout match seen at ENDED can still resurrect
// into overtime or penalties.
func IsTerminal(status Status) bool {
	return status == StatusCancelled
}

// IsResurrection reports the one allowed backward transition: a match that
// looked finished continuing into overtime or a shootout.
func IsResurrection(from, to Status) bool {
	return from == StatusEnded && (to == StatusOvertime || to == StatusPenaltyShootout)
}

// Side identifies which team an incident or timeline entry belongs to.
type Side int

const (
	SideNeutral Side = 0
	SideHome    Side = 1
	SideAway    Side = 2
)

// SideScore is the decomposed score for one team.
type SideScore struct {
	Regular  int `json:"regular"`
	Halftime int `json:"halftime"`
	Overtime int `json:"overtime"`
	Penalty  int `json:"penalty"`
	RedCards int `json:"red_cards"`
	Yellows  int `json:"yellow_cards"`
	Corners  int `json:"corners"`
}

// Display derives the UI-facing score. Once overtime has produced goals the
// regulation score is folded into the overtime total upstream, so overtime
// replaces regular rather than adding to it.
func (s SideScore) Display() int {
	if s.Overtime != 0 {
		return s.Overtime + s.Penalty
	}
	return s.Regular + s.Penalty
}

// Incident is one play-by-play record. Wire form is either an 18-slot
// positional tuple or the equivalent keyed object; both decode into this.
type Incident struct {
	Position   int    `json:"position"`
	Time       string `json:"time"`
	Type       int    `json:"type"`
	Side       Side   `json:"side"`
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
	AssistID   string `json:"assist_id"`
	AssistName string `json:"assist_name"`
	InID       string `json:"in_id"`
	InName     string `json:"in_name"`
	OutID      string `json:"out_id"`
	OutName    string `json:"out_name"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	Reason     string `json:"reason"`
	VARReason  int    `json:"var_reason"`
	VARResult  int    `json:"var_result"`
	Text       string `json:"text"`
}

// Incident type codes from the provider feed.
const (
	IncidentGoal         = 1
	IncidentCorner       = 2
	IncidentYellowCard   = 3
	IncidentRedCard      = 4
	IncidentPenaltyGoal  = 8
	IncidentSubstitution = 9
	IncidentYellowToRed  = 15
	IncidentOwnGoal      = 17
)

func (i Incident) IsGoal() bool {
	switch i.Type {
	case IncidentGoal, IncidentPenaltyGoal, IncidentOwnGoal:
		return true
	default:
		return false
	}
}

func (i Incident) IsCard() bool {
	switch i.Type {
	case IncidentYellowCard, IncidentRedCard, IncidentYellowToRed:
		return true
	default:
		return false
	}
}

func (i Incident) IsSubstitution() bool {
	return i.Type == IncidentSubstitution
}

// StatLine is one named statistic with a value per side.
type StatLine struct {
	Type int `json:"type"`
	Home int `json:"home"`
	Away int `json:"away"`
}

// TimelineEntry is one free-text live commentary line.
type TimelineEntry struct {
	Time string `json:"time"`
	Text string `json:"data"`
	Side Side   `json:"position"`
}

// LiveState is the persisted per-match row.
type LiveState struct {
	MatchID            string
	Status             Status
	Home               SideScore
	Away               SideScore
	FirstHalfKickoff   int64
	SecondHalfKickoff  int64
	OvertimeKickoff    int64
	ProviderUpdateTime int64
	LastIngestionTime  int64
	Incidents          []Incident
	Statistics         []StatLine
	Timeline           []TimelineEntry
}
