package match

import "testing"

func TestSideScore_Display_Regulation(t *testing.T) {
	score := SideScore{Regular: 2, Halftime: 1}
	if got := score.Display(); got != 2 {
		t.Fatalf("unexpected display score: %d", got)
	}
}

func TestSideScore_Display_OvertimeReplacesRegular(t *testing.T) {
	// Once overtime goals exist the overtime total already folds in the
	// regulation goals upstream.
	score := SideScore{Regular: 2, Overtime: 3}
	if got := score.Display(); got != 3 {
		t.Fatalf("unexpected display score: %d", got)
	}
}

func TestSideScore_Display_PenaltiesAdd(t *testing.T) {
	regulation := SideScore{Regular: 1, Penalty: 4}
	if got := regulation.Display(); got != 5 {
		t.Fatalf("unexpected display score without overtime: %d", got)
	}

	knockout := SideScore{Regular: 1, Overtime: 2, Penalty: 4}
	if got := knockout.Display(); got != 6 {
		t.Fatalf("unexpected display score with overtime: %d", got)
	}
}

func TestStatusFromCode(t *testing.T) {
	cases := []struct {
		code   int
		status Status
		known  bool
	}{
		{CodeNotStarted, StatusNotStarted, true},
		{CodeFirstHalf, StatusFirstHalf, true},
		{CodeHalfTime, StatusHalfTime, true},
		{CodeSecondHalf, StatusSecondHalf, true},
		{CodeOvertime, StatusOvertime, true},
		{CodePenaltyShootout, StatusPenaltyShootout, true},
		{CodeEnded, StatusEnded, true},
		{CodeInterrupted, StatusInterrupted, true},
		{CodeCancelled, StatusCancelled, true},
		{99, "", false},
	}

	for _, tc := range cases {
		status, known := StatusFromCode(tc.code)
		if known != tc.known {
			t.Fatalf("code %d: known = %t, want %t", tc.code, known, tc.known)
		}
		if known && status != tc.status {
			t.Fatalf("code %d: status = %s, want %s", tc.code, status, tc.status)
		}
	}
}

func TestIsResurrection(t *testing.T) {
	if !IsResurrection(StatusEnded, StatusOvertime) {
		t.Fatal("ENDED to OVERTIME should be a resurrection")
	}
	if !IsResurrection(StatusEnded, StatusPenaltyShootout) {
		t.Fatal("ENDED to PENALTY_SHOOTOUT should be a resurrection")
	}
	if IsResurrection(StatusEnded, StatusFirstHalf) {
		t.Fatal("ENDED to FIRST_HALF should not be a resurrection")
	}
	if IsResurrection(StatusSecondHalf, StatusOvertime) {
		t.Fatal("SECOND_HALF to OVERTIME should not be a resurrection")
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(StatusCancelled) {
		t.Fatal("CANCELLED should be terminal")
	}
	// ENDED is not terminal: knockout matches can come back for overtime.
	if IsTerminal(StatusEnded) {
		t.Fatal("ENDED should not be terminal")
	}
	if IsTerminal(StatusInterrupted) {
		t.Fatal("INTERRUPTED should not be terminal")
	}
}

func TestNormalizeStatus(t *testing.T) {
	if got := NormalizeStatus(" first_half "); got != StatusFirstHalf {
		t.Fatalf("unexpected status: %s", got)
	}
	if got := NormalizeStatus(""); got != StatusNotStarted {
		t.Fatalf("empty value should default to NOT_STARTED, got %s", got)
	}
}
