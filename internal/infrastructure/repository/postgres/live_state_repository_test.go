package postgres

import (
	"testing"

	"github.com/bytedance/sonic"

	"github.com/riskibarqy/matchlive/internal/domain/match"
)

func TestMarshalStatistics_StoresObjectKeyedByType(t *testing.T) {
	payload, err := marshalStatistics([]match.StatLine{
		{Type: 23, Home: 6, Away: 2},
		{Type: 25, Home: 54, Away: 46},
	})
	if err != nil {
		t.Fatalf("marshal statistics: %v", err)
	}

	var doc map[string]struct {
		Home int `json:"home"`
		Away int `json:"away"`
	}
	if err := sonic.Unmarshal(payload, &doc); err != nil {
		t.Fatalf("statistics column is not a JSON object: %v (%s)", err, payload)
	}
	if len(doc) != 2 {
		t.Fatalf("unexpected key count: %d", len(doc))
	}
	if doc["23"].Home != 6 || doc["23"].Away != 2 {
		t.Fatalf("unexpected values for statistic 23: %+v", doc["23"])
	}
	if doc["25"].Home != 54 || doc["25"].Away != 46 {
		t.Fatalf("unexpected values for statistic 25: %+v", doc["25"])
	}
}

func TestMarshalStatistics_EmptyIsObject(t *testing.T) {
	payload, err := marshalStatistics(nil)
	if err != nil {
		t.Fatalf("marshal statistics: %v", err)
	}
	if string(payload) != "{}" {
		t.Fatalf("empty statistics should store {}, got %s", payload)
	}
}

func TestUnmarshalStatistics_RestoresLinesInTypeOrder(t *testing.T) {
	lines, err := unmarshalStatistics([]byte(`{"25":{"home":54,"away":46},"23":{"home":6,"away":2}}`))
	if err != nil {
		t.Fatalf("unmarshal statistics: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("unexpected line count: %d", len(lines))
	}
	if lines[0].Type != 23 || lines[0].Home != 6 || lines[0].Away != 2 {
		t.Fatalf("unexpected first line: %+v", lines[0])
	}
	if lines[1].Type != 25 || lines[1].Home != 54 || lines[1].Away != 46 {
		t.Fatalf("unexpected second line: %+v", lines[1])
	}
}

func TestUnmarshalStatistics_RejectsNonNumericKey(t *testing.T) {
	if _, err := unmarshalStatistics([]byte(`{"possession":{"home":54,"away":46}}`)); err == nil {
		t.Fatal("non-numeric statistic key should be rejected")
	}
}
