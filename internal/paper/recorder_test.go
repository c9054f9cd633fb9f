package paper

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestJSONLRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fills.jsonl")

	recorder, err := NewJSONLRecorder(path)
	if err != nil {
		t.Fatalf("NewJSONLRecorder error: %v", err)
	}
	pnl := 12.0
	recorder.Record(Entry{Kind: EntryFill, AssetID: "tok-up", Label: "UP", Side: "BUY", Price: 0.4, Qty: 20, Ts: time.Unix(1, 0)})
	recorder.Record(Entry{Kind: EntrySettlement, AssetID: "tok-up", Label: "UP", Side: "SETTLEMENT", Price: 1, Qty: 20, PnL: &pnl})
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	recorder.Record(Entry{Kind: EntryFill})

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recorded file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var lines []Entry
	for scanner.Scan() {
		var decoded Entry
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("json decode: %v", err)
		}
		lines = append(lines, decoded)
	}
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d", len(lines))
	}
	if lines[0].PnL != nil || lines[0].Label != "UP" {
		t.Fatalf("unexpected first entry %+v", lines[0])
	}
	if lines[1].PnL == nil || *lines[1].PnL != 12 {
		t.Fatalf("expected settlement pnl, got %+v", lines[1])
	}
}
