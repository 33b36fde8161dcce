package obs

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestLogEventStampsTimestamp(t *testing.T) {
	logger := Logger()
	prev := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(prev)

	LogEvent(map[string]any{"level": "warn", "message": "rule skipped"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	ts, ok := entry["ts"].(string)
	if !ok || ts == "" {
		t.Fatalf("expected a ts field, got %v", entry["ts"])
	}
	if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Fatalf("ts is not RFC3339Nano: %v", err)
	}

	buf.Reset()
	LogEvent(map[string]any{"ts": "caller-set", "message": "rule skipped"})
	entry = map[string]any{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["ts"] != "caller-set" {
		t.Fatalf("caller ts was overwritten: got %v", entry["ts"])
	}
}
