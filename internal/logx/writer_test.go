package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNonTerminalOutputIsJSON(t *testing.T) {
	var buf bytes.Buffer
	l := loggerTo(&buf, false)
	l.Info().Str("k", "v").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("non-terminal output is not JSON: %v\n%s", err, buf.Bytes())
	}
	if entry["service"] != "aisopod" || entry["k"] != "v" {
		t.Fatalf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Fatalf("entry missing timestamp: %v", entry)
	}
}

func TestTerminalOutputIsConsole(t *testing.T) {
	var buf bytes.Buffer
	l := loggerTo(&buf, true)
	l.Info().Msg("hello")
	if json.Valid(buf.Bytes()) || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("terminal output = %q", buf.String())
	}
}
