package xlog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONEncoderProducesValidJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf), WithLevel(LevelDebug))
	l.Info("snapshot applied", String("venue", "binance"), Int64("update_id", 42))

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("expected valid JSON line, got error %v for %q", err, buf.String())
	}
	if decoded["msg"] != "snapshot applied" {
		t.Fatalf("unexpected msg field: %v", decoded["msg"])
	}
	if decoded["venue"] != "binance" {
		t.Fatalf("unexpected venue field: %v", decoded["venue"])
	}
}

func TestSetLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf), WithLevel(LevelWarn))
	l.Debug("should not appear")
	l.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below the configured level, got %q", buf.String())
	}
	l.Warn("should appear")
	if buf.Len() == 0 {
		t.Fatal("expected warn-level entry to be written")
	}
}

func TestWithAttachesFieldsToEveryEntry(t *testing.T) {
	var buf bytes.Buffer
	base := New(WithOutput(&buf), WithLevel(LevelDebug))
	scoped := base.With(String("venue", "bitstamp"))
	scoped.Info("phase transition")

	if !strings.Contains(buf.String(), `"venue":"bitstamp"`) {
		t.Fatalf("expected scoped field in output, got %q", buf.String())
	}
}

func TestTextEncoderIncludesFieldsAsKeyValue(t *testing.T) {
	var buf bytes.Buffer
	l := New(WithOutput(&buf), WithEncoder(NewTextEncoder()), WithLevel(LevelDebug))
	l.Error("desync", String("venue", "binance"))

	if !strings.Contains(buf.String(), "venue=binance") {
		t.Fatalf("expected key=value rendering, got %q", buf.String())
	}
}
