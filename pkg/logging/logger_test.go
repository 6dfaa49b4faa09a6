package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestZerologStructuredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, true)

	logger.WithFields(map[string]interface{}{
		"model":  "Order",
		"column": "status",
	}).Infof("transitioned to %s", "shipped")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("structured output is not JSON: %v (%q)", err, buf.String())
	}
	if record["model"] != "Order" {
		t.Errorf("expected model field Order, got %v", record["model"])
	}
	if record["column"] != "status" {
		t.Errorf("expected column field status, got %v", record["column"])
	}
	if record["message"] != "transitioned to shipped" {
		t.Errorf("unexpected message: %v", record["message"])
	}
}

func TestZerologFlattenedOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologLogger(&buf, false)

	logger.WithFields(map[string]interface{}{"column": "status"}).Info("ok")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("flattened output should not be JSON: %q", out)
	}
	if !strings.Contains(out, "column=") && !strings.Contains(out, "column") {
		t.Errorf("flattened output should carry the field: %q", out)
	}
	if strings.Contains(out, "\n") && strings.Count(strings.TrimSpace(out), "\n") > 0 {
		t.Errorf("flattened record should be a single line: %q", out)
	}
}

func TestStdLoggerWithFieldsMerges(t *testing.T) {
	base := NewStdLogger().(*stdLogger)
	derived := base.WithFields(map[string]interface{}{"a": 1}).
		WithFields(map[string]interface{}{"b": 2}).(*stdLogger)

	if got := derived.flatten("msg"); got != "msg a=1 b=2" {
		t.Errorf("unexpected flattened message: %q", got)
	}
	if len(base.fields) != 0 {
		t.Errorf("WithFields must not mutate the parent logger")
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	logger := NewNopLogger()
	logger.Error("nothing")
	logger.Debugf("nothing %d", 1)
}
