package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"a@b@c", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogRedactsEmailFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetLevel(DEBUG)

	Info("subscriber confirmed", "email", "john.doe@example.com", "detail", "sent to jane@example.org")

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["email"] != "jo***@example.com" {
		t.Errorf("email field not redacted: %q", entry["email"])
	}
	if strings.Contains(entry["detail"], "jane@example.org") {
		t.Errorf("embedded email not redacted: %q", entry["detail"])
	}
	if entry["level"] != "INFO" || entry["msg"] != "subscriber confirmed" {
		t.Errorf("unexpected envelope: %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetLevel(WARN)
	defer SetLevel(INFO)

	Debug("hidden")
	Info("hidden too")
	Warn("visible")

	if n := strings.Count(buf.String(), "\n"); n != 1 {
		t.Errorf("expected 1 log line, got %d: %s", n, buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != DEBUG || ParseLevel("WARNING") != WARN || ParseLevel("error") != ERROR {
		t.Error("known levels misparsed")
	}
	if ParseLevel("bogus") != INFO {
		t.Error("unknown level should default to INFO")
	}
}
