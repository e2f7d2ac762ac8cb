package config

import (
	"strings"
	"testing"
)

const sampleINI = `
; global comment
free-key = free-value

[logsentry]
# section comment
port = 9999
log-level = debug
session-key-fields = ip, ua , path
session-tracking-enabled = Yes
malformed line without equals
`

func TestParseINIBasic(t *testing.T) {
	doc, err := ParseINI(strings.NewReader(sampleINI))
	if err != nil {
		t.Fatalf("ParseINI: %v", err)
	}
	if doc.Global["free-key"] != "free-value" {
		t.Errorf("global free-key = %q", doc.Global["free-key"])
	}
	sec := doc.Sections["logsentry"]
	if sec == nil {
		t.Fatal("expected [logsentry] section")
	}
	if sec["port"] != "9999" {
		t.Errorf("port = %q", sec["port"])
	}
	if _, ok := sec["malformed line without equals"]; ok {
		t.Error("malformed line should have been skipped, not stored as a key")
	}
}

func TestBoolLoose(t *testing.T) {
	cases := map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true, "On": true,
		"false": false, "0": false, "no": false, "": false, "garbage": false,
	}
	for in, want := range cases {
		if got := Bool(in); got != want {
			t.Errorf("Bool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestListTrimsAndDropsEmpty(t *testing.T) {
	got := List("ip, ua , , path")
	want := []string{"ip", "ua", "path"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestApplyINIOverlaysConfig(t *testing.T) {
	doc, err := ParseINI(strings.NewReader(sampleINI))
	if err != nil {
		t.Fatalf("ParseINI: %v", err)
	}
	cfg := Config{Port: 8080, LogLevel: "info", SessionTrackingEnabled: false}
	cfg.ApplyINI(doc)

	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if !cfg.SessionTrackingEnabled {
		t.Error("SessionTrackingEnabled should be true")
	}
	if len(cfg.SessionKeyFields) != 3 || cfg.SessionKeyFields[1] != "ua" {
		t.Errorf("SessionKeyFields = %v", cfg.SessionKeyFields)
	}
}
