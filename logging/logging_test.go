package logging

import "testing"

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestResolveFormat(t *testing.T) {
	if got := resolveFormat("JSON", 0); got != "json" {
		t.Fatalf("resolveFormat(JSON) = %q", got)
	}
	if got := resolveFormat("pretty", 0); got != "console" {
		t.Fatalf("resolveFormat(pretty) = %q", got)
	}
	// an invalid descriptor is never a terminal
	if got := resolveFormat("auto", ^uintptr(0)); got != "json" {
		t.Fatalf("resolveFormat(auto) = %q", got)
	}
}

func TestNewBuildsLogger(t *testing.T) {
	logger, err := New("debug", "json")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("hello")
	_ = logger.Sync()
}
