package version

import (
	"strings"
	"testing"
	"time"
)

func TestGetDefaults(t *testing.T) {
	info := Get()
	if info.Version != "dev" {
		t.Errorf("expected version dev, got %q", info.Version)
	}
}

func TestStringForms(t *testing.T) {
	i := Info{Version: "1.2.0"}
	if got := i.String(); got != "1.2.0" {
		t.Errorf("expected bare version, got %q", got)
	}

	i.GitCommit = "abcdef1234567890"
	if got := i.String(); got != "1.2.0-abcdef1" {
		t.Errorf("expected shortened commit, got %q", got)
	}

	i.Dirty = true
	if got := i.String(); !strings.HasSuffix(got, "-dirty") {
		t.Errorf("expected dirty suffix, got %q", got)
	}

	i.BuildDate = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := i.String(); !strings.Contains(got, "built 2026-03-01T12:00:00Z") {
		t.Errorf("expected build date, got %q", got)
	}
}
