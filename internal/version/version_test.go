package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		// Save original values
		origVersion := Version
		origCommit := Commit
		origBuildTime := BuildTime
		defer func() {
			Version = origVersion
			Commit = origCommit
			BuildTime = origBuildTime
		}()

		Version = "dev"
		Commit = "unknown"
		BuildTime = "unknown"

		result := String()
		if result != "dev (unknown) built unknown" {
			t.Errorf("String() = %q, want %q", result, "dev (unknown) built unknown")
		}
	})

	t.Run("custom values", func(t *testing.T) {
		origVersion := Version
		origCommit := Commit
		origBuildTime := BuildTime
		defer func() {
			Version = origVersion
			Commit = origCommit
			BuildTime = origBuildTime
		}()

		Version = "1.2.3"
		Commit = "abc1234"
		BuildTime = "2024-01-15T10:00:00Z"

		expected := "1.2.3 (abc1234) built 2024-01-15T10:00:00Z"
		if result := String(); result != expected {
			t.Errorf("String() = %q, want %q", result, expected)
		}
	})
}

func TestUserAgent(t *testing.T) {
	origVersion := Version
	defer func() { Version = origVersion }()

	Version = "2.0.0"
	if got := UserAgent(); got != "issue-dashboard/2.0.0" {
		t.Errorf("UserAgent() = %q, want %q", got, "issue-dashboard/2.0.0")
	}
}

func TestDefaultValues(t *testing.T) {
	// These might be overwritten by ldflags in production builds
	if Version == "" {
		t.Error("Version should not be empty")
	}
	if Commit == "" {
		t.Error("Commit should not be empty")
	}
	if BuildTime == "" {
		t.Error("BuildTime should not be empty")
	}
	if !strings.Contains(String(), "built") {
		t.Errorf("String() = %q, should contain 'built'", String())
	}
}
