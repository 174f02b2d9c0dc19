package version

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version == "" {
		t.Fatal("version should not be empty")
	}
	if info.GoVersion == "" {
		t.Fatal("goVersion should not be empty")
	}
	if !strings.Contains(info.Platform, "/") {
		t.Fatalf("platform should be os/arch, got %q", info.Platform)
	}
}

func TestToJSON(t *testing.T) {
	s, err := Get().ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["version"] != Version() {
		t.Fatalf("version = %v, want %v", decoded["version"], Version())
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "anthropic-kit/") {
		t.Fatalf("unexpected user agent %q", ua)
	}
	if !strings.Contains(ua, Version()) {
		t.Fatalf("user agent %q should carry the version", ua)
	}
}

func TestTable(t *testing.T) {
	out := Get().Table()
	for _, want := range []string{"version:", "goVersion:", "platform:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table output missing %q:\n%s", want, out)
		}
	}
}
