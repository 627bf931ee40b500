package version

import "testing"

func TestGet_Defaults(t *testing.T) {
	got := Get()
	if got.AppName != AppName {
		t.Fatalf("AppName = %q, want %q", got.AppName, AppName)
	}
	if got.Version == "" {
		t.Fatal("Version is empty")
	}
	if got.GoVersion == "" {
		t.Fatal("GoVersion not backfilled from build info")
	}
}
