package config

import "testing"

// SetProfilesDir points profile loading at dir for the test's duration.
func SetProfilesDir(t *testing.T, dir string) {
	t.Helper()
	old := profilesDir
	profilesDir = dir
	t.Cleanup(func() { profilesDir = old })
}
