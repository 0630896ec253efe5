package cmd

import (
	"testing"
	"time"
)

func TestCheckRunArgs(t *testing.T) {
	tests := []struct {
		name       string
		regenerate bool
		dataset    string
		input      string
		wantErr    bool
	}{
		{"regenerate with dataset", true, "dataset", "", false},
		{"regenerate without dataset", true, "", "photo.jpg", true},
		{"recognize only", false, "", "photo.jpg", false},
		{"both", true, "dataset", "photo.jpg", false},
		{"nothing", false, "dataset", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := checkRunArgs(tc.regenerate, tc.dataset, tc.input)
			if (err != nil) != tc.wantErr {
				t.Errorf("checkRunArgs() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + 7*time.Minute, "2h7m"},
	}

	for _, tc := range tests {
		if got := formatDuration(tc.in); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"run", "build", "recognize", "identities", "serve", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
}

func TestMustGet(t *testing.T) {
	if got := mustGetFloat64(runCmd, "threshold"); got != 0.6 {
		t.Errorf("default threshold = %v, want 0.6", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("expected panic for an undefined flag")
		}
	}()
	mustGetString(runCmd, "no-such-flag")
}

func TestVersionInfo(t *testing.T) {
	info := versionInfo()
	if info.Version == "" || info.Commit == "" || info.BuildDate == "" {
		t.Errorf("version info has empty fields: %+v", info)
	}
	if info.GoVersion == "" {
		t.Error("expected the Go version to be reported")
	}
}
