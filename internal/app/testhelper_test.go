package app

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/capwatch/internal/capability/capabilitytest"
	"github.com/blackwell-systems/capwatch/internal/consent/consenttest"
	"github.com/blackwell-systems/capwatch/internal/wnf/wnftest"
)

var testStateNames = map[string]uint64{
	"microphone": 0x41c64e6da3bc1075,
	"webcam":     0x41c64e6da3bc0875,
	"location":   0x41c64e6da3bc0075,
}

type testApp struct {
	dir  string
	hive *consenttest.Hive
	wnf  *wnftest.Platform
}

// setupTestApp points the config, database and state directory at a temp
// dir and swaps the system platform for fakes. Everything is restored with
// t.Cleanup.
func setupTestApp(t *testing.T) *testApp {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("APPDATA", dir)

	oldConfig, oldDB, oldLevel, oldFormat := configPath, dbPath, logLevel, logFormat
	configPath = filepath.Join(dir, "config.yaml")
	dbPath = filepath.Join(dir, "capwatch.db")
	logLevel, logFormat = "", ""

	ta := &testApp{
		dir:  dir,
		hive: consenttest.New(),
		wnf:  wnftest.New(),
	}
	for _, sn := range testStateNames {
		ta.wnf.SetState(sn, 1, nil)
	}

	oldPlatform := systemPlatform
	systemPlatform = func() platform {
		return platform{
			hive:      ta.hive,
			activator: capabilitytest.New(testStateNames),
			wnf:       ta.wnf,
		}
	}

	t.Cleanup(func() {
		configPath, dbPath, logLevel, logFormat = oldConfig, oldDB, oldLevel, oldFormat
		systemPlatform = oldPlatform
		sampleJSON, sampleInUse = false, false
		listAvailable = false
	})
	return ta
}

// captureOutput routes cmd's output into a buffer for the test.
func captureOutput(t *testing.T, cmd *cobra.Command) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	t.Cleanup(func() { cmd.SetOut(nil) })
	return &buf
}
