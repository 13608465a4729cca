package app

import (
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/capwatch/internal/consent"
	"github.com/blackwell-systems/capwatch/internal/store"
)

// seedStore writes a mirrored microphone capability with one in-use app.
func seedStore(t *testing.T) {
	t.Helper()
	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer st.Close()
	if err := st.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	info := &store.CapabilityInfo{
		Name:        "microphone",
		StateName:   testStateNames["microphone"],
		ChangeStamp: 3,
		UpdatedAt:   time.Now(),
		SessionID:   "test-session",
	}
	if err := st.UpdateCapability(info); err != nil {
		t.Fatalf("UpdateCapability: %v", err)
	}
	snap := consent.Snapshot{
		{AppID: `C:\Tools\rec.exe`, Capability: "microphone", InUse: true},
		{AppID: `C:\Tools\old.exe`, Capability: "microphone"},
	}
	if err := st.ReplaceSnapshot("microphone", snap); err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}
}

func TestRunListAvailable(t *testing.T) {
	ta := setupTestApp(t)
	ta.hive.NonPackaged("microphone", `C:\Tools\rec.exe`, 0)
	ta.hive.Packaged("webcam", "Microsoft.WindowsCamera_8wekyb3d8bbwe", 0)
	out := captureOutput(t, listCmd)
	listAvailable = true

	if err := runList(listCmd, nil); err != nil {
		t.Fatalf("runList: %v", err)
	}
	if got := out.String(); got != "microphone\nwebcam\n" {
		t.Errorf("output = %q", got)
	}
}

func TestRunListMirrored(t *testing.T) {
	setupTestApp(t)
	seedStore(t)
	out := captureOutput(t, listCmd)

	if err := runList(listCmd, nil); err != nil {
		t.Fatalf("runList: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "microphone") || !strings.Contains(got, "0x41c64e6da3bc1075") {
		t.Errorf("output missing mirrored capability:\n%s", got)
	}
}

func TestRunListNotInitialized(t *testing.T) {
	setupTestApp(t)
	out := captureOutput(t, listCmd)

	if err := runList(listCmd, nil); err != nil {
		t.Fatalf("runList: %v", err)
	}
	if !strings.Contains(out.String(), "No watch session has run yet") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCountByCapability(t *testing.T) {
	records := []consent.UsageRecord{
		{AppID: "a", Capability: "microphone"},
		{AppID: "b", Capability: "microphone"},
		{AppID: "c", Capability: "webcam"},
	}
	counts := countByCapability(records)
	if counts["microphone"] != 2 || counts["webcam"] != 1 || counts["location"] != 0 {
		t.Errorf("counts = %v", counts)
	}
}
