package store

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/capwatch/internal/consent"
)

// Helper function to create an in-memory store for testing
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := store.CreateSchema(); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func addCapability(t *testing.T, s *Store, name string) *CapabilityInfo {
	t.Helper()
	info := &CapabilityInfo{
		Name:        name,
		StateName:   0xd1c64e6da3bc1075,
		ChangeStamp: 3,
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SessionID:   "session-1",
	}
	if err := s.UpdateCapability(info); err != nil {
		t.Fatalf("UpdateCapability() failed: %v", err)
	}
	return info
}

func TestQueries_NoSchema_ReturnErrNotInitialized(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer s.Close()

	// Do NOT call CreateSchema, simulate uninitialized database.
	tests := map[string]func() error{
		"ListCapabilities": func() error { _, err := s.ListCapabilities(); return err },
		"CurrentUsage":     func() error { _, err := s.CurrentUsage("microphone"); return err },
		"InUse":            func() error { _, err := s.InUse(); return err },
		"GetCapability":    func() error { _, err := s.GetCapability("microphone"); return err },
	}

	for name, call := range tests {
		t.Run(name, func(t *testing.T) {
			err := call()
			if !errors.Is(err, ErrNotInitialized) {
				t.Errorf("%s() error = %v; want errors.Is(err, ErrNotInitialized)", name, err)
			}
		})
	}
}

func TestErrNotInitialized_ErrorMessage(t *testing.T) {
	if !strings.Contains(ErrNotInitialized.Error(), "capwatch watch") {
		t.Errorf("ErrNotInitialized message %q should mention 'capwatch watch'", ErrNotInitialized)
	}
}

func TestCreateSchema_Idempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateSchema(); err != nil {
		t.Fatalf("second CreateSchema() failed: %v", err)
	}
}

func TestUpdateCapability_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	want := addCapability(t, s, "microphone")

	got, err := s.GetCapability("microphone")
	if err != nil {
		t.Fatalf("GetCapability() failed: %v", err)
	}
	if got.StateName != want.StateName {
		t.Errorf("StateName = %#x, want %#x", got.StateName, want.StateName)
	}
	if got.ChangeStamp != want.ChangeStamp || got.SessionID != want.SessionID {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, want.UpdatedAt)
	}

	want.ChangeStamp = 9
	if err := s.UpdateCapability(want); err != nil {
		t.Fatalf("UpdateCapability() update failed: %v", err)
	}
	got, _ = s.GetCapability("microphone")
	if got.ChangeStamp != 9 {
		t.Errorf("ChangeStamp after update = %d, want 9", got.ChangeStamp)
	}
}

func TestGetCapability_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetCapability("webcam"); err == nil {
		t.Error("GetCapability() should fail for unknown capability")
	}
}

func TestListCapabilities_Ordered(t *testing.T) {
	s := newTestStore(t)
	addCapability(t, s, "webcam")
	addCapability(t, s, "location")
	addCapability(t, s, "microphone")

	infos, err := s.ListCapabilities()
	if err != nil {
		t.Fatalf("ListCapabilities() failed: %v", err)
	}
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	if strings.Join(names, ",") != "location,microphone,webcam" {
		t.Errorf("names = %v, want sorted", names)
	}
}

func TestReplaceSnapshot(t *testing.T) {
	s := newTestStore(t)
	addCapability(t, s, "microphone")

	stop := time.Date(2026, 2, 1, 8, 30, 0, 0, time.UTC)
	first := consent.Snapshot{
		{AppID: "App.X", Capability: "microphone", Packaged: true, InUse: true},
		{AppID: `C:\Tools\rec.exe`, Capability: "microphone", LastUsedStop: stop},
	}
	if err := s.ReplaceSnapshot("microphone", first); err != nil {
		t.Fatalf("ReplaceSnapshot() failed: %v", err)
	}

	got, err := s.CurrentUsage("microphone")
	if err != nil {
		t.Fatalf("CurrentUsage() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("CurrentUsage() = %+v, want 2 rows", got)
	}
	x, ok := got.Find("App.X")
	if !ok || !x.Packaged || !x.InUse || !x.LastUsedStop.IsZero() {
		t.Errorf("App.X = %+v", x)
	}
	rec, ok := got.Find(`C:\Tools\rec.exe`)
	if !ok || rec.InUse || !rec.LastUsedStop.Equal(stop) {
		t.Errorf("rec.exe = %+v", rec)
	}

	second := consent.Snapshot{{AppID: "App.Y", Capability: "microphone", Packaged: true}}
	if err := s.ReplaceSnapshot("microphone", second); err != nil {
		t.Fatalf("ReplaceSnapshot() second failed: %v", err)
	}
	got, _ = s.CurrentUsage("microphone")
	if len(got) != 1 || got[0].AppID != "App.Y" {
		t.Errorf("CurrentUsage() after replace = %+v, want only App.Y", got)
	}
}

func TestReplaceSnapshot_UnknownCapability(t *testing.T) {
	s := newTestStore(t)
	snap := consent.Snapshot{{AppID: "App.X", Capability: "webcam"}}
	if err := s.ReplaceSnapshot("webcam", snap); err == nil {
		t.Error("ReplaceSnapshot() should fail without a capability row")
	}
}

func TestApplyChanges(t *testing.T) {
	s := newTestStore(t)
	addCapability(t, s, "microphone")
	base := consent.Snapshot{
		{AppID: "App.X", Capability: "microphone", Packaged: true},
		{AppID: "App.Y", Capability: "microphone", Packaged: true},
	}
	if err := s.ReplaceSnapshot("microphone", base); err != nil {
		t.Fatalf("ReplaceSnapshot() failed: %v", err)
	}

	changed := []consent.UsageRecord{
		{AppID: "App.X", Capability: "microphone", Packaged: true, InUse: true},
		{AppID: "App.Z", Capability: "microphone", Packaged: true, InUse: true},
	}
	if err := s.ApplyChanges("microphone", changed); err != nil {
		t.Fatalf("ApplyChanges() failed: %v", err)
	}
	if err := s.ApplyChanges("microphone", nil); err != nil {
		t.Fatalf("ApplyChanges(nil) failed: %v", err)
	}

	got, _ := s.CurrentUsage("microphone")
	if len(got) != 3 {
		t.Fatalf("CurrentUsage() = %+v, want 3 rows", got)
	}
	for _, tt := range []struct {
		app   string
		inUse bool
	}{
		{"App.X", true},
		{"App.Y", false},
		{"App.Z", true},
	} {
		r, ok := got.Find(tt.app)
		if !ok || r.InUse != tt.inUse {
			t.Errorf("%s = %+v (found %v), want InUse %v", tt.app, r, ok, tt.inUse)
		}
	}
}

func TestInUse_AcrossCapabilities(t *testing.T) {
	s := newTestStore(t)
	addCapability(t, s, "microphone")
	addCapability(t, s, "webcam")

	s.ReplaceSnapshot("webcam", consent.Snapshot{{AppID: "App.Cam", Capability: "webcam", InUse: true}})
	s.ReplaceSnapshot("microphone", consent.Snapshot{
		{AppID: "App.Mic", Capability: "microphone", InUse: true},
		{AppID: "App.Idle", Capability: "microphone"},
	})

	got, err := s.InUse()
	if err != nil {
		t.Fatalf("InUse() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("InUse() = %+v, want 2 records", got)
	}
	if got[0].Capability != "microphone" || got[1].Capability != "webcam" {
		t.Errorf("InUse() order = %+v, want microphone then webcam", got)
	}
}

func TestRemoveCapability_CascadesUsage(t *testing.T) {
	s := newTestStore(t)
	addCapability(t, s, "microphone")
	s.ReplaceSnapshot("microphone", consent.Snapshot{{AppID: "App.X", Capability: "microphone", InUse: true}})

	if err := s.RemoveCapability("microphone"); err != nil {
		t.Fatalf("RemoveCapability() failed: %v", err)
	}
	got, err := s.CurrentUsage("microphone")
	if err != nil {
		t.Fatalf("CurrentUsage() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("usage rows survived capability removal: %+v", got)
	}
}

func TestUpdateCapability_KeepsUsageRows(t *testing.T) {
	s := newTestStore(t)
	info := addCapability(t, s, "microphone")
	s.ReplaceSnapshot("microphone", consent.Snapshot{{AppID: "App.X", Capability: "microphone"}})

	info.ChangeStamp++
	if err := s.UpdateCapability(info); err != nil {
		t.Fatalf("UpdateCapability() failed: %v", err)
	}
	got, _ := s.CurrentUsage("microphone")
	if len(got) != 1 {
		t.Errorf("usage rows after capability update = %+v, want 1", got)
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	addCapability(t, s, "microphone")
	s.ReplaceSnapshot("microphone", consent.Snapshot{{AppID: "App.X", Capability: "microphone", InUse: true}})

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	infos, _ := s.ListCapabilities()
	inUse, _ := s.InUse()
	if len(infos) != 0 || len(inUse) != 0 {
		t.Errorf("Reset() left %d capabilities and %d in-use rows", len(infos), len(inUse))
	}
}

func TestStateNameStoredAsFixedWidthHex(t *testing.T) {
	s := newTestStore(t)
	info := &CapabilityInfo{Name: "location", StateName: 0x2a, UpdatedAt: time.Now()}
	if err := s.UpdateCapability(info); err != nil {
		t.Fatalf("UpdateCapability() error = %v", err)
	}

	var raw string
	if err := s.db.QueryRow("SELECT state_name FROM capabilities WHERE name = ?", "location").Scan(&raw); err != nil {
		t.Fatalf("select state_name: %v", err)
	}
	if raw != "0x000000000000002a" {
		t.Errorf("state_name = %q, want 0x000000000000002a", raw)
	}
}

func TestStateNameEncoding(t *testing.T) {
	for _, v := range []uint64{0, 1, 0x41c64e6da3bc1075, ^uint64(0)} {
		got, err := parseStateName(formatStateName(v))
		if err != nil || got != v {
			t.Errorf("round trip %#x = %#x, %v", v, got, err)
		}
	}
}
