package watcher

import (
	"testing"

	"github.com/blackwell-systems/capwatch/internal/capability"
	"github.com/blackwell-systems/capwatch/internal/capability/capabilitytest"
	"github.com/blackwell-systems/capwatch/internal/consent"
	"github.com/blackwell-systems/capwatch/internal/consent/consenttest"
	"github.com/blackwell-systems/capwatch/internal/logging"
	"github.com/blackwell-systems/capwatch/internal/monitor"
	"github.com/blackwell-systems/capwatch/internal/store"
	"github.com/blackwell-systems/capwatch/internal/wnf"
	"github.com/blackwell-systems/capwatch/internal/wnf/wnftest"
)

// setupTestStore creates an in-memory SQLite store for tests and registers
// cleanup with t.Cleanup so callers don't need explicit defer.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("setupTestStore: open: %v", err)
	}
	if err := st.CreateSchema(); err != nil {
		st.Close()
		t.Fatalf("setupTestStore: schema: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

var testStateNames = map[string]uint64{
	"microphone": 0x41c64e6da3bc1075,
	"webcam":     0x41c64e6da3bc0875,
	"location":   0x41c64e6da3bc0075,
}

type testEnv struct {
	hive     *consenttest.Hive
	platform *wnftest.Platform
	template monitor.Options
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		hive:     consenttest.New(),
		platform: wnftest.New(),
	}
	env.template = monitor.Options{
		Reader:     consent.NewReader(env.hive),
		Resolver:   capability.NewResolver(capabilitytest.New(testStateNames)),
		Subscriber: wnf.NewSubscriber(env.platform, logging.Discard()),
		Logger:     logging.Discard(),
	}
	return env
}
