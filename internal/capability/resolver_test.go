package capability_test

import (
	"errors"
	"testing"

	"github.com/blackwell-systems/capwatch/internal/capability"
	"github.com/blackwell-systems/capwatch/internal/capability/capabilitytest"
)

func TestResolve(t *testing.T) {
	act := capabilitytest.New(map[string]uint64{"microphone": 0x41c64e6da3bc1075})
	r := capability.NewResolver(act)

	name, err := r.Resolve("microphone")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if name != 0x41c64e6da3bc1075 {
		t.Errorf("Resolve() = %#x, want %#x", name, uint64(0x41c64e6da3bc1075))
	}
	if act.LastClassID != capability.UsageClassID {
		t.Errorf("class ID = %q, want %q", act.LastClassID, capability.UsageClassID)
	}
	if act.LastIID != capability.UsageStaticsIID {
		t.Errorf("IID = %q, want %q", act.LastIID, capability.UsageStaticsIID)
	}
	if act.Live() != 0 {
		t.Errorf("%d objects not released", act.Live())
	}
}

func TestResolve_Failures(t *testing.T) {
	boom := errors.New("class not registered")

	tests := []struct {
		name       string
		capability string
		setup      func(a *capabilitytest.Activator)
		wantErr    error
	}{
		{
			name:       "empty name",
			capability: "  ",
			wantErr:    capability.ErrEmptyCapability,
		},
		{
			name:       "factory unavailable",
			capability: "microphone",
			setup:      func(a *capabilitytest.Activator) { a.FactoryErr = boom },
			wantErr:    boom,
		},
		{
			name:       "unknown capability rejected",
			capability: "teleporter",
		},
		{
			name:       "state name failure",
			capability: "microphone",
			setup:      func(a *capabilitytest.Activator) { a.StateNameErr = boom },
			wantErr:    boom,
		},
		{
			name:       "zero state name",
			capability: "zero",
			wantErr:    capability.ErrNoStateName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act := capabilitytest.New(map[string]uint64{"microphone": 1, "zero": 0})
			if tt.setup != nil {
				tt.setup(act)
			}

			_, err := capability.NewResolver(act).Resolve(tt.capability)
			if err == nil {
				t.Fatal("Resolve() error = nil, want ResolutionError")
			}

			var resErr *capability.ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("Resolve() error = %T, want *capability.ResolutionError", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve() error = %v, want wrapping %v", err, tt.wantErr)
			}
			if act.Live() != 0 {
				t.Errorf("%d objects not released after failure", act.Live())
			}
		})
	}
}
