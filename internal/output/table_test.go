package output

import (
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/capwatch/internal/consent"
	"github.com/blackwell-systems/capwatch/internal/store"
)

func TestRenderUsageTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	snap := consent.Snapshot{
		{AppID: `C:\Program Files\Old\old.exe`, Capability: "microphone", LastUsedStop: time.Now().Add(-3 * time.Hour)},
		{AppID: "Microsoft.WindowsSoundRecorder_8wekyb3d8bbwe", Capability: "microphone", Packaged: true, InUse: true},
		{AppID: `C:\Tools\never.exe`, Capability: "microphone"},
	}

	out := RenderUsageTable("microphone", snap)

	for _, want := range []string{"App", "Kind", "Status", "Last Used", "IN USE", "packaged", "desktop", "3 hours ago", "never", "3 app(s), 1 in use"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	lines := strings.Split(out, "\n")
	if !strings.Contains(lines[2], "SoundRecorder") {
		t.Errorf("in-use app should be listed first, got %q", lines[2])
	}
	if strings.Contains(out, "\033[") {
		t.Error("ANSI codes emitted with NO_COLOR set")
	}
}

func TestRenderUsageTable_Empty(t *testing.T) {
	out := RenderUsageTable("webcam", consent.Snapshot{})
	if out != "No apps have used webcam.\n" {
		t.Errorf("RenderUsageTable(empty) = %q", out)
	}
}

func TestRenderCapabilityTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	infos := []*store.CapabilityInfo{
		{Name: "microphone", StateName: 0x41c64e6da3bc1075, ChangeStamp: 12, UpdatedAt: time.Now().Add(-2 * time.Minute)},
		{Name: "webcam", StateName: 0x41c64e6da3bc0875, UpdatedAt: time.Now()},
	}
	out := RenderCapabilityTable(infos, map[string]int{"microphone": 2})

	for _, want := range []string{"Capability", "microphone", "0x41c64e6da3bc1075", "12", "2 minutes ago", "webcam"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if got := RenderCapabilityTable(nil, nil); got != "No capabilities are being watched.\n" {
		t.Errorf("RenderCapabilityTable(nil) = %q", got)
	}
}

func TestRenderInUseSummary(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	out := RenderInUseSummary([]consent.UsageRecord{
		{AppID: "App.X", Capability: "microphone", InUse: true},
		{AppID: `C:\cam.exe`, Capability: "webcam", InUse: true},
	})
	if !strings.Contains(out, "microphone   App.X") || !strings.Contains(out, `webcam       C:\cam.exe`) {
		t.Errorf("unexpected summary:\n%s", out)
	}

	if got := RenderInUseSummary(nil); !strings.Contains(got, "No app is currently using") {
		t.Errorf("RenderInUseSummary(nil) = %q", got)
	}
}

func TestFormatChange(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 8, 7, 654_000_000, time.Local)

	tests := []struct {
		name string
		rec  consent.UsageRecord
		want string
	}{
		{
			name: "started",
			rec:  consent.UsageRecord{AppID: `C:\Program Files\app.exe`, Capability: "microphone", InUse: true},
			want: `[09:08:07.654][SNITCH] C:\Program Files\app.exe is accessing microphone!`,
		},
		{
			name: "stopped",
			rec:  consent.UsageRecord{AppID: "App.X", Capability: "webcam"},
			want: "[09:08:07.654][SNITCH] App.X stopped accessing webcam!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatChange(at, tt.rec); got != tt.want {
				t.Errorf("FormatChange() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncatePath(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short.exe", 20, "short.exe"},
		{`C:\very\long\path\tool.exe`, 12, "...\\tool.exe"},
		{"abcdef", 3, "def"},
		{`C:\Users\Jörg\Приложения\запись.exe`, 13, "...запись.exe"},
		{"日本語のアプリ", 7, "日本語のアプリ"},
	}

	for _, tt := range tests {
		if got := truncatePath(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncatePath(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
