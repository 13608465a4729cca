// Package output renders capability usage for the terminal.
//
// Tables use ANSI colour only when stdout is a terminal and NO_COLOR is
// unset. Change lines follow a fixed log-like layout so they can be grepped.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/capwatch/internal/consent"
	"github.com/blackwell-systems/capwatch/internal/store"
)

// ANSI color codes for usage status display
const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorGray  = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderUsageTable renders one capability snapshot. In-use apps are listed
// first, then the rest in snapshot order.
func RenderUsageTable(capability string, snap consent.Snapshot) string {
	if len(snap) == 0 {
		return fmt.Sprintf("No apps have used %s.\n", capability)
	}

	ordered := make([]consent.UsageRecord, 0, len(snap))
	ordered = append(ordered, snap.InUse()...)
	for _, r := range snap {
		if !r.InUse {
			ordered = append(ordered, r)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-48s %-9s %-8s %s\n", "App", "Kind", "Status", "Last Used"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, r := range ordered {
		status := colorize(colorGray, fmt.Sprintf("%-8s", "idle"))
		if r.InUse {
			status = colorize(colorRed, fmt.Sprintf("%-8s", "IN USE"))
		}
		sb.WriteString(fmt.Sprintf("%-48s %-9s %s %s\n",
			truncatePath(r.AppID, 48),
			appKind(r),
			status,
			formatLastUsed(r)))
	}

	sb.WriteString(fmt.Sprintf("\n%s: %d app(s), %d in use\n", capability, len(snap), len(snap.InUse())))
	return sb.String()
}

// RenderCapabilityTable renders the capabilities mirrored by the watcher.
// inUse maps capability name to its number of in-use apps.
func RenderCapabilityTable(infos []*store.CapabilityInfo, inUse map[string]int) string {
	if len(infos) == 0 {
		return "No capabilities are being watched.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-20s %-20s %-8s %-7s %s\n", "Capability", "State Name", "Stamp", "In Use", "Updated"))
	sb.WriteString(strings.Repeat("─", 72))
	sb.WriteString("\n")

	for _, info := range infos {
		count := fmt.Sprintf("%-7d", inUse[info.Name])
		if inUse[info.Name] > 0 {
			count = colorize(colorRed, count)
		}
		sb.WriteString(fmt.Sprintf("%-20s %-20s %-8d %s %s\n",
			info.Name,
			fmt.Sprintf("%#016x", info.StateName),
			info.ChangeStamp,
			count,
			humanize.Time(info.UpdatedAt)))
	}
	return sb.String()
}

// RenderInUseSummary renders the startup report of apps currently using any
// monitored capability.
func RenderInUseSummary(records []consent.UsageRecord) string {
	if len(records) == 0 {
		return colorize(colorGreen, "No app is currently using a monitored capability.") + "\n"
	}

	var sb strings.Builder
	sb.WriteString("Currently in use:\n")
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("  %-12s %s\n", r.Capability, r.AppID))
	}
	return sb.String()
}

// FormatChange renders one changed record as a change line:
//
//	[15:04:05.000][SNITCH] C:\app.exe is accessing microphone!
func FormatChange(at time.Time, r consent.UsageRecord) string {
	verb := "stopped accessing"
	if r.InUse {
		verb = "is accessing"
	}
	return fmt.Sprintf("[%s][SNITCH] %s %s %s!", at.Format("15:04:05.000"), r.AppID, verb, r.Capability)
}

func appKind(r consent.UsageRecord) string {
	if r.Packaged {
		return "packaged"
	}
	return "desktop"
}

// formatLastUsed describes when the app last stopped using the capability.
func formatLastUsed(r consent.UsageRecord) string {
	switch {
	case r.InUse:
		return "now"
	case r.LastUsedStop.IsZero():
		return "never"
	default:
		return humanize.Time(r.LastUsedStop)
	}
}

// truncatePath keeps the tail of long identifiers, where the executable
// name is.
func truncatePath(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[len(r)-maxLen:])
	}
	return "..." + string(r[len(r)-(maxLen-3):])
}
