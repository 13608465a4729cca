// Package consent reads the per-capability consent store that Windows keeps
// under HKEY_CURRENT_USER and turns it into snapshots of usage records.
//
// The store is two levels deep. Each capability root holds one key per
// packaged application (named by its package family / AUMID) plus a reserved
// NonPackaged key whose children are executables, named by their path with
// every backslash replaced by '#'.
//
// The rule that matters: an application is currently using the capability
// when its LastUsedTimeStop value exists and is exactly zero. The OS clears
// the stop time while access is ongoing and writes a FILETIME when it ends.
package consent

import "time"

// UsageRecord describes one application's use of one capability.
type UsageRecord struct {
	// AppID is the executable path for non-packaged apps, or the package
	// identifier for packaged apps.
	AppID      string `json:"app_id"`
	Capability string `json:"capability"`
	Packaged   bool   `json:"packaged"`
	InUse      bool   `json:"in_use"`

	// LastUsedStart and LastUsedStop are informational and never compared
	// when diffing. Zero when the store has no (or a zero) timestamp.
	LastUsedStart time.Time `json:"last_used_start,omitempty"`
	LastUsedStop  time.Time `json:"last_used_stop,omitempty"`
}

// Snapshot is the result of one read pass over a capability root.
type Snapshot []UsageRecord

// InUse returns the records currently using the capability, in order.
func (s Snapshot) InUse() []UsageRecord {
	var active []UsageRecord
	for _, rec := range s {
		if rec.InUse {
			active = append(active, rec)
		}
	}
	return active
}

// Find returns the record for appID, if present.
func (s Snapshot) Find(appID string) (UsageRecord, bool) {
	for _, rec := range s {
		if rec.AppID == appID {
			return rec, true
		}
	}
	return UsageRecord{}, false
}

// filetimeEpochDelta is the number of 100ns intervals between 1601-01-01 and
// the Unix epoch.
const filetimeEpochDelta = 116444736000000000

// filetimeToTime converts a Windows FILETIME to time.Time. Zero and pre-1970
// values map to the zero time.
func filetimeToTime(ft uint64) time.Time {
	if ft <= filetimeEpochDelta {
		return time.Time{}
	}
	return time.Unix(0, int64(ft-filetimeEpochDelta)*100).UTC()
}
