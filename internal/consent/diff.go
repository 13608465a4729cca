package consent

// Diff returns the records of cur that changed relative to prev, in cur's
// order. A record is changed when prev has no entry for its AppID, or when
// its InUse flag differs from prev's entry.
//
// Entries that vanished from cur are not reported.
func Diff(prev, cur Snapshot) []UsageRecord {
	before := make(map[string]bool, len(prev))
	for _, rec := range prev {
		before[rec.AppID] = rec.InUse
	}

	var changed []UsageRecord
	for _, rec := range cur {
		inUse, seen := before[rec.AppID]
		if !seen || inUse != rec.InUse {
			changed = append(changed, rec)
		}
	}
	return changed
}
