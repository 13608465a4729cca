package store

import "time"

// CapabilityInfo describes one monitored capability.
type CapabilityInfo struct {
	Name        string
	StateName   uint64
	ChangeStamp uint32
	UpdatedAt   time.Time
	SessionID   string // watch session that last wrote the row
}
