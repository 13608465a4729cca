package consent

import (
	"errors"
	"fmt"
)

const (
	// ConsentStorePath is the per-user root holding one key per capability.
	ConsentStorePath = `Software\Microsoft\Windows\CurrentVersion\CapabilityAccessManager\ConsentStore`

	// NonPackagedKey is the reserved child holding non-packaged executables.
	NonPackagedKey = "NonPackaged"

	lastUsedTimeStart = "LastUsedTimeStart"
	lastUsedTimeStop  = "LastUsedTimeStop"
)

// Reader samples the consent store.
type Reader struct {
	hive Hive
}

// NewReader creates a Reader over hive. A nil hive selects SystemHive.
func NewReader(hive Hive) *Reader {
	if hive == nil {
		hive = SystemHive()
	}
	return &Reader{hive: hive}
}

// RootPath returns the consent store path for capability.
func RootPath(capability string) string {
	return ConsentStorePath + `\` + capability
}

// Sample reads every application entry recorded for capability.
//
// A capability that has never been used has no root key; that yields an
// empty snapshot and no error. Every other failure is a *StoreReadError.
func (r *Reader) Sample(capability string) (Snapshot, error) {
	rootPath := RootPath(capability)

	root, err := r.hive.OpenKey(rootPath)
	if errors.Is(err, ErrKeyNotFound) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, &StoreReadError{Capability: capability, Path: rootPath, Err: err}
	}
	defer root.Close()

	names, err := root.SubKeyNames()
	if err != nil {
		return nil, &StoreReadError{Capability: capability, Path: rootPath, Err: err}
	}

	snap := make(Snapshot, 0, len(names))
	for _, name := range names {
		if name == NonPackagedKey {
			records, err := r.readNonPackaged(root, capability, rootPath+`\`+name)
			if err != nil {
				return nil, err
			}
			snap = append(snap, records...)
			continue
		}

		rec, ok, err := readEntry(root, name, capability, rootPath+`\`+name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rec.AppID = name
		rec.Packaged = true
		snap = append(snap, rec)
	}

	return snap, nil
}

func (r *Reader) readNonPackaged(root Key, capability, path string) ([]UsageRecord, error) {
	container, err := root.OpenSubKey(NonPackagedKey)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreReadError{Capability: capability, Path: path, Err: err}
	}
	defer container.Close()

	names, err := container.SubKeyNames()
	if err != nil {
		return nil, &StoreReadError{Capability: capability, Path: path, Err: err}
	}

	records := make([]UsageRecord, 0, len(names))
	for _, name := range names {
		rec, ok, err := readEntry(container, name, capability, path+`\`+name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		rec.AppID = DecodeAppPath(name)
		rec.Packaged = false
		records = append(records, rec)
	}
	return records, nil
}

// readEntry reads one leaf. ok is false when the key disappeared after it
// was enumerated (the OS prunes entries on uninstall).
func readEntry(parent Key, name, capability, path string) (UsageRecord, bool, error) {
	leaf, err := parent.OpenSubKey(name)
	if errors.Is(err, ErrKeyNotFound) {
		return UsageRecord{}, false, nil
	}
	if err != nil {
		return UsageRecord{}, false, &StoreReadError{Capability: capability, Path: path, Err: err}
	}
	defer leaf.Close()

	stop, hasStop, err := leaf.Uint64(lastUsedTimeStop)
	if err != nil {
		return UsageRecord{}, false, &StoreReadError{
			Capability: capability,
			Path:       path,
			Err:        fmt.Errorf("%s: %w", lastUsedTimeStop, err),
		}
	}
	start, _, err := leaf.Uint64(lastUsedTimeStart)
	if err != nil {
		return UsageRecord{}, false, &StoreReadError{
			Capability: capability,
			Path:       path,
			Err:        fmt.Errorf("%s: %w", lastUsedTimeStart, err),
		}
	}

	return UsageRecord{
		Capability:    capability,
		InUse:         hasStop && stop == 0,
		LastUsedStart: filetimeToTime(start),
		LastUsedStop:  filetimeToTime(stop),
	}, true, nil
}

// Capabilities lists the capability roots present in the consent store.
func (r *Reader) Capabilities() ([]string, error) {
	root, err := r.hive.OpenKey(ConsentStorePath)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreReadError{Path: ConsentStorePath, Err: err}
	}
	defer root.Close()

	names, err := root.SubKeyNames()
	if err != nil {
		return nil, &StoreReadError{Path: ConsentStorePath, Err: err}
	}
	return names, nil
}
