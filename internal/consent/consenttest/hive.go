// Package consenttest provides an in-memory consent.Hive for tests.
package consenttest

import (
	"sort"
	"strings"
	"sync"

	"github.com/blackwell-systems/capwatch/internal/consent"
)

type node struct {
	children map[string]*node
	values   map[string]uint64
}

func newNode() *node {
	return &node{
		children: make(map[string]*node),
		values:   make(map[string]uint64),
	}
}

// Hive is a mutable in-memory hive. Keys are resolved on every call, so
// deleting a key after it was enumerated behaves like the real registry.
type Hive struct {
	mu        sync.Mutex
	root      *node
	openErrs  map[string]error
	valueErrs map[string]error
	open      int
}

// New returns an empty hive.
func New() *Hive {
	return &Hive{
		root:      newNode(),
		openErrs:  make(map[string]error),
		valueErrs: make(map[string]error),
	}
}

func split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, `\`)
}

func (h *Hive) lookup(path string) *node {
	n := h.root
	for _, part := range split(path) {
		child, ok := n.children[part]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

func (h *Hive) ensure(path string) *node {
	n := h.root
	for _, part := range split(path) {
		child, ok := n.children[part]
		if !ok {
			child = newNode()
			n.children[part] = child
		}
		n = child
	}
	return n
}

// CreateKey creates path and any missing parents.
func (h *Hive) CreateKey(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure(path)
}

// SetValue sets an integer value, creating the key if needed.
func (h *Hive) SetValue(path, name string, v uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ensure(path).values[name] = v
}

// DeleteKey removes path and its subtree.
func (h *Hive) DeleteKey(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	parts := split(path)
	if len(parts) == 0 {
		h.root = newNode()
		return
	}
	parent := h.lookup(strings.Join(parts[:len(parts)-1], `\`))
	if parent != nil {
		delete(parent.children, parts[len(parts)-1])
	}
}

// FailOpen makes every open of path fail with err. A nil err clears it.
func (h *Hive) FailOpen(path string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.openErrs, path)
		return
	}
	h.openErrs[path] = err
}

// FailValue makes reads of the named value under path fail with err.
func (h *Hive) FailValue(path, name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.valueErrs[path+`\`+name] = err
}

// Unclosed returns how many opened keys have not been closed yet.
func (h *Hive) Unclosed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// Packaged records a packaged app entry with the given LastUsedTimeStop.
func (h *Hive) Packaged(capability, appID string, stop uint64) {
	h.SetValue(consent.RootPath(capability)+`\`+appID, "LastUsedTimeStop", stop)
}

// NonPackaged records a non-packaged executable with the given
// LastUsedTimeStop.
func (h *Hive) NonPackaged(capability, exePath string, stop uint64) {
	h.SetValue(nonPackagedPath(capability, exePath), "LastUsedTimeStop", stop)
}

// RemoveNonPackaged deletes a non-packaged executable entry.
func (h *Hive) RemoveNonPackaged(capability, exePath string) {
	h.DeleteKey(nonPackagedPath(capability, exePath))
}

func nonPackagedPath(capability, exePath string) string {
	return consent.RootPath(capability) + `\` + consent.NonPackagedKey + `\` + consent.EncodeAppPath(exePath)
}

// OpenKey implements consent.Hive.
func (h *Hive) OpenKey(path string) (consent.Key, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err, ok := h.openErrs[path]; ok {
		return nil, err
	}
	if h.lookup(path) == nil {
		return nil, consent.ErrKeyNotFound
	}
	h.open++
	return &key{hive: h, path: path}, nil
}

type key struct {
	hive   *Hive
	path   string
	closed bool
}

func (k *key) SubKeyNames() ([]string, error) {
	k.hive.mu.Lock()
	defer k.hive.mu.Unlock()
	n := k.hive.lookup(k.path)
	if n == nil {
		return nil, consent.ErrKeyNotFound
	}
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (k *key) OpenSubKey(name string) (consent.Key, error) {
	return k.hive.OpenKey(k.path + `\` + name)
}

func (k *key) Uint64(name string) (uint64, bool, error) {
	k.hive.mu.Lock()
	defer k.hive.mu.Unlock()
	if err, ok := k.hive.valueErrs[k.path+`\`+name]; ok {
		return 0, false, err
	}
	n := k.hive.lookup(k.path)
	if n == nil {
		return 0, false, consent.ErrKeyNotFound
	}
	v, ok := n.values[name]
	return v, ok, nil
}

func (k *key) Close() error {
	k.hive.mu.Lock()
	defer k.hive.mu.Unlock()
	if !k.closed {
		k.closed = true
		k.hive.open--
	}
	return nil
}
