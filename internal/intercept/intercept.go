// Package intercept tracks file state across a write so a blocked write
// can be reverted losslessly: the pre-write bytes are held in memory until
// the decision is recorded and the state is cleaned up.
package intercept

import (
	"fmt"
	"os"
	"sync"

	"github.com/wardgate/wardgate/internal/audit"
)

// FileState is the captured before/after state of one file.
type FileState struct {
	Path       string
	HashBefore string
	HashAfter  string

	contentBefore []byte
}

// Tracker captures file state around writes. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*FileState
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]*FileState)}
}

// CaptureBefore records the file's current hash and content as its
// pre-write state. If the path is already tracked the existing state is
// kept, so a create mark is not clobbered by the modify event that
// follows it.
func (t *Tracker) CaptureBefore(path string) FileState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.captureBeforeLocked(path)
}

// MarkNew records the path as a newly created file, so a later revert
// deletes it instead of restoring bytes.
func (t *Tracker) MarkNew(path string) FileState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := &FileState{Path: path, HashBefore: audit.HashNewFile}
	t.states[path] = state
	return *state
}

// CaptureAfter records the file's post-write hash. If the path was never
// captured before, the pre-write state is taken from the file as it is
// now.
func (t *Tracker) CaptureAfter(path string) FileState {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.states[path]
	if state == nil {
		state = t.captureBeforeLocked(path)
	}
	state.HashAfter = audit.HashFile(path)
	return *state
}

// Revert restores the file to its pre-write state: a newly created file
// is deleted, an existing one gets its original bytes written back.
func (t *Tracker) Revert(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.states[path]
	if state == nil {
		return fmt.Errorf("intercept: no tracked state for %s", path)
	}

	if state.HashBefore == audit.HashNewFile {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("intercept: remove new file: %w", err)
		}
		return nil
	}

	if state.contentBefore == nil {
		return fmt.Errorf("intercept: no backup content for %s", path)
	}
	if err := os.WriteFile(path, state.contentBefore, 0644); err != nil {
		return fmt.Errorf("intercept: restore content: %w", err)
	}
	return nil
}

// Cleanup drops the tracked state for a path.
func (t *Tracker) Cleanup(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, path)
}

// Tracked reports whether the path currently has captured state.
func (t *Tracker) Tracked(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.states[path]
	return ok
}

// captureBeforeLocked captures pre-write state. Caller holds the lock.
func (t *Tracker) captureBeforeLocked(path string) *FileState {
	if state, ok := t.states[path]; ok {
		return state
	}

	state := &FileState{Path: path}
	if _, err := os.Stat(path); err == nil {
		state.HashBefore = audit.HashFile(path)
		// Hold the original bytes for a potential revert. A read failure
		// leaves contentBefore nil and the revert will report it.
		if data, err := os.ReadFile(path); err == nil {
			state.contentBefore = data
		}
	} else {
		state.HashBefore = audit.HashNewFile
	}
	t.states[path] = state
	return state
}
