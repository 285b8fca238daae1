package daemon

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/wardgate/wardgate/internal/audit"
	"github.com/wardgate/wardgate/internal/intercept"
	"github.com/wardgate/wardgate/internal/rules"
)

// process runs the full decision path for one file event: capture state,
// check content, record the decision, revert on block.
func (d *Daemon) process(path string) {
	if d.settleRevert(path) {
		return
	}

	wasTracked := d.tracker.Tracked(path)
	state := d.tracker.CaptureAfter(path)

	if state.HashAfter == audit.HashNotFound {
		// Gone before we got to it.
		d.tracker.Cleanup(path)
		return
	}

	content, err := readContent(path)
	if err != nil {
		d.log.Warn("read file", "path", path, "err", err)
		return
	}

	verdict := d.checker.Check(string(content), path)

	action := audit.ActionAllow
	if verdict.Action == rules.Block {
		action = audit.ActionBlock
	}
	rec, err := d.ledger.Append(audit.Decision{
		Actor:      d.cfg.Actor,
		Action:     action,
		Resource:   path,
		Code:       verdict.Code,
		HashBefore: state.HashBefore,
		HashAfter:  state.HashAfter,
	})
	if err != nil {
		// The write is still enforced; only the record is lost.
		d.log.Error("audit append failed", "path", path, "err", err)
	}

	if verdict.Action == rules.Block {
		d.log.Warn("blocked write", "path", path, "code", verdict.Code, "event_id", rec.EventID)
		d.revert(path, state, wasTracked)
		return
	}

	if verdict.Advisory != "" {
		d.log.Info("allowed with advisory", "path", path, "advisory", verdict.Advisory, "event_id", rec.EventID)
	} else {
		d.log.Info("allowed", "path", path, "event_id", rec.EventID)
	}

	// The content just allowed becomes the restore point for the next
	// write to this path.
	d.tracker.Cleanup(path)
	d.tracker.CaptureBefore(path)
}

// revert undoes a blocked write. New files are deleted; files with a
// pre-write snapshot get their prior bytes restored; a file the watcher
// never snapshotted can only be removed, which is noted at warning
// level. A failed revert leaves the blocked content in place and is the
// most severe condition the watcher can log.
func (d *Daemon) revert(path string, state intercept.FileState, wasTracked bool) {
	switch {
	case state.HashBefore == audit.HashNewFile:
		if err := d.tracker.Revert(path); err != nil {
			d.log.Error("revert failed, blocked content remains", "path", path, "err", err)
			return
		}
		d.tracker.Cleanup(path)
		d.log.Info("reverted blocked write", "path", path, "action", "deleted new file")

	case !wasTracked:
		// Capture happened after the write, so there are no prior
		// bytes to restore.
		d.log.Warn("no pre-write snapshot, removing file", "path", path)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.log.Error("revert failed, blocked content remains", "path", path, "err", err)
			return
		}
		d.tracker.Cleanup(path)

	default:
		d.expectAfterRevert(path, state.HashBefore)
		if err := d.tracker.Revert(path); err != nil {
			d.clearExpected(path)
			d.log.Error("revert failed, blocked content remains", "path", path, "err", err)
			return
		}
		d.log.Info("reverted blocked write", "path", path, "restored", state.HashBefore)
	}
}

// settleRevert checks whether this event is the echo of the watcher's
// own revert write. The expectation is consumed either way; a hash
// mismatch means the file changed again after the revert and the event
// goes through the normal decision path.
func (d *Daemon) settleRevert(path string) bool {
	d.mu.Lock()
	expected, ok := d.suppress[path]
	if ok {
		delete(d.suppress, path)
	}
	d.mu.Unlock()

	if !ok {
		return false
	}
	if audit.HashFile(path) == expected {
		d.log.Debug("revert settled", "path", path)
		return true
	}
	return false
}

func (d *Daemon) expectAfterRevert(path, hash string) {
	d.mu.Lock()
	d.suppress[path] = hash
	d.mu.Unlock()
}

func (d *Daemon) clearExpected(path string) {
	d.mu.Lock()
	delete(d.suppress, path)
	d.mu.Unlock()
}

// readContent reads the file, retrying once after a short pause so a
// write still in flight does not produce a spurious empty read.
func readContent(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil && len(data) > 0 {
		return data, nil
	}
	time.Sleep(100 * time.Millisecond)
	return os.ReadFile(path)
}
