package watcher

import (
	"sort"
	"sync"
	"time"
)

type op int

const (
	opCreate op = iota
	opModify
	opDelete
)

// debouncer coalesces rapid per-path events within a window into a single
// Batch: CREATE+MODIFY→MODIFY, CREATE+DELETE→drop, MODIFY+DELETE→DELETE.
type debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]op
	timer   *time.Timer
	output  chan Batch
	stopped bool
}

func newDebouncer(window time.Duration, bufSize int) *debouncer {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	if bufSize <= 0 {
		bufSize = 16
	}
	return &debouncer{
		window:  window,
		pending: make(map[string]op),
		output:  make(chan Batch, bufSize),
	}
}

func (d *debouncer) add(path string, newOp op) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if existing, ok := d.pending[path]; ok {
		coalesced, drop := coalesce(existing, newOp)
		if drop {
			delete(d.pending, path)
		} else {
			d.pending[path] = coalesced
		}
	} else {
		d.pending[path] = newOp
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// coalesce merges the first-seen op with a newly observed op for the same
// path. Returns (_, true) when the events cancel out entirely.
func coalesce(first, next op) (op, bool) {
	switch first {
	case opCreate:
		switch next {
		case opModify:
			return opCreate, false
		case opDelete:
			return 0, true
		default:
			return next, false
		}
	case opModify:
		return next, false
	case opDelete:
		if next == opCreate {
			return opModify, false
		}
		return next, false
	default:
		return next, false
	}
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	var batch Batch
	for path, o := range d.pending {
		switch o {
		case opDelete:
			batch.Deleted = append(batch.Deleted, path)
		default:
			batch.Modified = append(batch.Modified, path)
		}
	}
	d.pending = make(map[string]op)
	sort.Strings(batch.Modified)
	sort.Strings(batch.Deleted)

	select {
	case d.output <- batch:
	default:
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
