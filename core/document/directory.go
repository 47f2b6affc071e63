package document

import (
	"context"
	"errors"
	"sync"
)

var ErrDirectoryClosed = errors.New("document directory is closed")

type DirectoryOptions struct {
	// OnChange receives the complete matching set on every remote change.
	// Callbacks run with the directory's internal lock held and must not
	// call back into the Directory.
	OnChange func([]Document)

	// OnError is notified when the live query fails to establish or errors
	// mid-stream; the watch is dead afterwards and is not re-established
	// automatically.
	OnError func(error)
}

// Directory keeps a local list mirroring the remote documents visible under
// one filter triple, live-updated through the repository's watch.
type Directory struct {
	svc  *Service
	opts DirectoryOptions

	mu     sync.Mutex
	filter QueryFilter
	watch  Watch
	gen    int // invalidates forwarders of torn-down watches
	docs   []Document
	closed bool
}

func NewDirectory(svc *Service, opts DirectoryOptions) *Directory {
	return &Directory{svc: svc, opts: opts}
}

// SetFilter (re)subscribes for the given triple. Changing any element of the
// triple tears down the old watch and opens exactly one new one; setting the
// same triple again while a watch is live is a no-op.
func (d *Directory) SetFilter(ctx context.Context, filter QueryFilter) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDirectoryClosed
	}
	if d.watch != nil && d.filter == filter {
		d.mu.Unlock()
		return nil
	}
	if d.watch != nil {
		d.watch.Stop()
		d.watch = nil
	}
	d.filter = filter
	d.gen++
	gen := d.gen
	d.mu.Unlock()

	w, err := d.svc.Watch(ctx, filter)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.closed || d.gen != gen {
		// the directory moved on while we were subscribing
		d.mu.Unlock()
		w.Stop()
		return nil
	}
	d.watch = w
	d.mu.Unlock()

	go d.forward(w, gen)
	return nil
}

// Filter returns the current triple.
func (d *Directory) Filter() QueryFilter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter
}

// Documents returns a copy of the current mirror.
func (d *Directory) Documents() []Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Document(nil), d.docs...)
}

// Close tears down the live watch. It is idempotent, and no callbacks fire
// after it returns.
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	if d.watch != nil {
		d.watch.Stop()
		d.watch = nil
	}
}

func (d *Directory) forward(w Watch, gen int) {
	for {
		select {
		case docs, ok := <-w.Snapshots():
			if !ok {
				return
			}
			if !d.deliver(gen, docs) {
				return
			}
		case err, ok := <-w.Err():
			if !ok {
				return
			}
			d.fail(gen, err)
			return
		}
	}
}

func (d *Directory) deliver(gen int, docs []Document) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.gen != gen {
		return false
	}
	d.docs = docs
	if d.opts.OnChange != nil {
		d.opts.OnChange(docs)
	}
	return true
}

func (d *Directory) fail(gen int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.gen != gen {
		return
	}
	if d.opts.OnError != nil {
		d.opts.OnError(err)
	}
}
