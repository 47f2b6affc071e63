package pgrepos

import (
	"context"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/document"
	"github.com/trezcool/darasa/storage/database"
)

const (
	documentEventsChannel = "document_events"

	listenerMinReconnect = time.Second
	listenerMaxReconnect = time.Minute
	listenerPingPeriod   = 90 * time.Second
)

// documentWatch streams directory snapshots off a dedicated LISTEN/NOTIFY
// connection. Every notification on the documents channel triggers a re-query
// under the watch's filter; consumers always get the whole matching set.
type documentWatch struct {
	repo     documentRepository
	filter   document.QueryFilter
	listener *pq.Listener

	snapshots chan []document.Document
	errc      chan error
	done      chan struct{}
	stopOnce  sync.Once
}

var _ document.Watch = (*documentWatch)(nil) // interface compliance check

func (repo documentRepository) WatchDocuments(ctx context.Context, filter document.QueryFilter) (document.Watch, error) {
	listener := pq.NewListener(database.DSN(repo.conf), listenerMinReconnect, listenerMaxReconnect,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				repo.log.Warn("document listener event", "event", event, "error", err)
			}
		})
	if err := listener.Listen(documentEventsChannel); err != nil {
		_ = listener.Close()
		return nil, errors.Wrap(err, "listening for document events")
	}

	w := &documentWatch{
		repo:      repo,
		filter:    filter,
		listener:  listener,
		snapshots: make(chan []document.Document, 1),
		errc:      make(chan error, 1),
		done:      make(chan struct{}),
	}

	// first snapshot comes from the watch itself so subscribers need no
	// separate initial query
	docs, err := repo.FilterDocuments(ctx, filter)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	w.snapshots <- docs

	go w.run()
	return w, nil
}

func (w *documentWatch) Snapshots() <-chan []document.Document { return w.snapshots }
func (w *documentWatch) Err() <-chan error                     { return w.errc }

func (w *documentWatch) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.listener.Close()
	})
}

func (w *documentWatch) run() {
	ping := time.NewTicker(listenerPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ping.C:
			// keeps the connection honest across idle periods
			if err := w.listener.Ping(); err != nil {
				w.fail(errors.Wrap(err, "pinging document listener"))
				return
			}
		case _, ok := <-w.listener.Notify:
			// the channel closes when the listener does; a nil notification
			// signals a reconnect and changes may have been missed, so
			// re-query either way
			if !ok {
				return
			}
			w.drainPending()

			docs, err := w.repo.FilterDocuments(context.Background(), w.filter)
			if err != nil {
				w.fail(err)
				return
			}
			w.deliver(docs)
		}
	}
}

// drainPending coalesces a burst of notifications into one re-query.
func (w *documentWatch) drainPending() {
	for {
		select {
		case _, ok := <-w.listener.Notify:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// deliver replaces a stale undelivered snapshot rather than blocking on a
// slow consumer.
func (w *documentWatch) deliver(docs []document.Document) {
	for {
		select {
		case <-w.done:
			return
		case w.snapshots <- docs:
			return
		default:
			select {
			case <-w.snapshots:
			default:
			}
		}
	}
}

func (w *documentWatch) fail(err error) {
	select {
	case w.errc <- err:
	default:
	}
	w.Stop()
}
