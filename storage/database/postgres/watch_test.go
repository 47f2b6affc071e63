package pgrepos

import (
	"testing"
	"time"

	"github.com/lib/pq"

	"github.com/trezcool/darasa/core/document"
)

// Closing the listener closes its Notify channel, which then reads as
// always-ready. The watch loop must treat that as teardown instead of
// spinning on zero-value notifications.
func Test_documentWatch_closedListenerEndsLoop(t *testing.T) {
	listener := pq.NewListener("host=127.0.0.1 port=1 user=darasa dbname=darasa sslmode=disable",
		listenerMinReconnect, listenerMaxReconnect, nil)

	w := &documentWatch{
		filter:    document.QueryFilter{},
		listener:  listener,
		snapshots: make(chan []document.Document, 1),
		errc:      make(chan error, 1),
		done:      make(chan struct{}),
	}

	// close the connection out from under the loop; done stays open so the
	// select has to take the Notify case
	if err := listener.Close(); err != nil {
		t.Fatalf("closing listener: %v", err)
	}

	finished := make(chan struct{})
	go func() {
		w.drainPending()
		w.run()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop still running on a closed Notify channel")
	}

	w.Stop()
	w.Stop() // idempotent
}
