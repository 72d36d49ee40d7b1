package docstore

import (
	"context"
	"encoding/json"
	"sync"
)

// QueryFunc runs a query against a backend.
type QueryFunc func(ctx context.Context, q Query) ([]Document, error)

// Watch implements Store.Watch on top of a Broker: it re-runs q whenever the collection
// changes and pushes the result if it differs from the last one pushed. Pending
// snapshots a slow consumer has not read are replaced by the newest one.
func Watch(ctx context.Context, broker *Broker, run QueryFunc, q Query) (<-chan Snapshot, func()) {
	ctx, cancel := context.WithCancel(ctx)
	signals, unsubscribe := broker.Subscribe(q.Collection)

	out := make(chan Snapshot, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)

		var last string
		pushed := false
		emit := func() {
			docs, err := run(ctx, q)
			if ctx.Err() != nil {
				return
			}
			snap := Snapshot{Docs: docs, Err: err}
			fp := fingerprint(snap)
			if pushed && fp == last {
				return
			}
			pushed, last = true, fp
			deliver(out, snap)
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				emit()
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			unsubscribe()
			<-done
		})
	}
	return out, stop
}

// deliver replaces an undelivered snapshot with snap. out has a single producer.
func deliver(out chan Snapshot, snap Snapshot) {
	select {
	case out <- snap:
	default:
		select {
		case <-out:
		default:
		}
		out <- snap
	}
}

func fingerprint(s Snapshot) string {
	type entry struct {
		ID   string         `json:"id"`
		Data map[string]any `json:"data"`
	}
	entries := make([]entry, len(s.Docs))
	for i, d := range s.Docs {
		entries[i] = entry{ID: d.ID, Data: d.Data}
	}
	raw, _ := json.Marshal(entries)
	if s.Err != nil {
		return "error:" + s.Err.Error() + string(raw)
	}
	return string(raw)
}
