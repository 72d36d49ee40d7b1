package app

import (
	"context"
	"sync"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

// feedEvent tags an event with the feed that produced it, so a controller that switched
// sessions can drop events still in flight from the previous one.
type feedEvent struct {
	feed  uint64
	event domain.Event
}

// feed turns a set of document store watches into one stream of domain events. Close
// releases every watch and waits for the forwarders to stop.
type feed struct {
	id     uint64
	store  docstore.Store
	out    chan<- feedEvent
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	stops []func()
	wg    sync.WaitGroup
	once  sync.Once
}

func newFeed(id uint64, store docstore.Store, out chan<- feedEvent) *feed {
	ctx, cancel := context.WithCancel(context.Background())
	return &feed{id: id, store: store, out: out, ctx: ctx, cancel: cancel}
}

func (f *feed) watch(q docstore.Query, convert func(docstore.Snapshot) domain.Event) error {
	ch, stop, err := f.store.Watch(f.ctx, q)
	if err != nil {
		return storeErr("subscribe "+q.Collection, err)
	}
	f.mu.Lock()
	f.stops = append(f.stops, stop)
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for snap := range ch {
			ev := convert(snap)
			select {
			case f.out <- feedEvent{feed: f.id, event: ev}:
			case <-f.ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (f *feed) watchSession(id string) error {
	return f.watch(docstore.Doc(docstore.Sessions, id), func(snap docstore.Snapshot) domain.Event {
		if snap.Err != nil {
			return domain.FeedFailed{Err: storeErr("watch session", snap.Err)}
		}
		doc, ok := snap.First()
		if !ok {
			return domain.SessionChanged{}
		}
		s, err := decodeSession(doc)
		if err != nil {
			return domain.FeedFailed{Err: err}
		}
		return domain.SessionChanged{Session: s, Exists: true}
	})
}

func (f *feed) watchStudents(sessionID string) error {
	return f.watch(studentsQuery(sessionID), func(snap docstore.Snapshot) domain.Event {
		if snap.Err != nil {
			return domain.FeedFailed{Err: storeErr("watch students", snap.Err)}
		}
		students, err := decodeAll(snap.Docs, decodeStudent)
		if err != nil {
			return domain.FeedFailed{Err: err}
		}
		return domain.StudentsChanged{Students: students}
	})
}

func (f *feed) watchStudent(id string) error {
	return f.watch(docstore.Doc(docstore.Students, id), func(snap docstore.Snapshot) domain.Event {
		if snap.Err != nil {
			return domain.FeedFailed{Err: storeErr("watch student", snap.Err)}
		}
		doc, ok := snap.First()
		if !ok {
			return domain.StudentChanged{}
		}
		st, err := decodeStudent(doc)
		if err != nil {
			return domain.FeedFailed{Err: err}
		}
		return domain.StudentChanged{Student: st, Exists: true}
	})
}

func (f *feed) watchAnswers(sessionID string) error {
	return f.watch(answersQuery(sessionID), func(snap docstore.Snapshot) domain.Event {
		if snap.Err != nil {
			return domain.FeedFailed{Err: storeErr("watch answers", snap.Err)}
		}
		answers, err := decodeAll(snap.Docs, decodeAnswer)
		if err != nil {
			return domain.FeedFailed{Err: err}
		}
		return domain.AnswersChanged{Answers: answers}
	})
}

func (f *feed) Close() {
	f.once.Do(func() {
		f.cancel()
		f.mu.Lock()
		stops := f.stops
		f.stops = nil
		f.mu.Unlock()
		for _, stop := range stops {
			stop()
		}
		f.wg.Wait()
	})
}
