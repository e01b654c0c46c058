package localstore

import "context"

// Change describes one mutation applied to the store.
type Change struct {
	Collection string
	DocID      string
	Doc        Document // nil when Deleted
	Deleted    bool
}

type subscription struct {
	collection string // "" matches every collection
	fn         func(Change)
}

// Subscribe registers a callback invoked after every committed mutation in
// the given collection. Pass "" to observe all collections. The returned
// function cancels the subscription.
func (s *Store) Subscribe(collection string, fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = subscription{collection: collection, fn: fn}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Watch registers a callback invoked with the collection's full current set
// after every committed mutation in it. This is the reactive query primitive
// the UI renders from: a local write shows up in the next callback without
// waiting for any network round trip. The returned function cancels the
// watch.
func (s *Store) Watch(collection string, fn func([]Document)) func() {
	return s.Subscribe(collection, func(Change) {
		docs, err := s.All(context.Background(), collection)
		if err != nil {
			s.log.Error().Err(err).Str("collection", collection).Msg("watch requery failed")
			return
		}
		fn(docs)
	})
}

func (s *Store) notify(ch Change) {
	s.mu.Lock()
	targets := make([]func(Change), 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.collection == "" || sub.collection == ch.Collection {
			targets = append(targets, sub.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range targets {
		fn(ch)
	}
}
