package cache

import (
	"sync"

	"github.com/dmitrijs2005/tradebook/internal/client/models"
)

// locker serializes mutations of the same entity. Mutations without an
// entity id hold their collection exclusively.
type locker struct {
	mu          sync.Mutex
	collections map[models.Collection]*sync.RWMutex
	entities    map[string]*entityLock
}

type entityLock struct {
	mu   sync.Mutex
	refs int
}

func (l *locker) acquire(m Mutation) (release func()) {
	l.mu.Lock()
	if l.collections == nil {
		l.collections = make(map[models.Collection]*sync.RWMutex)
		l.entities = make(map[string]*entityLock)
	}
	coll, ok := l.collections[m.Collection()]
	if !ok {
		coll = &sync.RWMutex{}
		l.collections[m.Collection()] = coll
	}

	if m.EntityID() == "" {
		l.mu.Unlock()
		coll.Lock()
		return coll.Unlock
	}

	name := string(m.Collection()) + "/" + m.EntityID()
	ent, ok := l.entities[name]
	if !ok {
		ent = &entityLock{}
		l.entities[name] = ent
	}
	ent.refs++
	l.mu.Unlock()

	ent.mu.Lock()
	coll.RLock()

	return func() {
		coll.RUnlock()
		ent.mu.Unlock()

		l.mu.Lock()
		ent.refs--
		if ent.refs == 0 {
			delete(l.entities, name)
		}
		l.mu.Unlock()
	}
}
