package accessclient

import (
	"sync"

	"dataroom-backend/pkg/models"
)

// Item identifies an access target.
type Item struct {
	ID   string
	Type models.ItemType
}

func (it Item) key() string {
	return string(it.Type) + ":" + it.ID
}

// Gate answers "can the session user perform this action on this item"
// from a local capability cache.
//
// The gate is a pure lookup: it never triggers network calls. An item
// missing from the cache means "no access" — the gate fails closed until
// a refresher or an explicit Set populates the entry. Admin sessions
// bypass the cache entirely.
type Gate struct {
	session Session

	mu     sync.RWMutex
	access map[string]map[models.AccessType]struct{}
}

// NewGate creates a gate for one session.
func NewGate(session Session) *Gate {
	return &Gate{
		session: session,
		access:  make(map[string]map[models.AccessType]struct{}),
	}
}

// CanPerform reports whether the action is currently allowed on the item.
func (g *Gate) CanPerform(item Item, action models.AccessType) bool {
	if g.session.IsAdmin() {
		return true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	types, ok := g.access[item.key()]
	if !ok {
		return false
	}
	_, granted := types[action]
	return granted
}

// Set replaces the cached capability set for one item. Each key is
// independent, so concurrent checks resolving out of order only ever
// overwrite their own entry (last writer per key wins).
func (g *Gate) Set(item Item, types []models.AccessType) {
	set := make(map[models.AccessType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}

	g.mu.Lock()
	g.access[item.key()] = set
	g.mu.Unlock()
}

// AccessTypes returns the cached capability set for an item, nil when
// the item is unknown.
func (g *Gate) AccessTypes(item Item) []models.AccessType {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set, ok := g.access[item.key()]
	if !ok {
		return nil
	}
	types := make([]models.AccessType, 0, len(set))
	for t := range set {
		types = append(types, t)
	}
	return types
}

// Known reports whether the cache holds an entry for the item.
func (g *Gate) Known(item Item) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.access[item.key()]
	return ok
}

// Forget drops one item from the cache, returning it to the fail-closed
// default.
func (g *Gate) Forget(item Item) {
	g.mu.Lock()
	delete(g.access, item.key())
	g.mu.Unlock()
}

// Clear drops the whole cache.
func (g *Gate) Clear() {
	g.mu.Lock()
	g.access = make(map[string]map[models.AccessType]struct{})
	g.mu.Unlock()
}
