package gamedb

import (
	"sort"
	"strings"
	"sync"
)

// Database is a minimal in-memory object store standing in for the world
// simulation. It answers the object queries and economy calls the chat
// system needs.
type Database struct {
	mu      sync.RWMutex
	objects map[DBRef]*Object
}

// NewDatabase creates an empty database.
func NewDatabase() *Database {
	return &Database{objects: make(map[DBRef]*Object)}
}

// Add inserts or replaces an object. Players always own themselves.
func (db *Database) Add(obj Object) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if obj.Type == TypePlayer || obj.Owner == Nothing {
		obj.Owner = obj.DBRef
	}
	if obj.Attrs == nil {
		obj.Attrs = make(map[string]string)
	}
	o := obj
	db.objects[obj.DBRef] = &o
}

// Get returns a copy of the object.
func (db *Database) Get(ref DBRef) (Object, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.objects[ref]
	if !ok {
		return Object{}, false
	}
	return *o, true
}

// Len returns the number of objects.
func (db *Database) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.objects)
}

// Refs returns every object reference in ascending order.
func (db *Database) Refs() []DBRef {
	db.mu.RLock()
	defer db.mu.RUnlock()
	refs := make([]DBRef, 0, len(db.objects))
	for r := range db.objects {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

// Destroy turns an object into garbage.
func (db *Database) Destroy(ref DBRef) {
	db.update(ref, func(o *Object) {
		o.Type = TypeGarbage
		o.Connected = false
	})
}

// SetConnected marks a player as connected or disconnected.
func (db *Database) SetConnected(ref DBRef, on bool) {
	db.update(ref, func(o *Object) { o.Connected = on })
}

// SetAttr sets an attribute; an empty value clears it.
func (db *Database) SetAttr(ref DBRef, name, value string) {
	db.update(ref, func(o *Object) {
		name = strings.ToUpper(name)
		if value == "" {
			delete(o.Attrs, name)
			return
		}
		o.Attrs[name] = value
	})
}

// Attr returns an attribute value.
func (db *Database) Attr(ref DBRef, name string) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if o, ok := db.objects[ref]; ok {
		return o.Attrs[strings.ToUpper(name)]
	}
	return ""
}

func (db *Database) update(ref DBRef, fn func(*Object)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if o, ok := db.objects[ref]; ok {
		fn(o)
	}
}

// --- object queries ---

// Valid reports whether ref names a live (non-garbage) object.
func (db *Database) Valid(ref DBRef) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.objects[ref]
	return ok && o.Type != TypeGarbage
}

// Name returns the object's display name.
func (db *Database) Name(ref DBRef) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if o, ok := db.objects[ref]; ok {
		return o.Name
	}
	return ""
}

// Type returns the object type, TypeGarbage for unknown refs.
func (db *Database) Type(ref DBRef) ObjectType {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if o, ok := db.objects[ref]; ok {
		return o.Type
	}
	return TypeGarbage
}

// Owner returns the object's owner.
func (db *Database) Owner(ref DBRef) DBRef {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if o, ok := db.objects[ref]; ok {
		return o.Owner
	}
	return Nothing
}

// Connected reports whether a player has a live session.
func (db *Database) Connected(ref DBRef) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.objects[ref]
	return ok && o.Connected
}

// HasPower reports whether the object holds any of the given powers.
func (db *Database) HasPower(ref DBRef, p Power) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.objects[ref]
	return ok && o.Powers&p != 0
}

// Director reports director-equivalent status.
func (db *Database) Director(ref DBRef) bool {
	return db.HasPower(ref, PowDirector)
}

// Admin reports admin-equivalent status; directors count as admins.
func (db *Database) Admin(ref DBRef) bool {
	return db.HasPower(ref, PowDirector|PowAdmin)
}

// Dark reports whether the object is dark.
func (db *Database) Dark(ref DBRef) bool {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o, ok := db.objects[ref]
	return ok && o.Dark
}

// Hidden reports whether ref is hidden from observer.
func (db *Database) Hidden(ref, observer DBRef) bool {
	db.mu.RLock()
	o, ok := db.objects[ref]
	hidden := ok && o.Hidden
	db.mu.RUnlock()
	if !hidden {
		return false
	}
	if observer == ref {
		return false
	}
	return !db.HasPower(observer, PowPrivWho|PowDirector|PowAdmin)
}

// Controls reports whether actor may act on behalf of target.
func (db *Database) Controls(actor, target DBRef) bool {
	if actor == target {
		return true
	}
	if db.Director(actor) {
		return true
	}
	return db.Owner(target) == actor
}

// LookupPlayer finds a player by case-insensitive name or #ref.
func (db *Database) LookupPlayer(name string) DBRef {
	if ref, ok := ParseDBRef(name); ok && strings.HasPrefix(strings.TrimSpace(name), "#") {
		if db.Type(ref) == TypePlayer {
			return ref
		}
		return Nothing
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, o := range db.objects {
		if o.Type == TypePlayer && strings.EqualFold(o.Name, name) {
			return o.DBRef
		}
	}
	return Nothing
}

// Match finds an object by #ref, exact player name, or exact object name.
// Several objects sharing a name give Ambiguous.
func (db *Database) Match(name string) DBRef {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "#") {
		if ref, ok := ParseDBRef(name); ok && db.Valid(ref) {
			return ref
		}
		return Nothing
	}
	if p := db.LookupPlayer(name); p != Nothing {
		return p
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	found := Nothing
	for _, o := range db.objects {
		if o.Type == TypeGarbage || !strings.EqualFold(o.Name, name) {
			continue
		}
		if found != Nothing {
			return Ambiguous
		}
		found = o.DBRef
	}
	return found
}

// --- economy ---

// Charge deducts amount from ref's pennies. Directors are never charged.
func (db *Database) Charge(ref DBRef, amount int) bool {
	if amount <= 0 {
		return true
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	o, ok := db.objects[ref]
	if !ok {
		return false
	}
	if o.Powers&PowDirector != 0 {
		return true
	}
	if o.Pennies < amount {
		return false
	}
	o.Pennies -= amount
	return true
}

// Refund credits amount back to ref.
func (db *Database) Refund(ref DBRef, amount int) {
	if amount <= 0 {
		return
	}
	db.update(ref, func(o *Object) { o.Pennies += amount })
}

// --- label rendering ---

// ChannelLabel renders a proxy object's CHANNAME attribute as the channel
// label, substituting %0 with the channel name.
func (db *Database) ChannelLabel(proxy DBRef, channel string) (string, bool) {
	text := db.Attr(proxy, "CHANNAME")
	if text == "" {
		return "", false
	}
	return strings.ReplaceAll(text, "%0", channel), true
}
