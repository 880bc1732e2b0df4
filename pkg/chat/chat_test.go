package chat

import (
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
	"github.com/crystal-mush/mushchat/pkg/lock"
)

// delivery is one message captured by recorder.
type delivery struct {
	to   gamedb.DBRef
	text string
	d    Delivery
}

// recorder implements Transport for testing.
type recorder struct {
	mu   sync.Mutex
	msgs []delivery
}

func (r *recorder) Deliver(to gamedb.DBRef, text string, d Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, delivery{to, text, d})
}

func (r *recorder) To(p gamedb.DBRef) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		if m.to == p {
			out = append(out, m.text)
		}
	}
	return out
}

func (r *recorder) All() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.msgs)
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

const (
	wizard = gamedb.DBRef(1)
	alice  = gamedb.DBRef(10)
	bob    = gamedb.DBRef(11)
	carol  = gamedb.DBRef(12)
	guest  = gamedb.DBRef(20)
	widget = gamedb.DBRef(30)
	poor   = gamedb.DBRef(40)
)

func newTestWorld() *gamedb.Database {
	db := gamedb.NewDatabase()
	db.Add(gamedb.Object{DBRef: wizard, Name: "Wizard", Type: gamedb.TypePlayer, Powers: gamedb.PowDirector, Connected: true})
	db.Add(gamedb.Object{DBRef: alice, Name: "Alice", Type: gamedb.TypePlayer, Pennies: 5000, Connected: true})
	db.Add(gamedb.Object{DBRef: bob, Name: "Bob", Type: gamedb.TypePlayer, Pennies: 5000, Connected: true})
	db.Add(gamedb.Object{DBRef: carol, Name: "Carol", Type: gamedb.TypePlayer, Pennies: 5000, Connected: true})
	db.Add(gamedb.Object{DBRef: guest, Name: "Guest1", Type: gamedb.TypePlayer, Powers: gamedb.PowGuest, Connected: true})
	db.Add(gamedb.Object{DBRef: widget, Name: "Widget", Type: gamedb.TypeThing, Owner: alice})
	db.Add(gamedb.Object{DBRef: poor, Name: "Pauper", Type: gamedb.TypePlayer, Connected: true})
	return db
}

type testEnv struct {
	reg *Registry
	db  *gamedb.Database
	out *recorder
}

func newTestEnv(t *testing.T, tweak func(*Options)) *testEnv {
	t.Helper()
	db := newTestWorld()
	out := &recorder{}
	opts := DefaultOptions()
	opts.Cost = 0
	if tweak != nil {
		tweak(&opts)
	}
	reg := NewRegistry(Deps{
		World:     db,
		Evaluator: lock.NewEvaluator(db),
		Transport: out,
		Economy:   db,
		Labels:    db,
	}, opts)
	return &testEnv{reg: reg, db: db, out: out}
}

func (e *testEnv) mustCreate(t *testing.T, name string, actor gamedb.DBRef) *Channel {
	t.Helper()
	c, err := e.reg.Create(name, actor, 0)
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	return c
}

func (e *testEnv) mustJoin(t *testing.T, c *Channel, ps ...gamedb.DBRef) {
	t.Helper()
	for _, p := range ps {
		if !e.reg.Join(c, p, 0) {
			t.Fatalf("Join(%s, %s) failed", c.Name(), p)
		}
	}
}

func channelNames(chans []*Channel) []string {
	names := make([]string, len(chans))
	for i, c := range chans {
		names[i] = c.Name()
	}
	return names
}

func memberRefs(c *Channel) []gamedb.DBRef {
	var refs []gamedb.DBRef
	for _, m := range c.Members() {
		refs = append(refs, m.Who)
	}
	return refs
}

// checkSorted fails if the registry is not ordered by folded name.
func checkSorted(t *testing.T, r *Registry) {
	t.Helper()
	names := channelNames(r.Channels())
	if !slices.IsSortedFunc(names, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	}) {
		t.Errorf("registry not sorted: %v", names)
	}
}

// checkIndex fails unless rosters and the channel index agree exactly.
func checkIndex(t *testing.T, r *Registry) {
	t.Helper()
	seen := 0
	for _, c := range r.Channels() {
		for _, m := range c.Members() {
			if !slices.Contains(r.ChannelsOf(m.Who), c) {
				t.Errorf("%s on %s but not indexed", m.Who, c.Name())
			}
			seen++
		}
	}
	r.idxMu.RLock()
	defer r.idxMu.RUnlock()
	indexed := 0
	for p, set := range r.index {
		for c := range set {
			if !c.IsMember(p) {
				t.Errorf("%s indexed on %s but not a member", p, c.Name())
			}
			indexed++
		}
	}
	if seen != indexed {
		t.Errorf("roster entries %d != index entries %d", seen, indexed)
	}
}
