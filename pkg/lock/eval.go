package lock

import (
	"log"
	"strings"
	"sync"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// World is the object information a lock needs.
type World interface {
	Valid(ref gamedb.DBRef) bool
	Owner(ref gamedb.DBRef) gamedb.DBRef
	HasPower(ref gamedb.DBRef, p gamedb.Power) bool
}

// Evaluator evaluates policy text against an actor. It caches parsed
// expressions and holds no lock while evaluating, so nested evaluation
// is safe.
type Evaluator struct {
	world World

	mu    sync.Mutex
	cache map[string]*Expr
}

// NewEvaluator creates an evaluator backed by world.
func NewEvaluator(world World) *Evaluator {
	return &Evaluator{world: world, cache: make(map[string]*Expr)}
}

// Evaluate reports whether actor passes policy. The subject is the object
// the policy belongs to; boundName is matched by channel: terms. Text that
// fails to parse never passes.
func (ev *Evaluator) Evaluate(actor gamedb.DBRef, policy string, subject gamedb.DBRef, boundName string) bool {
	if strings.TrimSpace(policy) == "" {
		return true
	}
	e, ok := ev.parse(policy)
	if !ok {
		return false
	}
	return ev.eval(actor, e, subject, boundName)
}

func (ev *Evaluator) parse(policy string) (*Expr, bool) {
	ev.mu.Lock()
	e, ok := ev.cache[policy]
	ev.mu.Unlock()
	if ok {
		return e, e != nil
	}
	e, err := Parse(policy)
	if err != nil {
		log.Printf("lock: %q: %v", policy, err)
		e = nil
	}
	ev.mu.Lock()
	ev.cache[policy] = e
	ev.mu.Unlock()
	return e, e != nil
}

func (ev *Evaluator) eval(actor gamedb.DBRef, e *Expr, subject gamedb.DBRef, bound string) bool {
	if e == nil {
		return true
	}
	switch e.Kind {
	case KindAnd:
		return ev.eval(actor, e.Sub1, subject, bound) && ev.eval(actor, e.Sub2, subject, bound)
	case KindOr:
		return ev.eval(actor, e.Sub1, subject, bound) || ev.eval(actor, e.Sub2, subject, bound)
	case KindNot:
		return !ev.eval(actor, e.Sub1, subject, bound)
	case KindConst:
		if e.Ref == gamedb.Nothing {
			return false
		}
		return actor == e.Ref || ev.world.Owner(actor) == e.Ref
	case KindIs:
		return actor == e.Ref
	case KindOwner:
		if !ev.world.Valid(e.Ref) {
			return false
		}
		return ev.world.Owner(actor) == ev.world.Owner(e.Ref)
	case KindPower:
		return ev.world.HasPower(actor, e.Pow)
	case KindChannel:
		return wildMatchCI(e.Text, bound)
	}
	return false
}

// wildMatchCI performs case-insensitive wildcard matching with * and ?.
func wildMatchCI(pattern, str string) bool {
	return matchSimple(strings.ToLower(pattern), strings.ToLower(str))
}

func matchSimple(pattern, str string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := len(str); i >= 0; i-- {
				if matchSimple(pattern[1:], str[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(str) == 0 {
				return false
			}
			pattern = pattern[1:]
			str = str[1:]
		default:
			if len(str) == 0 || pattern[0] != str[0] {
				return false
			}
			pattern = pattern[1:]
			str = str[1:]
		}
	}
	return len(str) == 0
}
