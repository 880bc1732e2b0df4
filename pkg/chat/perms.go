package chat

import "github.com/crystal-mush/mushchat/pkg/gamedb"

// GeneralAccess reports whether actor may use a channel with the given
// type flags at all.
func (r *Registry) GeneralAccess(actor gamedb.DBRef, flags int) bool {
	w := r.deps.World
	if flags&gamedb.ChanDisabled != 0 {
		return false
	}
	if flags&gamedb.ChanDirector != 0 && !w.Director(actor) {
		return false
	}
	if flags&gamedb.ChanAdmin != 0 && !w.Admin(actor) && !w.HasPower(actor, gamedb.PowChat) {
		return false
	}
	return true
}

// OkType reports whether p's object type is allowed on c. The proxy
// object is always allowed.
func (r *Registry) OkType(c *Channel, p gamedb.DBRef) bool {
	c.mu.RLock()
	flags, proxy := c.flags, c.proxy
	c.mu.RUnlock()
	if proxy == p {
		return true
	}
	switch r.deps.World.Type(p) {
	case gamedb.TypePlayer:
		return flags&gamedb.ChanPlayer != 0
	case gamedb.TypeThing:
		return flags&gamedb.ChanObject != 0
	}
	return false
}

// evalPolicy evaluates one of c's policies with the channel's stripped
// name bound. No chat lock is held during evaluation.
func (r *Registry) evalPolicy(c *Channel, k gamedb.LockKind, actor gamedb.DBRef) bool {
	if !r.deps.World.Valid(actor) {
		return false
	}
	c.mu.RLock()
	policy, plain, creator := c.locks[k], c.plain, c.creator
	c.mu.RUnlock()
	if policy == "" {
		return true
	}
	return r.deps.Evaluator.Evaluate(actor, policy, creator, plain)
}

func (r *Registry) access(c *Channel, actor gamedb.DBRef) bool {
	return r.GeneralAccess(actor, c.Flags())
}

// CanAccess reports general access to c.
func (r *Registry) CanAccess(c *Channel, actor gamedb.DBRef) bool {
	return r.access(c, actor)
}

// JoinCheck is the outcome of a join permission check.
type JoinCheck int

const (
	JoinDenied   JoinCheck = iota
	JoinAllowed            // passed normally
	JoinOverride           // failed the policy but a director may join anyway
)

// CanJoin checks whether p may join c. A director who fails the join
// policy gets JoinOverride when the registry is configured to warn, and
// JoinDenied when it is configured to deny.
func (r *Registry) CanJoin(c *Channel, p gamedb.DBRef) JoinCheck {
	if !r.OkType(c, p) {
		return JoinDenied
	}
	if r.access(c, p) && r.evalPolicy(c, gamedb.LockJoin, p) {
		return JoinAllowed
	}
	if r.deps.World.Director(p) && r.options().Override == OverrideWarn {
		return JoinOverride
	}
	return JoinDenied
}

// CanSpeak checks the speak policy.
func (r *Registry) CanSpeak(c *Channel, p gamedb.DBRef) bool {
	return r.access(c, p) && r.evalPolicy(c, gamedb.LockSpeak, p)
}

// CanCemit checks whether p may @cemit to c.
func (r *Registry) CanCemit(c *Channel, p gamedb.DBRef) bool {
	return !c.Has(gamedb.ChanNoCemit) && r.CanSpeak(c, p)
}

// CanModify checks whether actor may administer c.
func (r *Registry) CanModify(c *Channel, actor gamedb.DBRef) bool {
	w := r.deps.World
	if c.Creator() == actor || w.Director(actor) {
		return true
	}
	if w.HasPower(actor, gamedb.PowGuest) {
		return false
	}
	return r.access(c, actor) && r.evalPolicy(c, gamedb.LockModify, actor)
}

// CanSee checks whether actor may know c exists.
func (r *Registry) CanSee(c *Channel, actor gamedb.DBRef) bool {
	w := r.deps.World
	if w.Admin(actor) || w.HasPower(actor, gamedb.PowSeeAll) {
		return true
	}
	return r.access(c, actor) && r.evalPolicy(c, gamedb.LockSee, actor)
}

// CanHide checks whether actor may hide on c.
func (r *Registry) CanHide(c *Channel, actor gamedb.DBRef) bool {
	if r.deps.World.HasPower(actor, gamedb.PowCanHide) {
		return true
	}
	return c.Has(gamedb.ChanCanHide) && r.access(c, actor) && r.evalPolicy(c, gamedb.LockHide, actor)
}

// CanNuke checks whether actor may delete c.
func (r *Registry) CanNuke(c *Channel, actor gamedb.DBRef) bool {
	return c.Creator() == actor || r.deps.World.Director(actor)
}

// CanDecompile checks whether actor may see c's full configuration.
func (r *Registry) CanDecompile(c *Channel, actor gamedb.DBRef) bool {
	return r.deps.World.HasPower(actor, gamedb.PowSeeAll) || c.Creator() == actor || r.CanModify(c, actor)
}

// CanUseType reports whether actor may create or retype a channel to
// flags. A disabled channel may still be created or set by anyone allowed
// the rest of the type.
func (r *Registry) CanUseType(actor gamedb.DBRef, flags int) bool {
	return r.GeneralAccess(actor, flags&^gamedb.ChanDisabled)
}

// CanSetPrivs checks whether actor may change c's type to flags. The
// ChanObj bit cannot be toggled this way.
func (r *Registry) CanSetPrivs(actor gamedb.DBRef, flags, current int) bool {
	if (flags^current)&gamedb.ChanCobj != 0 {
		return false
	}
	return r.CanUseType(actor, flags)
}
