// Package chat implements named channels layered over the world: the
// channel registry, membership rosters, the permission model and the
// broadcast distributor.
//
// Lock order is Registry.mu, then Channel.mu, then Registry.idxMu. Policy
// evaluation, message formatting and delivery always run with no chat lock
// held, so collaborators may call back into the registry.
package chat

import (
	"errors"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// World answers object queries for the chat system.
type World interface {
	Valid(ref gamedb.DBRef) bool
	Name(ref gamedb.DBRef) string
	Type(ref gamedb.DBRef) gamedb.ObjectType
	Owner(ref gamedb.DBRef) gamedb.DBRef
	Connected(ref gamedb.DBRef) bool
	Admin(ref gamedb.DBRef) bool
	Director(ref gamedb.DBRef) bool
	Hidden(ref, observer gamedb.DBRef) bool
	Dark(ref gamedb.DBRef) bool
	HasPower(ref gamedb.DBRef, p gamedb.Power) bool
}

// Evaluator evaluates a policy for actor. boundName is the stripped name
// of the channel the policy belongs to. Implementations must be safe to
// call re-entrantly.
type Evaluator interface {
	Evaluate(actor gamedb.DBRef, policy string, subject gamedb.DBRef, boundName string) bool
}

// Interaction tells the transport how to filter a channel message.
type Interaction int

const (
	InteractNone     Interaction = iota
	InteractHear                 // filter as something heard
	InteractPresence             // filter as a presence change
)

// Delivery describes one message handed to the transport.
type Delivery struct {
	Speaker     gamedb.DBRef
	Channel     string
	Interaction Interaction
	Spoof       bool // speaker identity is not tagged
}

// Transport delivers text to one object.
type Transport interface {
	Deliver(to gamedb.DBRef, text string, d Delivery)
}

// Economy charges and refunds channel creation costs.
type Economy interface {
	Charge(ref gamedb.DBRef, amount int) bool
	Refund(ref gamedb.DBRef, amount int)
}

// LabelRenderer renders a proxy object's label for a channel.
type LabelRenderer interface {
	ChannelLabel(proxy gamedb.DBRef, channel string) (string, bool)
}

// ProxyMatcher offers text spoken on a channel to its proxy object's
// command patterns. It must not block.
type ProxyMatcher interface {
	MatchProxy(proxy, speaker gamedb.DBRef, text string)
}

// Suppressor can silence individual recipients, e.g. by role.
type Suppressor interface {
	Suppress(channel string, who gamedb.DBRef) bool
}

// Observer is told about every distributed message, after delivery.
// speaker is gamedb.Nothing when the message was spoofed.
type Observer interface {
	MessageBroadcast(channel string, speaker gamedb.DBRef, text string, delivered int)
}

// Deps bundles the external collaborators. World, Evaluator and Transport
// are required; the rest may be nil.
type Deps struct {
	World     World
	Evaluator Evaluator
	Transport Transport
	Economy   Economy
	Labels    LabelRenderer
	Proxy     ProxyMatcher
	Suppress  Suppressor
	Observer  Observer
}

// OverrideMode controls what happens when a director fails a join policy.
type OverrideMode int

const (
	OverrideWarn OverrideMode = iota // join anyway, with a warning
	OverrideDeny                     // treat like anyone else
)

// Options are the tunable limits of a registry.
type Options struct {
	MaxChannels   int
	MaxPerCreator int
	Cost          int
	DefaultFlags  int
	LabelFormat   string // fmt verb receives the channel name
	Override      OverrideMode
	Locale        string
	StripQuote    bool // drop a leading " from speech
}

// DefaultOptions returns the stock limits.
func DefaultOptions() Options {
	return Options{
		MaxChannels:   200,
		MaxPerCreator: 5,
		Cost:          1000,
		DefaultFlags:  gamedb.ChanDefaultFlags,
		LabelFormat:   "[%s]",
		Override:      OverrideWarn,
		Locale:        "en",
		StripQuote:    true,
	}
}

// Limits on stored text.
const (
	MaxNameLen  = 30
	MaxDescLen  = 255
	MaxTitleLen = 79
)

// Errors reported to the invoking participant. None of them change state.
var (
	ErrDuplicateName     = errors.New("chat: duplicate channel name")
	ErrTooMany           = errors.New("chat: too many channels")
	ErrTooManyForCreator = errors.New("chat: creator owns too many channels")
	ErrInvalidName       = errors.New("chat: invalid channel name")
	ErrNameTooLong       = errors.New("chat: channel name too long")
	ErrInsufficientFunds = errors.New("chat: insufficient funds")
	ErrNoSuchChannel     = errors.New("chat: no such channel")
	ErrAmbiguous         = errors.New("chat: ambiguous channel name")
	ErrPermission        = errors.New("chat: permission denied")
	ErrWrongType         = errors.New("chat: wrong type of object for channel")
	ErrCobjType          = errors.New("chat: channels cannot be created with the ChanObj type")
	ErrBufferSize        = errors.New("chat: invalid buffer size")
	ErrTitleTooLong      = errors.New("chat: title too long")
	ErrBadTitle          = errors.New("chat: invalid character in title")
	ErrDescTooLong       = errors.New("chat: description too long")
	ErrNotMember         = errors.New("chat: not on channel")
	ErrEmptyMessage      = errors.New("chat: empty message")
	ErrNoCemit           = errors.New("chat: @cemit not allowed")
	ErrDeleted           = errors.New("chat: channel was deleted")
)
