package chat

import (
	"strings"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// Priv names one flag bit for display and parsing.
type Priv struct {
	Name   string
	Letter byte
	Set    int // bits set when named
	Show   int // bits that make it displayed
}

// ChannelPrivs are the channel type flags in display order.
var ChannelPrivs = []Priv{
	{"Disabled", 'D', gamedb.ChanDisabled, gamedb.ChanDisabled},
	{"Admin", 'A', gamedb.ChanAdmin | gamedb.ChanPlayer, gamedb.ChanAdmin},
	{"Director", 'W', gamedb.ChanDirector | gamedb.ChanPlayer, gamedb.ChanDirector},
	{"Player", 'P', gamedb.ChanPlayer, gamedb.ChanPlayer},
	{"Object", 'O', gamedb.ChanObject, gamedb.ChanObject},
	{"Quiet", 'Q', gamedb.ChanQuiet, gamedb.ChanQuiet},
	{"Open", 'o', gamedb.ChanOpen, gamedb.ChanOpen},
	{"Hide_Ok", 'H', gamedb.ChanCanHide, gamedb.ChanCanHide},
	{"NoTitles", 'T', gamedb.ChanNoTitles, gamedb.ChanNoTitles},
	{"NoNames", 'N', gamedb.ChanNoNames, gamedb.ChanNoNames},
	{"NoCemit", 'C', gamedb.ChanNoCemit, gamedb.ChanNoCemit},
	{"Interact", 'I', gamedb.ChanInteract, gamedb.ChanInteract},
	{"ChanObj", 'Z', gamedb.ChanCobj, gamedb.ChanCobj},
}

// MemberPrivs are the per-member flags.
var MemberPrivs = []Priv{
	{"Quiet", 'Q', gamedb.MemberQuiet, gamedb.MemberQuiet},
	{"Hide", 'H', gamedb.MemberHide, gamedb.MemberHide},
	{"Gag", 'G', gamedb.MemberGag, gamedb.MemberGag},
}

// ParsePrivs applies a space-separated list of flag names (prefixes allowed,
// "!name" clears) to orig. A single word that names nothing is read as a
// string of flag letters. Unknown words are ignored.
func ParsePrivs(table []Priv, spec string, orig int) int {
	words := strings.Fields(spec)
	if len(words) == 0 {
		return orig
	}
	yes, no := 0, 0
	for _, w := range words {
		not := false
		if w[0] == '!' {
			not = true
			w = w[1:]
			if w == "" {
				continue
			}
		}
		for _, p := range table {
			if hasPrefixFold(p.Name, w) {
				if not {
					no |= p.Set
				} else {
					yes |= p.Set
				}
				break
			}
		}
	}
	if yes == 0 && no == 0 && len(words) == 1 {
		return parseLetters(table, words[0], orig)
	}
	return (orig | yes) &^ no
}

func parseLetters(table []Priv, s string, orig int) int {
	yes, no := 0, 0
	not := false
	for i := 0; i < len(s); i++ {
		if s[i] == '!' {
			not = true
			continue
		}
		for _, p := range table {
			if p.Letter == s[i] {
				if not {
					no |= p.Set
				} else {
					yes |= p.Set
				}
				break
			}
		}
		not = false
	}
	return (orig | yes) &^ no
}

// PrivsString renders flags as space-separated names.
func PrivsString(table []Priv, flags int) string {
	var parts []string
	for _, p := range table {
		if flags&p.Show != 0 {
			parts = append(parts, p.Name)
			flags &^= p.Set
		}
	}
	return strings.Join(parts, " ")
}

// PrivsLetters renders flags as letters.
func PrivsLetters(table []Priv, flags int) string {
	var b strings.Builder
	for _, p := range table {
		if flags&p.Show != 0 && p.Letter != 0 {
			b.WriteByte(p.Letter)
			flags &^= p.Set
		}
	}
	return b.String()
}
