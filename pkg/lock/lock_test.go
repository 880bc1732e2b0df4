package lock

import (
	"errors"
	"testing"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

func testWorld() *gamedb.Database {
	db := gamedb.NewDatabase()
	db.Add(gamedb.Object{DBRef: 1, Name: "Wizard", Type: gamedb.TypePlayer, Powers: gamedb.PowDirector})
	db.Add(gamedb.Object{DBRef: 10, Name: "Alice", Type: gamedb.TypePlayer})
	db.Add(gamedb.Object{DBRef: 11, Name: "Bob", Type: gamedb.TypePlayer})
	db.Add(gamedb.Object{DBRef: 20, Name: "Puppet", Type: gamedb.TypeThing, Owner: 10})
	return db
}

func TestCanonicalRoundTrip(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"#TRUE", ""},
		{"=#5", "=#5"},
		{" #10 | #11 ", "#10|#11"},
		{"#1&(#2|#3)", "#1&(#2|#3)"},
		{"(#1|#2)&#3", "(#1|#2)&#3"},
		{"!(#1&#2)", "!(#1&#2)"},
		{"!#1", "!#1"},
		{"flag^director|channel:Pub*", "flag^Director|channel:Pub*"},
		{"$#20", "$#20"},
	}
	for _, c := range cases {
		got, err := Canonical(c.in)
		if err != nil {
			t.Errorf("Canonical(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("Canonical(%q) = %q, want %q", c.in, got, c.want)
		}
		again, err := Canonical(got)
		if err != nil || again != got {
			t.Errorf("canonical form %q is not stable: %q, %v", got, again, err)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"#", "(#1", "#1)", "bogus", "flag^nope", "=foo", "#1&", "channel:"} {
		if _, err := Parse(in); !errors.Is(err, ErrSyntax) {
			t.Errorf("Parse(%q) err = %v, want ErrSyntax", in, err)
		}
	}
}

func TestEvaluate(t *testing.T) {
	ev := NewEvaluator(testWorld())
	cases := []struct {
		actor  gamedb.DBRef
		policy string
		bound  string
		want   bool
	}{
		{10, "", "Public", true},
		{10, "=#10", "Public", true},
		{11, "=#10", "Public", false},
		{20, "#10", "Public", true},  // owned by #10
		{20, "=#10", "Public", false}, // but is not #10
		{20, "$#10", "Public", true},
		{11, "!=#10", "Public", true},
		{1, "flag^Director", "Public", true},
		{10, "flag^Director", "Public", false},
		{10, "channel:pub*", "Public", true},
		{10, "channel:pub*", "Admin", false},
		{10, "=#11|(channel:P?blic&#10)", "Public", true},
		{10, "garbage(", "Public", false},
	}
	for _, c := range cases {
		if got := ev.Evaluate(c.actor, c.policy, gamedb.Nothing, c.bound); got != c.want {
			t.Errorf("Evaluate(%v, %q, %q) = %v, want %v", c.actor, c.policy, c.bound, got, c.want)
		}
	}
}
