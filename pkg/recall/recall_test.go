package recall

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

func texts(recs []Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Text
	}
	return out
}

func collect(b *Buffer) []string {
	var out []string
	for r := range b.All() {
		out = append(out, r.Text)
	}
	return out
}

func equal(a, b []string) bool {
	return strings.Join(a, "\x00") == strings.Join(b, "\x00") && len(a) == len(b)
}

func TestNewRejectsBadSizes(t *testing.T) {
	for _, n := range []int{0, -1, MaxLines + 1} {
		if _, err := New(n); !errors.Is(err, ErrSize) {
			t.Errorf("New(%d) err = %v, want ErrSize", n, err)
		}
	}
	b, err := New(MaxLines)
	if err != nil {
		t.Fatalf("New(%d): %v", MaxLines, err)
	}
	if !b.Empty() || b.Len() != 0 || b.Lines() != MaxLines {
		t.Errorf("fresh buffer: empty=%v len=%d lines=%d", b.Empty(), b.Len(), b.Lines())
	}
}

func TestEvictsOldestWholeRecords(t *testing.T) {
	b, _ := New(2)
	for _, m := range []string{"M1", "M2", "M3"} {
		b.Add(0, 10, m)
	}
	if got := collect(b); !equal(got, []string{"M2", "M3"}) {
		t.Errorf("records = %v, want [M2 M3]", got)
	}
	if last, ok := b.Last(); !ok || last.Text != "M3" {
		t.Errorf("Last = %q,%v", last.Text, ok)
	}
}

func TestCountNeverExceedsCapacity(t *testing.T) {
	for lines := 1; lines <= MaxLines; lines++ {
		b, _ := New(lines)
		var want []string
		for i := 0; i < 37; i++ {
			msg := fmt.Sprintf("msg %d %s", i, strings.Repeat("x", i*97))
			b.Add(0, gamedb.DBRef(i), msg)
			want = append(want, msg)
			if b.Len() > lines {
				t.Fatalf("lines=%d: count %d exceeds capacity", lines, b.Len())
			}
			if b.Used() > b.Size() {
				t.Fatalf("lines=%d: used %d exceeds budget %d", lines, b.Used(), b.Size())
			}
		}
		got := collect(b)
		if !equal(got, want[len(want)-len(got):]) {
			t.Errorf("lines=%d: iteration is not the most recent records in order", lines)
		}
	}
}

func TestLongTextIsTruncated(t *testing.T) {
	b, _ := New(1)
	b.Add(0, 1, strings.Repeat("a", LineLimit+100))
	rec, _ := b.Last()
	if len(rec.Text) != LineLimit {
		t.Errorf("len = %d, want %d", len(rec.Text), LineLimit)
	}
}

func TestTruncationKeepsWholeRunes(t *testing.T) {
	for pad := 0; pad < 3; pad++ {
		b, _ := New(1)
		b.Add(0, 1, strings.Repeat("a", pad)+strings.Repeat("€", LineLimit))
		rec, _ := b.Last()
		if !utf8.ValidString(rec.Text) {
			t.Errorf("pad %d: truncated text is not valid UTF-8", pad)
		}
		if n := len(rec.Text); n > LineLimit || n < LineLimit-2 {
			t.Errorf("pad %d: len = %d, want within a rune of %d", pad, n, LineLimit)
		}
	}
}

func TestCursorSurvivesEviction(t *testing.T) {
	b, _ := New(3)
	b.Add(0, 1, "a")
	b.Add(0, 1, "b")
	var c Cursor
	r, ok := b.Next(&c)
	if !ok || r.Text != "a" {
		t.Fatalf("first = %q,%v", r.Text, ok)
	}
	b.Add(0, 1, "c")
	b.Add(0, 1, "d")
	b.Add(0, 1, "e") // evicts a, b
	r, ok = b.Next(&c)
	if !ok || r.Text != "c" {
		t.Fatalf("after eviction = %q,%v, want c", r.Text, ok)
	}
	r, _ = b.Next(&c)
	if r.Text != "d" {
		t.Errorf("next = %q, want d", r.Text)
	}
	r, _ = b.Next(&c)
	if r.Text != "e" {
		t.Errorf("next = %q, want e", r.Text)
	}
	if _, ok := b.Next(&c); ok {
		t.Error("expected end of buffer")
	}

	// Restart from a fresh cursor.
	var c2 Cursor
	if r, _ := b.Next(&c2); r.Text != "c" {
		t.Errorf("restart = %q, want c", r.Text)
	}
}

func TestResizeKeepsMostRecent(t *testing.T) {
	b, _ := New(5)
	for _, m := range []string{"1", "2", "3", "4", "5"} {
		b.Add(0, 1, m)
	}
	small, err := b.Resize(2)
	if err != nil {
		t.Fatal(err)
	}
	if got := collect(small); !equal(got, []string{"4", "5"}) {
		t.Errorf("shrunk = %v", got)
	}
	if b.Len() != 5 {
		t.Error("Resize must not modify the original buffer")
	}
	big, _ := small.Resize(10)
	big.Add(0, 1, "6")
	if got := collect(big); !equal(got, []string{"4", "5", "6"}) {
		t.Errorf("grown = %v", got)
	}
	if _, err := b.Resize(11); !errors.Is(err, ErrSize) {
		t.Errorf("Resize(11) err = %v", err)
	}
}

func TestTail(t *testing.T) {
	b, _ := New(10)
	for i := 1; i <= 6; i++ {
		b.Add(0, 1, fmt.Sprint(i))
	}
	cases := []struct {
		n, start int
		want     []string
	}{
		{2, 0, []string{"5", "6"}},
		{0, 0, []string{"1", "2", "3", "4", "5", "6"}},
		{10, 0, []string{"1", "2", "3", "4", "5", "6"}},
		{2, 3, []string{"3", "4"}},
		{5, 5, []string{"5", "6"}},
		{1, 7, nil},
	}
	for _, c := range cases {
		if got := texts(b.Tail(c.n, c.start)); !equal(got, c.want) {
			t.Errorf("Tail(%d,%d) = %v, want %v", c.n, c.start, got, c.want)
		}
	}
}

func TestRecordsCarrySpeakerAndTime(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	b, _ := New(1)
	b.Add(7, gamedb.Nothing, "anon")
	r, _ := b.Last()
	if r.Type != 7 || r.Speaker != gamedb.Nothing || !r.Time.Equal(fixed) {
		t.Errorf("record = %+v", r)
	}
}
