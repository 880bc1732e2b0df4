// Package recall implements the bounded per-channel message log that backs
// @channel/recall.
//
// A Buffer holds whole records in append order. It is capped both by a line
// count and by a byte budget derived from it; when either would overflow,
// the oldest records are evicted until the new one fits. Records are never
// split. Buffers are not safe for concurrent use; the owning channel
// serializes access.
package recall

import (
	"errors"
	"fmt"
	"iter"
	"time"
	"unicode/utf8"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

const (
	// MaxLines is the largest capacity a buffer may be created with.
	MaxLines = 10
	// LineLimit is the longest text a record may carry; longer text is cut.
	LineLimit = 8192
	// RecordOverhead is the per-record bookkeeping charged against the budget.
	RecordOverhead = 24
)

// ErrSize is returned for capacities outside 1..MaxLines.
var ErrSize = errors.New("recall: invalid buffer size")

// Record is one buffered message.
type Record struct {
	Type    int
	Speaker gamedb.DBRef // gamedb.Nothing when anonymous
	Time    time.Time
	Text    string

	seq uint64
}

func (r Record) size() int { return len(r.Text) + RecordOverhead }

// Buffer is a bounded log of recent records.
type Buffer struct {
	lines   int
	budget  int
	used    int
	records []Record
	next    uint64
	last    Record
	hasLast bool
}

var now = time.Now

// New creates an empty buffer holding up to lines records.
func New(lines int) (*Buffer, error) {
	if lines < 1 || lines > MaxLines {
		return nil, fmt.Errorf("%w: %d", ErrSize, lines)
	}
	return &Buffer{
		lines:   lines,
		budget:  lines * (LineLimit + RecordOverhead),
		records: make([]Record, 0, lines),
	}, nil
}

// Resize returns a new buffer of the given capacity holding as many of the
// most recent records as fit. The receiver is left unchanged.
func (b *Buffer) Resize(lines int) (*Buffer, error) {
	nb, err := New(lines)
	if err != nil {
		return nil, err
	}
	nb.next = b.next
	nb.last, nb.hasLast = b.last, b.hasLast

	// Walk backwards collecting what fits, then restore append order.
	keep := 0
	used := 0
	for i := len(b.records) - 1; i >= 0; i-- {
		sz := b.records[i].size()
		if keep+1 > nb.lines || used+sz > nb.budget {
			break
		}
		keep++
		used += sz
	}
	nb.records = append(nb.records, b.records[len(b.records)-keep:]...)
	nb.used = used
	return nb, nil
}

// Add appends a record, evicting the oldest records until it fits.
func (b *Buffer) Add(typ int, speaker gamedb.DBRef, text string) {
	if len(text) > LineLimit {
		cut := LineLimit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	rec := Record{Type: typ, Speaker: speaker, Time: now(), Text: text, seq: b.next}
	b.next++
	for len(b.records) > 0 && (len(b.records)+1 > b.lines || b.used+rec.size() > b.budget) {
		b.used -= b.records[0].size()
		b.records[0] = Record{}
		b.records = b.records[1:]
	}
	b.records = append(b.records, rec)
	b.used += rec.size()
	b.last, b.hasLast = rec, true
}

// Cursor remembers an iteration position across calls. The zero value
// starts at the oldest record. A cursor stays valid after evictions; it
// resumes at the oldest record still present that is newer than the last
// one it returned.
type Cursor struct {
	seq uint64
}

// Next returns the record after the cursor and advances it.
func (b *Buffer) Next(c *Cursor) (Record, bool) {
	if len(b.records) == 0 {
		return Record{}, false
	}
	first := b.records[0].seq
	idx := 0
	if c.seq > first {
		idx = int(c.seq - first)
	}
	if idx >= len(b.records) {
		return Record{}, false
	}
	rec := b.records[idx]
	c.seq = rec.seq + 1
	return rec, true
}

// All yields every record, oldest first.
func (b *Buffer) All() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		var c Cursor
		for {
			rec, ok := b.Next(&c)
			if !ok || !yield(rec) {
				return
			}
		}
	}
}

// Tail selects records for a recall request. With start <= 0 it returns
// the last n records; otherwise it skips start-1 records and returns up to
// n from there. n <= 0 means all.
func (b *Buffer) Tail(n, start int) []Record {
	count := len(b.records)
	if n <= 0 {
		n = count
	}
	from := start - 1
	if start <= 0 {
		from = count - n
	}
	if from < 0 {
		from = 0
	}
	if from >= count {
		return nil
	}
	to := min(from+n, count)
	out := make([]Record, to-from)
	copy(out, b.records[from:to])
	return out
}

// Last returns the most recently added record, even if it was evicted.
func (b *Buffer) Last() (Record, bool) { return b.last, b.hasLast }

// Lines returns the capacity in records.
func (b *Buffer) Lines() int { return b.lines }

// Len returns the number of buffered records.
func (b *Buffer) Len() int { return len(b.records) }

// Size returns the byte budget.
func (b *Buffer) Size() int { return b.budget }

// Used returns the bytes charged by buffered records.
func (b *Buffer) Used() int { return b.used }

// Empty reports whether no records are buffered.
func (b *Buffer) Empty() bool { return len(b.records) == 0 }
