package flatfile

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// TrueKey is written for a policy that always passes.
const TrueKey = "#TRUE"

// WriteChatDB writes channels in the labeled native format.
func WriteChatDB(w io.Writer, channels []gamedb.ChannelRecord, savedTime string) error {
	wr := &writer{w: w}

	wr.writef("+F%d\n", 0)
	wr.writef("savedtime %s\n", quoteString(savedTime))
	wr.writef("channels %d\n", len(channels))
	for i := range channels {
		wr.writeChannel(&channels[i])
	}
	wr.writef("%s\n", EndOfDump)

	return wr.err
}

// SaveChatDB writes the chat database to a file path.
func SaveChatDB(path string, channels []gamedb.ChannelRecord, savedTime string) error {
	// Write to temp file first, then rename for atomicity
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if err := WriteChatDB(f, channels, savedTime); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// On Windows, may need to remove target first
		os.Remove(path)
		if err := os.Rename(tmpPath, path); err != nil {
			return fmt.Errorf("rename temp to final: %w", err)
		}
	}

	return nil
}

type writer struct {
	w   io.Writer
	err error
}

func (wr *writer) writef(format string, args ...any) {
	if wr.err != nil {
		return
	}
	_, wr.err = fmt.Fprintf(wr.w, format, args...)
}

func (wr *writer) writeChannel(ch *gamedb.ChannelRecord) {
	wr.writef(" name %s\n", quoteString(ch.Name))
	wr.writef("  description %s\n", quoteString(ch.Description))
	wr.writef("  flags %d\n", ch.Flags)
	wr.writef("  creator #%d\n", ch.Creator)
	wr.writef("  cobj #%d\n", ch.Proxy)
	wr.writef("  cost %d\n", ch.Cost)
	if ch.Buffer > 0 {
		wr.writef("  buffer %d\n", ch.Buffer)
	}
	for k := gamedb.LockJoin; k < gamedb.NumLocks; k++ {
		key := ch.Locks[k]
		if key == "" {
			key = TrueKey
		}
		wr.writef("  lock %s\n", quoteString(k.String()))
		wr.writef("  key %s\n", quoteString(key))
	}
	wr.writef("  users %d\n", len(ch.Members))
	for _, m := range ch.Members {
		wr.writef("   dbref #%d\n", m.Who)
		wr.writef("    flags %d\n", m.Flags)
		wr.writef("    title %s\n", quoteString(m.Title))
	}
}

// quoteString produces a quoted string with escapes for the chat database.
func quoteString(s string) string {
	var buf strings.Builder
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\\':
			buf.WriteByte('\\')
		}
		buf.WriteByte(s[i])
	}
	buf.WriteByte('"')
	return buf.String()
}
