package flatfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// EndOfDump terminates a chat database.
const EndOfDump = "***END OF DUMP***"

// ErrFatalLoad means the chat database cannot be loaded at all. Nothing
// read before the failure should be used.
var ErrFatalLoad = errors.New("flatfile: chat database unreadable")

// Format identifies which variant a chat database was read as.
type Format int

const (
	FormatLegacy Format = iota // positional, no header
	FormatPenn                 // labeled, +V header
	FormatNative               // labeled, +F header
)

func (f Format) String() string {
	switch f {
	case FormatPenn:
		return "penn"
	case FormatNative:
		return "native"
	default:
		return "legacy"
	}
}

// ReadOptions control a chat database load.
type ReadOptions struct {
	// MaxChannels bounds the declared channel count; 0 means no bound.
	MaxChannels int
	// WorldTimestamp is the saved time of the companion world database.
	// A mismatch is logged. Empty skips the check.
	WorldTimestamp string
}

// ChatDB is a decoded chat database.
type ChatDB struct {
	Format    Format
	DBFlags   int
	SavedTime string
	Channels  []gamedb.ChannelRecord
	// Warnings counts recoverable problems that were logged and skipped.
	Warnings int
}

// Parser reads a chat database.
type Parser struct {
	reader *bufio.Reader
	line   int
	opts   ReadOptions
	db     *ChatDB
}

// LoadChatDB reads a chat database from disk.
func LoadChatDB(path string, opts ReadOptions) (*ChatDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chat database: %w", err)
	}
	defer f.Close()

	return ReadChatDB(f, opts)
}

// ReadChatDB decodes a chat database in any supported format.
func ReadChatDB(r io.Reader, opts ReadOptions) (*ChatDB, error) {
	p := &Parser{
		reader: bufio.NewReaderSize(r, 64*1024),
		opts:   opts,
		db:     &ChatDB{},
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.db, nil
}

func (p *Parser) parse() error {
	ch, err := p.peekByte()
	if err != nil {
		return fmt.Errorf("%w: empty file", ErrFatalLoad)
	}
	if ch != '+' {
		p.db.Format = FormatLegacy
		return p.parseLegacy()
	}

	header, _ := p.readLine()
	if len(header) < 2 {
		return fmt.Errorf("%w: bad header %q", ErrFatalLoad, header)
	}
	switch header[1] {
	case 'F':
		p.db.Format = FormatNative
	case 'V':
		p.db.Format = FormatPenn
	default:
		return fmt.Errorf("%w: bad header %q", ErrFatalLoad, header)
	}
	p.db.DBFlags, _ = strconv.Atoi(strings.TrimSpace(header[2:]))

	saved, err := p.readThis("savedtime")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatalLoad, err)
	}
	p.db.SavedTime = saved
	if p.opts.WorldTimestamp != "" && saved != p.opts.WorldTimestamp {
		p.warnf("chatdb and game db were saved at different times (%q vs %q)", saved, p.opts.WorldTimestamp)
	}

	value, err := p.readThis("channels")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFatalLoad, err)
	}
	n, err := p.checkCount(value)
	if err != nil {
		return err
	}

	p.db.Channels = make([]gamedb.ChannelRecord, 0, n)
	for i := 0; i < n; i++ {
		rec, err := p.readLabeledChannel()
		if err != nil {
			return fmt.Errorf("%w: channel %d: %v", ErrFatalLoad, i, err)
		}
		p.db.Channels = append(p.db.Channels, rec)
	}
	p.checkEOD()
	return nil
}

func (p *Parser) parseLegacy() error {
	line, err := p.readLine()
	if err != nil && line == "" {
		return fmt.Errorf("%w: missing channel count", ErrFatalLoad)
	}
	n, err := p.checkCount(line)
	if err != nil {
		return err
	}
	p.db.Channels = make([]gamedb.ChannelRecord, 0, n)
	for i := 0; i < n; i++ {
		if _, err := p.peekByte(); err != nil {
			break
		}
		rec, err := p.readLegacyChannel()
		if err != nil {
			return fmt.Errorf("%w: channel %d: %v", ErrFatalLoad, i, err)
		}
		p.db.Channels = append(p.db.Channels, rec)
	}
	p.checkEOD()
	return nil
}

func (p *Parser) checkCount(value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad channel count %q", ErrFatalLoad, value)
	}
	if p.opts.MaxChannels > 0 && n > p.opts.MaxChannels {
		return 0, fmt.Errorf("%w: %d channels exceeds limit %d", ErrFatalLoad, n, p.opts.MaxChannels)
	}
	return n, nil
}

// checkEOD logs a missing or wrong end marker.
func (p *Parser) checkEOD() {
	p.skipBlank()
	line, err := p.readLine()
	switch {
	case line == "" && err != nil:
		p.warnf("no end-of-dump marker in the chat database")
	case strings.TrimSpace(line) != EndOfDump:
		p.warnf("trailing garbage in the chat database: %q", line)
	}
}

func (p *Parser) warnf(format string, args ...any) {
	p.db.Warnings++
	log.Printf("chatdb: line %d: %s", p.line, fmt.Sprintf(format, args...))
}

// --- Low-level I/O helpers ---

func (p *Parser) peekByte() (byte, error) {
	b, err := p.reader.Peek(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *Parser) mustReadByte() (byte, error) {
	b, err := p.reader.ReadByte()
	if b == '\n' {
		p.line++
	}
	return b, err
}

// readLine reads until end of line and returns the content (excluding newline).
func (p *Parser) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	p.line++
	return strings.TrimRight(line, "\r\n"), err
}

// skipBlank consumes whitespace and # comment lines.
func (p *Parser) skipBlank() {
	for {
		ch, err := p.peekByte()
		if err != nil {
			return
		}
		switch {
		case ch == '#':
			p.readLine()
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			p.mustReadByte()
		default:
			return
		}
	}
}

// readLabeled reads a "label value" entry. The value may be a quoted
// string, which can span lines.
func (p *Parser) readLabeled() (string, string, error) {
	p.skipBlank()
	var label strings.Builder
	for {
		ch, err := p.peekByte()
		if err != nil {
			return "", "", fmt.Errorf("unexpected EOF at line %d", p.line)
		}
		if ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' {
			break
		}
		p.mustReadByte()
		label.WriteByte(ch)
	}
	for {
		ch, err := p.peekByte()
		if err != nil || ch == '\n' {
			return "", "", fmt.Errorf("missing value for %q at line %d", label.String(), p.line)
		}
		if ch != ' ' && ch != '\t' && ch != '\r' {
			break
		}
		p.mustReadByte()
	}
	ch, _ := p.peekByte()
	if ch == '"' {
		s, err := p.readQuotedString()
		return label.String(), s, err
	}
	line, _ := p.readLine()
	return label.String(), strings.TrimSpace(line), nil
}

// readThis reads an entry that must carry the given label.
func (p *Parser) readThis(want string) (string, error) {
	label, value, err := p.readLabeled()
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(label, want) {
		return "", fmt.Errorf("expected %q, got %q at line %d", want, label, p.line)
	}
	return value, nil
}

// readQuotedString reads a "..." delimited string. A backslash makes the
// next byte literal. Anything after the closing quote is discarded.
func (p *Parser) readQuotedString() (string, error) {
	p.mustReadByte() // consume opening "
	start := p.line

	var buf strings.Builder
	for {
		b, err := p.mustReadByte()
		if err != nil {
			return buf.String(), fmt.Errorf("unclosed quoted string starting on line %d", start)
		}
		switch b {
		case '"':
			rest, _ := p.readLine()
			if strings.TrimSpace(rest) != "" {
				p.warnf("garbage after quoted string: %q", rest)
			}
			return buf.String(), nil
		case '\\':
			next, err := p.mustReadByte()
			if err != nil {
				return buf.String(), fmt.Errorf("unclosed quoted string starting on line %d", start)
			}
			buf.WriteByte(next)
		default:
			buf.WriteByte(b)
		}
	}
}

// readString reads a positional string: quoted, or the rest of the line.
func (p *Parser) readString() (string, error) {
	ch, err := p.peekByte()
	if err != nil {
		return "", fmt.Errorf("unexpected EOF at line %d", p.line)
	}
	if ch == '"' {
		return p.readQuotedString()
	}
	return p.readLine()
}

// readRef reads a positional number. Like strtol, junk reads as 0.
func (p *Parser) readRef() (int, error) {
	line, err := p.readLine()
	if err != nil && line == "" {
		return 0, fmt.Errorf("unexpected EOF at line %d", p.line)
	}
	line = strings.TrimPrefix(strings.TrimSpace(line), "#")
	end := 0
	for end < len(line) && (line[end] == '-' && end == 0 || line[end] >= '0' && line[end] <= '9') {
		end++
	}
	n, _ := strconv.Atoi(line[:end])
	return n, nil
}
