package server

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crystal-mush/mushchat/pkg/chat"
)

// ChatConf holds chat system configuration.
// Supports both YAML (.yaml/.yml) and legacy "key value" text (.conf) formats.
type ChatConf struct {
	// --- Limits ---
	MaxChannels       int    `yaml:"max_channels"`
	MaxPlayerChannels int    `yaml:"max_player_channels"`
	ChannelCost       int    `yaml:"channel_cost"`
	ChannelFlags      string `yaml:"channel_flags"` // privs for channels created without any

	// --- Presentation ---
	LabelFormat     string `yaml:"label_format"` // fmt verb receives the channel name
	CollationLocale string `yaml:"collation_locale"`
	ChatStripQuote  bool   `yaml:"chat_strip_quote"`

	// --- Permissions ---
	DirectorOverride string `yaml:"director_override"` // "warn" or "deny"

	// --- Storage ---
	ChatDB              string `yaml:"chat_db"`              // text chat database
	BoltPath            string `yaml:"bolt_path"`            // bbolt snapshot store
	ScrollbackDB        string `yaml:"scrollback_db"`        // SQLite archive of channel traffic
	ScrollbackRetention int    `yaml:"scrollback_retention"` // seconds, 0 = keep forever
	SQLTimeout          int    `yaml:"sql_timeout"`          // busy timeout in seconds

	// --- Metrics ---
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultChatConf returns a ChatConf with the stock defaults.
func DefaultChatConf() *ChatConf {
	return &ChatConf{
		MaxChannels:         200,
		MaxPlayerChannels:   5,
		ChannelCost:         1000,
		ChannelFlags:        "player",
		LabelFormat:         "[%s]",
		CollationLocale:     "en",
		ChatStripQuote:      true,
		DirectorOverride:    "warn",
		ScrollbackRetention: 86400,
		SQLTimeout:          5,
	}
}

// LoadChatConf loads a chat config file. Format is auto-detected by extension:
//   - .yaml / .yml  -> YAML format
//   - .conf / other -> legacy text format
func LoadChatConf(path string) (*ChatConf, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var (
		cc  *ChatConf
		err error
	)
	switch ext {
	case ".yaml", ".yml":
		cc, err = loadChatConfYAML(path)
	default:
		cc, err = loadChatConfLegacy(path)
	}
	if err != nil {
		return nil, err
	}
	if err := cc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cc, nil
}

// --- YAML loader ---

func loadChatConfYAML(path string) (*ChatConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cc := DefaultChatConf()
	if err := yaml.Unmarshal(data, cc); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	cc.resolvePaths(filepath.Dir(path))
	return cc, nil
}

// --- Legacy text loader ---

func loadChatConfLegacy(path string) (*ChatConf, error) {
	cc := DefaultChatConf()
	if err := cc.loadLegacyFile(path, 0); err != nil {
		return nil, err
	}
	cc.resolvePaths(filepath.Dir(path))
	return cc, nil
}

func (cc *ChatConf) loadLegacyFile(path string, depth int) error {
	if depth > 10 {
		return fmt.Errorf("include depth exceeded (circular include?)")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	baseDir := filepath.Dir(path)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		key, val := splitKeyVal(line)
		if key == "" {
			continue
		}
		key = strings.ToLower(key)

		switch key {
		case "include":
			includePath := val
			if !filepath.IsAbs(includePath) {
				includePath = filepath.Join(baseDir, includePath)
			}
			if err := cc.loadLegacyFile(includePath, depth+1); err != nil {
				log.Printf("chatconf: warning: include %s: %v", val, err)
			}

		// --- Limits ---
		case "max_channels":
			cc.MaxChannels = atoi(val, cc.MaxChannels)
		case "max_player_channels":
			cc.MaxPlayerChannels = atoi(val, cc.MaxPlayerChannels)
		case "chan_cost", "channel_cost":
			cc.ChannelCost = atoi(val, cc.ChannelCost)
		case "channel_flags":
			cc.ChannelFlags = val

		// --- Presentation ---
		case "label_format":
			cc.LabelFormat = val
		case "collation_locale":
			cc.CollationLocale = val
		case "chat_strip_quote":
			cc.ChatStripQuote = parseBool(val)

		// --- Permissions ---
		case "director_override":
			cc.DirectorOverride = strings.ToLower(val)

		// --- Storage ---
		case "chatdb", "chat_db":
			cc.ChatDB = val
		case "bolt_path":
			cc.BoltPath = val
		case "scrollback_db":
			cc.ScrollbackDB = val
		case "scrollback_retention":
			cc.ScrollbackRetention = atoi(val, cc.ScrollbackRetention)
		case "sql_timeout":
			cc.SQLTimeout = atoi(val, cc.SQLTimeout)

		// --- Metrics ---
		case "metrics_addr":
			cc.MetricsAddr = val

		default:
			// Unknown directives silently ignored for forward compatibility
		}
	}
	return scanner.Err()
}

// resolvePaths makes relative storage paths relative to the config dir.
func (cc *ChatConf) resolvePaths(baseDir string) {
	for _, p := range []*string{&cc.ChatDB, &cc.BoltPath, &cc.ScrollbackDB} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
}

// Validate checks values that cannot be clamped silently.
func (cc *ChatConf) Validate() error {
	switch cc.DirectorOverride {
	case "warn", "deny":
	default:
		return fmt.Errorf("director_override: want warn or deny, got %q", cc.DirectorOverride)
	}
	if strings.Count(cc.LabelFormat, "%s") != 1 || strings.Count(cc.LabelFormat, "%") != 1 {
		return fmt.Errorf("label_format: want exactly one %%s, got %q", cc.LabelFormat)
	}
	if cc.MaxChannels < 1 {
		return fmt.Errorf("max_channels: must be positive, got %d", cc.MaxChannels)
	}
	return nil
}

// ToOptions converts the config to registry options.
func (cc *ChatConf) ToOptions() chat.Options {
	opts := chat.DefaultOptions()
	opts.MaxChannels = cc.MaxChannels
	opts.MaxPerCreator = cc.MaxPlayerChannels
	opts.Cost = cc.ChannelCost
	if flags := chat.ParsePrivs(chat.ChannelPrivs, cc.ChannelFlags, 0); flags != 0 {
		opts.DefaultFlags = flags
	}
	opts.LabelFormat = cc.LabelFormat
	opts.Locale = cc.CollationLocale
	opts.StripQuote = cc.ChatStripQuote
	if cc.DirectorOverride == "deny" {
		opts.Override = chat.OverrideDeny
	}
	return opts
}

// --- Helper functions ---

// splitKeyVal splits a line on the first whitespace (space or tab).
func splitKeyVal(line string) (string, string) {
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' || line[i] == '\t' {
			return line[:i], strings.TrimSpace(line[i+1:])
		}
	}
	return line, ""
}

func atoi(s string, fallback int) int {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "true" || s == "1" || s == "on"
}
