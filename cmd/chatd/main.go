package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/events"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
	"github.com/crystal-mush/mushchat/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

type options struct {
	conf       string
	db         string
	world      string
	stamp      string
	out        string
	bolt       string
	export     string
	scrollback string
	list       bool
	channel    string
	as         string
	metrics    string
}

func main() {
	var o options
	flag.StringVar(&o.conf, "conf", envDefault("MUSHCHAT_CONF", ""), "Path to chat config file (env: MUSHCHAT_CONF)")
	flag.StringVar(&o.db, "db", envDefault("MUSHCHAT_DB", ""), "Path to chat database to load (env: MUSHCHAT_DB)")
	flag.StringVar(&o.world, "world", envDefault("MUSHCHAT_WORLD", ""), "Path to YAML world file (env: MUSHCHAT_WORLD)")
	flag.StringVar(&o.stamp, "stamp", "", "Saved time of the companion world database")
	flag.StringVar(&o.out, "out", envDefault("MUSHCHAT_OUT", ""), "Re-save the chat database to this path (env: MUSHCHAT_OUT)")
	flag.StringVar(&o.bolt, "bolt", envDefault("MUSHCHAT_BOLT", ""), "Path to bbolt snapshot store (env: MUSHCHAT_BOLT)")
	flag.StringVar(&o.export, "export", envDefault("MUSHCHAT_EXPORT", ""), "Write the bbolt text dump to this path (env: MUSHCHAT_EXPORT)")
	flag.StringVar(&o.scrollback, "scrollback", envDefault("MUSHCHAT_SCROLLBACK", ""), "Path to SQLite scrollback archive (env: MUSHCHAT_SCROLLBACK)")
	flag.BoolVar(&o.list, "list", false, "List all channels")
	flag.StringVar(&o.channel, "channel", "", "Show details for one channel")
	flag.StringVar(&o.as, "as", "", "Read chat commands from stdin as this player (e.g. #1)")
	flag.StringVar(&o.metrics, "metrics", envDefault("MUSHCHAT_METRICS", ""), "Serve Prometheus metrics on this address and run until interrupted (env: MUSHCHAT_METRICS)")
	flag.Parse()

	if o.conf == "" && o.db == "" && o.bolt == "" {
		fmt.Fprintln(os.Stderr, "Usage: chatd -db <chatdb> [-world <world.yaml>] [options]")
		fmt.Fprintln(os.Stderr, "       chatd -conf <chat.yaml> [-metrics :9100]")
		fmt.Fprintln(os.Stderr, "  -list            List all channels")
		fmt.Fprintln(os.Stderr, "  -channel <name>  Show channel details")
		fmt.Fprintln(os.Stderr, "  -out <path>      Re-save the chat database")
		fmt.Fprintln(os.Stderr, "  -bolt <path>     Import into (or load from) a bbolt snapshot")
		fmt.Fprintln(os.Stderr, "  -export <path>   Write the bbolt text dump")
		fmt.Fprintln(os.Stderr, "  -as <#dbref>     Run chat commands from stdin")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Environment variables (used as defaults when flags are not set):")
		fmt.Fprintln(os.Stderr, "  MUSHCHAT_CONF MUSHCHAT_DB MUSHCHAT_WORLD MUSHCHAT_OUT MUSHCHAT_BOLT")
		fmt.Fprintln(os.Stderr, "  MUSHCHAT_EXPORT MUSHCHAT_SCROLLBACK MUSHCHAT_METRICS")
		os.Exit(1)
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	conf := server.DefaultChatConf()
	if o.conf != "" {
		var err error
		conf, err = server.LoadChatConf(o.conf)
		if err != nil {
			return err
		}
		log.Printf("Loaded chat config from %s", o.conf)
	}
	// Command-line flags override config file values
	if o.db != "" {
		conf.ChatDB = o.db
	}
	if o.bolt != "" {
		conf.BoltPath = o.bolt
	}
	if o.scrollback != "" {
		conf.ScrollbackDB = o.scrollback
	}
	if o.metrics != "" {
		conf.MetricsAddr = o.metrics
	}

	world := gamedb.NewDatabase()
	if o.world != "" {
		var err error
		world, err = loadWorld(o.world)
		if err != nil {
			return err
		}
		fmt.Printf("World: %d objects from %s\n", world.Len(), o.world)
	}

	srv, err := server.New(conf, world)
	if err != nil {
		return err
	}
	defer srv.Close()

	start := time.Now()
	if err := load(srv, conf, o); err != nil {
		return err
	}
	fmt.Printf("Loaded in %v\n\n", time.Since(start))

	printSummary(srv)

	if o.list {
		fmt.Println()
		printChannels(srv)
	}
	if o.channel != "" {
		fmt.Println()
		if err := printChannel(srv, o.channel); err != nil {
			return err
		}
	}
	if o.as != "" {
		actor, ok := gamedb.ParseDBRef(o.as)
		if !ok || !world.Valid(actor) {
			return fmt.Errorf("-as %s: no such object", o.as)
		}
		fmt.Println()
		runConsole(srv, actor, os.Stdin, os.Stdout)
	}
	if o.out != "" {
		if err := srv.SaveChatDB(o.out); err != nil {
			return err
		}
		fmt.Printf("Saved %d channels to %s\n", srv.Registry.Len(), o.out)
	}
	if o.export != "" {
		if err := srv.ExportDump(o.export); err != nil {
			return err
		}
		fmt.Printf("Exported bbolt dump to %s\n", o.export)
	}
	if conf.MetricsAddr != "" {
		return serve(srv, conf, o.conf)
	}
	return nil
}

// load fills the registry from the text database if one is named,
// otherwise from the bbolt snapshot. A text load is imported into bbolt.
func load(srv *server.Server, conf *server.ChatConf, o options) error {
	switch {
	case conf.ChatDB != "":
		fmt.Printf("Loading chat database: %s\n", conf.ChatDB)
		db, err := srv.ReadChatDB(conf.ChatDB, o.stamp)
		if err != nil {
			return err
		}
		if o.world == "" {
			n := addPlaceholders(srv.World, db.Channels)
			fmt.Printf("World: %d placeholder objects\n", n)
		}
		if err := srv.Restore(db.Channels, db.Warnings, conf.ChatDB); err != nil {
			return err
		}
		fmt.Printf("Format:         %s\n", db.Format)
		fmt.Printf("Saved:          %s\n", db.SavedTime)
		fmt.Printf("Warnings:       %d\n", db.Warnings)
		if srv.Store != nil {
			if err := srv.Checkpoint(); err != nil {
				return err
			}
			fmt.Printf("Imported into:  %s\n", srv.Store.Path())
		}

	case srv.Store != nil && srv.Store.HasChannels():
		fmt.Printf("Loading bbolt snapshot: %s\n", srv.Store.Path())
		if o.world == "" {
			records, _, err := srv.Store.Channels()
			if err != nil {
				return err
			}
			n := addPlaceholders(srv.World, records)
			fmt.Printf("World: %d placeholder objects\n", n)
		}
		if err := srv.RestoreCheckpoint(); err != nil {
			return err
		}

	default:
		fmt.Println("Starting with no channels")
	}
	return nil
}

func printSummary(srv *server.Server) {
	st := srv.Registry.Stats()
	fmt.Println("=== CHAT SUMMARY ===")
	fmt.Printf("Channels:       %d\n", st.Channels)
	fmt.Printf("Memberships:    %d\n", st.Members)
	fmt.Printf("Messages:       %d\n", st.Messages)

	owners := make(map[gamedb.DBRef]int)
	for _, ch := range srv.Registry.Channels() {
		owners[ch.Creator()]++
	}
	fmt.Printf("Creators:       %d\n", len(owners))
}

func printChannels(srv *server.Server) {
	fmt.Println("=== CHANNELS ===")
	fmt.Printf("%-30s %-20s %5s %5s  %s\n", "Name", "Creator", "Users", "Msgs", "Flags")
	for _, ch := range srv.Registry.Channels() {
		creator := fmt.Sprintf("%s(%s)", srv.World.Name(ch.Creator()), ch.Creator())
		fmt.Printf("%-30s %-20s %5d %5d  %s\n",
			ch.PlainName(), creator, ch.NumUsers(), ch.NumMessages(),
			chat.PrivsString(chat.ChannelPrivs, ch.Flags()))
	}
}

// findChannel matches name exactly, or as a unique prefix, ignoring case.
func findChannel(srv *server.Server, name string) (*chat.Channel, error) {
	var matches []*chat.Channel
	for _, ch := range srv.Registry.Channels() {
		plain := ch.PlainName()
		if strings.EqualFold(plain, name) {
			return ch, nil
		}
		if len(plain) >= len(name) && strings.EqualFold(plain[:len(name)], name) {
			matches = append(matches, ch)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no channel matches %q", name)
	case 1:
		return matches[0], nil
	}
	names := make([]string, len(matches))
	for i, ch := range matches {
		names[i] = ch.PlainName()
	}
	return nil, fmt.Errorf("%q is ambiguous: %s", name, strings.Join(names, " "))
}

func printChannel(srv *server.Server, name string) error {
	ch, err := findChannel(srv, name)
	if err != nil {
		return err
	}
	w := srv.World
	fmt.Printf("=== CHANNEL %s ===\n", ch.PlainName())
	fmt.Printf("Description:    %s\n", ch.Description())
	fmt.Printf("Creator:        %s(%s)\n", w.Name(ch.Creator()), ch.Creator())
	if p := ch.Proxy(); p != gamedb.Nothing {
		fmt.Printf("Object:         %s(%s)\n", w.Name(p), p)
	}
	fmt.Printf("Flags:          %s [%s]\n",
		chat.PrivsString(chat.ChannelPrivs, ch.Flags()),
		chat.PrivsLetters(chat.ChannelPrivs, ch.Flags()))
	fmt.Printf("Cost:           %d\n", ch.Cost())
	fmt.Printf("Users:          %d (max %d)\n", ch.NumUsers(), ch.MaxUsers())
	fmt.Printf("Messages:       %d\n", ch.NumMessages())
	fmt.Printf("Buffer:         %d lines\n", ch.BufferLines())
	for k := gamedb.LockJoin; k < gamedb.NumLocks; k++ {
		if text := ch.Policy(k); text != "" {
			fmt.Printf("Lock %-10s %s\n", k.String()+":", text)
		}
	}

	members := ch.Members()
	if len(members) == 0 {
		return nil
	}
	fmt.Println()
	fmt.Printf("  %-24s %-6s %s\n", "Member", "Flags", "Title")
	for _, m := range members {
		fmt.Printf("  %-24s %-6s %s\n",
			fmt.Sprintf("%s(%s)", w.Name(m.Who), m.Who),
			chat.PrivsLetters(chat.MemberPrivs, m.Flags),
			m.Title)
	}
	return nil
}

// printer writes every event for one player to an io.Writer.
type printer struct {
	w io.Writer
}

func (p printer) Receive(ev events.Event) { fmt.Fprintln(p.w, ev.Text) }
func (p printer) Closed() bool            { return false }

// runConsole reads chat commands from r, runs them as actor and prints
// what actor is told.
func runConsole(srv *server.Server, actor gamedb.DBRef, r io.Reader, w io.Writer) {
	sub := printer{w: w}
	srv.Bus.Subscribe(actor, sub)
	defer srv.Bus.Unsubscribe(actor, sub)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !srv.Run(actor, line) {
			fmt.Fprintln(w, `Huh?  (Type "help" for help.)`)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("console: %v", err)
	}
}

// serve exposes metrics, follows config changes and checkpoints on
// shutdown.
func serve(srv *server.Server, conf *server.ChatConf, confPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if confPath != "" {
		if err := srv.WatchConf(confPath); err != nil {
			log.Printf("chatconf: cannot watch %s: %v", confPath, err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", srv.Metrics.Handler())
	hs := &http.Server{Addr: conf.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Printf("metrics: listening on %s", conf.MetricsAddr)
		errc <- hs.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Printf("Shutting down")
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hs.Shutdown(shutdownCtx)

	if srv.Store != nil {
		if err := srv.Checkpoint(); err != nil {
			return err
		}
	}
	if conf.ChatDB != "" {
		return srv.SaveChatDB(conf.ChatDB)
	}
	return nil
}
