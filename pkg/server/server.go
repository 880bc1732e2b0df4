// Package server wires the chat registry to its world, transport, storage
// and metrics, and exposes the operations a host game calls.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/crystal-mush/mushchat/pkg/boltstore"
	"github.com/crystal-mush/mushchat/pkg/chat"
	"github.com/crystal-mush/mushchat/pkg/comsys"
	"github.com/crystal-mush/mushchat/pkg/events"
	"github.com/crystal-mush/mushchat/pkg/flatfile"
	"github.com/crystal-mush/mushchat/pkg/gamedb"
	"github.com/crystal-mush/mushchat/pkg/lock"
	"github.com/crystal-mush/mushchat/pkg/scrollback"
)

// SavedTimeFormat is the layout of the saved time written with a chat
// database.
const SavedTimeFormat = time.ANSIC

// ErrNoStore is returned by snapshot operations when no bolt store is
// configured.
var ErrNoStore = errors.New("server: no bolt store configured")

// Server is a running chat system.
type Server struct {
	Conf       *ChatConf
	World      *gamedb.Database
	Registry   *chat.Registry
	Bus        *events.Bus
	Transport  *events.Transport
	Commands   *comsys.Commands
	Metrics    *Metrics
	Store      *boltstore.Store  // nil without bolt_path
	Scrollback *scrollback.Store // nil without scrollback_db

	writer *scrollback.Writer
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a chat server over world. Storage named in conf is opened;
// nothing is loaded.
func New(conf *ChatConf, world *gamedb.Database) (*Server, error) {
	if conf == nil {
		conf = DefaultChatConf()
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{Conf: conf, World: world, Bus: events.NewBus()}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.Transport = events.NewTransport(s.Bus)
	s.Metrics = NewMetrics(s.Transport, time.Now())
	s.Registry = chat.NewRegistry(chat.Deps{
		World:     world,
		Evaluator: lock.NewEvaluator(world),
		Transport: s.Transport,
		Economy:   world,
		Labels:    world,
		Observer:  s.Metrics,
	}, conf.ToOptions())
	s.Metrics.Attach(s.Registry)
	s.Commands = comsys.New(s.Registry, world, s.Transport)
	s.Commands.OnRename = s.renameHistory

	if conf.BoltPath != "" {
		store, err := boltstore.Open(conf.BoltPath)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Store = store
	}
	if conf.ScrollbackDB != "" {
		sb, err := scrollback.Open(conf.ScrollbackDB, conf.SQLTimeout)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Scrollback = sb
		s.writer = scrollback.NewWriter(sb, world, s.Bus)
		retention := time.Duration(conf.ScrollbackRetention) * time.Second
		scrollback.StartRetentionCleanup(s.ctx, sb, retention, time.Hour)
	}
	return s, nil
}

// renameHistory keeps archived traffic under a renamed channel's new name.
func (s *Server) renameHistory(oldName, newName string) {
	if s.Scrollback == nil {
		return
	}
	if err := s.Scrollback.Rename(oldName, newName); err != nil {
		log.Printf("scrollback: %v", err)
	}
}

// ApplyConf replaces the registry's tunable settings. Storage paths are
// not reopened.
func (s *Server) ApplyConf(conf *ChatConf) {
	s.Registry.SetOptions(conf.ToOptions())
	log.Printf("chatconf: applied max_channels=%d cost=%d label=%q override=%s",
		conf.MaxChannels, conf.ChannelCost, conf.LabelFormat, conf.DirectorOverride)
}

// WatchConf reloads path into the registry whenever it changes, until
// the server is closed.
func (s *Server) WatchConf(path string) error {
	return WatchConf(s.ctx, path, s.ApplyConf)
}

// Run executes one chat command line for actor, reporting whether it was
// a chat command.
func (s *Server) Run(actor gamedb.DBRef, line string) bool {
	return s.Commands.Run(actor, line)
}

// Connect marks p connected, clears its gags and announces it.
func (s *Server) Connect(p gamedb.DBRef) {
	s.World.SetConnected(p, true)
	s.Registry.PlayerAnnounce(p, "has connected.", true)
}

// Disconnect announces p's departure and marks it disconnected.
func (s *Server) Disconnect(p gamedb.DBRef) {
	s.Registry.PlayerAnnounce(p, "has disconnected.", false)
	s.World.SetConnected(p, false)
}

// Destroy removes p from every channel, hands its channels to heir and
// destroys the object.
func (s *Server) Destroy(p, heir gamedb.DBRef) {
	s.Registry.RemoveEverywhere(p)
	if n := s.Registry.ChownAll(p, heir); n > 0 {
		log.Printf("comsys: %d channels of %s given to %s", n, p, heir)
	}
	s.World.Destroy(p)
}

// LoadChatDB replaces the registry with the chat database at path.
// worldStamp is the saved time of the companion world database; a
// mismatch is only logged.
func (s *Server) LoadChatDB(path, worldStamp string) error {
	db, err := s.ReadChatDB(path, worldStamp)
	if err != nil {
		return err
	}
	return s.Restore(db.Channels, db.Warnings, path)
}

// ReadChatDB parses the chat database at path under the configured
// channel limit without touching the registry.
func (s *Server) ReadChatDB(path, worldStamp string) (*flatfile.ChatDB, error) {
	db, err := flatfile.LoadChatDB(path, flatfile.ReadOptions{
		MaxChannels:    s.Conf.MaxChannels,
		WorldTimestamp: worldStamp,
	})
	if err != nil {
		return nil, fmt.Errorf("chatdb: load %s: %w", path, err)
	}
	log.Printf("chatdb: read %d channels from %s (%s format, saved %q)",
		len(db.Channels), path, db.Format, db.SavedTime)
	return db, nil
}

// Restore replaces the registry with records read from source. warnings
// counts problems already skipped while reading them.
func (s *Server) Restore(records []gamedb.ChannelRecord, warnings int, source string) error {
	dropped, err := s.Registry.Restore(records)
	if err != nil {
		return fmt.Errorf("chatdb: restore %s: %w", source, err)
	}
	s.Metrics.LoadWarnings(warnings + dropped)
	log.Printf("chatdb: restored %d channels from %s (%d warnings)",
		s.Registry.Len(), source, warnings+dropped)
	return nil
}

// SaveChatDB writes the registry to path in the native format.
func (s *Server) SaveChatDB(path string) error {
	records := s.Registry.Snapshot()
	if err := flatfile.SaveChatDB(path, records, time.Now().Format(SavedTimeFormat)); err != nil {
		return fmt.Errorf("chatdb: save %s: %w", path, err)
	}
	log.Printf("chatdb: saved %d channels to %s", len(records), path)
	return nil
}

// Checkpoint stores the registry in the bolt store, both as records and
// as a text dump, and flushes the scrollback archive.
func (s *Server) Checkpoint() error {
	if s.Store == nil {
		return ErrNoStore
	}
	records := s.Registry.Snapshot()
	saved := time.Now().Format(SavedTimeFormat)
	if err := s.Store.PutChannels(records, saved); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := flatfile.WriteChatDB(&buf, records, saved); err != nil {
		return fmt.Errorf("chatdb: encode dump: %w", err)
	}
	if err := s.Store.PutChatDump(buf.Bytes(), saved); err != nil {
		return fmt.Errorf("boltstore: put chat dump: %w", err)
	}
	if s.Scrollback != nil {
		if err := s.Scrollback.Checkpoint(); err != nil {
			log.Printf("scrollback: checkpoint: %v", err)
		}
	}
	return nil
}

// RestoreCheckpoint replaces the registry with the records in the bolt
// store.
func (s *Server) RestoreCheckpoint() error {
	if s.Store == nil {
		return ErrNoStore
	}
	records, saved, err := s.Store.Channels()
	if err != nil {
		return err
	}
	return s.Restore(records, 0, fmt.Sprintf("%s (saved %s)", s.Store.Path(), saved))
}

// ExportDump writes the text dump held in the bolt store to path.
func (s *Server) ExportDump(path string) error {
	if s.Store == nil {
		return ErrNoStore
	}
	text, _, err := s.Store.ChatDump()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, text, 0o644); err != nil {
		return fmt.Errorf("chatdb: export %s: %w", path, err)
	}
	return nil
}

// Close stops background work and closes storage.
func (s *Server) Close() error {
	s.cancel()
	if s.writer != nil {
		s.writer.Close()
	}
	var errs []error
	if s.Scrollback != nil {
		errs = append(errs, s.Scrollback.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	s.Bus.Cleanup()
	return errors.Join(errs...)
}
