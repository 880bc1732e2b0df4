package boltstore

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/charmbracelet/x/ansi"
	bbolt "go.etcd.io/bbolt"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

// ErrNoDump is returned by ChatDump when no text dump has been stored.
var ErrNoDump = errors.New("boltstore: no chat dump stored")

// Store wraps a bbolt database holding chat snapshots.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	// Ensure all buckets exist.
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketChannels, bucketChatDump} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(keyVersion) == nil {
			return meta.Put(keyVersion, intToKey(storeVersion))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}

	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying bbolt database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// Version returns the stored encoding version.
func (s *Store) Version() int {
	v := 0
	s.bolt.View(func(tx *bbolt.Tx) error {
		v = keyToInt(tx.Bucket(bucketMeta).Get(keyVersion))
		return nil
	})
	return v
}

// PutChannels replaces the stored channel set with records in a single
// transaction. Records are keyed by folded, stripped name; their order is
// kept so Channels returns them as given.
func (s *Store) PutChannels(records []gamedb.ChannelRecord, savedTime string) error {
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketChannels); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket(bucketChannels)
		if err != nil {
			return err
		}
		for i := range records {
			data, err := encodeChannel(i, &records[i])
			if err != nil {
				return fmt.Errorf("encode channel %q: %w", records[i].Name, err)
			}
			if err := b.Put(channelKey(ansi.Strip(records[i].Name)), data); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(keySavedTime, []byte(savedTime)); err != nil {
			return err
		}
		return meta.Put(keyChannels, intToKey(len(records)))
	})
	if err != nil {
		return fmt.Errorf("boltstore: put channels: %w", err)
	}
	log.Printf("boltstore: stored %d channels", len(records))
	return nil
}

// Channels reads the stored channel set in the order it was written, and
// the saved time it was written with.
func (s *Store) Channels() ([]gamedb.ChannelRecord, string, error) {
	var stored []*storedChannel
	var savedTime string
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		savedTime = string(tx.Bucket(bucketMeta).Get(keySavedTime))
		return tx.Bucket(bucketChannels).ForEach(func(k, v []byte) error {
			sc, err := decodeChannel(v)
			if err != nil {
				return fmt.Errorf("decode channel %q: %w", string(k), err)
			}
			stored = append(stored, sc)
			return nil
		})
	})
	if err != nil {
		return nil, "", fmt.Errorf("boltstore: load channels: %w", err)
	}

	sort.Slice(stored, func(i, j int) bool { return stored[i].Seq < stored[j].Seq })
	records := make([]gamedb.ChannelRecord, len(stored))
	for i, sc := range stored {
		records[i] = sc.Record
	}
	return records, savedTime, nil
}

// HasChannels returns true if any channels are stored.
func (s *Store) HasChannels() bool {
	has := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketChannels).Stats().KeyN > 0 {
			has = true
		}
		return nil
	})
	return has
}

// PutChatDump stores the text form of the chat database alongside the
// structured records, for export without a re-encode.
func (s *Store) PutChatDump(text []byte, savedTime string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChatDump)
		if err := b.Put(keyText, text); err != nil {
			return err
		}
		return b.Put(keySavedTime, []byte(savedTime))
	})
}

// ChatDump returns the stored text dump and its saved time.
func (s *Store) ChatDump() ([]byte, string, error) {
	var text []byte
	var savedTime string
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChatDump)
		v := b.Get(keyText)
		if v == nil {
			return ErrNoDump
		}
		// Values are only valid for the life of the transaction.
		text = append([]byte(nil), v...)
		savedTime = string(b.Get(keySavedTime))
		return nil
	})
	return text, savedTime, err
}

// Backup creates a hot snapshot of the bbolt database using tx.WriteTo().
func (s *Store) Backup(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("boltstore: create backup %s: %w", path, err)
		}
		defer f.Close()
		_, err = tx.WriteTo(f)
		if err != nil {
			return fmt.Errorf("boltstore: write backup: %w", err)
		}
		log.Printf("boltstore: backup written to %s", path)
		return nil
	})
}
