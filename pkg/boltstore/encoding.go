package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/crystal-mush/mushchat/pkg/gamedb"
)

func init() {
	gob.Register(gamedb.ChannelRecord{})
	gob.Register(gamedb.MemberRecord{})
}

// storedChannel is a channel record plus its position in the registry,
// since bucket keys come back in byte order, not collation order.
type storedChannel struct {
	Seq    int
	Record gamedb.ChannelRecord
}

// encodeChannel serializes a channel record to bytes using gob.
func encodeChannel(seq int, rec *gamedb.ChannelRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(storedChannel{Seq: seq, Record: *rec}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeChannel deserializes bytes back into a channel record.
func decodeChannel(data []byte) (*storedChannel, error) {
	var sc storedChannel
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}
