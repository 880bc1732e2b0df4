package boltstore

import (
	"encoding/binary"
	"strings"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta     = []byte("meta")
	bucketChannels = []byte("channels")
	bucketChatDump = []byte("chatdump")
)

// Meta and dump key constants.
var (
	keyVersion   = []byte("version")
	keySavedTime = []byte("savedtime")
	keyChannels  = []byte("channels")
	keyText      = []byte("text")
)

// storeVersion is bumped when the record encoding changes.
const storeVersion = 1

// channelKey folds a stripped channel name into its bucket key.
func channelKey(plain string) []byte {
	return []byte(strings.ToLower(plain))
}

// intToKey converts an int to an 8-byte big-endian key.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int.
func keyToInt(b []byte) int {
	if len(b) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(b))
}
