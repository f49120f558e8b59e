package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// genesisHash anchors the chain before the first entry.
var genesisHash = strings.Repeat("0", 64)

// chainHash computes the entry hash from the previous hash, the entry type,
// and the canonical payload bytes.
func chainHash(prevHash string, entryType EntryType, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(entryType))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
