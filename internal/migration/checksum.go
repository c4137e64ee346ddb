package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// checksumDoc is the canonical form hashed by ComputeChecksum. Each change is
// wrapped in a single-key object named after its kind; encoding/json emits
// struct fields in declaration order and map keys sorted, and omits absent
// optional fields, so the encoding is stable across processes.
type checksumDoc struct {
	ID      string            `json:"id"`
	Author  string            `json:"author"`
	Changes []map[Kind]Change `json:"changes"`
}

// ComputeChecksum returns the SHA-256 hex digest of the ChangeSet's
// normalized id, author and forward changes. Rollback changes, comments and
// contexts are not part of the checksum.
func ComputeChecksum(cs *ChangeSet) string {
	doc := checksumDoc{
		ID:      cs.ID,
		Author:  cs.Author,
		Changes: make([]map[Kind]Change, len(cs.Changes)),
	}

	for i, c := range cs.Changes {
		doc.Changes[i] = map[Kind]Change{c.Kind(): c}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		// Only reachable for values a document decoder cannot produce.
		data = []byte(fmt.Sprintf("%#v", doc))
	}

	return digest(data)
}

func digest(data []byte) string {
	h := sha256.Sum256(data)

	return hex.EncodeToString(h[:])
}
