package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"maps"
	"slices"

	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/twin"
)

// ContentHash computes a deterministic SHA-256 digest of a twin's user id and
// domains. Document metadata (version, created_at, updated_at) is excluded.
func ContentHash(t *twin.Twin) (string, error) {
	doc := t.ToDict()
	delete(doc, "metadata")

	h := sha256.New()
	for _, key := range slices.Sorted(maps.Keys(doc)) {
		// encoding/json sorts map keys, which makes each section canonical
		section, err := json.Marshal(doc[key])
		if err != nil {
			return "", errors.Wrapf(err, "hash %s", key)
		}
		h.Write([]byte(key))
		h.Write([]byte{0})
		h.Write(section)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
