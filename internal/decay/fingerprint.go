package decay

import (
	"fmt"
	"hash/fnv"
)

// fingerprintRunes is how many leading Unicode scalar values survive
// compression.
const fingerprintRunes = 64

// Fingerprint produces the lossy compressed form of a cold memory's
// content: its first 64 runes plus a stable hash of the full text. The
// original content is not recoverable.
func Fingerprint(content string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))

	runes := []rune(content)
	if len(runes) > fingerprintRunes {
		runes = runes[:fingerprintRunes]
	}
	return fmt.Sprintf("%s#%016x", string(runes), h.Sum64())
}
