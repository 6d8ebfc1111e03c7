package cache

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"
)

// keySeparator joins the kind and ordinal inputs before hashing. It is
// not escaped: an input containing a literal "|" can collide with a
// logically distinct tuple. Known limitation; escaping it now would
// change every key and orphan all persisted entries, so any fix must
// come with a versioned key scheme.
const keySeparator = "|"

// Key derives a stable cache key from a kind tag and its ordered
// inputs. Same kind and same inputs in the same order always produce
// the same key. The digest is a 128-bit xxh3 rendered as 32 hex
// characters; fast and collision-resistant enough for a local cache,
// not cryptographic.
func Key(kind string, inputs ...string) string {
	joined := kind
	if len(inputs) > 0 {
		joined += keySeparator + strings.Join(inputs, keySeparator)
	}
	sum := xxh3.Hash128([]byte(joined))
	return fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo)
}
