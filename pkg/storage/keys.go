package storage

import (
	"fmt"
	"time"
)

// Key schema:
//
//	snap:<name>                    → last good view projection (JSON)
//	out:<finishedAt>:<lifecycleID> → terminal lifecycle outcome (JSON)
//
// finishedAt is zero-padded unix nanoseconds so keys sort by time.
const (
	prefixSnapshot = "snap:"
	prefixOutcome  = "out:"
)

func snapshotKey(name string) []byte {
	return []byte(prefixSnapshot + name)
}

func outcomeKey(finishedAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixOutcome, finishedAt.UnixNano(), id))
}

func outcomePrefix() []byte {
	return []byte(prefixOutcome)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
