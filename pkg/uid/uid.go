package uid

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// New generates a random event identifier.
func New() string {
	return uuid.New().String()
}

// Sequential returns a generator of "<prefix>-1", "<prefix>-2", ... for
// reproducible replays. It is safe for concurrent use.
func Sequential(prefix string) func() string {
	var n atomic.Uint64
	return func() string {
		return prefix + "-" + strconv.FormatUint(n.Add(1), 10)
	}
}

// Parse reports whether id is a UUID generated by New.
func Parse(id string) (uuid.UUID, bool) {
	u, err := uuid.Parse(id)
	return u, err == nil
}
