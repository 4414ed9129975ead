// Package id hands out record identifiers.
package id

import (
	cryptoRand "crypto/rand" // Secure seed
	"encoding/binary"        // Entropy seeding
	"io"                     // Entropy source
	"math/rand"              // Seeded entropy
	"sync"                   // Concurrency primitives
	"time"                   // ULID timestamps

	"github.com/oklog/ulid/v2" // ULID generation
)

var (
	mu   sync.Mutex
	mono io.Reader
	last ulid.ULID
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string strictly greater than every id previously
// returned by this process, so ids sort in creation order.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	ms := ulid.Timestamp(time.Now().UTC())
	if ms < last.Time() {
		ms = last.Time() // clock stepped back; stay on the previous millisecond
	}
	next, err := ulid.New(ms, mono)
	if err != nil {
		// Monotonic entropy overflowed within one millisecond.
		next, err = ulid.New(ms+1, mono)
		if err != nil {
			panic(err)
		}
	}
	last = next
	return next.String()
}
