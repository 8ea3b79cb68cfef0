// Package autoid issues unique, roughly time-ordered profile identifiers
// without central coordination. IDs are 63-bit integers rendered as decimal
// strings, composed of a millisecond timestamp, a per-host worker partition,
// and a per-millisecond sequence.
package autoid

import (
	"hash/crc32"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	// epochMs is 2026-01-01T00:00:00Z. Shrinks the timestamp component so
	// the composed ID stays within 63 bits for decades.
	epochMs = int64(1767225600000)

	workerIDBits = 10
	sequenceBits = 12

	maxWorkerID = (1 << workerIDBits) - 1
	maxSequence = (1 << sequenceBits) - 1

	timestampShift = workerIDBits + sequenceBits
)

// Generator produces unique IDs. Safe for concurrent use; uniqueness holds
// for up to 4096 calls per millisecond per instance. Cross-process
// uniqueness relies on the worker partition, not coordination.
type Generator struct {
	mu       sync.Mutex
	workerID int64
	lastMs   int64
	sequence int64
}

// New builds a generator with a worker ID derived from the hostname.
func New() *Generator {
	return &Generator{workerID: deriveWorkerID(), lastMs: -1}
}

func deriveWorkerID() int64 {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return rand.Int63n(maxWorkerID + 1)
	}
	return int64(crc32.ChecksumIEEE([]byte(host)) % (maxWorkerID + 1))
}

// Generate returns the next ID as a decimal string. It never fails: on
// sequence exhaustion within a millisecond it spin-waits for the next one,
// and a clock reading before the custom epoch is used as-is.
func (g *Generator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	elapsed := g.elapsedMs()
	if elapsed == g.lastMs {
		g.sequence++
		if g.sequence > maxSequence {
			for elapsed <= g.lastMs {
				elapsed = g.elapsedMs()
			}
			g.sequence = 0
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = elapsed

	id := (elapsed << timestampShift) | (g.workerID << sequenceBits) | g.sequence
	return strconv.FormatInt(id, 10)
}

func (g *Generator) elapsedMs() int64 {
	now := time.Now().UnixMilli()
	if now < epochMs {
		return now
	}
	return now - epochMs
}

// WorkerID exposes the partition assigned to this generator.
func (g *Generator) WorkerID() int64 {
	return g.workerID
}

var defaultGenerator = New()

// Generate issues an ID from the process-wide shared generator.
func Generate() string {
	return defaultGenerator.Generate()
}
