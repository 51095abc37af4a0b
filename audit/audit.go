// Package audit records Decisions a Policy has already produced. It
// runs strictly after Policy.Evaluate returns — nothing here is on the
// zero-allocation hot path — and exists so an embedding program gets a
// tamper-evident log of what the engine decided without having to build
// that bookkeeping itself.
//
// Each Record is stamped with a sortable ULID trace ID and chained to
// the previous record's hash, the same scheme the engine this package
// was adapted from uses for its SQLite-backed trace table: a verifier
// can walk the chain later and detect whether any record was altered or
// removed out of order.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/latticeguard/authzcore/policy"
	"github.com/latticeguard/authzcore/rule"
)

// Record is one logged decision: the request's identifying fields, the
// decision it produced, a sortable trace ID, and the hash chain linking
// it to the record before it.
type Record struct {
	TraceID   string
	Principal string
	Action    string
	Resource  string
	Effect    rule.Effect
	Reason    rule.ReasonCode
	Timestamp time.Time
	PrevHash  string
	Hash      string
}

// ComputeHash hashes r, chaining to its PrevHash, exactly as
// ComputeHash/VerifyChain do for the trace table this scheme was
// adapted from.
func ComputeHash(r *Record) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s",
		r.TraceID, r.Principal, r.Action, r.Resource, r.Effect.String(), r.Reason, r.PrevHash)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// ComputeSeed computes the initial PrevHash for a fresh Log, derived
// from a caller-supplied identifier (a session ID, process ID, or
// similar) so two Logs never produce colliding chains.
func ComputeSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// Log is a bounded, in-process ring buffer of Records plus a log/slog
// sink. It is safe for concurrent use: Policy.Evaluate/EvaluateWithStats
// may run on many goroutines and each can report its own decision to
// the same Log.
type Log struct {
	mu       sync.Mutex
	logger   *slog.Logger
	capacity int
	records  []Record
	head     int
	count    int
	prevHash string
}

// NewLog returns a Log with the given ring-buffer capacity, seeded from
// seed. If logger is nil, slog.Default() is used, following the
// teacher's nil-logger convention.
func NewLog(capacity int, seed string, logger *slog.Logger) *Log {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		logger:   logger.With("component", "audit.Log"),
		capacity: capacity,
		records:  make([]Record, capacity),
		prevHash: ComputeSeed(seed),
	}
}

// Record appends a Record for req/decision, stamps it with a new ULID
// trace ID, chains its hash to the previous record, logs it via
// log/slog, and returns the stamped Record. now is passed in by the
// caller rather than read from the system clock here, so that embedding
// programs with their own clock abstraction can supply it.
func (l *Log) Record(req policy.Request, decision policy.Decision, now time.Time) Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Record{
		TraceID:   ulid.Make().String(),
		Principal: req.Principal,
		Action:    req.Action,
		Resource:  req.Resource,
		Effect:    decision.Effect,
		Reason:    decision.Reason,
		Timestamp: now,
		PrevHash:  l.prevHash,
	}
	r.Hash = ComputeHash(&r)
	l.prevHash = r.Hash

	l.records[l.head] = r
	l.head = (l.head + 1) % l.capacity
	if l.count < l.capacity {
		l.count++
	}

	l.logger.Info("policy decision",
		"trace_id", r.TraceID,
		"principal", r.Principal,
		"action", r.Action,
		"resource", r.Resource,
		"effect", r.Effect.String(),
		"reason", r.Reason,
	)

	return r
}

// Records returns the currently retained records in chronological
// order, oldest first. The slice is a copy; mutating it does not affect
// the Log.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, l.count)
	if l.count < l.capacity {
		copy(out, l.records[:l.count])
		return out
	}
	// Ring is full: the oldest record is at l.head.
	n := copy(out, l.records[l.head:])
	copy(out[n:], l.records[:l.head])
	return out
}

// VerifyChain reports whether the currently retained records form an
// unbroken hash chain, and the index of the first break if not. An
// empty slice is always valid; the first record's PrevHash is not
// checked, but its own Hash is.
func VerifyChain(records []Record) (bool, int) {
	for i := range records {
		if ComputeHash(&records[i]) != records[i].Hash {
			return false, i
		}
		if i > 0 && records[i].PrevHash != records[i-1].Hash {
			return false, i
		}
	}
	return true, -1
}
