// Package audit keeps the governance trail: one hash-chained entry per
// merge completion and per review transition. Entries hold identifiers,
// counts, booleans and generic reasons only.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMergeCompleted     EventType = "merge.completed"
	EventMergeFailed        EventType = "merge.failed"
	EventReviewAutoApproved EventType = "review.auto_approved"
	EventReviewFlagged      EventType = "review.flagged"
	EventReviewReviewed     EventType = "review.reviewed"
	EventReviewRejected     EventType = "review.rejected"
)

// Target keys an entry may carry.
const (
	TargetBatch    = "batch_id"
	TargetDocument = "document_id"
	TargetPatient  = "patient_id"
)

// GenesisHash is the PrevHash of the first entry in a chain.
var GenesisHash = strings.Repeat("0", 64)

// Outcome is the PHI-free result of a governance decision.
type Outcome struct {
	Status  string          `json:"status"`
	Reasons []string        `json:"reasons,omitempty"`
	Counts  map[string]int  `json:"counts,omitempty"`
	Flags   map[string]bool `json:"flags,omitempty"`
}

// Entry is one immutable audit record.
type Entry struct {
	ID        uuid.UUID         `json:"id"`
	Sequence  int64             `json:"sequence"`
	EventType EventType         `json:"event_type"`
	Actor     string            `json:"actor"`
	Targets   map[string]string `json:"targets"`
	Outcome   Outcome           `json:"outcome"`
	Recorded  time.Time         `json:"recorded"`
	PrevHash  string            `json:"prev_hash"`
	Hash      string            `json:"hash"`
}

// Seal chains e after the entry (prevSeq, prevHash).
func Seal(e *Entry, prevSeq int64, prevHash string) {
	e.Sequence = prevSeq + 1
	e.PrevHash = prevHash
	e.Hash = computeHash(e)
}

func computeHash(e *Entry) string {
	body, _ := json.Marshal(struct {
		ID        uuid.UUID         `json:"id"`
		Sequence  int64             `json:"sequence"`
		EventType EventType         `json:"event_type"`
		Actor     string            `json:"actor"`
		Targets   map[string]string `json:"targets"`
		Outcome   Outcome           `json:"outcome"`
		Recorded  string            `json:"recorded"`
	}{e.ID, e.Sequence, e.EventType, e.Actor, e.Targets, e.Outcome, e.Recorded.UTC().Format(time.RFC3339Nano)})

	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Filter narrows a listing.
type Filter struct {
	EventType EventType
	BatchID   string
}

// Sink stores sealed entries. Append must seal e against the sink's current
// head atomically so that concurrent writers never fork the chain.
type Sink interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
	// Walk visits every entry in sequence order.
	Walk(ctx context.Context, fn func(*Entry) error) error
}
