package audit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrChainBroken is returned by Verify when an entry does not follow its
// predecessor.
var ErrChainBroken = errors.New("audit chain broken")

// Logger records governance decisions. Record never fails the caller: a
// sink error is logged as an alert and counted.
type Logger struct {
	sink     Sink
	logger   zerolog.Logger
	now      func() time.Time
	failures atomic.Int64
}

func NewLogger(sink Sink, logger zerolog.Logger) *Logger {
	return &Logger{
		sink:   sink,
		logger: logger.With().Str("component", "audit").Logger(),
		now:    time.Now,
	}
}

// Record writes one entry for eventType.
func (l *Logger) Record(ctx context.Context, eventType EventType, actor string, targets map[string]string, outcome Outcome) {
	clean, dropped := sanitizeTargets(targets)
	e := &Entry{
		ID:        uuid.New(),
		EventType: eventType,
		Actor:     sanitizeActor(actor),
		Targets:   clean,
		Outcome:   sanitizeOutcome(outcome),
		// Postgres keeps microseconds; truncate so stored entries rehash.
		Recorded: l.now().UTC().Truncate(time.Microsecond),
	}
	if dropped > 0 {
		l.logger.Warn().Int("dropped_targets", dropped).Str("event_type", string(eventType)).Msg("audit targets sanitized")
	}

	if err := l.sink.Append(ctx, e); err != nil {
		n := l.failures.Add(1)
		l.logger.Error().Err(err).
			Bool("alert", true).
			Str("event_type", string(eventType)).
			Str("entry_id", e.ID.String()).
			Int64("failures", n).
			Msg("audit write failed")
	}
}

// Failures is the number of entries the sink rejected since start.
func (l *Logger) Failures() int64 { return l.failures.Load() }

func (l *Logger) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	return l.sink.List(ctx, f, limit, offset)
}

// Report is the result of a chain verification.
type Report struct {
	Entries  int    `json:"entries"`
	Valid    bool   `json:"valid"`
	BrokenAt int64  `json:"broken_at,omitempty"`
	Problem  string `json:"problem,omitempty"`
}

// Verify recomputes the chain. A broken link is reported in the Report, not
// as an error; errors are reserved for sink failures.
func (l *Logger) Verify(ctx context.Context) (*Report, error) {
	rep := &Report{Valid: true}
	prevSeq, prevHash := int64(0), GenesisHash
	err := l.sink.Walk(ctx, func(e *Entry) error {
		rep.Entries++
		var problem string
		switch {
		case e.Sequence != prevSeq+1:
			problem = fmt.Sprintf("sequence %d follows %d", e.Sequence, prevSeq)
		case e.PrevHash != prevHash:
			problem = "previous hash mismatch"
		case computeHash(e) != e.Hash:
			problem = "content hash mismatch"
		}
		if problem != "" {
			rep.Valid, rep.BrokenAt, rep.Problem = false, e.Sequence, problem
			return ErrChainBroken
		}
		prevSeq, prevHash = e.Sequence, e.Hash
		return nil
	})
	if err != nil && !errors.Is(err, ErrChainBroken) {
		return nil, fmt.Errorf("walk audit trail: %w", err)
	}
	return rep, nil
}
