package conflict

import (
	"github.com/google/uuid"

	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
)

// Resolver applies a frozen policy. It is safe for concurrent use.
type Resolver struct {
	def        Strategy
	bySeverity map[Severity]Strategy
	byKind     map[extraction.Kind]Strategy
}

// Resolution is the decision for one conflict.
type Resolution struct {
	Conflict Conflict
	Strategy Strategy
	// Supersession is set when the strategy retires one side.
	Supersession *record.Supersession
}

// Strategy picks the strategy for c. Critical conflicts and identity
// mismatches always go to manual review.
func (r *Resolver) Strategy(c Conflict) Strategy {
	if c.Severity == SeverityCritical || !c.Severity.Valid() || c.Type == TypeIdentityMismatch {
		return ManualReview
	}
	if c.Incoming != nil {
		if s, ok := r.byKind[c.Incoming.Kind]; ok {
			return s
		}
	}
	if s, ok := r.bySeverity[c.Severity]; ok {
		return s
	}
	return r.def
}

// Resolve decides every conflict of a batch. A pair that any conflict
// sends to manual review keeps both sides current.
func (r *Resolver) Resolve(batchID uuid.UUID, conflicts []Conflict) []Resolution {
	manual := make(map[[2]uuid.UUID]bool)
	out := make([]Resolution, 0, len(conflicts))
	for _, c := range conflicts {
		res := Resolution{Conflict: c, Strategy: r.Strategy(c)}
		if res.Strategy == ManualReview && c.Incoming != nil && c.Existing != nil {
			manual[pairKey(c)] = true
		}
		out = append(out, res)
	}
	for i := range out {
		c := out[i].Conflict
		if c.Incoming == nil || c.Existing == nil || manual[pairKey(c)] {
			continue
		}
		out[i].Supersession = supersede(batchID, out[i].Strategy, c)
	}
	return out
}

// Supersessions collects the supersessions out of resolutions.
func Supersessions(res []Resolution) []record.Supersession {
	var out []record.Supersession
	for _, r := range res {
		if r.Supersession != nil {
			out = append(out, *r.Supersession)
		}
	}
	return out
}

// NeedsReview reports whether any resolution was left for a human.
func NeedsReview(res []Resolution) bool {
	for _, r := range res {
		if r.Strategy == ManualReview {
			return true
		}
	}
	return false
}

func supersede(batchID uuid.UUID, s Strategy, c Conflict) *record.Supersession {
	var winner, loser *record.Resource
	reason := record.ReasonNewestWins
	switch s {
	case NewestWins:
		winner, loser = newest(c.Incoming, c.Existing)
	case ConfidenceBased:
		ci, ce := c.Incoming.Provenance.Confidence, c.Existing.Provenance.Confidence
		switch {
		case ci > ce:
			winner, loser = c.Incoming, c.Existing
			reason = record.ReasonConfidenceBased
		case ce > ci:
			winner, loser = c.Existing, c.Incoming
			reason = record.ReasonConfidenceBased
		default:
			winner, loser = newest(c.Incoming, c.Existing)
		}
	default:
		return nil
	}
	return &record.Supersession{
		Superseded: loser.ID,
		By:         winner.ID,
		Reason:     reason,
		BatchID:    batchID,
		CreatedAt:  c.DetectedAt,
	}
}

// newest orders two resources by clinical date, then by when they were
// recorded. A full tie goes to the incoming side.
func newest(in, ex *record.Resource) (winner, loser *record.Resource) {
	switch cmp := in.Effective.Compare(ex.Effective); {
	case cmp > 0:
		return in, ex
	case cmp < 0:
		return ex, in
	}
	if ex.RecordedAt.After(in.RecordedAt) {
		return ex, in
	}
	return in, ex
}

func pairKey(c Conflict) [2]uuid.UUID {
	return [2]uuid.UUID{c.Incoming.ID, c.Existing.ID}
}
