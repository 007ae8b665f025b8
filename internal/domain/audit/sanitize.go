package audit

import (
	"regexp"
	"sort"

	"github.com/google/uuid"
)

// ReasonUnspecified replaces any reason outside the vocabulary.
const ReasonUnspecified = "unspecified"

var (
	knownTargets = map[string]bool{
		TargetBatch:    true,
		TargetDocument: true,
		TargetPatient:  true,
	}

	// Generic, non-clinical reasons. Free text never reaches the trail.
	knownReasons = map[string]bool{
		"low confidence":             true,
		"fallback producer used":     true,
		"zero resources extracted":   true,
		"low confidence small batch": true,
		"identity conflict":          true,
		"conflict requires review":   true,
		"conversion failures":        true,
		"merge failed":               true,
		"retries exhausted":          true,
		"time budget exceeded":       true,
		"storage unavailable":        true,
		"human decision":             true,
		ReasonUnspecified:            true,
	}

	opaqueID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,64}$`)
	label    = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)
)

// KnownReason reports whether reason may be written to the trail as is.
func KnownReason(reason string) bool { return knownReasons[reason] }

func sanitizeTargets(in map[string]string) (map[string]string, int) {
	out := make(map[string]string, len(in))
	dropped := 0
	for k, v := range in {
		if !knownTargets[k] || !validID(v) {
			dropped++
			continue
		}
		out[k] = v
	}
	return out, dropped
}

func validID(v string) bool {
	if _, err := uuid.Parse(v); err == nil {
		return true
	}
	return opaqueID.MatchString(v)
}

func sanitizeOutcome(in Outcome) Outcome {
	out := Outcome{Status: in.Status}
	if !label.MatchString(out.Status) {
		out.Status = ReasonUnspecified
	}

	seen := make(map[string]bool)
	for _, r := range in.Reasons {
		if !knownReasons[r] {
			r = ReasonUnspecified
		}
		if !seen[r] {
			seen[r] = true
			out.Reasons = append(out.Reasons, r)
		}
	}
	sort.Strings(out.Reasons)

	for k, v := range in.Counts {
		if label.MatchString(k) {
			if out.Counts == nil {
				out.Counts = make(map[string]int)
			}
			out.Counts[k] = v
		}
	}
	for k, v := range in.Flags {
		if label.MatchString(k) {
			if out.Flags == nil {
				out.Flags = make(map[string]bool)
			}
			out.Flags[k] = v
		}
	}
	return out
}

func sanitizeActor(actor string) string {
	if validID(actor) {
		return actor
	}
	return "redacted"
}
