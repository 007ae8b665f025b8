package review

// GateInput is what the quality gate sees of a merged batch.
type GateInput struct {
	Confidence float64 `json:"confidence"`
	Producer   string  `json:"producer"`
	Fallback   bool    `json:"fallback"`
	// ResourceConfidences holds one extraction confidence per produced
	// resource.
	ResourceConfidences []float64 `json:"resource_confidences"`
	IdentityConflict    bool      `json:"identity_conflict"`
	// ReviewConflicts are conflicts resolved via manual review.
	ReviewConflicts int `json:"review_conflicts"`
	DroppedRecords  int `json:"dropped_records"`
}

// Gate decides between auto approval and flagging.
type Gate struct {
	MinConfidence        float64
	SmallBatchSize       int
	SmallBatchConfidence float64
	// PrimaryProducers, when set, lists the producers trusted as primary.
	PrimaryProducers []string
}

func DefaultGate() Gate {
	return Gate{MinConfidence: 0.80, SmallBatchSize: 3, SmallBatchConfidence: 0.95}
}

// Decision is the gate's verdict.
type Decision struct {
	Status  Status
	Reasons []string
}

// Evaluate approves only when every criterion holds; each failing one adds
// its reason.
func (g Gate) Evaluate(in GateInput) Decision {
	var reasons []string
	if in.Confidence < g.MinConfidence {
		reasons = append(reasons, ReasonLowConfidence)
	}
	if in.Fallback || !g.primary(in.Producer) {
		reasons = append(reasons, ReasonFallbackProducer)
	}
	n := len(in.ResourceConfidences)
	if n == 0 {
		reasons = append(reasons, ReasonZeroResources)
	} else if n < g.SmallBatchSize {
		for _, c := range in.ResourceConfidences {
			if c < g.SmallBatchConfidence {
				reasons = append(reasons, ReasonSmallBatch)
				break
			}
		}
	}
	if in.IdentityConflict {
		reasons = append(reasons, ReasonIdentityConflict)
	}
	if in.ReviewConflicts > 0 {
		reasons = append(reasons, ReasonConflictReview)
	}
	if in.DroppedRecords > 0 {
		reasons = append(reasons, ReasonConversionFailures)
	}

	if len(reasons) > 0 {
		return Decision{Status: StatusFlagged, Reasons: reasons}
	}
	return Decision{Status: StatusAutoApproved}
}

func (g Gate) primary(producer string) bool {
	if len(g.PrimaryProducers) == 0 {
		return true
	}
	for _, p := range g.PrimaryProducers {
		if p == producer {
			return true
		}
	}
	return false
}
