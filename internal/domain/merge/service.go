package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/clinicalmerge/internal/domain/audit"
	"github.com/ehr/clinicalmerge/internal/domain/conflict"
	"github.com/ehr/clinicalmerge/internal/domain/convert"
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
	"github.com/ehr/clinicalmerge/internal/domain/review"
	"github.com/ehr/clinicalmerge/internal/platform/auth"
	"github.com/ehr/clinicalmerge/internal/platform/lock"
	"github.com/ehr/clinicalmerge/internal/platform/notify"
	"github.com/ehr/clinicalmerge/internal/platform/retry"
)

// Generic failure reasons, shared with the audit vocabulary.
const (
	ReasonRetriesExhausted   = "retries exhausted"
	ReasonTimeBudgetExceeded = "time budget exceeded"
	ReasonStorageUnavailable = "storage unavailable"
)

// Options tunes a Service.
type Options struct {
	Validation extraction.ValidationOptions
	// Policy is used by Merge. MergeWithPolicy takes one per call.
	Policy conflict.Policy
	// TimeBudget bounds a whole merge. Zero means no budget.
	TimeBudget time.Duration
	Retry      retry.Config
}

func DefaultOptions() Options {
	return Options{
		Validation: extraction.DefaultValidation(),
		Policy:     conflict.DefaultPolicy(),
		TimeBudget: 30 * time.Second,
		Retry:      retry.DefaultConfig(),
	}
}

// Deps are the collaborators a Service drives. Locker and Publisher may be
// nil for single-process use.
type Deps struct {
	Store     record.Store
	Router    *convert.Router
	Detector  *conflict.Detector
	Reviews   *review.Service
	Auditor   review.Auditor
	Locker    lock.Locker
	Publisher notify.Publisher
	Logger    zerolog.Logger
}

type Service struct {
	store     record.Store
	router    *convert.Router
	detector  *conflict.Detector
	reviews   *review.Service
	auditor   review.Auditor
	locker    lock.Locker
	publisher notify.Publisher
	logger    zerolog.Logger
	opts      Options
	now       func() time.Time
}

func NewService(d Deps, opts Options) *Service {
	if d.Locker == nil {
		d.Locker = lock.NewMemory()
	}
	if d.Publisher == nil {
		d.Publisher = notify.Noop()
	}
	return &Service{
		store:     d.Store,
		router:    d.Router,
		detector:  d.Detector,
		reviews:   d.Reviews,
		auditor:   d.Auditor,
		locker:    d.Locker,
		publisher: d.Publisher,
		logger:    d.Logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Merge merges b under the service's configured policy.
func (s *Service) Merge(ctx context.Context, b *extraction.Batch) (*Result, error) {
	return s.MergeWithPolicy(ctx, b, s.opts.Policy)
}

// MergeWithPolicy merges b into its patient's record, resolving conflicts
// with policy. A (document, patient) pair merged before returns the stored
// Result. Structural problems and unknown patients return an error and no
// Result; a failed commit returns a retryable Result wrapped in
// ErrMergeFailed.
func (s *Service) MergeWithPolicy(ctx context.Context, b *extraction.Batch, policy conflict.Policy) (*Result, error) {
	if err := b.Validate(s.opts.Validation); err != nil {
		return nil, err
	}
	log := s.logger.With().
		Str("batch_id", b.BatchID.String()).
		Str("document_id", b.DocumentID.String()).
		Str("patient_id", b.PatientID.String()).
		Logger()

	if s.opts.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TimeBudget)
		defer cancel()
	}

	res, err := s.replay(ctx, log, b)
	if err != nil {
		return s.fail(ctx, log, b, nil, failureReason(ctx, err), err)
	}
	if res != nil {
		return res, nil
	}

	if _, err := s.store.GetPatient(ctx, b.PatientID); err != nil {
		if errors.Is(err, record.ErrPatientNotFound) {
			return nil, err
		}
		return s.fail(ctx, log, b, nil, failureReason(ctx, err), err)
	}

	out, err := s.router.Convert(ctx, b, s.now().UTC())
	if err != nil {
		if errors.Is(err, convert.ErrNoConverter) {
			return nil, err
		}
		return s.fail(ctx, log, b, nil, failureReason(ctx, err), err)
	}

	if _, err := s.reviews.Open(ctx, b.BatchID, b.DocumentID, b.PatientID); err != nil {
		return s.fail(ctx, log, b, out, failureReason(ctx, err), err)
	}

	resolver, warnings := policy.Resolver()
	for _, w := range warnings {
		log.Warn().Str("warning", w).Msg("resolution policy")
	}

	cfg := s.opts.Retry
	cfg.ShouldRetry = retryable
	cfg.OnRetry = retry.Logger(log, "merge commit")

	err = s.withPatientLock(ctx, log, b.PatientID, func(ctx context.Context) error {
		return retry.Do(ctx, cfg, func(ctx context.Context) error {
			r, err := s.commit(ctx, b, out, resolver)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, record.ErrPatientNotFound) {
			return nil, err
		}
		return s.fail(ctx, log, b, out, failureReason(ctx, err), err)
	}

	s.complete(ctx, log, res, false)
	return res, nil
}

// replay returns the stored Result for b's (document, patient), or nil when
// there is none. Completion steps the committing run did not finish are
// finished here.
func (s *Service) replay(ctx context.Context, log zerolog.Logger, b *extraction.Batch) (*Result, error) {
	stored, err := s.store.LookupCommit(ctx, b.DocumentID, b.PatientID)
	if errors.Is(err, record.ErrCommitNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup merge ledger: %w", err)
	}
	res, err := decodeResult(stored)
	if err != nil {
		return nil, err
	}

	if _, err := s.reviews.Open(ctx, res.BatchID, res.DocumentID, res.PatientID); err != nil {
		log.Error().Err(err).Msg("reopen review on replay")
	}
	s.complete(ctx, log, res, true)
	log.Info().Msg("merge replayed from ledger")
	return res, nil
}

// commit runs detection and resolution against a fresh snapshot and
// appends the outcome. It is safe to call again after any failure.
func (s *Service) commit(ctx context.Context, b *extraction.Batch, out *convert.Outcome, resolver *conflict.Resolver) (*Result, error) {
	patient, err := s.store.GetPatient(ctx, b.PatientID)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Load(ctx, b.PatientID)
	if err != nil {
		return nil, err
	}

	det := s.detector.Detect(b.BatchID, b.Subject, patient, rec, out.Resources)
	resolutions := resolver.Resolve(b.BatchID, det.Conflicts)

	supersessions := append(append([]record.Supersession(nil), det.Supersessions...), conflict.Supersessions(resolutions)...)
	entries := make([]record.ConflictEntry, 0, len(resolutions))
	for _, rz := range resolutions {
		entries = append(entries, rz.Conflict.Entry(b.BatchID, rz.Strategy))
	}

	res := summarize(b, out, det, resolutions, supersessions)
	payload, err := encodeResult(res)
	if err != nil {
		return nil, err
	}

	err = s.store.Commit(ctx, &record.Commit{
		DocumentID:      b.DocumentID,
		PatientID:       b.PatientID,
		BatchID:         b.BatchID,
		ExpectedVersion: rec.Version,
		Resources:       out.Resources,
		Supersessions:   supersessions,
		Conflicts:       entries,
		Result:          payload,
		CommittedAt:     s.now().UTC(),
	})
	if errors.Is(err, record.ErrCommitExists) {
		stored, lerr := s.store.LookupCommit(ctx, b.DocumentID, b.PatientID)
		if lerr != nil {
			return nil, lerr
		}
		return decodeResult(stored)
	}
	if err != nil {
		return nil, err
	}
	// Decoding what was stored keeps first runs and replays identical.
	return decodeResult(payload)
}

func summarize(b *extraction.Batch, out *convert.Outcome, det *conflict.Detection, resolutions []conflict.Resolution, sups []record.Supersession) *Result {
	res := &Result{
		BatchID:      b.BatchID,
		DocumentID:   b.DocumentID,
		PatientID:    b.PatientID,
		Status:       StatusCompleted,
		Merged:       len(out.Resources),
		Conflicted:   len(det.Conflicts),
		Superseded:   len(sups),
		ByKind:       out.ByKind,
		Dropped:      out.Dropped,
		DroppedKinds: out.DroppedKinds(),
	}

	confidences := make([]float64, 0, len(out.Resources))
	for _, r := range out.Resources {
		res.ResourceIDs = append(res.ResourceIDs, r.ID)
		confidences = append(confidences, r.Provenance.Confidence)
	}
	for _, sp := range sups {
		if sp.Reason == record.ReasonDuplicate {
			res.Duplicates++
		}
	}
	for _, rz := range resolutions {
		res.ConflictIDs = append(res.ConflictIDs, rz.Conflict.ID)
		if rz.Strategy != conflict.ManualReview {
			res.Resolved++
			continue
		}
		res.ReviewConflicts++
		res.ReviewConflictIDs = append(res.ReviewConflictIDs, rz.Conflict.ID)
		if rz.Conflict.Severity == conflict.SeverityCritical {
			res.UnresolvedCritical++
		}
	}

	res.Gate = review.GateInput{
		Confidence:          b.Confidence,
		Producer:            b.Producer.Name,
		Fallback:            b.Producer.Fallback,
		ResourceConfidences: confidences,
		IdentityConflict:    det.IdentityConflict(),
		ReviewConflicts:     res.ReviewConflicts,
		DroppedRecords:      len(out.Dropped),
	}
	return res
}

// complete audits the merge, runs the quality gate and publishes. Only the
// caller that claims the commit's completion audits and publishes, so each
// commit gets one merge.completed entry however many runs reach it. A
// replay also finishes a gate evaluation left pending. None of it can undo
// the commit, so failures are logged only.
func (s *Service) complete(ctx context.Context, log zerolog.Logger, res *Result, replayed bool) {
	ctx = context.WithoutCancel(ctx)
	claimed, err := s.store.ClaimCompletion(ctx, res.DocumentID, res.PatientID, s.now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("claim merge completion, a replay will finish it")
		return
	}
	if !claimed && !replayed {
		return
	}
	if claimed {
		s.auditor.Record(ctx, audit.EventMergeCompleted, auth.Actor(ctx), targets(res), audit.Outcome{
			Status: string(res.Status),
			Counts: res.counts(),
			Flags:  map[string]bool{"identity_conflict": res.Gate.IdentityConflict},
		})
	}

	msg := message(res)
	rv, err := s.reviews.Evaluate(ctx, res.BatchID, res.Gate, res.ReviewConflictIDs)
	if err != nil {
		log.Error().Err(err).Msg("quality gate evaluation failed, review left pending")
	} else {
		msg.ReviewStatus = string(rv.Status)
	}
	if !claimed {
		return
	}
	s.publish(ctx, log, msg)

	log.Info().
		Int("merged", res.Merged).
		Int("conflicted", res.Conflicted).
		Int("review_conflicts", res.ReviewConflicts).
		Int("dropped", len(res.Dropped)).
		Str("review_status", msg.ReviewStatus).
		Msg("merge completed")
}

// fail records a failed merge. The review record, if opened, stays pending.
func (s *Service) fail(ctx context.Context, log zerolog.Logger, b *extraction.Batch, out *convert.Outcome, reason string, cause error) (*Result, error) {
	res := &Result{
		BatchID:       b.BatchID,
		DocumentID:    b.DocumentID,
		PatientID:     b.PatientID,
		Status:        StatusFailed,
		Retryable:     true,
		FailureReason: reason,
	}
	if out != nil {
		res.ByKind = out.ByKind
		res.Dropped = out.Dropped
		res.DroppedKinds = out.DroppedKinds()
	}

	ctx = context.WithoutCancel(ctx)
	log.Error().Err(cause).Str("reason", reason).Msg("merge failed")
	s.auditor.Record(ctx, audit.EventMergeFailed, auth.Actor(ctx), targets(res), audit.Outcome{
		Status:  string(StatusFailed),
		Reasons: []string{reason},
		Counts:  map[string]int{"dropped_records": len(res.Dropped)},
		Flags:   map[string]bool{"retryable": true},
	})
	s.publish(ctx, log, message(res))
	return res, fmt.Errorf("%w: %s: %w", ErrMergeFailed, reason, cause)
}

func (s *Service) withPatientLock(ctx context.Context, log zerolog.Logger, patientID uuid.UUID, fn func(context.Context) error) error {
	lease, err := s.locker.Acquire(ctx, lock.PatientKey(patientID.String()))
	if err != nil {
		return fmt.Errorf("acquire patient lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("release patient lock")
		}
	}()
	return fn(ctx)
}

func (s *Service) publish(ctx context.Context, log zerolog.Logger, msg notify.Message) {
	if err := s.publisher.Publish(ctx, msg); err != nil {
		log.Warn().Err(err).Msg("publish merge result")
	}
}

func message(res *Result) notify.Message {
	return notify.Message{
		BatchID:    res.BatchID.String(),
		DocumentID: res.DocumentID.String(),
		PatientID:  res.PatientID.String(),
		Status:     string(res.Status),
		Counts:     res.counts(),
	}
}

func targets(res *Result) map[string]string {
	return map[string]string{
		audit.TargetBatch:    res.BatchID.String(),
		audit.TargetDocument: res.DocumentID.String(),
		audit.TargetPatient:  res.PatientID.String(),
	}
}

// retryable keeps retrying store failures and version conflicts but gives
// up on a missing patient or an expired budget.
func retryable(err error) bool {
	return !errors.Is(err, record.ErrPatientNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func failureReason(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ReasonTimeBudgetExceeded
	case errors.Is(err, retry.ErrExhausted):
		return ReasonRetriesExhausted
	default:
		return ReasonStorageUnavailable
	}
}
