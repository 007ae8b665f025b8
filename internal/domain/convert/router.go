package convert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/clinicalmerge/internal/domain/clinicaldate"
	"github.com/ehr/clinicalmerge/internal/domain/extraction"
	"github.com/ehr/clinicalmerge/internal/domain/record"
)

// Generic drop reasons. They never carry clinical text.
const (
	ReasonUnparseableDate  = "unparseable date"
	ReasonConversionFailed = "conversion failed"
)

// All returns one converter for every extraction kind.
func All() []Converter {
	return []Converter{
		conditionConverter{},
		medicationConverter{},
		vitalSignConverter{},
		labResultConverter{},
		procedureConverter{},
		practitionerConverter{},
		encounterConverter{},
		serviceRequestConverter{},
		diagnosticReportConverter{},
		allergyConverter{},
		carePlanConverter{},
		organizationConverter{},
	}
}

// Dropped describes a record that was excluded from the merge.
type Dropped struct {
	Kind   extraction.Kind `json:"kind"`
	Index  int             `json:"index"`
	Reason string          `json:"reason"`
}

// Outcome is the result of converting one batch. Resources are in record
// order with dropped records left out.
type Outcome struct {
	Resources []*record.Resource
	ByKind    map[extraction.Kind]int
	Dropped   []Dropped
}

// DroppedKinds lists the kinds that lost at least one record, sorted.
func (o *Outcome) DroppedKinds() []extraction.Kind {
	seen := make(map[extraction.Kind]bool)
	var out []extraction.Kind
	for _, d := range o.Dropped {
		if !seen[d.Kind] {
			seen[d.Kind] = true
			out = append(out, d.Kind)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Router dispatches records to the converter for their kind.
type Router struct {
	converters map[extraction.Kind]Converter
	dates      clinicaldate.Normalizer
	logger     zerolog.Logger
}

// NewRouter registers converters and checks that every extraction kind is
// covered. A gap is a configuration error.
func NewRouter(dates clinicaldate.Normalizer, logger zerolog.Logger, converters ...Converter) (*Router, error) {
	r := &Router{
		converters: make(map[extraction.Kind]Converter, len(converters)),
		dates:      dates,
		logger:     logger,
	}
	for _, c := range converters {
		if _, dup := r.converters[c.Kind()]; dup {
			return nil, fmt.Errorf("converter for %s registered twice", c.Kind())
		}
		r.converters[c.Kind()] = c
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate reports the first extraction kind without a converter.
func (r *Router) Validate() error {
	for _, k := range extraction.AllKinds() {
		if _, ok := r.converters[k]; !ok {
			return fmt.Errorf("%w: %s", ErrNoConverter, k)
		}
	}
	return nil
}

// Convert converts every record in b. Kinds are converted concurrently.
// A record that fails conversion is dropped; a record whose kind has no
// converter fails the whole batch with ErrNoConverter.
func (r *Router) Convert(ctx context.Context, b *extraction.Batch, recordedAt time.Time) (*Outcome, error) {
	byKind := make(map[extraction.Kind][]int)
	for i, rec := range b.Records {
		if _, ok := r.converters[rec.Kind]; !ok {
			return nil, fmt.Errorf("%w: records[%d] kind %q", ErrNoConverter, i, rec.Kind)
		}
		byKind[rec.Kind] = append(byKind[rec.Kind], i)
	}

	converted := make([]*record.Resource, len(b.Records))
	reasons := make([]string, len(b.Records))

	g, gctx := errgroup.WithContext(ctx)
	for kind, indices := range byKind {
		conv := r.converters[kind]
		g.Go(func() error {
			for _, i := range indices {
				if err := gctx.Err(); err != nil {
					return err
				}
				cc := &Context{
					DocumentID: b.DocumentID,
					BatchID:    b.BatchID,
					PatientID:  b.PatientID,
					Producer:   b.Producer,
					Confidence: b.Confidence,
					Index:      i,
					Dates:      r.dates,
					RecordedAt: recordedAt,
				}
				res, err := conv.Convert(cc, b.Records[i])
				if err != nil {
					reasons[i] = dropReason(err)
					continue
				}
				converted[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Outcome{ByKind: make(map[extraction.Kind]int)}
	for i, res := range converted {
		if res == nil {
			d := Dropped{Kind: b.Records[i].Kind, Index: i, Reason: reasons[i]}
			out.Dropped = append(out.Dropped, d)
			r.logger.Warn().
				Str("batch_id", b.BatchID.String()).
				Str("kind", string(d.Kind)).
				Int("index", i).
				Str("reason", d.Reason).
				Msg("record dropped during conversion")
			continue
		}
		out.Resources = append(out.Resources, res)
		out.ByKind[res.Kind]++
	}
	return out, nil
}

func dropReason(err error) string {
	if errors.Is(err, clinicaldate.ErrUnparseable) {
		return ReasonUnparseableDate
	}
	return ReasonConversionFailed
}
