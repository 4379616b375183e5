// Package distill turns clusters of atomic notes into distilled concepts.
//
// A Strategy decides which units of notes to distill and how. The Distiller
// wraps a strategy with the bookkeeping every strategy shares: fingerprint
// reuse, retry of malformed replies, error recording and supersession of
// older concepts.
package distill

import (
	"context"
	"errors"
	"fmt"

	"github.com/ziadkadry99/distill/internal/cluster"
	"github.com/ziadkadry99/distill/internal/logger"
	"github.com/ziadkadry99/distill/internal/model"
)

// Strategy distills planned units of notes into concepts. Concepts returned
// by Distill only need Theme, Perspectives, Contradictions, AnchorNoteID and
// Sources; the Distiller fills in the rest.
type Strategy interface {
	Name() model.Strategy
	Plan(c cluster.Cluster) ([][]model.AtomicNote, error)
	Distill(ctx context.Context, unit []model.AtomicNote) ([]model.DistilledConcept, error)
}

// New returns the strategy selected by name.
func New(name model.Strategy, synth Synthesizer, opts Options) (Strategy, error) {
	switch name {
	case model.StrategyGroup:
		return NewGroupStrategy(synth, opts), nil
	case model.StrategyCluster:
		if synth == nil {
			return nil, errors.New("cluster strategy needs a synthesizer")
		}
		return NewClusterStrategy(synth, opts), nil
	default:
		return nil, fmt.Errorf("unknown distillation strategy %q", name)
	}
}

// Options configures both strategies.
type Options struct {
	SimilarityThreshold    float64
	MinSimilarityGroupSize int
}

// DefaultOptions mirror the configuration defaults.
var DefaultOptions = Options{SimilarityThreshold: 0.85, MinSimilarityGroupSize: 2}

// ConceptStore is the part of the persistent store the Distiller writes to.
type ConceptStore interface {
	ConceptsByFingerprint(ctx context.Context, fingerprint string) ([]model.DistilledConcept, error)
	AllConcepts(ctx context.Context, includeSuperseded bool) ([]model.DistilledConcept, error)
	PutConcept(ctx context.Context, c *model.DistilledConcept) error
	Supersede(ctx context.Context, oldID, newID string) error
	Reactivate(ctx context.Context, id string) error
}

// ErrorRecorder receives skipped units.
type ErrorRecorder interface {
	RecordError(ctx context.Context, ue *model.UnitError, contentHash string) error
	ResolveUnit(ctx context.Context, stage model.Stage, unit string) error
}

// Outcome summarizes one distillation pass.
type Outcome struct {
	Units      int
	Created    []model.DistilledConcept
	Reused     int
	Superseded int
	Failed     []*model.UnitError
}

// Distiller runs a strategy over clusters and persists the result.
type Distiller struct {
	strategy Strategy
	store    ConceptStore
	errs     ErrorRecorder
	runID    string
}

// NewDistiller wires a strategy to its store. errs may be nil.
func NewDistiller(strategy Strategy, store ConceptStore, errs ErrorRecorder, runID string) *Distiller {
	return &Distiller{strategy: strategy, store: store, errs: errs, runID: runID}
}

// UnitName is the error-record unit for a distillation unit.
func UnitName(fingerprint string) string { return "unit:" + fingerprint }

// Run distills every planned unit of every cluster. A unit that fails is
// recorded and skipped; its notes stay available for the next run. Only
// store failures and cancellation abort the pass.
func (d *Distiller) Run(ctx context.Context, clusters []cluster.Cluster) (*Outcome, error) {
	out := &Outcome{}

	active, err := d.store.AllConcepts(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("loading active concepts: %w", err)
	}

	for _, c := range clusters {
		units, err := d.strategy.Plan(c)
		if err != nil {
			ue := &model.UnitError{Stage: model.StageDistill, Unit: fmt.Sprintf("cluster:%d", c.Index), Err: err}
			out.Failed = append(out.Failed, ue)
			d.record(ctx, ue)
			continue
		}

		for _, unit := range units {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out.Units++

			fp := model.Fingerprint(d.strategy.Name(), unit)
			existing, err := d.store.ConceptsByFingerprint(ctx, fp)
			if err != nil {
				return out, fmt.Errorf("looking up fingerprint: %w", err)
			}
			if hasActive(existing) {
				out.Reused++
				continue
			}
			if len(existing) > 0 {
				// The unit has returned to a source set distilled before.
				n, err := d.reactivate(ctx, active, existing)
				if err != nil {
					return out, err
				}
				out.Reused++
				out.Superseded += n
				continue
			}

			concepts, err := d.strategy.Distill(ctx, unit)
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				ue := &model.UnitError{Stage: model.StageDistill, Unit: UnitName(fp), Err: err}
				out.Failed = append(out.Failed, ue)
				logger.Warn("skipping distillation unit", "notes", len(unit), "err", err)
				d.record(ctx, ue)
				continue
			}

			for i := range concepts {
				nc := &concepts[i]
				nc.Strategy = d.strategy.Name()
				nc.Fingerprint = fp
				nc.UnitIndex = i
				nc.RunID = d.runID
				if err := d.store.PutConcept(ctx, nc); err != nil {
					return out, err
				}
				out.Created = append(out.Created, *nc)

				n, err := d.supersede(ctx, active, *nc)
				if err != nil {
					return out, err
				}
				out.Superseded += n
			}
			if d.errs != nil {
				if err := d.errs.ResolveUnit(ctx, model.StageDistill, UnitName(fp)); err != nil {
					logger.Warn("resolving distill errors", "err", err)
				}
			}
		}
	}
	return out, nil
}

// supersede retires active concepts of the same strategy from earlier runs
// that share a source note with nc.
func (d *Distiller) supersede(ctx context.Context, active []model.DistilledConcept, nc model.DistilledConcept) (int, error) {
	ids := make(map[string]bool, len(nc.Sources))
	for _, s := range nc.Sources {
		ids[s.NoteID] = true
	}

	n := 0
	for i := range active {
		old := &active[i]
		if !old.Active() || old.Strategy != nc.Strategy || old.Fingerprint == nc.Fingerprint {
			continue
		}
		if !overlaps(old.Sources, ids) {
			continue
		}
		if err := d.store.Supersede(ctx, old.ID, nc.ID); err != nil {
			return n, err
		}
		old.SupersededBy = nc.ID
		logger.Debug("concept superseded", "old", old.ID, "new", nc.ID)
		n++
	}
	return n, nil
}

func (d *Distiller) reactivate(ctx context.Context, active, concepts []model.DistilledConcept) (int, error) {
	n := 0
	for _, c := range concepts {
		if err := d.store.Reactivate(ctx, c.ID); err != nil {
			return n, err
		}
		c.SupersededBy = ""
		k, err := d.supersede(ctx, active, c)
		if err != nil {
			return n, err
		}
		n += k
	}
	return n, nil
}

func (d *Distiller) record(ctx context.Context, ue *model.UnitError) {
	if d.errs == nil {
		return
	}
	if err := d.errs.RecordError(ctx, ue, ""); err != nil {
		logger.Error("recording distill error", "unit", ue.Unit, "err", err)
	}
}

func hasActive(concepts []model.DistilledConcept) bool {
	for _, c := range concepts {
		if c.Active() {
			return true
		}
	}
	return false
}

func overlaps(refs []model.SourceRef, ids map[string]bool) bool {
	for _, r := range refs {
		if ids[r.NoteID] {
			return true
		}
	}
	return false
}

// withStrictRetry runs call once and, if the reply was malformed, once more
// with the stricter instruction.
func withStrictRetry(call func(strict bool) error) error {
	err := call(false)
	if err == nil || !errors.Is(err, model.ErrMalformedResponse) {
		return err
	}
	logger.Debug("malformed synthesis reply, retrying strictly", "err", err)
	return call(true)
}
