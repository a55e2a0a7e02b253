// File: internal/resolve/resolver.go

// Package resolve turns a parsed target descriptor into exactly one concrete
// element of a snapshot, or a caller-visible refusal. The resolver never
// guesses: tied top scores surface as ambiguity, misses surface with the
// best rejected labels attached.
package resolve

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

const (
	scoreExact       = 100.0
	scoreTranslation = 95.0
	scoreFuzzyScale  = 90.0

	// scoreEpsilon separates a genuine tie from float noise.
	scoreEpsilon = 1e-9
)

// Options tunes resolution behavior.
type Options struct {
	// FuzzyFloor is the minimum similarity a fuzzy match needs to become a
	// candidate at all.
	FuzzyFloor float64
	// MaxSuggestions caps the "did you mean" list on a NotFound.
	MaxSuggestions int
}

// Resolver scores elements of one snapshot against one descriptor.
type Resolver struct {
	logger *zap.Logger
	opts   Options
}

// New creates a resolver.
func New(logger *zap.Logger, opts Options) *Resolver {
	if opts.FuzzyFloor <= 0 {
		opts.FuzzyFloor = 0.62
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 3
	}
	return &Resolver{logger: logger.Named("resolve"), opts: opts}
}

// visibleElement pairs an element with its pre-order position, the final
// determinism tie-break.
type visibleElement struct {
	el    *schemas.Element
	order int
}

// actionable collects the elements eligible for scoring: visible bounds,
// enabled, restricted to the given subtree roots.
func actionable(roots []*schemas.Element) []visibleElement {
	var out []visibleElement
	order := 0
	for _, r := range roots {
		r.Walk(func(e *schemas.Element) bool {
			order++
			if e.Bounds.IsZero() || !e.Flags.Enabled {
				return true // children may still be actionable
			}
			out = append(out, visibleElement{el: e, order: order})
			return true
		})
	}
	return out
}

// Resolve selects the element the descriptor refers to within the snapshot.
// mem may be nil; when present, learned substitutions are consulted between
// the exact and fuzzy passes.
func (r *Resolver) Resolve(ctx context.Context, d *schemas.Descriptor, snap *schemas.Snapshot, mem schemas.TranslationMemory) (*schemas.Candidate, error) {
	if d == nil {
		return nil, &schemas.NotFoundError{Descriptor: ""}
	}
	return r.resolveIn(ctx, d, snap.AppID, snap.Roots, mem)
}

func (r *Resolver) resolveIn(ctx context.Context, d *schemas.Descriptor, appID string, roots []*schemas.Element, mem schemas.TranslationMemory) (*schemas.Candidate, error) {
	switch d.Kind {
	case schemas.DescriptorOrdinal:
		return r.resolveOrdinal(d, roots)
	case schemas.DescriptorSpatial:
		return r.resolveSpatial(ctx, d, appID, roots, mem)
	case schemas.DescriptorContainer:
		return r.resolveContainer(ctx, d, appID, roots, mem)
	case schemas.DescriptorMenu:
		// A menu path resolves to its first component; the executor walks
		// the remaining components against fresh captures.
		first := &schemas.Descriptor{Kind: schemas.DescriptorLabel, Label: d.MenuPath[0]}
		cand, err := r.resolveLabel(ctx, first, appID, roots, mem)
		if err != nil {
			return nil, err
		}
		cand.Rule = schemas.MatchMenu
		return cand, nil
	default:
		return r.resolveLabel(ctx, d, appID, roots, mem)
	}
}

// resolveLabel applies the scoring ladder: exact, learned substitution,
// fuzzy. A tie at the top is ambiguity, a miss carries suggestions.
func (r *Resolver) resolveLabel(ctx context.Context, d *schemas.Descriptor, appID string, roots []*schemas.Element, mem schemas.TranslationMemory) (*schemas.Candidate, error) {
	return r.resolveLabelIn(ctx, d, appID, actionable(roots), mem)
}

// resolveLabelIn scores a pre-collected pool. Callers that restrict the
// eligible set, like region filtering, pass elements directly so each one is
// scored exactly once regardless of nesting.
func (r *Resolver) resolveLabelIn(ctx context.Context, d *schemas.Descriptor, appID string, pool []visibleElement, mem schemas.TranslationMemory) (*schemas.Candidate, error) {
	want := strings.TrimSpace(d.Label)
	if want == "" {
		return nil, &schemas.NotFoundError{Descriptor: d.String()}
	}

	var substitute string
	if mem != nil {
		if sub, ok := mem.Lookup(ctx, appID, d.String()); ok {
			substitute = sub
		}
	}

	var candidates []scored
	var rejected []scored
	for _, ve := range pool {
		if d.Role != "" && ve.el.Role != d.Role {
			continue
		}
		if ve.el.Label == "" {
			continue
		}

		var sc scored
		switch {
		case strings.EqualFold(ve.el.Label, want):
			sc = scored{ve: ve, score: scoreExact, rule: schemas.MatchExact,
				rationale: fmt.Sprintf("exact label match %q", ve.el.Label)}
		case substitute != "" && strings.EqualFold(ve.el.Label, substitute):
			sc = scored{ve: ve, score: scoreTranslation, rule: schemas.MatchTranslation,
				rationale: fmt.Sprintf("learned substitution %q -> %q", want, substitute)}
		default:
			sim := Similarity(want, ve.el.Label)
			sc = scored{ve: ve, score: sim * scoreFuzzyScale, rule: schemas.MatchFuzzy,
				rationale: fmt.Sprintf("fuzzy %.2f against %q", sim, ve.el.Label)}
			if sim < r.opts.FuzzyFloor {
				rejected = append(rejected, sc)
				continue
			}
		}
		candidates = append(candidates, sc)
	}

	return r.pick(d, candidates, rejected)
}

type scored struct {
	ve        visibleElement
	score     float64
	rule      schemas.MatchRule
	rationale string
}

// pick applies the tie-break policy over a scored set.
func (r *Resolver) pick(d *schemas.Descriptor, candidates, rejected []scored) (*schemas.Candidate, error) {
	if len(candidates) == 0 {
		return nil, &schemas.NotFoundError{Descriptor: d.String(), Suggestions: r.suggestions(rejected)}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].ve.order < candidates[j].ve.order
	})

	top := candidates[0]
	var tied []schemas.Candidate
	for _, c := range candidates {
		if c.score >= top.score-scoreEpsilon {
			tied = append(tied, toCandidate(c))
		}
	}
	if len(tied) > 1 {
		return nil, &schemas.AmbiguousError{Descriptor: d.String(), Candidates: tied}
	}

	winner := toCandidate(top)
	r.logger.Debug("Resolved descriptor",
		zap.String("descriptor", d.String()),
		zap.String("label", top.ve.el.Label),
		zap.Float64("score", top.score),
		zap.String("rule", string(top.rule)))
	return &winner, nil
}

func toCandidate(s scored) schemas.Candidate {
	return schemas.Candidate{
		Element:   s.ve.el,
		Score:     s.score,
		Rule:      s.rule,
		Rationale: s.rationale,
	}
}

func (r *Resolver) suggestions(rejected []scored) []schemas.Suggestion {
	sort.SliceStable(rejected, func(i, j int) bool { return rejected[i].score > rejected[j].score })
	var out []schemas.Suggestion
	seen := map[string]bool{}
	for _, s := range rejected {
		if s.ve.el.Label == "" || seen[s.ve.el.Label] {
			continue
		}
		seen[s.ve.el.Label] = true
		out = append(out, schemas.Suggestion{Label: s.ve.el.Label, Role: s.ve.el.Role, Score: s.score})
		if len(out) >= r.opts.MaxSuggestions {
			break
		}
	}
	return out
}

// resolveOrdinal selects by role and deterministic visual order: top-to-
// bottom, left-to-right, pre-order position as the final tie-break. Ordinal
// selection never returns ambiguity; traversal order is the disambiguator.
func (r *Resolver) resolveOrdinal(d *schemas.Descriptor, roots []*schemas.Element) (*schemas.Candidate, error) {
	var pool []visibleElement
	for _, ve := range actionable(roots) {
		if d.Role != "" && ve.el.Role != d.Role {
			continue
		}
		pool = append(pool, ve)
	}
	if len(pool) == 0 {
		return nil, &schemas.NotFoundError{Descriptor: d.String()}
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i].el.Bounds, pool[j].el.Bounds
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return pool[i].order < pool[j].order
	})

	idx := d.Ordinal - 1
	if d.FromEnd {
		idx = len(pool) - d.Ordinal
	}
	if idx < 0 || idx >= len(pool) {
		return nil, &schemas.NotFoundError{
			Descriptor:  d.String(),
			Suggestions: []schemas.Suggestion{{Label: fmt.Sprintf("only %d %s elements visible", len(pool), d.Role), Role: d.Role}},
		}
	}

	el := pool[idx]
	return &schemas.Candidate{
		Element:   el.el,
		Score:     scoreExact,
		Rule:      schemas.MatchOrdinal,
		Rationale: fmt.Sprintf("ordinal %d of %d %s elements", d.Ordinal, len(pool), d.Role),
	}, nil
}
