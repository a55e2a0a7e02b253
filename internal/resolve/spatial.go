// File: internal/resolve/spatial.go
package resolve

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// resolveSpatial handles "near X", "below X" and named-region descriptors.
// The reference resolves first, recursively, through the same resolver.
// Directional winners are picked by distance, so spatial selection is
// deterministic like ordinal selection and never ambiguous.
func (r *Resolver) resolveSpatial(ctx context.Context, d *schemas.Descriptor, appID string, roots []*schemas.Element, mem schemas.TranslationMemory) (*schemas.Candidate, error) {
	if d.Relation == schemas.RelationRegion {
		return r.resolveRegion(ctx, d, appID, roots, mem)
	}

	refCand, err := r.resolveIn(ctx, d.Reference, appID, roots, mem)
	if err != nil {
		return nil, err
	}
	ref := refCand.Element

	var best *visibleElement
	bestDist := math.MaxFloat64
	for _, ve := range actionable(roots) {
		ve := ve
		if ve.el == ref {
			continue
		}
		if d.Role != "" && ve.el.Role != d.Role {
			continue
		}
		if d.Label != "" && !strings.EqualFold(ve.el.Label, d.Label) {
			continue
		}
		if !inHalfPlane(d.Relation, ref.Bounds, ve.el.Bounds) {
			continue
		}
		dist := centerDistance(ref.Bounds, ve.el.Bounds)
		if dist < bestDist {
			bestDist = dist
			best = &ve
		}
	}
	if best == nil {
		return nil, &schemas.NotFoundError{Descriptor: d.String()}
	}

	return &schemas.Candidate{
		Element:   best.el,
		Score:     scoreExact,
		Rule:      schemas.MatchSpatial,
		Rationale: fmt.Sprintf("%s %q at distance %.0f", d.Relation, ref.Label, bestDist),
	}, nil
}

// inHalfPlane tests the directional relation of cand relative to the
// reference rectangle. Near accepts every direction; distance decides.
func inHalfPlane(rel schemas.SpatialRelation, ref, cand schemas.Rect) bool {
	switch rel {
	case schemas.RelationNear:
		return true
	case schemas.RelationBelow:
		return cand.CenterY() >= ref.Y+ref.Height
	case schemas.RelationAbove:
		return cand.CenterY() <= ref.Y
	case schemas.RelationLeft:
		return cand.CenterX() <= ref.X
	case schemas.RelationRight:
		return cand.CenterX() >= ref.X+ref.Width
	default:
		return false
	}
}

func centerDistance(a, b schemas.Rect) float64 {
	dx := a.CenterX() - b.CenterX()
	dy := a.CenterY() - b.CenterY()
	return math.Sqrt(dx*dx + dy*dy)
}

// resolveRegion restricts candidates to a named screen region, then scores
// any label constraint inside it. The screen is the union of root bounds,
// partitioned into a 3x3 grid; whole-edge names span the full cross axis.
func (r *Resolver) resolveRegion(ctx context.Context, d *schemas.Descriptor, appID string, roots []*schemas.Element, mem schemas.TranslationMemory) (*schemas.Candidate, error) {
	screen := unionBounds(roots)
	if screen.IsZero() {
		return nil, &schemas.NotFoundError{Descriptor: d.String()}
	}
	region, ok := regionRect(d.Region, screen)
	if !ok {
		return nil, &schemas.NotFoundError{Descriptor: d.String()}
	}

	// Filter the flat actionable set by center membership. The pool keeps
	// the visibleElement form so label scoring sees each element once; the
	// elements still carry children, and re-walking them here would score
	// nested elements twice.
	var inRegion []visibleElement
	for _, ve := range actionable(roots) {
		if d.Role != "" && ve.el.Role != d.Role {
			continue
		}
		cx, cy := ve.el.Bounds.CenterX(), ve.el.Bounds.CenterY()
		if cx < region.X || cx > region.X+region.Width || cy < region.Y || cy > region.Y+region.Height {
			continue
		}
		inRegion = append(inRegion, ve)
	}
	if len(inRegion) == 0 {
		return nil, &schemas.NotFoundError{Descriptor: d.String()}
	}

	if d.Label != "" {
		inner := &schemas.Descriptor{Kind: schemas.DescriptorLabel, Label: d.Label, Role: d.Role}
		cand, err := r.resolveLabelIn(ctx, inner, appID, inRegion, mem)
		if err != nil {
			return nil, remapDescriptor(err, d)
		}
		cand.Rule = schemas.MatchSpatial
		cand.Rationale = fmt.Sprintf("%q in region %s", d.Label, d.Region)
		return cand, nil
	}

	if len(inRegion) > 1 {
		var tied []schemas.Candidate
		for _, ve := range inRegion {
			tied = append(tied, schemas.Candidate{Element: ve.el, Score: scoreExact, Rule: schemas.MatchSpatial})
		}
		return nil, &schemas.AmbiguousError{Descriptor: d.String(), Candidates: tied}
	}
	return &schemas.Candidate{
		Element:   inRegion[0].el,
		Score:     scoreExact,
		Rule:      schemas.MatchSpatial,
		Rationale: fmt.Sprintf("sole element in region %s", d.Region),
	}, nil
}

// regionRect carves the named region out of the screen rectangle.
func regionRect(name string, screen schemas.Rect) (schemas.Rect, bool) {
	w3 := screen.Width / 3
	h3 := screen.Height / 3
	switch name {
	case "top-left":
		return schemas.Rect{X: screen.X, Y: screen.Y, Width: w3, Height: h3}, true
	case "top-right":
		return schemas.Rect{X: screen.X + 2*w3, Y: screen.Y, Width: w3, Height: h3}, true
	case "bottom-left":
		return schemas.Rect{X: screen.X, Y: screen.Y + 2*h3, Width: w3, Height: h3}, true
	case "bottom-right":
		return schemas.Rect{X: screen.X + 2*w3, Y: screen.Y + 2*h3, Width: w3, Height: h3}, true
	case "top":
		return schemas.Rect{X: screen.X, Y: screen.Y, Width: screen.Width, Height: h3}, true
	case "bottom":
		return schemas.Rect{X: screen.X, Y: screen.Y + 2*h3, Width: screen.Width, Height: h3}, true
	case "left":
		return schemas.Rect{X: screen.X, Y: screen.Y, Width: w3, Height: screen.Height}, true
	case "right":
		return schemas.Rect{X: screen.X + 2*w3, Y: screen.Y, Width: w3, Height: screen.Height}, true
	case "center":
		return schemas.Rect{X: screen.X + w3, Y: screen.Y + h3, Width: w3, Height: h3}, true
	default:
		return schemas.Rect{}, false
	}
}

func unionBounds(roots []*schemas.Element) schemas.Rect {
	var minX, minY, maxX, maxY float64
	first := true
	for _, r := range roots {
		b := r.Bounds
		if b.IsZero() {
			continue
		}
		if first {
			minX, minY, maxX, maxY = b.X, b.Y, b.X+b.Width, b.Y+b.Height
			first = false
			continue
		}
		minX = math.Min(minX, b.X)
		minY = math.Min(minY, b.Y)
		maxX = math.Max(maxX, b.X+b.Width)
		maxY = math.Max(maxY, b.Y+b.Height)
	}
	if first {
		return schemas.Rect{}
	}
	return schemas.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// remapDescriptor rewrites the descriptor string on errors that bubbled up
// from an inner resolution, so the caller sees the descriptor they wrote.
func remapDescriptor(err error, d *schemas.Descriptor) error {
	switch e := err.(type) {
	case *schemas.NotFoundError:
		e.Descriptor = d.String()
		return e
	case *schemas.AmbiguousError:
		e.Descriptor = d.String()
		return e
	default:
		return err
	}
}
