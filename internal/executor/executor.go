// Package executor dispatches resolved intents through the platform
// collaborator and proves what happened: every dispatch is followed by an
// invalidate, a fresh capture and a structural diff of the two snapshots.
// The executor never retries a failed dispatch; its job is an honest report.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/snapshot"
)

const (
	// defaultSettleDelay sits between dispatch and re-capture to let the host
	// render updates. A tunable constant, not a retry loop.
	defaultSettleDelay = 250 * time.Millisecond

	defaultDispatchTimeout = 5 * time.Second

	// maxWait caps the "wait" verb so a typo cannot park a chain for hours.
	maxWait = 30 * time.Second
)

// ResolveFunc resolves a descriptor against a snapshot. The orchestrator
// supplies it so resolution policy, including memory consultation, stays out
// of the executor.
type ResolveFunc func(ctx context.Context, d *schemas.Descriptor, snap *schemas.Snapshot) (*schemas.Candidate, error)

type Options struct {
	SettleDelay     time.Duration
	DispatchTimeout time.Duration
}

// Executor runs intent chains sequentially with fail-fast semantics.
type Executor struct {
	driver  schemas.PlatformDriver
	snaps   schemas.SnapshotSource
	resolve ResolveFunc
	mem     schemas.TranslationMemory
	log     *zap.Logger
	opts    Options
}

// New wires an executor. mem may be nil; shortcut preferences are then
// skipped entirely.
func New(driver schemas.PlatformDriver, snaps schemas.SnapshotSource, resolve ResolveFunc, mem schemas.TranslationMemory, logger *zap.Logger, opts Options) *Executor {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = defaultSettleDelay
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = defaultDispatchTimeout
	}
	return &Executor{
		driver:  driver,
		snaps:   snaps,
		resolve: resolve,
		mem:     mem,
		log:     logger.Named("executor"),
		opts:    opts,
	}
}

// Run executes a chain of intents against one application. The chain aborts
// at the first failed segment; the result reports how many segments were
// attempted and how many completed. Cancellation is checked between
// segments, never mid-dispatch.
func (e *Executor) Run(ctx context.Context, appID, operationID string, intents []schemas.Intent) (*schemas.ExecutionResult, error) {
	result := &schemas.ExecutionResult{
		OperationID: operationID,
		Total:       len(intents),
	}

	var chainErr error
	for _, in := range intents {
		if err := ctx.Err(); err != nil {
			chainErr = &schemas.TimeoutError{Op: "chain", Cause: err}
			break
		}

		target := appID
		if in.Mods.AppOverride != "" {
			target = in.Mods.AppOverride
		}

		result.Attempted++
		seg, err := e.runSegment(ctx, target, in)
		result.Segments = append(result.Segments, seg)
		if err != nil {
			e.log.Warn("Chain aborted",
				zap.String("operation_id", operationID),
				zap.String("segment", in.Raw),
				zap.Int("completed", result.Completed),
				zap.Error(err))
			chainErr = err
			break
		}
		result.Completed++
	}

	return result, chainErr
}

func (e *Executor) runSegment(ctx context.Context, appID string, in schemas.Intent) (schemas.SegmentResult, error) {
	seg := schemas.SegmentResult{Raw: in.Raw}

	fail := func(err error) (schemas.SegmentResult, error) {
		seg.Error = err.Error()
		return seg, err
	}

	switch in.Verb {
	case schemas.VerbWait:
		d, err := parseWait(in.Mods.Text)
		if err != nil {
			return fail(err)
		}
		if err := sleepCtx(ctx, d); err != nil {
			return fail(&schemas.TimeoutError{Op: "wait", Cause: err})
		}
		seg.Dispatched = true
		return seg, nil

	case schemas.VerbPress:
		pre, err := e.snaps.Capture(ctx, appID)
		if err != nil {
			return fail(err)
		}
		if err := e.rawKeys(ctx, appID, in.Mods.Keys); err != nil {
			return fail(err)
		}
		diff, err := e.verify(ctx, appID, pre)
		if err != nil {
			return fail(err)
		}
		seg.Dispatched = true
		seg.Diff = diff
		return seg, nil
	}

	if in.Target == nil {
		return fail(&schemas.ParseError{Input: in.Raw, Reason: "missing target"})
	}

	pre, err := e.snaps.Capture(ctx, appID)
	if err != nil {
		return fail(err)
	}

	// A learned shortcut is a faster first attempt. If its diff shows no
	// change it is demoted and the full tree path runs as usual.
	if in.Verb == schemas.VerbClick && e.mem != nil {
		if done, diff := e.tryShortcut(ctx, appID, in, pre); done {
			seg.Dispatched = true
			seg.Diff = diff
			seg.Rule = schemas.MatchShortcut
			return seg, nil
		}
		// The shortcut attempt may have consumed the pre snapshot's
		// freshness window; capture again so the diff baseline is current.
		if pre, err = e.snaps.Capture(ctx, appID); err != nil {
			return fail(err)
		}
	}

	if in.Verb == schemas.VerbFill {
		return e.runFill(ctx, appID, in, pre)
	}

	cand, err := e.resolve(ctx, in.Target, pre)
	if err != nil {
		return fail(err)
	}
	seg.Candidate = refFor(cand.Element)
	seg.Rule = cand.Rule

	if in.Target.Kind == schemas.DescriptorMenu {
		if err := e.walkMenu(ctx, appID, in.Target.MenuPath, cand); err != nil {
			return fail(err)
		}
	} else {
		op, payload, err := operationFor(in)
		if err != nil {
			return fail(err)
		}
		if err := e.dispatch(ctx, cand.Element.Handle, op, payload); err != nil {
			return fail(err)
		}
	}

	diff, err := e.verify(ctx, appID, pre)
	if err != nil {
		return fail(err)
	}
	seg.Dispatched = true
	seg.Diff = diff

	e.log.Debug("Segment completed",
		zap.String("app_id", appID),
		zap.String("raw", in.Raw),
		zap.String("diff", snapshot.Summarize(diff)))
	return seg, nil
}

// runFill resolves and types each Name=Value pair in order. Fields resolve
// against a fresh capture each time: filling one field can reshape the form.
func (e *Executor) runFill(ctx context.Context, appID string, in schemas.Intent, pre *schemas.Snapshot) (schemas.SegmentResult, error) {
	seg := schemas.SegmentResult{Raw: in.Raw}

	current := pre
	for i, fv := range in.Mods.Fields {
		if i > 0 {
			var err error
			if current, err = e.snaps.Capture(ctx, appID); err != nil {
				seg.Error = err.Error()
				return seg, err
			}
		}

		d := &schemas.Descriptor{Kind: schemas.DescriptorLabel, Label: fv.Field}
		if in.Target != nil {
			d = &schemas.Descriptor{Kind: schemas.DescriptorContainer, Scope: in.Target, Inner: d}
		}
		cand, err := e.resolve(ctx, d, current)
		if err != nil {
			seg.Error = err.Error()
			return seg, err
		}
		if seg.Candidate == nil {
			seg.Candidate = refFor(cand.Element)
			seg.Rule = cand.Rule
		}

		if err := e.dispatch(ctx, cand.Element.Handle, schemas.OpType, schemas.ActionPayload{Text: fv.Value}); err != nil {
			seg.Error = err.Error()
			return seg, err
		}
		if err := sleepCtx(ctx, e.opts.SettleDelay); err != nil {
			seg.Error = err.Error()
			return seg, &schemas.TimeoutError{Op: "settle", Cause: err}
		}
		e.snaps.Invalidate(appID)
	}

	post, err := e.snaps.Capture(ctx, appID)
	if err != nil {
		seg.Error = err.Error()
		return seg, err
	}
	seg.Dispatched = true
	seg.Diff = snapshot.Diff(pre, post)
	return seg, nil
}

// walkMenu clicks the already-resolved first path component, then resolves
// and clicks each remaining component against a fresh capture, since every
// click opens a submenu that did not exist before.
func (e *Executor) walkMenu(ctx context.Context, appID string, path []string, first *schemas.Candidate) error {
	if err := e.dispatch(ctx, first.Element.Handle, schemas.OpClick, schemas.ActionPayload{}); err != nil {
		return err
	}

	for _, component := range path[1:] {
		if err := sleepCtx(ctx, e.opts.SettleDelay); err != nil {
			return &schemas.TimeoutError{Op: "settle", Cause: err}
		}
		e.snaps.Invalidate(appID)
		snap, err := e.snaps.Capture(ctx, appID)
		if err != nil {
			return err
		}

		d := &schemas.Descriptor{Kind: schemas.DescriptorLabel, Role: schemas.RoleMenuItem, Label: component}
		cand, err := e.resolve(ctx, d, snap)
		if err != nil {
			// Some hosts expose submenu entries without the menuitem role.
			var nf *schemas.NotFoundError
			if !errors.As(err, &nf) {
				return err
			}
			d.Role = ""
			if cand, err = e.resolve(ctx, d, snap); err != nil {
				return err
			}
		}
		if err := e.dispatch(ctx, cand.Element.Handle, schemas.OpClick, schemas.ActionPayload{}); err != nil {
			return err
		}
	}
	return nil
}

// tryShortcut plays a learned key sequence and keeps the result only when
// the post-diff shows an actual change. A no-op shortcut demotes itself.
func (e *Executor) tryShortcut(ctx context.Context, appID string, in schemas.Intent, pre *schemas.Snapshot) (bool, *schemas.DiffResult) {
	action := in.Target.String()
	pref, ok := e.mem.PreferredShortcut(ctx, appID, action)
	if !ok {
		return false, nil
	}

	e.log.Debug("Trying learned shortcut",
		zap.String("app_id", appID),
		zap.String("action", action),
		zap.Strings("keys", pref.Shortcut))

	if err := e.rawKeys(ctx, appID, pref.Shortcut); err != nil {
		e.log.Warn("Shortcut dispatch failed, falling back to resolution", zap.Error(err))
		return false, nil
	}
	diff, err := e.verify(ctx, appID, pre)
	if err != nil {
		e.log.Warn("Shortcut verification failed, falling back to resolution", zap.Error(err))
		return false, nil
	}

	if diff.Empty() {
		if err := e.mem.DemoteShortcut(ctx, appID, action); err != nil {
			e.log.Warn("Failed to demote shortcut", zap.String("action", action), zap.Error(err))
		}
		return false, nil
	}

	if err := e.mem.RecordShortcut(ctx, appID, action, pref.Shortcut); err != nil {
		e.log.Warn("Failed to reinforce shortcut", zap.String("action", action), zap.Error(err))
	}
	return true, diff
}

// verify is the settle + invalidate + recapture + diff tail of every
// dispatch.
func (e *Executor) verify(ctx context.Context, appID string, pre *schemas.Snapshot) (*schemas.DiffResult, error) {
	if err := sleepCtx(ctx, e.opts.SettleDelay); err != nil {
		return nil, &schemas.TimeoutError{Op: "settle", Cause: err}
	}
	e.snaps.Invalidate(appID)
	post, err := e.snaps.Capture(ctx, appID)
	if err != nil {
		return nil, err
	}
	return snapshot.Diff(pre, post), nil
}

func (e *Executor) dispatch(ctx context.Context, handle string, op schemas.Operation, payload schemas.ActionPayload) error {
	dctx, cancel := context.WithTimeout(ctx, e.opts.DispatchTimeout)
	defer cancel()

	if err := e.driver.Dispatch(dctx, handle, op, payload); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &schemas.TimeoutError{Op: string(op), Cause: err}
		}
		var stale *schemas.StaleHandleError
		if errors.As(err, &stale) {
			return err
		}
		return &schemas.DispatchError{Op: op, Cause: err}
	}
	return nil
}

func (e *Executor) rawKeys(ctx context.Context, appID string, keys []string) error {
	dctx, cancel := context.WithTimeout(ctx, e.opts.DispatchTimeout)
	defer cancel()

	if err := e.driver.RawInput(dctx, schemas.RawInputEvent{AppID: appID, Keys: keys}); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &schemas.TimeoutError{Op: "key_sequence", Cause: err}
		}
		return &schemas.DispatchError{Op: schemas.OpKeySequence, Cause: err}
	}
	return nil
}

// operationFor maps a verb and its modifiers onto the concrete platform
// operation.
func operationFor(in schemas.Intent) (schemas.Operation, schemas.ActionPayload, error) {
	payload := schemas.ActionPayload{Modifier: in.Mods.Keys}

	switch in.Verb {
	case schemas.VerbClick:
		return schemas.OpClick, payload, nil
	case schemas.VerbDoubleClick:
		return schemas.OpDoubleClick, payload, nil
	case schemas.VerbRightClick:
		return schemas.OpRightClick, payload, nil
	case schemas.VerbFocus:
		return schemas.OpFocus, payload, nil
	case schemas.VerbType:
		payload.Text = in.Mods.Text
		return schemas.OpType, payload, nil
	case schemas.VerbScroll:
		payload.DeltaY = scrollDelta(in.Mods.Text)
		return schemas.OpScroll, payload, nil
	case schemas.VerbDrag:
		return schemas.OpDragTo, payload, nil
	default:
		return "", payload, &schemas.ParseError{Input: in.Raw, Reason: fmt.Sprintf("verb %q has no platform operation", in.Verb)}
	}
}

func scrollDelta(direction string) float64 {
	if strings.EqualFold(strings.TrimSpace(direction), "up") {
		return -120
	}
	return 120
}

// parseWait accepts "2s", "500ms" or a bare number of seconds.
func parseWait(text string) (time.Duration, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, &schemas.ParseError{Input: text, Reason: "wait needs a duration"}
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		secs, convErr := strconv.ParseFloat(text, 64)
		if convErr != nil {
			return 0, &schemas.ParseError{Input: text, Reason: "unparseable wait duration"}
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d < 0 {
		return 0, &schemas.ParseError{Input: text, Reason: "negative wait duration"}
	}
	if d > maxWait {
		d = maxWait
	}
	return d, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func refFor(el *schemas.Element) *schemas.ElementRef {
	if el == nil {
		return nil
	}
	return &schemas.ElementRef{
		Identity: string(el.Role) + ":" + el.Label,
		Role:     el.Role,
		Label:    el.Label,
		Bounds:   el.Bounds,
	}
}
