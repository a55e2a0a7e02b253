// Package agent ties the perception-action cycle together: parse, resolve
// against a cached snapshot and the translation memory, execute with
// verification, record the outcome. One logical operation per call.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/executor"
	"github.com/xkilldash9x/pilot-cli/internal/intent"
	"github.com/xkilldash9x/pilot-cli/internal/resolve"
	"github.com/xkilldash9x/pilot-cli/internal/snapshot"
)

// shallowTreeThreshold is the element count under which a tree read counts
// as unusably shallow and the vision fallback is consulted.
const shallowTreeThreshold = 3

// Memory is the learning surface the agent records into. RecordAction
// persists one segment's journal entry together with its translation update,
// atomically on stores that support batched writes.
type Memory interface {
	schemas.TranslationMemory
	schemas.Journal
	RecordAction(ctx context.Context, entry schemas.ActionJournalEntry, attempted *schemas.Candidate, succeeded bool) error
}

type Agent struct {
	driver   schemas.PlatformDriver
	snaps    schemas.SnapshotSource
	resolver *resolve.Resolver
	exec     *executor.Executor
	mem      Memory
	vision   schemas.VisionDetector
	log      *zap.Logger
}

type Config struct {
	Driver   schemas.PlatformDriver
	Snaps    schemas.SnapshotSource
	Resolver *resolve.Resolver
	Executor *executor.Executor
	Memory   Memory
	// Vision is optional; nil disables the fallback.
	Vision schemas.VisionDetector
	// ExecOptions configures the executor New builds when Executor is nil.
	ExecOptions executor.Options
}

func New(cfg Config, logger *zap.Logger) *Agent {
	a := &Agent{
		driver:   cfg.Driver,
		snaps:    cfg.Snaps,
		resolver: cfg.Resolver,
		exec:     cfg.Executor,
		mem:      cfg.Memory,
		vision:   cfg.Vision,
		log:      logger.Named("agent"),
	}
	if a.exec == nil {
		a.exec = executor.New(cfg.Driver, cfg.Snaps, a.ResolveFunc(), cfg.Memory, logger, cfg.ExecOptions)
	}
	return a
}

// ResolveFunc returns the resolution closure the executor runs per segment:
// resolver plus translation memory.
func (a *Agent) ResolveFunc() executor.ResolveFunc {
	return func(ctx context.Context, d *schemas.Descriptor, snap *schemas.Snapshot) (*schemas.Candidate, error) {
		return a.resolver.Resolve(ctx, d, snap, a.mem)
	}
}

// Act parses and executes one intent string as a single logical operation.
// The ExecutionResult is returned even when the chain failed partway; err
// then carries the typed failure of the aborting segment.
func (a *Agent) Act(ctx context.Context, appID, text string) (*schemas.ExecutionResult, error) {
	operationID := uuid.NewString()
	log := a.log.With(zap.String("operation_id", operationID), zap.String("app_id", appID))

	intents, err := intent.Parse(text)
	if err != nil {
		log.Warn("Intent rejected by parser", zap.String("text", text), zap.Error(err))
		return &schemas.ExecutionResult{OperationID: operationID}, err
	}

	result, runErr := a.exec.Run(ctx, appID, operationID, intents)

	a.recordOutcomes(ctx, appID, intents, result, runErr)
	return result, runErr
}

// recordOutcomes feeds the journal and the translation memory from one
// finished operation. Failures here are logged and swallowed; learning must
// never fail the action it was recording.
func (a *Agent) recordOutcomes(ctx context.Context, appID string, intents []schemas.Intent, result *schemas.ExecutionResult, runErr error) {
	if a.mem == nil || result == nil {
		return
	}

	for i, seg := range result.Segments {
		entry := schemas.ActionJournalEntry{
			OperationID: result.OperationID,
			AppID:       appID,
			Intent:      seg.Raw,
			Candidate:   seg.Candidate,
			Failure:     seg.Error,
			DiffSummary: snapshot.Summarize(seg.Diff),
			At:          time.Now().UTC(),
		}
		if i < len(intents) && intents[i].Target != nil {
			entry.Descriptor = intents[i].Target.String()
		}

		var attempted *schemas.Candidate
		if entry.Descriptor != "" && seg.Candidate != nil {
			attempted = &schemas.Candidate{
				Element: &schemas.Element{Role: seg.Candidate.Role, Label: seg.Candidate.Label},
				Rule:    seg.Rule,
			}
		}
		succeeded := seg.Dispatched && seg.Error == ""
		if err := a.mem.RecordAction(ctx, entry, attempted, succeeded); err != nil {
			a.log.Warn("Failed to record segment outcome",
				zap.String("descriptor", entry.Descriptor), zap.Error(err))
		}
	}

	if runErr != nil {
		a.log.Debug("Operation finished with error",
			zap.String("operation_id", result.OperationID),
			zap.Int("completed", result.Completed),
			zap.Error(runErr))
	}
}

// ActCorrecting runs one intent like Act and, when a segment dispatches
// successfully, records its candidate as the substitution for the descriptor
// the caller's previous attempt failed on. This is the retry path that turns
// a NotFound on "Save" into a learned "Guardar": the caller retries with the
// label that worked and names the one that did not.
func (a *Agent) ActCorrecting(ctx context.Context, appID, text, corrects string) (*schemas.ExecutionResult, error) {
	result, err := a.Act(ctx, appID, text)
	if corrects == "" || result == nil {
		return result, err
	}
	for _, seg := range result.Segments {
		if !seg.Dispatched || seg.Error != "" || seg.Candidate == nil {
			continue
		}
		a.CorrelateRetry(ctx, appID, corrects, &schemas.Candidate{
			Element: &schemas.Element{Role: seg.Candidate.Role, Label: seg.Candidate.Label},
			Rule:    seg.Rule,
		})
		break
	}
	return result, err
}

// CorrelateRetry records an explicit correlation: the descriptor failed, and
// a retry the caller declares to be the same attempt succeeded against cand.
func (a *Agent) CorrelateRetry(ctx context.Context, appID, failedDescriptor string, cand *schemas.Candidate) {
	if a.mem == nil || cand == nil {
		return
	}
	if err := a.mem.RecordOutcome(ctx, appID, failedDescriptor, cand, true); err != nil {
		a.log.Warn("Failed to record retry correlation",
			zap.String("descriptor", failedDescriptor), zap.Error(err))
	}
}

// Perceive captures the current snapshot of one application. When the tree
// comes back empty or unusably shallow and a vision detector is configured,
// detections from a screenshot are synthesized into a read-only element
// forest so the caller still gets something to look at.
func (a *Agent) Perceive(ctx context.Context, appID string) (*schemas.Snapshot, error) {
	snap, err := a.snaps.Capture(ctx, appID)
	if err != nil {
		return nil, err
	}
	if countElements(snap.Roots) >= shallowTreeThreshold || a.vision == nil {
		return snap, nil
	}

	a.log.Info("Tree read is shallow, consulting vision fallback",
		zap.String("app_id", appID),
		zap.Int("elements", countElements(snap.Roots)))

	img, err := a.driver.Screenshot(ctx, appID)
	if err != nil {
		a.log.Warn("Screenshot for vision fallback failed", zap.Error(err))
		return snap, nil
	}
	detections, err := a.vision.Detect(ctx, img)
	if err != nil {
		a.log.Warn("Vision fallback failed", zap.Error(err))
		return snap, nil
	}

	enriched := *snap
	enriched.Roots = append(enriched.Roots, detectionsToElements(detections)...)
	return &enriched, nil
}

// Recent exposes the action journal to transports.
func (a *Agent) Recent(ctx context.Context, limit int) ([]schemas.ActionJournalEntry, error) {
	if a.mem == nil {
		return nil, errors.New("no memory configured")
	}
	return a.mem.Recent(ctx, limit)
}

// Forget clears learned translations and shortcuts for one application.
func (a *Agent) Forget(ctx context.Context, appID string) error {
	if a.mem == nil {
		return errors.New("no memory configured")
	}
	return a.mem.Clear(ctx, appID)
}

// detectionsToElements turns vision boxes into perception-only elements.
// They carry no platform handle: visible to perceive, never dispatchable.
func detectionsToElements(detections []schemas.Detection) []*schemas.Element {
	var out []*schemas.Element
	for _, det := range detections {
		out = append(out, &schemas.Element{
			Handle: fmt.Sprintf("vision:%s", det.Label),
			Role:   schemas.RoleUnknown,
			Label:  det.Label,
			Bounds: det.Bounds,
			Flags:  schemas.Flags{Enabled: false},
		})
	}
	return out
}

func countElements(roots []*schemas.Element) int {
	n := 0
	for _, r := range roots {
		r.Walk(func(*schemas.Element) bool {
			n++
			return true
		})
	}
	return n
}
