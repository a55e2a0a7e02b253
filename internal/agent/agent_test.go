package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/executor"
	"github.com/xkilldash9x/pilot-cli/internal/memory"
	"github.com/xkilldash9x/pilot-cli/internal/resolve"
	"github.com/xkilldash9x/pilot-cli/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeDriver struct {
	mu         sync.Mutex
	dispatches int
	screenshot []byte
	shotErr    error
}

func (f *fakeDriver) ReadTree(ctx context.Context, appID string) ([]*schemas.Element, error) {
	return nil, nil
}

func (f *fakeDriver) ListWindows(ctx context.Context, appID string) ([]schemas.WindowInfo, error) {
	return nil, nil
}

func (f *fakeDriver) Dispatch(ctx context.Context, handle string, op schemas.Operation, payload schemas.ActionPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches++
	return nil
}

func (f *fakeDriver) RawInput(ctx context.Context, ev schemas.RawInputEvent) error {
	return nil
}

func (f *fakeDriver) Screenshot(ctx context.Context, appID string) ([]byte, error) {
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	return f.screenshot, nil
}

type fakeSnaps struct {
	mu     sync.Mutex
	script []*schemas.Snapshot
	idx    int
}

func (f *fakeSnaps) Capture(ctx context.Context, appID string) (*schemas.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.script) == 0 {
		return &schemas.Snapshot{AppID: appID, CapturedAt: time.Now()}, nil
	}
	s := f.script[f.idx]
	if f.idx < len(f.script)-1 {
		f.idx++
	}
	return s, nil
}

func (f *fakeSnaps) Invalidate(appID string) {}

type fakeVision struct {
	mu         sync.Mutex
	calls      int
	detections []schemas.Detection
	err        error
}

func (f *fakeVision) Detect(ctx context.Context, image []byte) ([]schemas.Detection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.detections, f.err
}

// failingMemory errors on every write; learning failures must never fail the
// action being recorded.
type failingMemory struct{}

func (failingMemory) Lookup(ctx context.Context, appID, canonical string) (string, bool) {
	return "", false
}

func (failingMemory) RecordOutcome(ctx context.Context, appID, canonical string, attempted *schemas.Candidate, succeeded bool) error {
	return errors.New("memory down")
}

func (failingMemory) PreferredShortcut(ctx context.Context, appID, action string) (*schemas.Preference, bool) {
	return nil, false
}

func (failingMemory) RecordShortcut(ctx context.Context, appID, action string, keys []string) error {
	return errors.New("memory down")
}

func (failingMemory) DemoteShortcut(ctx context.Context, appID, action string) error {
	return errors.New("memory down")
}

func (failingMemory) Clear(ctx context.Context, appID string) error {
	return errors.New("memory down")
}

func (failingMemory) Append(ctx context.Context, entry schemas.ActionJournalEntry) error {
	return errors.New("memory down")
}

func (failingMemory) Recent(ctx context.Context, limit int) ([]schemas.ActionJournalEntry, error) {
	return nil, errors.New("memory down")
}

func (failingMemory) RecordAction(ctx context.Context, entry schemas.ActionJournalEntry, attempted *schemas.Candidate, succeeded bool) error {
	return errors.New("memory down")
}

func button(label string, x, y float64) *schemas.Element {
	return &schemas.Element{
		Handle: "h-" + label,
		Role:   schemas.RoleButton,
		Label:  label,
		Bounds: schemas.Rect{X: x, Y: y, Width: 80, Height: 24},
		Flags:  schemas.Flags{Enabled: true},
	}
}

func snapOf(roots ...*schemas.Element) *schemas.Snapshot {
	return &schemas.Snapshot{AppID: "editor", Roots: roots, CapturedAt: time.Now()}
}

func newAgent(driver *fakeDriver, snaps *fakeSnaps, mem Memory, vision schemas.VisionDetector) *Agent {
	return newAgentWithLogger(driver, snaps, mem, vision, zap.NewNop())
}

func newAgentWithLogger(driver *fakeDriver, snaps *fakeSnaps, mem Memory, vision schemas.VisionDetector, logger *zap.Logger) *Agent {
	resolver := resolve.New(logger, resolve.Options{})
	return New(Config{
		Driver:   driver,
		Snaps:    snaps,
		Resolver: resolver,
		Memory:   mem,
		Vision:   vision,
		ExecOptions: executor.Options{
			SettleDelay:     time.Millisecond,
			DispatchTimeout: time.Second,
		},
	}, logger)
}

func newMemory(t *testing.T) *memory.Memory {
	t.Helper()
	return memory.New(store.NewMemStore(), zap.NewNop())
}

func TestActJournalsSegment(t *testing.T) {
	driver := &fakeDriver{}
	snaps := &fakeSnaps{script: []*schemas.Snapshot{
		snapOf(button("Save", 10, 10)),
		snapOf(button("Saved", 10, 10)),
	}}
	mem := newMemory(t)
	a := newAgent(driver, snaps, mem, nil)

	result, err := a.Act(context.Background(), "editor", "click Save")
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	assert.Equal(t, 1, driver.dispatches)

	entries, err := a.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "click Save", entries[0].Intent)
	assert.Equal(t, "Save", entries[0].Descriptor)
	assert.Equal(t, result.OperationID, entries[0].OperationID)
	assert.Empty(t, entries[0].Failure)
	assert.NotEmpty(t, entries[0].DiffSummary)

	// Attempted label matched the descriptor, so nothing was learned.
	_, ok := mem.Lookup(context.Background(), "editor", "Save")
	assert.False(t, ok)
}

func TestCorrelateRetryTeachesTranslation(t *testing.T) {
	driver := &fakeDriver{}
	snaps := &fakeSnaps{script: []*schemas.Snapshot{
		snapOf(button("Guardar", 10, 10)),
		snapOf(button("Guardado", 10, 10)),
	}}
	mem := newMemory(t)
	a := newAgent(driver, snaps, mem, nil)

	a.CorrelateRetry(context.Background(), "editor", "Save", &schemas.Candidate{
		Element: &schemas.Element{Role: schemas.RoleButton, Label: "Guardar"},
		Rule:    schemas.MatchExact,
	})

	got, ok := mem.Lookup(context.Background(), "editor", "Save")
	require.True(t, ok)
	assert.Equal(t, "Guardar", got)

	// The learned substitution resolves "Save" against a tree that only
	// has "Guardar".
	result, err := a.Act(context.Background(), "editor", "click Save")
	require.NoError(t, err)
	require.True(t, result.Succeeded())
	require.NotNil(t, result.Segments[0].Candidate)
	assert.Equal(t, "Guardar", result.Segments[0].Candidate.Label)
	assert.Equal(t, schemas.MatchTranslation, result.Segments[0].Rule)
}

func TestActCorrectingTeachesTranslation(t *testing.T) {
	driver := &fakeDriver{}
	snaps := &fakeSnaps{script: []*schemas.Snapshot{
		snapOf(button("Guardar", 10, 10)),
		snapOf(button("Guardado", 10, 10)),
	}}
	mem := newMemory(t)
	a := newAgent(driver, snaps, mem, nil)

	// The retry names the descriptor the previous attempt failed on; its
	// own success records the substitution.
	result, err := a.ActCorrecting(context.Background(), "editor", "click Guardar", "Save")
	require.NoError(t, err)
	require.True(t, result.Succeeded())

	got, ok := mem.Lookup(context.Background(), "editor", "Save")
	require.True(t, ok)
	assert.Equal(t, "Guardar", got)
}

func TestActCorrectingFailedRetryLearnsNothing(t *testing.T) {
	driver := &fakeDriver{}
	snaps := &fakeSnaps{script: []*schemas.Snapshot{
		snapOf(button("Cancel", 10, 10)),
	}}
	mem := newMemory(t)
	a := newAgent(driver, snaps, mem, nil)

	_, err := a.ActCorrecting(context.Background(), "editor", "click Guardar", "Save")
	require.Error(t, err)

	_, ok := mem.Lookup(context.Background(), "editor", "Save")
	assert.False(t, ok)
}

func TestActParseErrorSkipsExecution(t *testing.T) {
	driver := &fakeDriver{}
	a := newAgent(driver, &fakeSnaps{}, newMemory(t), nil)

	result, err := a.Act(context.Background(), "editor", "frobnicate the widget")
	require.Error(t, err)
	var parseErr *schemas.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.NotEmpty(t, result.OperationID)
	assert.Zero(t, driver.dispatches)
}

func TestActFailureIsJournaled(t *testing.T) {
	driver := &fakeDriver{}
	snaps := &fakeSnaps{script: []*schemas.Snapshot{
		snapOf(button("Cancel", 10, 10)),
	}}
	mem := newMemory(t)
	a := newAgent(driver, snaps, mem, nil)

	_, err := a.Act(context.Background(), "editor", "click Save")
	require.Error(t, err)

	entries, err := a.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].Failure)
}

func TestActMemoryErrorsAreSwallowed(t *testing.T) {
	driver := &fakeDriver{}
	snaps := &fakeSnaps{script: []*schemas.Snapshot{
		snapOf(button("Save", 10, 10)),
		snapOf(button("Saved", 10, 10)),
	}}
	core, logs := observer.New(zapcore.WarnLevel)
	a := newAgentWithLogger(driver, snaps, failingMemory{}, nil, zap.New(core))

	result, err := a.Act(context.Background(), "editor", "click Save")
	require.NoError(t, err)
	assert.True(t, result.Succeeded())

	assert.NotZero(t, logs.FilterMessage("Failed to record segment outcome").Len())
}

func TestPerceiveDeepTreeSkipsVision(t *testing.T) {
	vision := &fakeVision{}
	snaps := &fakeSnaps{script: []*schemas.Snapshot{
		snapOf(button("Save", 10, 10), button("Cancel", 100, 10), button("Help", 200, 10)),
	}}
	a := newAgent(&fakeDriver{}, snaps, newMemory(t), vision)

	snap, err := a.Perceive(context.Background(), "editor")
	require.NoError(t, err)
	assert.Len(t, snap.Roots, 3)
	assert.Zero(t, vision.calls)
}

func TestPerceiveShallowTreeUsesVision(t *testing.T) {
	vision := &fakeVision{detections: []schemas.Detection{
		{Label: "Submit", Bounds: schemas.Rect{X: 50, Y: 50, Width: 90, Height: 30}, Confidence: 0.9},
	}}
	driver := &fakeDriver{screenshot: []byte("png")}
	snaps := &fakeSnaps{script: []*schemas.Snapshot{
		snapOf(button("Save", 10, 10)),
	}}
	a := newAgent(driver, snaps, newMemory(t), vision)

	snap, err := a.Perceive(context.Background(), "editor")
	require.NoError(t, err)
	assert.Equal(t, 1, vision.calls)
	require.Len(t, snap.Roots, 2)

	synth := snap.Roots[1]
	assert.Equal(t, "vision:Submit", synth.Handle)
	assert.Equal(t, "Submit", synth.Label)
	assert.Equal(t, schemas.RoleUnknown, synth.Role)
	assert.False(t, synth.Flags.Enabled, "vision elements must never be dispatchable")
}

func TestPerceiveVisionErrorsAreSoft(t *testing.T) {
	vision := &fakeVision{err: errors.New("quota exceeded")}
	driver := &fakeDriver{screenshot: []byte("png")}
	snaps := &fakeSnaps{script: []*schemas.Snapshot{
		snapOf(button("Save", 10, 10)),
	}}
	a := newAgent(driver, snaps, newMemory(t), vision)

	snap, err := a.Perceive(context.Background(), "editor")
	require.NoError(t, err)
	assert.Len(t, snap.Roots, 1)
}

func TestForgetClearsLearnedState(t *testing.T) {
	mem := newMemory(t)
	a := newAgent(&fakeDriver{}, &fakeSnaps{}, mem, nil)

	a.CorrelateRetry(context.Background(), "editor", "Save", &schemas.Candidate{
		Element: &schemas.Element{Role: schemas.RoleButton, Label: "Guardar"},
		Rule:    schemas.MatchExact,
	})
	require.NoError(t, a.Forget(context.Background(), "editor"))

	_, ok := mem.Lookup(context.Background(), "editor", "Save")
	assert.False(t, ok)
}

func TestRenderSnapshot(t *testing.T) {
	snap := snapOf(button("Save", 10, 10))
	snap.Windows = []schemas.WindowInfo{{Title: "Editor", Bounds: schemas.Rect{Width: 1280, Height: 800}}}
	snap.Events = []schemas.ChangeEvent{{Kind: schemas.ChangeNodeAdded, Detail: "toast appeared"}}

	out := RenderSnapshot(snap)
	assert.Contains(t, out, `window: "Editor" 1280x800`)
	assert.Contains(t, out, `button "Save"`)
	assert.Contains(t, out, "buffered events (1)")
	assert.Contains(t, out, "toast appeared")
}

func TestRenderResult(t *testing.T) {
	result := &schemas.ExecutionResult{
		OperationID: "op-1",
		Attempted:   2,
		Completed:   1,
		Total:       2,
		Segments: []schemas.SegmentResult{
			{
				Raw: "click Save",
				Candidate: &schemas.ElementRef{
					Role:  schemas.RoleButton,
					Label: "Save",
				},
				Rule:       schemas.MatchExact,
				Dispatched: true,
				Diff: &schemas.DiffResult{
					Added: []schemas.ElementRef{{Role: schemas.RoleText, Label: "Saved"}},
				},
			},
			{
				Raw:   "click Publish",
				Error: `no element matching "Publish"`,
			},
		},
	}

	out := RenderResult(result)
	assert.True(t, strings.HasPrefix(out, "operation op-1: failed (1/2 segments)"))
	assert.Contains(t, out, `1. "click Save" -> button "Save" (exact)`)
	assert.Contains(t, out, `+ text "Saved"`)
	assert.Contains(t, out, `error: no element matching "Publish"`)
}
