// File: api/schemas/interfaces.go
// Description: Canonical interface definitions shared across the application.
// Interfaces live here, at the API level, so internal packages can depend on
// the contracts without importing each other.
package schemas

import (
	"context"
	"encoding/json"
)

// Operation is the concrete input action dispatched through the platform
// collaborator. Closed set, switched exhaustively in the driver.
type Operation string

const (
	OpClick       Operation = "click"
	OpDoubleClick Operation = "doubleclick"
	OpRightClick  Operation = "rightclick"
	OpType        Operation = "type"
	OpFocus       Operation = "focus"
	OpScroll      Operation = "scroll"
	OpDragTo      Operation = "drag_to"
	OpKeySequence Operation = "key_sequence"
)

// ActionPayload carries the operation-specific data for a Dispatch call.
type ActionPayload struct {
	Text     string   `json:"text,omitempty"`
	Keys     []string `json:"keys,omitempty"`
	TargetX  float64  `json:"target_x,omitempty"`
	TargetY  float64  `json:"target_y,omitempty"`
	DeltaX   float64  `json:"delta_x,omitempty"`
	DeltaY   float64  `json:"delta_y,omitempty"`
	Modifier []string `json:"modifier,omitempty"`
}

// RawInputEvent is a low-level input request that bypasses element targeting.
// AppID routes the event to the right application surface.
type RawInputEvent struct {
	AppID  string   `json:"app_id,omitempty"`
	MouseX float64  `json:"mouse_x,omitempty"`
	MouseY float64  `json:"mouse_y,omitempty"`
	Move   bool     `json:"move,omitempty"`
	Keys   []string `json:"keys,omitempty"`
}

// PlatformDriver is the external collaborator that reads an application's
// element tree and performs input. Implementations must honor ctx deadlines;
// the core never retries a timed-out call.
type PlatformDriver interface {
	ReadTree(ctx context.Context, appID string) ([]*Element, error)
	ListWindows(ctx context.Context, appID string) ([]WindowInfo, error)
	Dispatch(ctx context.Context, handle string, op Operation, payload ActionPayload) error
	RawInput(ctx context.Context, ev RawInputEvent) error
	Screenshot(ctx context.Context, appID string) ([]byte, error)
}

// VisionDetector is the optional OCR/vision fallback, consulted only when the
// primary tree read yields an empty or unusably shallow result.
type VisionDetector interface {
	Detect(ctx context.Context, image []byte) ([]Detection, error)
}

// KVStore is the persistent memory store collaborator: a flat mapping from
// string key to structured value, surviving process restarts. Writes must be
// readable by the next Get in the same process.
type KVStore interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// BatchKVStore is an optional KVStore extension: multi-key writes that must
// land together. Callers fall back to sequential Sets on stores without it.
type BatchKVStore interface {
	TxSet(ctx context.Context, entries map[string]json.RawMessage) error
}

// SnapshotSource is the perception funnel: all tree reads go through it so
// one resolution+execution cycle sees a consistent view.
type SnapshotSource interface {
	Capture(ctx context.Context, appID string) (*Snapshot, error)
	Invalidate(appID string)
}

// TranslationMemory learns label substitutions and preferred shortcuts from
// outcome history. Lookup never overrides an exact match; it only supplies a
// candidate to try when the exact/fuzzy path finds nothing.
type TranslationMemory interface {
	Lookup(ctx context.Context, appID, canonical string) (string, bool)
	RecordOutcome(ctx context.Context, appID, canonical string, attempted *Candidate, succeeded bool) error
	PreferredShortcut(ctx context.Context, appID, action string) (*Preference, bool)
	RecordShortcut(ctx context.Context, appID, action string, keys []string) error
	DemoteShortcut(ctx context.Context, appID, action string) error
	Clear(ctx context.Context, appID string) error
}

// Journal records every attempted action, append-only.
type Journal interface {
	Append(ctx context.Context, entry ActionJournalEntry) error
	Recent(ctx context.Context, limit int) ([]ActionJournalEntry, error)
}
