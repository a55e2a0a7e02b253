package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// keyNames maps the spoken key vocabulary onto CDP key identifiers.
var keyNames = map[string]string{
	"enter":     "Enter",
	"return":    "Enter",
	"esc":       "Escape",
	"escape":    "Escape",
	"tab":       "Tab",
	"space":     " ",
	"backspace": "Backspace",
	"delete":    "Delete",
	"del":       "Delete",
	"up":        "ArrowUp",
	"down":      "ArrowDown",
	"left":      "ArrowLeft",
	"right":     "ArrowRight",
	"home":      "Home",
	"end":       "End",
	"pageup":    "PageUp",
	"pagedown":  "PageDown",
	"f1":        "F1", "f2": "F2", "f3": "F3", "f4": "F4",
	"f5": "F5", "f6": "F6", "f7": "F7", "f8": "F8",
	"f9": "F9", "f10": "F10", "f11": "F11", "f12": "F12",
}

func modifierMask(keys []string) (input.Modifier, []string) {
	var mods input.Modifier
	var rest []string
	for _, k := range keys {
		switch strings.ToLower(k) {
		case "ctrl", "control":
			mods |= input.ModifierCtrl
		case "alt", "option":
			mods |= input.ModifierAlt
		case "shift":
			mods |= input.ModifierShift
		case "meta", "cmd", "command", "super", "win":
			mods |= input.ModifierMeta
		default:
			rest = append(rest, k)
		}
	}
	return mods, rest
}

func cdpKeyName(k string) string {
	if mapped, ok := keyNames[strings.ToLower(k)]; ok {
		return mapped
	}
	return k
}

// keyCombo presses modifiers+key as one chord: keyDown then keyUp with the
// modifier mask applied to both.
func keyCombo(keys []string) chromedp.Action {
	mods, rest := modifierMask(keys)
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, k := range rest {
			name := cdpKeyName(k)
			down := input.DispatchKeyEvent(input.KeyDown).WithModifiers(mods).WithKey(name)
			if err := down.Do(ctx); err != nil {
				return err
			}
			up := input.DispatchKeyEvent(input.KeyUp).WithModifiers(mods).WithKey(name)
			if err := up.Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func mouseClick(x, y float64, button input.MouseButton, clickCount int64, mods input.Modifier) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		press := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(button).
			WithClickCount(clickCount).
			WithModifiers(mods)
		if err := press.Do(ctx); err != nil {
			return err
		}
		release := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(button).
			WithClickCount(clickCount).
			WithModifiers(mods)
		return release.Do(ctx)
	})
}

func mouseWheel(x, y, deltaX, deltaY float64) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseWheel, x, y).
			WithDeltaX(deltaX).
			WithDeltaY(deltaY).
			Do(ctx)
	})
}

func mouseDrag(fromX, fromY, toX, toY float64) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MousePressed, fromX, fromY).
			WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
			return err
		}
		if err := input.DispatchMouseEvent(input.MouseMoved, toX, toY).
			WithButton(input.Left).Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, toX, toY).
			WithButton(input.Left).WithClickCount(1).Do(ctx)
	})
}

func insertText(text string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	})
}

// Dispatch performs an operation against a previously issued element handle.
// Handles are only valid for the tree read that produced them; anything
// older surfaces as a stale handle.
func (d *Driver) Dispatch(ctx context.Context, handle string, op schemas.Operation, payload schemas.ActionPayload) error {
	info, ok := d.lookupHandle(handle)
	if !ok {
		return &schemas.StaleHandleError{Handle: handle}
	}
	t, err := d.tabFor(ctx, info.appID)
	if err != nil {
		return err
	}

	x, y := info.bounds.CenterX(), info.bounds.CenterY()
	mods, _ := modifierMask(payload.Modifier)

	var actions []chromedp.Action
	switch op {
	case schemas.OpClick:
		actions = append(actions, mouseClick(x, y, input.Left, 1, mods))
	case schemas.OpDoubleClick:
		actions = append(actions, mouseClick(x, y, input.Left, 2, mods))
	case schemas.OpRightClick:
		actions = append(actions, mouseClick(x, y, input.Right, 1, mods))
	case schemas.OpFocus:
		actions = append(actions, mouseClick(x, y, input.Left, 1, 0))
	case schemas.OpType:
		// Focus the field, replace its content with the payload.
		actions = append(actions,
			mouseClick(x, y, input.Left, 1, 0),
			keyCombo([]string{"ctrl", "a"}),
			insertText(payload.Text),
		)
	case schemas.OpScroll:
		actions = append(actions, mouseWheel(x, y, payload.DeltaX, payload.DeltaY))
	case schemas.OpDragTo:
		actions = append(actions, mouseDrag(x, y, payload.TargetX, payload.TargetY))
	case schemas.OpKeySequence:
		actions = append(actions,
			mouseClick(x, y, input.Left, 1, 0),
			keyCombo(payload.Keys),
		)
	default:
		return fmt.Errorf("unsupported operation %q", op)
	}

	return runWithCtx(ctx, t, actions...)
}

// RawInput bypasses element targeting: key chords and coordinate mouse
// actions against the app's surface.
func (d *Driver) RawInput(ctx context.Context, ev schemas.RawInputEvent) error {
	t, err := d.tabFor(ctx, ev.AppID)
	if err != nil {
		return err
	}

	var actions []chromedp.Action
	if ev.Move {
		actions = append(actions, chromedp.ActionFunc(func(cctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, ev.MouseX, ev.MouseY).Do(cctx)
		}))
	} else if ev.MouseX != 0 || ev.MouseY != 0 {
		actions = append(actions, mouseClick(ev.MouseX, ev.MouseY, input.Left, 1, 0))
	}
	if len(ev.Keys) > 0 {
		actions = append(actions, keyCombo(ev.Keys))
	}
	if len(actions) == 0 {
		return nil
	}

	return runWithCtx(ctx, t, actions...)
}
