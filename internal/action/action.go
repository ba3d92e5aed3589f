// Package action defines the control actions the relay accepts and the
// static table mapping them to synthesized input.
package action

import (
	"errors"
	"fmt"
	"time"

	"whooshpad/internal/synth"
)

// ID identifies a named control action sent by a client.
type ID string

// Actions understood by the stock control pad.
const (
	ShiftUp      ID = "shift-up"
	ShiftDown    ID = "shift-down"
	SteerLeft    ID = "steer-left"
	SteerRight   ID = "steer-right"
	Emote1       ID = "emote-1" // Peace
	Emote2       ID = "emote-2" // Wave
	Emote3       ID = "emote-3" // Fist bump
	Emote4       ID = "emote-4" // Dab
	Emote5       ID = "emote-5" // Elbow flick
	Emote6       ID = "emote-6" // Toast
	Emote7       ID = "emote-7" // Thumbs up
	ToggleUI     ID = "toggle-ui"
	HideControls ID = "hide-controls"
	Screenshot   ID = "screenshot"
)

// Phase is the press phase carried by a control message.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseStop  Phase = "stop"
	PhaseTap   Phase = "tap"
)

// ParsePhase validates a wire phase string.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseStart, PhaseStop, PhaseTap:
		return Phase(s), nil
	}
	return "", fmt.Errorf("unknown phase: %q", s)
}

// Policy is the timing policy of a binding.
type Policy string

const (
	// PolicyInstant fires the bound op sequence once per tap.
	PolicyInstant Policy = "instant"

	// PolicyHold emits key-down on start and key-up on stop.
	PolicyHold Policy = "hold"

	// PolicyRepeat emits key-down on start, re-emits it every Interval
	// while held, and emits key-up on stop.
	PolicyRepeat Policy = "repeat"
)

// Group names an exclusive group of hold actions. At most one session
// may hold a group at any instant.
type Group string

const (
	GroupShift Group = "shift"
	GroupSteer Group = "steer"
)

// ErrUnknownAction is returned for identifiers not in the table.
var ErrUnknownAction = errors.New("unknown action")

// Binding maps an action to primitive input with a timing policy.
// Immutable after table construction.
type Binding struct {
	ID       ID
	Policy   Policy
	Group    Group         // required for hold/repeat, empty otherwise
	Key      synth.KeyCode // key for hold/repeat bindings
	Seq      []synth.Op    // op sequence for instant bindings
	Interval time.Duration // pulse interval for repeat bindings
}

// Holdable reports whether the binding participates in group exclusion.
func (b Binding) Holdable() bool {
	return b.Policy == PolicyHold || b.Policy == PolicyRepeat
}

// Table is the static action-to-binding mapping, loaded at startup.
type Table struct {
	bindings map[ID]Binding
	groups   []Group
}

// NewTable builds a table from bindings, validating each entry.
func NewTable(bindings []Binding) (*Table, error) {
	t := &Table{bindings: make(map[ID]Binding, len(bindings))}
	seen := make(map[Group]bool)

	for _, b := range bindings {
		if b.ID == "" {
			return nil, errors.New("binding with empty action id")
		}
		if _, dup := t.bindings[b.ID]; dup {
			return nil, fmt.Errorf("duplicate binding for action %q", b.ID)
		}
		switch b.Policy {
		case PolicyInstant:
			if len(b.Seq) == 0 {
				return nil, fmt.Errorf("action %q: instant binding needs an op sequence", b.ID)
			}
		case PolicyHold, PolicyRepeat:
			if b.Group == "" {
				return nil, fmt.Errorf("action %q: %s binding needs an exclusive group", b.ID, b.Policy)
			}
			if b.Key == 0 {
				return nil, fmt.Errorf("action %q: %s binding needs a key", b.ID, b.Policy)
			}
			if b.Policy == PolicyRepeat && b.Interval <= 0 {
				return nil, fmt.Errorf("action %q: repeat binding needs a positive interval", b.ID)
			}
			if !seen[b.Group] {
				seen[b.Group] = true
				t.groups = append(t.groups, b.Group)
			}
		default:
			return nil, fmt.Errorf("action %q: unknown policy %q", b.ID, b.Policy)
		}
		t.bindings[b.ID] = b
	}
	return t, nil
}

// Lookup resolves an action identifier. Pure; no side effects.
func (t *Table) Lookup(id ID) (Binding, error) {
	b, ok := t.bindings[id]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %q", ErrUnknownAction, id)
	}
	return b, nil
}

// Groups returns the exclusive groups referenced by the table, in
// first-seen order.
func (t *Table) Groups() []Group {
	return t.groups
}

// IDs returns all bound action identifiers.
func (t *Table) IDs() []ID {
	ids := make([]ID, 0, len(t.bindings))
	for id := range t.bindings {
		ids = append(ids, id)
	}
	return ids
}

// DefaultRepeatInterval is the pulse interval for the stock shift
// bindings: a long press keeps shifting, mirroring a held physical key.
const DefaultRepeatInterval = 200 * time.Millisecond

// DefaultTable returns the built-in binding table matching the MyWhoosh
// keyboard shortcuts.
func DefaultTable() *Table {
	t, err := NewTable([]Binding{
		{ID: ShiftUp, Policy: PolicyRepeat, Group: GroupShift, Key: synth.KeyI, Interval: DefaultRepeatInterval},
		{ID: ShiftDown, Policy: PolicyRepeat, Group: GroupShift, Key: synth.KeyK, Interval: DefaultRepeatInterval},
		{ID: SteerLeft, Policy: PolicyHold, Group: GroupSteer, Key: synth.KeyA},
		{ID: SteerRight, Policy: PolicyHold, Group: GroupSteer, Key: synth.KeyD},
		{ID: Emote1, Policy: PolicyInstant, Seq: synth.Tap(synth.Key1)},
		{ID: Emote2, Policy: PolicyInstant, Seq: synth.Tap(synth.Key2)},
		{ID: Emote3, Policy: PolicyInstant, Seq: synth.Tap(synth.Key3)},
		{ID: Emote4, Policy: PolicyInstant, Seq: synth.Tap(synth.Key4)},
		{ID: Emote5, Policy: PolicyInstant, Seq: synth.Tap(synth.Key5)},
		{ID: Emote6, Policy: PolicyInstant, Seq: synth.Tap(synth.Key6)},
		{ID: Emote7, Policy: PolicyInstant, Seq: synth.Tap(synth.Key7)},
		{ID: ToggleUI, Policy: PolicyInstant, Seq: synth.Tap(synth.KeyU)},
		{ID: HideControls, Policy: PolicyInstant, Seq: synth.Tap(synth.KeyH)},
		{ID: Screenshot, Policy: PolicyInstant, Seq: []synth.Op{synth.Screenshot()}},
	})
	if err != nil {
		// The built-in table is compile-time data; a validation failure
		// here is a programming error.
		panic(err)
	}
	return t
}
