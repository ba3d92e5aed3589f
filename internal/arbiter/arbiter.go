// Package arbiter serializes control actions from all sessions into a
// single ordered stream of primitive input operations.
//
// Every exclusive group is a two-state machine, Idle or Held(owner).
// The group mutex guards both the hold state and the synthesizer calls
// for that group, so overlapping key-down/key-up pairs can never be
// issued for the same control. Repeat pulses run on their own goroutine
// but re-check ownership under the same mutex before emitting; a pulse
// can never fire after its hold was released.
package arbiter

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"whooshpad/internal/action"
	"whooshpad/internal/synth"
)

// Status tells the client what happened to its action.
type Status string

const (
	// StatusApplied means the primitive input was emitted.
	StatusApplied Status = "applied"

	// StatusIgnored means the action was valid but suppressed: a hold
	// conflict (first-holder-wins) or a debounced duplicate tap. Not an
	// error; expected multi-client behavior.
	StatusIgnored Status = "ignored"
)

// DefaultDebounceWindow suppresses duplicate rapid taps of the same
// action from the same session, absorbing touch-UI double-fire.
const DefaultDebounceWindow = 150 * time.Millisecond

// GroupNotify receives group ownership transitions. owner is the
// session id holding the group, empty when the group went idle. Called
// with the group's lock held; implementations must not call back into
// the engine.
type GroupNotify func(group action.Group, owner string)

// Config carries optional engine dependencies.
type Config struct {
	Clock          clockwork.Clock // defaults to the real clock
	DebounceWindow time.Duration   // defaults to DefaultDebounceWindow
	Logger         zerolog.Logger
	OnGroupChange  GroupNotify
}

// Engine is the input arbitration engine. Safe for concurrent use.
type Engine struct {
	table    *action.Table
	syn      synth.Synthesizer
	clock    clockwork.Clock
	log      zerolog.Logger
	debounce time.Duration
	notify   GroupNotify

	groups map[action.Group]*groupState // fixed at construction

	tapMu   sync.Mutex
	lastTap map[tapKey]time.Time
}

type tapKey struct {
	session string
	act     action.ID
}

type groupState struct {
	name action.Group

	mu    sync.Mutex
	owner string        // session id, "" when Idle
	held  action.ID     // action currently held
	gen   uint64        // bumped on every transition
	pulse chan struct{} // closed to cancel the repeat loop
}

// New builds an engine over the given binding table and synthesizer.
func New(table *action.Table, syn synth.Synthesizer, cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = DefaultDebounceWindow
	}

	e := &Engine{
		table:    table,
		syn:      syn,
		clock:    cfg.Clock,
		log:      cfg.Logger,
		debounce: cfg.DebounceWindow,
		notify:   cfg.OnGroupChange,
		groups:   make(map[action.Group]*groupState),
		lastTap:  make(map[tapKey]time.Time),
	}
	for _, g := range table.Groups() {
		e.groups[g] = &groupState{name: g}
	}
	return e
}

// Dispatch routes one control action. It returns the ack status, or an
// error for unknown actions and synthesizer failures; errors never
// leave hold state pointing at a key that is not actually down.
func (e *Engine) Dispatch(session string, id action.ID, phase action.Phase) (Status, error) {
	b, err := e.table.Lookup(id)
	if err != nil {
		return "", err
	}

	switch phase {
	case action.PhaseStart:
		if !b.Holdable() {
			// Forgiving toward UI double-wiring: start on an instant
			// binding behaves like a tap.
			return e.tap(session, b)
		}
		return e.start(session, b)

	case action.PhaseStop:
		if !b.Holdable() {
			return StatusIgnored, nil
		}
		return e.stop(session, b)

	default:
		return e.tap(session, b)
	}
}

// start transitions a group Idle -> Held(session) and emits key-down.
// A group already held by anyone is left untouched: first-holder-wins,
// no queueing, so two phones can't oscillate conflicting inputs.
func (e *Engine) start(session string, b action.Binding) (Status, error) {
	g := e.groups[b.Group]
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.owner != "" {
		e.log.Debug().
			Str("session", session).
			Str("action", string(b.ID)).
			Str("holder", g.owner).
			Msg("hold rejected, group busy")
		return StatusIgnored, nil
	}

	if err := e.syn.Emit(synth.KeyDown(b.Key)); err != nil {
		// Group stays Idle; no phantom hold with no key actually down.
		return "", err
	}

	g.owner = session
	g.held = b.ID
	g.gen++
	if b.Policy == action.PolicyRepeat {
		g.pulse = make(chan struct{})
		go e.runPulse(g, b, g.gen, g.pulse)
	}
	e.notifyLocked(g)

	e.log.Debug().
		Str("session", session).
		Str("action", string(b.ID)).
		Str("group", string(b.Group)).
		Msg("hold acquired")
	return StatusApplied, nil
}

// stop releases a hold. Only the owning session may release; a stop
// from anyone else is a no-op.
func (e *Engine) stop(session string, b action.Binding) (Status, error) {
	g := e.groups[b.Group]
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.owner != session || g.held != b.ID {
		return StatusIgnored, nil
	}

	if err := e.releaseLocked(g, b); err != nil {
		return "", err
	}
	e.log.Debug().
		Str("session", session).
		Str("action", string(b.ID)).
		Msg("hold released")
	return StatusApplied, nil
}

// tap fires an instant binding once, independent of any hold state. A
// per-(session, action) debounce window suppresses duplicates.
func (e *Engine) tap(session string, b action.Binding) (Status, error) {
	now := e.clock.Now()
	key := tapKey{session: session, act: b.ID}

	e.tapMu.Lock()
	if last, ok := e.lastTap[key]; ok && now.Sub(last) < e.debounce {
		e.tapMu.Unlock()
		return StatusIgnored, nil
	}
	e.lastTap[key] = now
	e.tapMu.Unlock()

	seq := b.Seq
	if b.Holdable() {
		// A bare tap on a hold binding is a single press-and-release.
		seq = synth.Tap(b.Key)
	}
	for _, op := range seq {
		if err := e.syn.Emit(op); err != nil {
			return "", err
		}
	}
	return StatusApplied, nil
}

// ReleaseSession forcibly releases every group the session owns and
// forgets its debounce history. Called on disconnect so a dropped phone
// can never leave a direction stuck held.
func (e *Engine) ReleaseSession(session string) {
	for _, g := range e.groups {
		g.mu.Lock()
		if g.owner == session {
			b, err := e.table.Lookup(g.held)
			if err == nil {
				if relErr := e.releaseLocked(g, b); relErr != nil {
					e.log.Warn().
						Err(relErr).
						Str("session", session).
						Str("group", string(g.name)).
						Msg("key-up failed during disconnect release")
				}
			}
		}
		g.mu.Unlock()
	}

	e.tapMu.Lock()
	for key := range e.lastTap {
		if key.session == session {
			delete(e.lastTap, key)
		}
	}
	e.tapMu.Unlock()
}

// releaseLocked cancels the repeat loop, idles the group, and emits
// key-up. The generation bump happens before the key-up so even a
// failed key-up leaves the group Idle rather than stuck Held. Caller
// holds g.mu.
func (e *Engine) releaseLocked(g *groupState, b action.Binding) error {
	g.gen++
	if g.pulse != nil {
		close(g.pulse)
		g.pulse = nil
	}
	g.owner = ""
	g.held = ""
	e.notifyLocked(g)

	return e.syn.Emit(synth.KeyUp(b.Key))
}

// runPulse re-emits key-down every interval while the hold survives.
// The generation check under the group lock makes cancellation atomic
// with stop/disconnect: a tick that raced a release emits nothing.
func (e *Engine) runPulse(g *groupState, b action.Binding, gen uint64, cancel <-chan struct{}) {
	ticker := e.clock.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			g.mu.Lock()
			if g.gen != gen {
				g.mu.Unlock()
				return
			}
			if err := e.syn.Emit(synth.KeyDown(b.Key)); err != nil {
				// The held key is in an unknown state; force-idle the
				// group so a fresh start can recover.
				g.gen++
				g.pulse = nil
				g.owner = ""
				g.held = ""
				e.notifyLocked(g)
				g.mu.Unlock()
				e.log.Warn().
					Err(err).
					Str("action", string(b.ID)).
					Msg("repeat pulse failed, hold dropped")
				return
			}
			g.mu.Unlock()

		case <-cancel:
			return
		}
	}
}

func (e *Engine) notifyLocked(g *groupState) {
	if e.notify != nil {
		e.notify(g.name, g.owner)
	}
}

// GroupOwners returns a snapshot of group ownership, empty string for
// idle groups.
func (e *Engine) GroupOwners() map[action.Group]string {
	owners := make(map[action.Group]string, len(e.groups))
	for name, g := range e.groups {
		g.mu.Lock()
		owners[name] = g.owner
		g.mu.Unlock()
	}
	return owners
}
