package action

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"whooshpad/internal/synth"
)

// bindingsFile is the YAML shape of a user-supplied bindings file.
//
//	actions:
//	  - id: steer-left
//	    policy: hold
//	    group: steer
//	    key: a
//	  - id: shift-up
//	    policy: repeat
//	    group: shift
//	    key: i
//	    interval: 250ms
//	  - id: emote-1
//	    policy: instant
//	    key: "1"
type bindingsFile struct {
	Actions []bindingEntry `yaml:"actions"`
}

type bindingEntry struct {
	ID       string `yaml:"id"`
	Policy   string `yaml:"policy"`
	Group    string `yaml:"group,omitempty"`
	Key      string `yaml:"key,omitempty"`
	Interval string `yaml:"interval,omitempty"`
}

// LoadTable reads a bindings file and builds a table from it. The file
// replaces the default table wholesale so the action set stays
// versionable as one document.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file bindingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid bindings file %s: %w", path, err)
	}
	if len(file.Actions) == 0 {
		return nil, fmt.Errorf("bindings file %s defines no actions", path)
	}

	bindings := make([]Binding, 0, len(file.Actions))
	for _, e := range file.Actions {
		b, err := e.toBinding()
		if err != nil {
			return nil, fmt.Errorf("bindings file %s: %w", path, err)
		}
		bindings = append(bindings, b)
	}
	return NewTable(bindings)
}

func (e bindingEntry) toBinding() (Binding, error) {
	b := Binding{
		ID:     ID(e.ID),
		Policy: Policy(e.Policy),
		Group:  Group(e.Group),
	}

	// "screenshot" is the one instant action without a key behind it.
	if b.Policy == PolicyInstant && e.Key == "" && b.ID == Screenshot {
		b.Seq = []synth.Op{synth.Screenshot()}
		return b, nil
	}

	if e.Key != "" {
		key, err := synth.KeyFromName(e.Key)
		if err != nil {
			return Binding{}, fmt.Errorf("action %q: %w", e.ID, err)
		}
		if b.Policy == PolicyInstant {
			b.Seq = synth.Tap(key)
		} else {
			b.Key = key
		}
	}

	if e.Interval != "" {
		d, err := time.ParseDuration(e.Interval)
		if err != nil {
			return Binding{}, fmt.Errorf("action %q: invalid interval %q", e.ID, e.Interval)
		}
		b.Interval = d
	} else if b.Policy == PolicyRepeat {
		b.Interval = DefaultRepeatInterval
	}

	return b, nil
}
