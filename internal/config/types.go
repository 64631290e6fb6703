package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Play represents one play entry of a playbook YAML document: a host pattern
// bound to an ordered task and handler list, plus connection settings that
// tasks inherit at dispatch time.
type Play struct {
	Name        string     `yaml:"name,omitempty"`
	Hosts       string     `yaml:"hosts"`
	Vars        VarsMap    `yaml:"vars,omitempty"`
	VarsFiles   []string   `yaml:"vars_files,omitempty"`
	Tasks       []Task     `yaml:"tasks,omitempty"`
	Handlers    []Handler  `yaml:"handlers,omitempty"`
	Serial      int        `yaml:"serial,omitempty"`
	GatherFacts *bool      `yaml:"gather_facts,omitempty"`
	Tags        StringList `yaml:"tags,omitempty"`
	RemoteUser  string     `yaml:"remote_user,omitempty"`
	RemotePort  int        `yaml:"port,omitempty"`
	Transport   string     `yaml:"connection,omitempty"`
	Sudo        bool       `yaml:"sudo,omitempty"`
	SudoUser    string     `yaml:"sudo_user,omitempty"`
}

// DisplayName returns the play's name, falling back to its host pattern.
func (p *Play) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Hosts
}

// Task is a single module invocation within a play.
type Task struct {
	Name         string                 `yaml:"name,omitempty"`
	Module       string                 `yaml:"module"`
	Args         map[string]interface{} `yaml:"args,omitempty"`
	Tags         StringList             `yaml:"tags,omitempty"`
	Register     string                 `yaml:"register,omitempty"`
	Notify       StringList             `yaml:"notify,omitempty"`
	When         string                 `yaml:"when,omitempty"`
	IgnoreErrors bool                   `yaml:"ignore_errors,omitempty"`
	AsyncSeconds int                    `yaml:"async,omitempty"`
	PollInterval int                    `yaml:"poll,omitempty"`
}

// DisplayName returns the task's name, falling back to its module.
func (t *Task) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Module
}

// IsAsync reports whether the task launches as a background job.
func (t *Task) IsAsync() bool {
	return t.AsyncSeconds > 0
}

// Handler is a task that runs only when notified by a change during the same
// play. NotifiedBy accumulates host identities between tasks and a batch's
// handler pass, and is cleared once the handler fires.
type Handler struct {
	Task       `yaml:",inline"`
	NotifiedBy []string `yaml:"-"`
}

// PlayDoc pairs a loaded play with the directory of the file it came from,
// which anchors relative paths during templating and vars_files resolution.
type PlayDoc struct {
	Play    *Play
	BaseDir string
}

// StringList accepts either a scalar string or a sequence of strings, so
// `tags: deploy` and `tags: [deploy, web]` both parse.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := value.Decode(&many); err != nil {
			return err
		}
		*s = StringList(many)
		return nil
	default:
		return fmt.Errorf("expected string or list of strings at line %d", value.Line)
	}
}

// VarsMap accepts either a mapping or a sequence of single-entry mappings,
// normalizing both to a flat map. Later entries win on key conflict.
type VarsMap map[string]interface{}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *VarsMap) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var m map[string]interface{}
		if err := value.Decode(&m); err != nil {
			return err
		}
		*v = VarsMap(m)
		return nil
	case yaml.SequenceNode:
		var entries []map[string]interface{}
		if err := value.Decode(&entries); err != nil {
			return err
		}
		merged := make(map[string]interface{})
		for _, entry := range entries {
			for key, val := range entry {
				merged[key] = val
			}
		}
		*v = VarsMap(merged)
		return nil
	default:
		return fmt.Errorf("expected mapping or list of mappings at line %d", value.Line)
	}
}
