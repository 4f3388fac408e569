// Package models is the registry of models a conversation can be generated
// with, together with the request features each model accepts.
package models

import (
	_ "embed"
	"fmt"

	"github.com/go-go-golems/arbor/pkg/conversation"
	"github.com/go-go-golems/arbor/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

var ErrUnknownModel = errors.New("unknown model")

type AttachmentCapabilities struct {
	Image bool `yaml:"image" json:"image"`
	PDF   bool `yaml:"pdf" json:"pdf"`
}

// Capabilities lists which parts of a GenerationConfig and which attachment
// types a model honors.
type Capabilities struct {
	SystemPrompt bool                   `yaml:"system_prompt" json:"systemPrompt"`
	Temperature  bool                   `yaml:"temperature" json:"temperature"`
	ThinkingMode bool                   `yaml:"thinking_mode" json:"thinkingMode"`
	Attachments  AttachmentCapabilities `yaml:"attachments" json:"attachments"`
}

func (c Capabilities) AcceptsAttachments() bool {
	return c.Attachments.Image || c.Attachments.PDF
}

func (c Capabilities) Accepts(t conversation.AttachmentType) bool {
	switch t {
	case conversation.AttachmentImage:
		return c.Attachments.Image
	case conversation.AttachmentDocument:
		return c.Attachments.PDF
	default:
		return false
	}
}

type Model struct {
	ID           string        `yaml:"id" json:"id"`
	Label        string        `yaml:"label" json:"label"`
	Group        string        `yaml:"-" json:"group"`
	Provider     types.ApiType `yaml:"-" json:"provider"`
	Capabilities Capabilities  `yaml:"capabilities" json:"capabilities"`
}

// Group is a named list of models served by one provider.
type Group struct {
	Name     string        `yaml:"group"`
	Provider types.ApiType `yaml:"provider"`
	Models   []Model       `yaml:"models"`
}

// Registry is an immutable, validated set of models.
type Registry struct {
	groups []Group
	byID   map[string]Model
	order  []string
}

// ParseGroups decodes a YAML list of model groups.
func ParseGroups(b []byte) ([]Group, error) {
	var groups []Group
	if err := yaml.Unmarshal(b, &groups); err != nil {
		return nil, errors.Wrap(err, "could not parse model registry")
	}
	for gi := range groups {
		for mi := range groups[gi].Models {
			groups[gi].Models[mi].Group = groups[gi].Name
			groups[gi].Models[mi].Provider = groups[gi].Provider
		}
	}
	return groups, nil
}

// NewRegistry validates groups: ids must be unique and non-empty, labels
// non-empty and providers known.
func NewRegistry(groups ...Group) (*Registry, error) {
	ret := &Registry{byID: map[string]Model{}}
	for _, g := range groups {
		if g.Name == "" {
			return nil, errors.New("model group without name")
		}
		if !g.Provider.IsValid() {
			return nil, errors.Errorf("model group %s: unknown provider %q", g.Name, g.Provider)
		}
		out := Group{Name: g.Name, Provider: g.Provider}
		for _, m := range g.Models {
			m.Group = g.Name
			m.Provider = g.Provider
			if m.ID == "" {
				return nil, errors.Errorf("model group %s: model without id", g.Name)
			}
			if m.Label == "" {
				return nil, errors.Errorf("model %s: empty label", m.ID)
			}
			if _, ok := ret.byID[m.ID]; ok {
				return nil, errors.Errorf("model %s registered twice", m.ID)
			}
			ret.byID[m.ID] = m
			ret.order = append(ret.order, m.ID)
			out.Models = append(out.Models, m)
		}
		ret.groups = append(ret.groups, out)
	}
	if len(ret.order) == 0 {
		return nil, errors.New("model registry is empty")
	}
	return ret, nil
}

// With returns a new registry holding r's groups followed by extra.
func (r *Registry) With(extra ...Group) (*Registry, error) {
	groups := append(append([]Group{}, r.groups...), extra...)
	return NewRegistry(groups...)
}

func (r *Registry) Lookup(id string) (Model, bool) {
	m, ok := r.byID[id]
	return m, ok
}

// Resolve is Lookup returning ErrUnknownModel for unregistered ids.
func (r *Registry) Resolve(id string) (Model, error) {
	m, ok := r.byID[id]
	if !ok {
		return Model{}, errors.Wrapf(ErrUnknownModel, "%q", id)
	}
	return m, nil
}

// Default is the first registered model.
func (r *Registry) Default() Model {
	return r.byID[r.order[0]]
}

func (r *Registry) Groups() []Group {
	ret := make([]Group, len(r.groups))
	for i, g := range r.groups {
		ret[i] = Group{Name: g.Name, Provider: g.Provider, Models: append([]Model{}, g.Models...)}
	}
	return ret
}

func (r *Registry) All() []Model {
	ret := make([]Model, 0, len(r.order))
	for _, id := range r.order {
		ret = append(ret, r.byID[id])
	}
	return ret
}

// DefaultGenerationConfig is the config of new roots when this registry is
// in use.
func (r *Registry) DefaultGenerationConfig() conversation.GenerationConfig {
	ret := conversation.DefaultGenerationConfig()
	ret.Model = r.Default().ID
	return ret
}

var builtin *Registry

func init() {
	groups, err := ParseGroups(modelsYAML)
	if err != nil {
		panic(err)
	}
	builtin, err = NewRegistry(groups...)
	if err != nil {
		panic(fmt.Sprintf("invalid builtin model registry: %v", err))
	}
}

// Builtin returns the registry compiled into the binary.
func Builtin() *Registry {
	return builtin
}

func Lookup(id string) (Model, bool) {
	return builtin.Lookup(id)
}

func Default() Model {
	return builtin.Default()
}

func Groups() []Group {
	return builtin.Groups()
}
