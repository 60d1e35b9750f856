package state

import (
	"io"

	"gopkg.in/yaml.v3"
)

// Graph is a serializable snapshot of the router.
type Graph struct {
	States   []StateNode   `yaml:"states"`
	Bindings []BindingNode `yaml:"bindings,omitempty"`
}

type StateNode struct {
	ID          string   `yaml:"id"`
	Publisher   *Target  `yaml:"publisher,omitempty"`
	DepParam    string   `yaml:"dep_param,omitempty"`
	Subscribers []Target `yaml:"subscribers,omitempty"`
}

type BindingNode struct {
	Output   Target   `yaml:"output"`
	Block    string   `yaml:"block,omitempty"`
	States   []string `yaml:"states,omitempty"`
	Controls []string `yaml:"controls,omitempty"`
}

// Graph returns the current publishers, subscribers and bindings.
func (r *Router) Graph() Graph {
	r.mu.Lock()
	defer r.mu.Unlock()

	var g Graph
	for _, id := range r.order {
		n := StateNode{ID: id}
		if p, ok := r.publishers[id]; ok {
			t := p.target
			n.Publisher = &t
			n.DepParam = p.depParam
		}
		for _, s := range r.subscribers[id] {
			n.Subscribers = append(n.Subscribers, s.target)
		}
		g.States = append(g.States, n)
	}
	for _, b := range r.bindings {
		bn := BindingNode{Output: b.Output, States: b.States}
		if b.Block != nil {
			bn.Block = b.Block.BlockID()
		}
		for _, c := range b.Controls {
			bn.Controls = append(bn.Controls, c.ComponentID)
		}
		g.Bindings = append(g.Bindings, bn)
	}
	return g
}

// ExportYAML writes Graph to w.
func (r *Router) ExportYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.Graph()); err != nil {
		return err
	}
	return enc.Close()
}
