package artifact

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is the serialized form of a graph.
type Document struct {
	Artifacts []Spec   `json:"artifacts" yaml:"artifacts"`
	Roots     []string `json:"roots,omitempty" yaml:"roots,omitempty"`
}

func (g *Graph) Document() Document {
	return Document{Artifacts: g.Specs(), Roots: g.DeclaredRoots()}
}

// FromDocument validates a document into a graph.
func FromDocument(ctx context.Context, doc Document) (*Graph, error) {
	return NewGraph(ctx, doc.Artifacts, WithRoots(doc.Roots...))
}

// LoadSpecs decodes a YAML or JSON spec file. The top level is either a list
// of specs or a document with artifacts and roots.
func LoadSpecs(r io.Reader) (Document, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		if err == io.EOF {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("decode spec file: %w", err)
	}

	root := &node
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	var doc Document
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&doc.Artifacts); err != nil {
			return Document{}, fmt.Errorf("decode artifact list: %w", err)
		}
	case yaml.MappingNode:
		if err := root.Decode(&doc); err != nil {
			return Document{}, fmt.Errorf("decode artifact document: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("spec file must be a list or a mapping, line %d", root.Line)
	}
	return doc, nil
}

var mermaidUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Mermaid renders the graph as a flowchart with edges pointing from a
// dependency to its dependent.
func (g *Graph) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for _, wave := range g.res.Waves {
		for _, id := range wave {
			fmt.Fprintf(&b, "    %s[\"%s\"]\n", mermaidNode(id), strings.ReplaceAll(id, `"`, `'`))
		}
	}
	for _, wave := range g.res.Waves {
		for _, id := range wave {
			for _, req := range g.idx.specs[id].Requires {
				fmt.Fprintf(&b, "    %s --> %s\n", mermaidNode(req), mermaidNode(id))
			}
		}
	}
	return b.String()
}

func mermaidNode(id string) string {
	return "n_" + mermaidUnsafe.ReplaceAllString(id, "_")
}
