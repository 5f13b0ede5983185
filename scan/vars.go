package scan

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// varDecl is a single variable declaration found in a YAML document.
type varDecl struct {
	name string
	line int
}

// parseVars extracts the top-level mapping keys of a vars file along
// with their line numbers. A non-mapping document yields no
// declarations.
func parseVars(data []byte) ([]varDecl, error) {
	root, err := documentRoot(data)
	if err != nil {
		return nil, err
	}
	if root == nil || root.Kind != yaml.MappingNode {
		return nil, nil
	}
	return mappingKeys(root), nil
}

// playbookDoc is the var-bearing content of a playbook file.
type playbookDoc struct {
	plays int
	vars  []varDecl
	facts []varDecl
}

// playSections are the task list keys inspected for set_fact entries.
var playSections = []string{"pre_tasks", "tasks", "post_tasks", "handlers"}

// setFactKeys are the module names that register facts, in both the
// short and the fully qualified collection form.
var setFactKeys = []string{"set_fact", "ansible.builtin.set_fact"}

// parsePlaybook inspects a YAML document for playbook shape: a
// sequence of mappings where at least one carries a hosts key. When
// the document is a playbook it returns the play-level vars and the
// facts registered via set_fact.
func parsePlaybook(data []byte) (*playbookDoc, bool, error) {
	root, err := documentRoot(data)
	if err != nil {
		return nil, false, err
	}
	if root == nil || root.Kind != yaml.SequenceNode {
		return nil, false, nil
	}

	doc := &playbookDoc{}
	for _, play := range root.Content {
		if play.Kind != yaml.MappingNode {
			continue
		}
		if mappingValue(play, "hosts") == nil {
			continue
		}
		doc.plays++
		if vars := mappingValue(play, "vars"); vars != nil && vars.Kind == yaml.MappingNode {
			doc.vars = append(doc.vars, mappingKeys(vars)...)
		}
		for _, section := range playSections {
			if tasks := mappingValue(play, section); tasks != nil {
				doc.facts = append(doc.facts, taskFacts(tasks)...)
			}
		}
	}
	if doc.plays == 0 {
		return nil, false, nil
	}
	return doc, true, nil
}

// parseTaskFacts extracts set_fact keys from a standalone tasks file,
// such as a role's tasks/main.yml.
func parseTaskFacts(data []byte) ([]varDecl, error) {
	root, err := documentRoot(data)
	if err != nil {
		return nil, err
	}
	if root == nil || root.Kind != yaml.SequenceNode {
		return nil, nil
	}
	return taskFacts(root), nil
}

// taskFacts walks a task sequence, descending into block structures,
// and collects the keys assigned via set_fact. The cacheable modifier
// is part of the module call, not a fact.
func taskFacts(tasks *yaml.Node) []varDecl {
	if tasks.Kind != yaml.SequenceNode {
		return nil
	}
	var out []varDecl
	for _, task := range tasks.Content {
		if task.Kind != yaml.MappingNode {
			continue
		}
		for _, key := range setFactKeys {
			sf := mappingValue(task, key)
			if sf == nil || sf.Kind != yaml.MappingNode {
				continue
			}
			for _, decl := range mappingKeys(sf) {
				if decl.name == "cacheable" {
					continue
				}
				out = append(out, decl)
			}
		}
		for _, nested := range []string{"block", "rescue", "always"} {
			if inner := mappingValue(task, nested); inner != nil {
				out = append(out, taskFacts(inner)...)
			}
		}
	}
	return out
}

// documentRoot unmarshals YAML and returns the root node of the first
// document, or nil for an empty document.
func documentRoot(data []byte) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil
	}
	return doc.Content[0], nil
}

// mappingKeys returns the scalar keys of a mapping node in document
// order.
func mappingKeys(node *yaml.Node) []varDecl {
	out := make([]varDecl, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if key.Kind != yaml.ScalarNode {
			continue
		}
		out = append(out, varDecl{name: key.Value, line: key.Line})
	}
	return out
}

// mappingValue returns the value node for a scalar key, or nil when
// the key is absent.
func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		k := node.Content[i]
		if k.Kind == yaml.ScalarNode && k.Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}
