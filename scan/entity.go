// Package scan walks a configuration-management repository and
// collects the entities that naming rules apply to: role directories,
// group and host variable scopes, playbook files, and the variables
// declared inside them. The scanner records structural shape only;
// assigning rule kinds is the classifier's job.
package scan

import "fmt"

// Shape describes what the scanner structurally found at a path.
type Shape string

const (
	// ShapeRoleDir is a directory directly under roles/.
	ShapeRoleDir Shape = "role-dir"
	// ShapeGroupEntry is a directory or YAML file directly under a
	// group_vars directory.
	ShapeGroupEntry Shape = "group-entry"
	// ShapeHostEntry is a directory or YAML file directly under a
	// host_vars directory.
	ShapeHostEntry Shape = "host-entry"
	// ShapePlaybookFile is a YAML file in a playbook location whose
	// document root is a list of plays.
	ShapePlaybookFile Shape = "playbook-file"
	// ShapeYAMLFile is a YAML file in a playbook location that is not
	// shaped like a playbook.
	ShapeYAMLFile Shape = "yaml-file"

	// ShapeRoleDefault is a variable declared in a role defaults file.
	ShapeRoleDefault Shape = "role-default"
	// ShapeRoleVar is a variable declared in a role vars file.
	ShapeRoleVar Shape = "role-var"
	// ShapeGroupVar is a variable declared in a group_vars carrier.
	ShapeGroupVar Shape = "group-var"
	// ShapeHostVar is a variable declared in a host_vars carrier.
	ShapeHostVar Shape = "host-var"
	// ShapePlayVar is a variable declared in a play's vars block.
	ShapePlayVar Shape = "play-var"
	// ShapePlayFact is a fact registered via set_fact inside a play.
	ShapePlayFact Shape = "play-fact"
	// ShapeTaskFact is a fact registered via set_fact inside role
	// tasks or handlers.
	ShapeTaskFact Shape = "task-fact"
)

// String returns the string representation of the shape.
func (s Shape) String() string {
	return string(s)
}

// IsVariable reports whether the shape is a variable declaration
// rather than a scope or file.
func (s Shape) IsVariable() bool {
	switch s {
	case ShapeRoleDefault, ShapeRoleVar, ShapeGroupVar, ShapeHostVar,
		ShapePlayVar, ShapePlayFact, ShapeTaskFact:
		return true
	}
	return false
}

// Entity is a single discovered item a naming rule can apply to.
type Entity struct {
	// Name is the raw name as found: a directory name, a file stem,
	// or a variable name.
	Name string `json:"name"`
	// Path is the slash-separated location relative to the scan root.
	// For variables this is the carrier file.
	Path string `json:"path"`
	// Line is the 1-based line of a variable declaration. Zero for
	// directories and files.
	Line int `json:"line,omitempty"`
	// Shape records what the scanner structurally found.
	Shape Shape `json:"shape"`
	// Scope names the enclosing scope for variables: the role, group,
	// host, or playbook the declaration belongs to.
	Scope string `json:"scope,omitempty"`
}

// Ref returns the entity's location in path:line form, suitable for
// report output.
func (e Entity) Ref() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	return e.Path
}

// Warning records a non-fatal problem encountered during scanning,
// such as an unreadable directory or malformed YAML.
type Warning struct {
	// Path is the location the problem was observed at, relative to
	// the scan root.
	Path string `json:"path"`
	// Message describes the problem.
	Message string `json:"message"`
}

// RoleDoc is the documentation sidecar collected for a role.
type RoleDoc struct {
	// Path is the README location relative to the scan root.
	Path string `json:"path"`
	// Content is the raw README text.
	Content string `json:"-"`
}

// Result is everything a single scan discovered.
type Result struct {
	// Root is the absolute path that was scanned.
	Root string `json:"root"`
	// Entities lists discovered entities in walk order, which is
	// deterministic for a given tree.
	Entities []Entity `json:"entities"`
	// Warnings lists non-fatal scan problems in walk order.
	Warnings []Warning `json:"warnings,omitempty"`
	// RoleDocs maps role names to their README files for roles that
	// have one.
	RoleDocs map[string]RoleDoc `json:"-"`
}
