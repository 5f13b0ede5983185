// Package classify assigns rule kinds to scanned entities. The
// classifier is a pure function of its inputs: it maps each entity's
// declared location onto the rule table, resolves cluster-specific
// groups, and reports entities whose location is claimed by more than
// one rule with equal specificity instead of guessing.
package classify

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/c360studio/conformity/ruleset"
	"github.com/c360studio/conformity/scan"
)

// Classification binds one entity to the rule that governs it.
type Classification struct {
	// Entity is the scanned entity.
	Entity scan.Entity `json:"entity"`
	// Kind is the assigned rule kind.
	Kind ruleset.Kind `json:"kind"`
	// Rule is the governing rule, resolved once at classification.
	Rule ruleset.Rule `json:"-"`
	// Scope is the name the variable prefix derives from: the role,
	// group, host, or playbook name.
	Scope string `json:"scope,omitempty"`
}

// Ambiguity records an entity whose location is claimed by multiple
// rules with equal specificity. Ambiguous entities are excluded from
// validation and listed separately in the report.
type Ambiguity struct {
	Entity scan.Entity    `json:"entity"`
	Kinds  []ruleset.Kind `json:"kinds"`
}

// Unclassified records an entity that no rule claims.
type Unclassified struct {
	Entity scan.Entity `json:"entity"`
	Reason string      `json:"reason"`
}

// Result partitions the scanned entities.
type Result struct {
	Classified   []Classification `json:"classified"`
	Ambiguous    []Ambiguity      `json:"ambiguous,omitempty"`
	Unclassified []Unclassified   `json:"unclassified,omitempty"`
}

// Classifier maps scanned entities onto the rule table.
type Classifier struct {
	table *ruleset.Table
	// claims holds every claim glob of the table, grouped by kind in
	// the table's canonical kind order.
	claims []claimSurface
}

// claimSurface is one claim glob of a rule, with its anchoring
// precomputed.
type claimSurface struct {
	kind        ruleset.Kind
	glob        string
	specificity int
}

// New creates a Classifier backed by the given rule table.
func New(table *ruleset.Table) *Classifier {
	var claims []claimSurface
	for _, kind := range table.Kinds() {
		rule, err := table.RulesFor(kind)
		if err != nil {
			continue
		}
		for _, glob := range rule.Claims {
			claims = append(claims, claimSurface{
				kind:        kind,
				glob:        glob,
				specificity: globSpecificity(glob),
			})
		}
	}
	return &Classifier{table: table, claims: claims}
}

// Classify assigns a kind to every entity. Input order is preserved
// within each partition, so identical scans classify identically.
func (c *Classifier) Classify(entities []scan.Entity) Result {
	res := Result{Classified: []Classification{}}
	for _, e := range entities {
		c.classifyOne(&res, e)
	}
	return res
}

func (c *Classifier) classifyOne(res *Result, e scan.Entity) {
	matches := c.surfaces(e.Path)

	if len(matches) > 1 {
		top := matches[0].specificity
		var tied []ruleset.Kind
		for _, m := range matches {
			if m.specificity == top {
				tied = append(tied, m.kind)
			}
		}
		if len(tied) > 1 {
			res.Ambiguous = append(res.Ambiguous, Ambiguity{Entity: e, Kinds: tied})
			return
		}
		if family := shapeFamily(e.Shape); family != "" && tied[0] != family {
			res.Unclassified = append(res.Unclassified, Unclassified{
				Entity: e,
				Reason: fmt.Sprintf("location is claimed by the %s rule but the entity is a %s", tied[0], e.Shape),
			})
			return
		}
	}

	kind, scope, ok := c.kindOf(e)
	if !ok {
		res.Unclassified = append(res.Unclassified, Unclassified{
			Entity: e,
			Reason: unclassifiedReason(e),
		})
		return
	}

	rule, err := c.table.RulesFor(kind)
	if err != nil {
		res.Unclassified = append(res.Unclassified, Unclassified{
			Entity: e,
			Reason: err.Error(),
		})
		return
	}
	res.Classified = append(res.Classified, Classification{
		Entity: e,
		Kind:   kind,
		Rule:   rule,
		Scope:  scope,
	})
}

// kindOf maps a shape to its rule kind and prefix scope.
func (c *Classifier) kindOf(e scan.Entity) (ruleset.Kind, string, bool) {
	switch e.Shape {
	case scan.ShapeRoleDir:
		return ruleset.KindRole, e.Name, true
	case scan.ShapeRoleDefault, scan.ShapeRoleVar:
		return ruleset.KindRole, e.Scope, true
	case scan.ShapeTaskFact:
		return ruleset.KindRoleFact, e.Scope, true
	case scan.ShapeGroupEntry:
		return c.groupKind(e.Name), e.Name, true
	case scan.ShapeGroupVar:
		return c.groupKind(e.Scope), e.Scope, true
	case scan.ShapeHostEntry:
		return ruleset.KindHost, e.Name, true
	case scan.ShapeHostVar:
		return ruleset.KindHost, e.Scope, true
	case scan.ShapePlaybookFile:
		return ruleset.KindPlaybook, e.Name, true
	case scan.ShapePlayVar:
		return ruleset.KindPlaybook, e.Scope, true
	case scan.ShapePlayFact:
		return ruleset.KindPlaybookFact, e.Scope, true
	}
	return "", "", false
}

// groupKind resolves a group name to the plain or cluster-specific
// group rule.
func (c *Classifier) groupKind(name string) ruleset.Kind {
	if _, _, ok := c.table.SpecificGroup(name); ok {
		return ruleset.KindSpecificGroup
	}
	return ruleset.KindGroup
}

// shapeFamily maps a structural shape to the surface kind it belongs
// to, for cross-checking location claims against what was found.
func shapeFamily(s scan.Shape) ruleset.Kind {
	switch s {
	case scan.ShapeRoleDir, scan.ShapeRoleDefault, scan.ShapeRoleVar, scan.ShapeTaskFact:
		return ruleset.KindRole
	case scan.ShapeGroupEntry, scan.ShapeGroupVar:
		return ruleset.KindGroup
	case scan.ShapeHostEntry, scan.ShapeHostVar:
		return ruleset.KindHost
	case scan.ShapePlaybookFile, scan.ShapePlayVar, scan.ShapePlayFact:
		return ruleset.KindPlaybook
	}
	return ""
}

func unclassifiedReason(e scan.Entity) string {
	if e.Shape == scan.ShapeYAMLFile {
		return "YAML file in a playbook location is not shaped like a playbook"
	}
	return fmt.Sprintf("no rule claims a %s at this location", e.Shape)
}

// surfaceMatch is one rule kind claiming a path. Specificity counts
// the literal path segments of the claiming glob, so more anchored
// claims win.
type surfaceMatch struct {
	kind        ruleset.Kind
	specificity int
}

// surfaces returns every rule kind claiming the path, ordered by
// descending specificity. Claim globs come from the table, so the
// classifier reads the same declarations the validator does.
func (c *Classifier) surfaces(path string) []surfaceMatch {
	var out []surfaceMatch
	for _, cs := range c.claims {
		if ok, err := doublestar.Match(cs.glob, path); err != nil || !ok {
			continue
		}
		// Claims are grouped by kind, so a kind matching through
		// several globs collapses to its strongest claim.
		if n := len(out); n > 0 && out[n-1].kind == cs.kind {
			if cs.specificity > out[n-1].specificity {
				out[n-1].specificity = cs.specificity
			}
			continue
		}
		out = append(out, surfaceMatch{kind: cs.kind, specificity: cs.specificity})
	}

	// Kind order is fixed, so an equal-specificity sort stays stable
	// across runs.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].specificity > out[j-1].specificity; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// globSpecificity counts the literal segments of a claim glob.
func globSpecificity(glob string) int {
	n := 0
	for _, seg := range strings.Split(glob, "/") {
		if !strings.ContainsAny(seg, "*?[{") {
			n++
		}
	}
	return n
}
