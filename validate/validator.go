package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/conformity/classify"
	"github.com/c360studio/conformity/ruleset"
	"github.com/c360studio/conformity/scan"
)

// Validator checks classifications against the rule table.
type Validator struct {
	// Table is the rule table, shared with the classifier.
	Table *ruleset.Table
	// Docs maps role names to their README files, as collected by the
	// scanner. Roles absent from the map have no README.
	Docs map[string]scan.RoleDoc
	// Workers caps concurrent validation goroutines. Values below two
	// select the sequential path.
	Workers int
}

// New creates a sequential Validator for the given table.
func New(table *ruleset.Table) *Validator {
	return &Validator{Table: table, Workers: 1}
}

// Validate checks every classification and returns violations in
// input order. The result is identical whether validation runs
// sequentially or across workers, so reports never depend on
// scheduling.
func (v *Validator) Validate(ctx context.Context, items []classify.Classification) ([]Violation, error) {
	defaults := rolesWithPublicDefaults(items)

	if v.Workers < 2 {
		var out []Violation
		for _, cl := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out = append(out, v.checkOne(cl, defaults)...)
		}
		return out, nil
	}

	results := make([][]Violation, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.Workers)
	for i, cl := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = v.checkOne(cl, defaults)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Violation
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (v *Validator) checkOne(cl classify.Classification, defaults map[string][]string) []Violation {
	if cl.Entity.Shape.IsVariable() {
		return v.checkVariable(cl)
	}
	return v.checkScope(cl, defaults)
}

// checkScope validates a role, group, host, or playbook entity: name
// casing, plurality, location, and the role documentation requirement.
func (v *Validator) checkScope(cl classify.Classification, defaults map[string][]string) []Violation {
	var out []Violation
	name := cl.Entity.Name
	noun := kindNoun(cl.Kind)

	if !ruleset.IsKebab(name) {
		out = append(out, violation(cl, ReasonBadCasing,
			fmt.Sprintf("%s name %q is not kebab-case", noun, name)))
	}
	out = append(out, v.checkPlurality(cl, noun)...)

	if globs := cl.Rule.LocationGlobs(name); len(globs) > 0 && !matchesAny(globs, cl.Entity.Path) {
		out = append(out, violation(cl, ReasonWrongLocation,
			fmt.Sprintf("%s %q found at %q, expected %s", noun, name, cl.Entity.Path, orList(globs))))
	}

	if cl.Rule.RequiresVarsDoc && len(defaults[cl.Scope]) > 0 {
		if _, ok := v.Docs[cl.Scope]; !ok {
			out = append(out, violation(cl, ReasonMissingVarsDoc,
				fmt.Sprintf("role %q declares default variables but has no README.md", name)))
		}
	}
	return out
}

func (v *Validator) checkPlurality(cl classify.Classification, noun string) []Violation {
	if cl.Rule.NamePlurality == ruleset.PluralityAny {
		return nil
	}
	if isGroupKind(cl.Kind) && v.Table.ExemptGroup(cl.Entity.Name) {
		return nil
	}
	word := strings.ToLower(lastWord(cl.Entity.Name))
	if v.Table.PluralException(word) {
		return nil
	}

	plural := wordIsPlural(word)
	switch cl.Rule.NamePlurality {
	case ruleset.PluralityPlural:
		if !plural {
			return []Violation{violation(cl, ReasonBadPlurality,
				fmt.Sprintf("%s name %q should be plural", noun, cl.Entity.Name))}
		}
	case ruleset.PluralitySingular:
		if plural {
			return []Violation{violation(cl, ReasonBadPlurality,
				fmt.Sprintf("%s name %q should be singular", noun, cl.Entity.Name))}
		}
	}
	return nil
}

// checkVariable validates a variable entity: casing, namespace prefix,
// canonical carrier location, and the documentation requirement for
// public role defaults.
func (v *Validator) checkVariable(cl classify.Classification) []Violation {
	var out []Violation
	name := cl.Entity.Name
	rule := cl.Rule

	casingOK := ruleset.VarCasingOK(name, rule.Marker)
	if !casingOK {
		out = append(out, violation(cl, ReasonBadCasing,
			fmt.Sprintf("variable %q is not snake_case", name)))
	}

	// The prefix check runs on the snake-normalized form so a casing
	// violation does not also surface as a missing prefix.
	if !(isGroupKind(cl.Kind) && v.Table.ExemptGroup(cl.Scope)) {
		prefix := rule.Prefix(cl.Scope)
		if !strings.HasPrefix(ruleset.NormalizeVar(name, rule.Marker), prefix) {
			out = append(out, violation(cl, ReasonMissingPrefix,
				fmt.Sprintf("variable %q does not carry required prefix %q", name, prefix)))
		}
	}

	if globs := rule.VarLocationGlobs(cl.Scope); len(globs) > 0 && !matchesAny(globs, cl.Entity.Path) {
		out = append(out, violation(cl, ReasonWrongLocation,
			fmt.Sprintf("variable %q declared in %q, expected %s", name, cl.Entity.Path, orList(globs))))
	}

	if casingOK && cl.Entity.Shape == scan.ShapeRoleDefault && !ruleset.IsPrivate(name) {
		if doc, ok := v.Docs[cl.Scope]; ok && !strings.Contains(doc.Content, name) {
			out = append(out, violation(cl, ReasonMissingVarsDoc,
				fmt.Sprintf("default variable %q is not documented in %s", name, doc.Path)))
		}
	}
	return out
}

func violation(cl classify.Classification, reason Reason, msg string) Violation {
	return Violation{Entity: cl.Entity, Kind: cl.Kind, Reason: reason, Message: msg}
}

func matchesAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, path); err == nil && ok {
			return true
		}
	}
	return false
}

func orList(globs []string) string {
	quoted := make([]string, len(globs))
	for i, g := range globs {
		quoted[i] = fmt.Sprintf("%q", g)
	}
	return strings.Join(quoted, " or ")
}

func isGroupKind(k ruleset.Kind) bool {
	return k == ruleset.KindGroup || k == ruleset.KindSpecificGroup
}

func kindNoun(k ruleset.Kind) string {
	switch k {
	case ruleset.KindRole:
		return "role"
	case ruleset.KindGroup:
		return "group"
	case ruleset.KindSpecificGroup:
		return "cluster group"
	case ruleset.KindPlaybook:
		return "playbook"
	case ruleset.KindHost:
		return "host"
	case ruleset.KindPlaybookFact, ruleset.KindRoleFact:
		return "fact"
	}
	return k.String()
}

// rolesWithPublicDefaults collects, per role, the public default
// variable names. Roles in this map owe their users a README.
func rolesWithPublicDefaults(items []classify.Classification) map[string][]string {
	out := make(map[string][]string)
	for _, cl := range items {
		if cl.Entity.Shape == scan.ShapeRoleDefault && !ruleset.IsPrivate(cl.Entity.Name) {
			out[cl.Scope] = append(out[cl.Scope], cl.Entity.Name)
		}
	}
	return out
}
