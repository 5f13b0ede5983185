// Package ruleset defines the naming and layout rule table for
// configuration-management repositories. The table maps each entity
// kind to its naming contract: casing, plurality, variable prefix,
// claimed path surface, and expected location. Classification and
// validation both consult the same table so the two stages cannot
// drift apart.
package ruleset

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ErrUnknownKind is returned when a rule lookup names a kind the table
// does not carry. This is a programming or configuration error, not a
// property of the scanned repository.
var ErrUnknownKind = errors.New("unknown entity kind")

// Kind identifies which naming rule governs an entity.
type Kind string

const (
	// KindRole covers role directories and their default variables.
	KindRole Kind = "role"
	// KindGroup covers group variable scopes shared across clusters.
	KindGroup Kind = "group"
	// KindSpecificGroup covers cluster-specific group variable scopes.
	KindSpecificGroup Kind = "specific-group"
	// KindPlaybook covers playbook files and their play-level variables.
	KindPlaybook Kind = "playbook"
	// KindHost covers host variable scopes.
	KindHost Kind = "host"
	// KindPlaybookFact covers facts registered from plays.
	KindPlaybookFact Kind = "playbook-fact"
	// KindRoleFact covers facts registered from role tasks.
	KindRoleFact Kind = "role-fact"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is one of the known entity kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindRole, KindGroup, KindSpecificGroup, KindPlaybook,
		KindHost, KindPlaybookFact, KindRoleFact:
		return true
	}
	return false
}

// Plurality is the number policy applied to a scope name.
type Plurality string

const (
	// PluralitySingular requires the name's final word to read singular.
	PluralitySingular Plurality = "singular"
	// PluralityPlural requires the name's final word to read plural.
	PluralityPlural Plurality = "plural"
	// PluralityAny disables the plurality check for the kind.
	PluralityAny Plurality = "any"
)

// String returns the string representation of the plurality policy.
func (p Plurality) String() string {
	return string(p)
}

// Rule describes the naming contract for one entity kind. Scope names
// are checked against NameCasing and NamePlurality, variables against
// the prefix derived from Marker plus snake_case for the remainder.
type Rule struct {
	// Kind is the entity kind the rule governs.
	Kind Kind `json:"kind" yaml:"kind"`
	// NamePlurality is the number policy for the scope name.
	NamePlurality Plurality `json:"name_plurality" yaml:"name_plurality"`
	// Marker is the literal uppercase token required between the scope
	// prefix and the variable suffix, e.g. "GROUP". Empty means the
	// prefix joins the suffix directly.
	Marker string `json:"marker,omitempty" yaml:"marker,omitempty"`
	// Locations are doublestar globs an entity path must satisfy, with
	// "<name>" substituted by the scope name. Empty disables the check.
	Locations []string `json:"locations,omitempty" yaml:"locations,omitempty"`
	// VarLocations are the canonical carrier files for the kind's
	// variables, with "<name>" substituted. Empty disables the check.
	VarLocations []string `json:"var_locations,omitempty" yaml:"var_locations,omitempty"`
	// Claims are doublestar globs for the path surface the kind asserts
	// during classification. Claims are deliberately broader than
	// Locations: any path under a claimed surface belongs to the kind
	// unless another kind claims it with equal or higher anchoring.
	Claims []string `json:"claims,omitempty" yaml:"claims,omitempty"`
	// RequiresVarsDoc marks kinds whose scopes must document public
	// variables in a README.
	RequiresVarsDoc bool `json:"requires_vars_doc,omitempty" yaml:"requires_vars_doc,omitempty"`
	// Description is a one-line summary shown by the rules listing.
	Description string `json:"description" yaml:"description"`
}

// Prefix returns the variable prefix required for a scope name under
// this rule. The scope name is normalized to snake_case first, so
// "c1-hailers" yields "c1_hailers_GROUP_" for the specific-group rule.
func (r Rule) Prefix(scope string) string {
	base := SnakeName(scope)
	if r.Marker == "" {
		return base + "_"
	}
	return base + "_" + r.Marker + "_"
}

// LocationGlobs returns the concrete location globs for a scope name.
func (r Rule) LocationGlobs(name string) []string {
	return substituteAll(r.Locations, name)
}

// VarLocationGlobs returns the concrete canonical carrier globs for a
// scope name.
func (r Rule) VarLocationGlobs(name string) []string {
	return substituteAll(r.VarLocations, name)
}

func substituteAll(patterns []string, name string) []string {
	if len(patterns) == 0 {
		return nil
	}
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = strings.ReplaceAll(p, "<name>", name)
	}
	return out
}

// Options customizes table construction. The zero value produces the
// default table.
type Options struct {
	// Clusters lists cluster names recognized as specific-group
	// prefixes in addition to the pattern match.
	Clusters []string
	// ClusterPattern is a regular expression matched against the first
	// dash-separated segment of a group name to detect cluster
	// prefixes. Empty selects the default pattern.
	ClusterPattern string
	// PluralExceptions lists words excluded from plurality checking.
	PluralExceptions []string
	// ExemptGroups lists group names excluded from plurality and
	// prefix checks, such as the builtin "all" group.
	ExemptGroups []string
	// PlaybookDirs lists directories searched for playbooks, relative
	// to the repository root. "." means the root itself. Empty selects
	// the defaults.
	PlaybookDirs []string
}

// defaultClusterPattern matches short cluster codes such as "c1" or
// "c42" used as group name prefixes.
const defaultClusterPattern = `^c[0-9]+$`

var (
	defaultPluralExceptions = []string{"data", "media", "dns", "tls", "redis", "kubernetes"}
	defaultExemptGroups     = []string{"all", "ungrouped"}
	defaultPlaybookDirs     = []string{".", "playbooks"}
)

// Table is the immutable rule table consulted during classification
// and validation.
type Table struct {
	rules            map[Kind]Rule
	clusters         map[string]bool
	clusterRe        *regexp.Regexp
	pluralExceptions map[string]bool
	exemptGroups     map[string]bool
	playbookDirs     []string
}

// New builds a rule table from the given options, falling back to
// defaults for any option left empty.
func New(opts Options) (*Table, error) {
	pattern := opts.ClusterPattern
	if pattern == "" {
		pattern = defaultClusterPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile cluster pattern %q: %w", pattern, err)
	}

	plurals := opts.PluralExceptions
	if plurals == nil {
		plurals = defaultPluralExceptions
	}
	exempt := opts.ExemptGroups
	if exempt == nil {
		exempt = defaultExemptGroups
	}
	dirs := opts.PlaybookDirs
	if len(dirs) == 0 {
		dirs = defaultPlaybookDirs
	}

	t := &Table{
		rules:            defaultRules(dirs),
		clusters:         toSet(opts.Clusters),
		clusterRe:        re,
		pluralExceptions: toSet(plurals),
		exemptGroups:     toSet(exempt),
		playbookDirs:     append([]string(nil), dirs...),
	}
	return t, nil
}

// Default returns a table built entirely from defaults.
func Default() *Table {
	t, err := New(Options{})
	if err != nil {
		// The default cluster pattern is a constant; compilation
		// cannot fail.
		panic(err)
	}
	return t
}

func toSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return set
}

func defaultRules(playbookDirs []string) map[Kind]Rule {
	playbookLocations := make([]string, 0, len(playbookDirs))
	playbookClaims := make([]string, 0, len(playbookDirs))
	for _, dir := range playbookDirs {
		if dir == "." {
			playbookLocations = append(playbookLocations, "<name>.{yml,yaml}")
			playbookClaims = append(playbookClaims, "*.{yml,yaml}")
			continue
		}
		playbookLocations = append(playbookLocations, dir+"/<name>.{yml,yaml}")
		playbookClaims = append(playbookClaims, dir+"/**")
	}

	rules := []Rule{
		{
			Kind:          KindRole,
			NamePlurality: PluralitySingular,
			Locations:     []string{"roles/<name>"},
			VarLocations: []string{
				"roles/<name>/defaults/main.{yml,yaml}",
				"roles/<name>/vars/main.{yml,yaml}",
			},
			Claims:          []string{"roles/*"},
			RequiresVarsDoc: true,
			Description:     "roles are singular kebab-case directories under roles/; their variables carry the role name as prefix",
		},
		{
			Kind:          KindGroup,
			NamePlurality: PluralityPlural,
			Marker:        "GROUP",
			Locations:     []string{"**/group_vars/<name>", "**/group_vars/<name>.{yml,yaml}"},
			VarLocations:  []string{"**/group_vars/<name>/vars.{yml,yaml}"},
			Claims:        []string{"**/group_vars/*", "**/group_vars/*/**"},
			Description:   "groups are plural kebab-case scopes under group_vars/; their variables carry <group>_GROUP_ as prefix",
		},
		{
			// Specific groups are told apart from plain groups by name,
			// not by location, so the rule carries no claims of its own.
			Kind:          KindSpecificGroup,
			NamePlurality: PluralityPlural,
			Marker:        "GROUP",
			Locations:     []string{"**/group_vars/<name>", "**/group_vars/<name>.{yml,yaml}"},
			VarLocations:  []string{"**/group_vars/<name>/vars.{yml,yaml}"},
			Description:   "cluster-specific groups prepend the cluster name, e.g. c1-hailers; variables carry the full name as prefix",
		},
		{
			Kind:          KindPlaybook,
			NamePlurality: PluralityAny,
			Locations:     playbookLocations,
			Claims:        playbookClaims,
			Description:   "playbooks are kebab-case YAML files in the playbook directories; play variables carry the playbook name as prefix",
		},
		{
			Kind:          KindHost,
			NamePlurality: PluralitySingular,
			Marker:        "HOST",
			Locations:     []string{"**/host_vars/<name>", "**/host_vars/<name>.{yml,yaml}"},
			VarLocations:  []string{"**/host_vars/<name>/vars.{yml,yaml}"},
			Claims:        []string{"**/host_vars/*", "**/host_vars/*/**"},
			Description:   "hosts are singular scopes under host_vars/; their variables carry <host>_HOST_ as prefix",
		},
		{
			Kind:          KindPlaybookFact,
			NamePlurality: PluralityAny,
			Marker:        "FACT",
			Description:   "facts set from plays carry <playbook>_FACT_ as prefix",
		},
		{
			Kind:          KindRoleFact,
			NamePlurality: PluralityAny,
			Marker:        "FACT",
			Description:   "facts set from role tasks carry <role>_FACT_ as prefix",
		},
	}

	out := make(map[Kind]Rule, len(rules))
	for _, r := range rules {
		out[r.Kind] = r
	}
	return out
}

// RulesFor returns the rule governing the given kind.
func (t *Table) RulesFor(kind Kind) (Rule, error) {
	rule, ok := t.rules[kind]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return rule, nil
}

// Kinds returns the kinds carried by the table in their canonical
// listing order.
func (t *Table) Kinds() []Kind {
	order := []Kind{
		KindRole, KindGroup, KindSpecificGroup, KindPlaybook,
		KindHost, KindPlaybookFact, KindRoleFact,
	}
	out := make([]Kind, 0, len(order))
	for _, k := range order {
		if _, ok := t.rules[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// SpecificGroup reports whether a group name carries a recognized
// cluster prefix. It returns the cluster and the remaining base name.
func (t *Table) SpecificGroup(name string) (cluster, base string, ok bool) {
	head, rest, found := strings.Cut(name, "-")
	if !found || rest == "" {
		return "", "", false
	}
	if t.clusters[strings.ToLower(head)] || t.clusterRe.MatchString(head) {
		return head, rest, true
	}
	return "", "", false
}

// Clusters returns the explicitly configured cluster names, sorted.
func (t *Table) Clusters() []string {
	out := make([]string, 0, len(t.clusters))
	for c := range t.clusters {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// PluralException reports whether a word is excluded from plurality
// checking.
func (t *Table) PluralException(word string) bool {
	return t.pluralExceptions[strings.ToLower(word)]
}

// ExemptGroup reports whether a group name is exempt from plurality
// and prefix checks.
func (t *Table) ExemptGroup(name string) bool {
	return t.exemptGroups[strings.ToLower(name)]
}

// PlaybookDirs returns the directories searched for playbooks.
func (t *Table) PlaybookDirs() []string {
	return append([]string(nil), t.playbookDirs...)
}
