package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/c360studio/conformity/ruleset"
)

// Format identifies an output format.
type Format string

const (
	// FormatText is the human-readable default.
	FormatText Format = "text"
	// FormatJSON is the machine-readable report for CI and tooling.
	FormatJSON Format = "json"
)

// String returns the string representation of the format.
func (f Format) String() string {
	return string(f)
}

// IsValid reports whether the format is registered.
func (f Format) IsValid() bool {
	_, ok := formatRegistry[f]
	return ok
}

// FormatInfo describes one registered output format.
type FormatInfo struct {
	// Name is the identifier passed on the command line.
	Name Format
	// Description is a one-line summary for help output.
	Description string

	render func(io.Writer, *Report) error
}

var formatRegistry = map[Format]FormatInfo{
	FormatText: {
		Name:        FormatText,
		Description: "human-readable summary with per-violation detail",
		render:      renderText,
	},
	FormatJSON: {
		Name:        FormatJSON,
		Description: "stable JSON document for CI and tooling",
		render:      renderJSON,
	},
}

// Formats lists the registered output formats sorted by name.
func Formats() []FormatInfo {
	out := make([]FormatInfo, 0, len(formatRegistry))
	for _, info := range formatRegistry {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Render writes the report to w in the requested format.
func Render(w io.Writer, r *Report, f Format) error {
	info, ok := formatRegistry[f]
	if !ok {
		names := make([]string, 0, len(formatRegistry))
		for _, fi := range Formats() {
			names = append(names, string(fi.Name))
		}
		return fmt.Errorf("unknown output format %q (known: %s)", f, strings.Join(names, ", "))
	}
	return info.render(w, r)
}

func renderText(w io.Writer, r *Report) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Conformance check: %s\n", r.Root)
	fmt.Fprintf(&b, "Entities: %d scanned, %d passed\n", r.Counts.Entities, r.Counts.Passed)

	if len(r.Violations) > 0 {
		fmt.Fprintf(&b, "\nViolations (%d):\n", len(r.Violations))
		for _, v := range r.Violations {
			fmt.Fprintf(&b, "  ✗ %s [%s/%s] %s\n", v.Entity.Ref(), v.Kind, v.Reason, v.Message)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "\nScan warnings (%d):\n", len(r.Warnings))
		for _, warn := range r.Warnings {
			fmt.Fprintf(&b, "  ! %s: %s\n", warn.Path, warn.Message)
		}
	}
	if len(r.Ambiguous) > 0 {
		fmt.Fprintf(&b, "\nAmbiguous (%d, excluded from pass/fail):\n", len(r.Ambiguous))
		for _, a := range r.Ambiguous {
			fmt.Fprintf(&b, "  ? %s claimed by %s with equal specificity\n", a.Entity.Ref(), kindList(a.Kinds))
		}
	}
	if len(r.Unclassified) > 0 {
		fmt.Fprintf(&b, "\nUnclassified (%d, excluded from pass/fail):\n", len(r.Unclassified))
		for _, u := range r.Unclassified {
			fmt.Fprintf(&b, "  ? %s: %s\n", u.Entity.Ref(), u.Reason)
		}
	}

	switch {
	case !r.Passed():
		fmt.Fprintf(&b, "\nResult: ✗ FAILED (%s)\n", countNoun(len(r.Violations), "violation"))
	case len(r.Warnings) > 0:
		fmt.Fprintf(&b, "\nResult: ! INCOMPLETE (%s)\n", countNoun(len(r.Warnings), "scan warning"))
	default:
		fmt.Fprintf(&b, "\nResult: ✓ PASSED\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func countNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func kindList(kinds []ruleset.Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

// jsonReport is the stable wire shape of a report. Flat violation
// records keep consumers independent of internal entity layout.
type jsonReport struct {
	Root         string             `json:"root"`
	Passed       bool               `json:"passed"`
	Counts       Counts             `json:"counts"`
	Violations   []jsonViolation    `json:"violations"`
	Warnings     []jsonWarning      `json:"warnings,omitempty"`
	Ambiguous    []jsonAmbiguity    `json:"ambiguous,omitempty"`
	Unclassified []jsonUnclassified `json:"unclassified,omitempty"`
}

type jsonViolation struct {
	Path    string `json:"path"`
	Line    int    `json:"line,omitempty"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

type jsonWarning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

type jsonAmbiguity struct {
	Path  string   `json:"path"`
	Name  string   `json:"name"`
	Kinds []string `json:"kinds"`
}

type jsonUnclassified struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func jsonView(r *Report) jsonReport {
	out := jsonReport{
		Root:       r.Root,
		Passed:     r.Passed(),
		Counts:     r.Counts,
		Violations: make([]jsonViolation, 0, len(r.Violations)),
	}
	for _, v := range r.Violations {
		out.Violations = append(out.Violations, jsonViolation{
			Path:    v.Entity.Path,
			Line:    v.Entity.Line,
			Name:    v.Entity.Name,
			Kind:    v.Kind.String(),
			Reason:  v.Reason.String(),
			Message: v.Message,
		})
	}
	for _, warn := range r.Warnings {
		out.Warnings = append(out.Warnings, jsonWarning{Path: warn.Path, Message: warn.Message})
	}
	for _, a := range r.Ambiguous {
		kinds := make([]string, len(a.Kinds))
		for i, k := range a.Kinds {
			kinds[i] = k.String()
		}
		out.Ambiguous = append(out.Ambiguous, jsonAmbiguity{
			Path:  a.Entity.Path,
			Name:  a.Entity.Name,
			Kinds: kinds,
		})
	}
	for _, u := range r.Unclassified {
		out.Unclassified = append(out.Unclassified, jsonUnclassified{
			Path:   u.Entity.Path,
			Name:   u.Entity.Name,
			Reason: u.Reason,
		})
	}
	return out
}

func renderJSON(w io.Writer, r *Report) error {
	data, err := json.MarshalIndent(jsonView(r), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
