// Package report aggregates scan, classification, and validation
// results into a single deterministic report and renders it for
// humans or machines. Rendering never includes run identity or
// timestamps, so repeated runs over unchanged input produce
// byte-identical output; the volatile fields travel only in the
// published message envelope.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/conformity/classify"
	"github.com/c360studio/conformity/scan"
	"github.com/c360studio/conformity/validate"
)

// Counts summarizes a run.
type Counts struct {
	// Entities is the total number of scanned entities.
	Entities int `json:"entities"`
	// Passed is the number of classified entities with no violations.
	Passed int `json:"passed"`
	// Violations is the total violation count.
	Violations int `json:"violations"`
	// Warnings is the scan warning count.
	Warnings int `json:"warnings"`
	// Ambiguous is the count of entities excluded from validation
	// because multiple rules claim them.
	Ambiguous int `json:"ambiguous"`
	// Unclassified is the count of entities no rule claims.
	Unclassified int `json:"unclassified"`
}

// Report is the complete outcome of one conformance run.
type Report struct {
	// RunID uniquely identifies the run. Not rendered.
	RunID string `json:"run_id"`
	// GeneratedAt is the run timestamp. Not rendered.
	GeneratedAt time.Time `json:"generated_at"`
	// Root is the absolute path that was checked.
	Root string `json:"root"`
	// Counts summarizes the run.
	Counts Counts `json:"counts"`
	// Violations in deterministic order: by path, then reason code,
	// then name; line breaks remaining ties.
	Violations []validate.Violation `json:"violations"`
	// Warnings collected during scanning, ordered by path.
	Warnings []scan.Warning `json:"warnings,omitempty"`
	// Ambiguous entities, excluded from pass/fail.
	Ambiguous []classify.Ambiguity `json:"ambiguous,omitempty"`
	// Unclassified entities, excluded from pass/fail.
	Unclassified []classify.Unclassified `json:"unclassified,omitempty"`
}

// Build assembles a report from the pipeline outputs and fixes the
// ordering of every section.
func Build(scanRes *scan.Result, clsRes classify.Result, violations []validate.Violation) *Report {
	r := &Report{
		RunID:        uuid.New().String(),
		GeneratedAt:  time.Now().UTC(),
		Root:         scanRes.Root,
		Violations:   append([]validate.Violation(nil), violations...),
		Warnings:     append([]scan.Warning(nil), scanRes.Warnings...),
		Ambiguous:    append([]classify.Ambiguity(nil), clsRes.Ambiguous...),
		Unclassified: append([]classify.Unclassified(nil), clsRes.Unclassified...),
	}

	sort.SliceStable(r.Violations, func(i, j int) bool {
		a, b := r.Violations[i], r.Violations[j]
		if a.Entity.Path != b.Entity.Path {
			return a.Entity.Path < b.Entity.Path
		}
		if a.Reason != b.Reason {
			return a.Reason < b.Reason
		}
		if a.Entity.Name != b.Entity.Name {
			return a.Entity.Name < b.Entity.Name
		}
		return a.Entity.Line < b.Entity.Line
	})
	sort.SliceStable(r.Warnings, func(i, j int) bool {
		return r.Warnings[i].Path < r.Warnings[j].Path
	})
	sort.SliceStable(r.Ambiguous, func(i, j int) bool {
		return r.Ambiguous[i].Entity.Path < r.Ambiguous[j].Entity.Path
	})
	sort.SliceStable(r.Unclassified, func(i, j int) bool {
		return r.Unclassified[i].Entity.Path < r.Unclassified[j].Entity.Path
	})

	r.Counts = Counts{
		Entities:     len(scanRes.Entities),
		Passed:       countPassed(clsRes.Classified, r.Violations),
		Violations:   len(r.Violations),
		Warnings:     len(r.Warnings),
		Ambiguous:    len(r.Ambiguous),
		Unclassified: len(r.Unclassified),
	}
	return r
}

// countPassed counts classified entities with no violations.
func countPassed(classified []classify.Classification, violations []validate.Violation) int {
	type key struct {
		path string
		line int
		name string
	}
	offending := make(map[key]bool, len(violations))
	for _, v := range violations {
		offending[key{v.Entity.Path, v.Entity.Line, v.Entity.Name}] = true
	}
	passed := 0
	for _, cl := range classified {
		if !offending[key{cl.Entity.Path, cl.Entity.Line, cl.Entity.Name}] {
			passed++
		}
	}
	return passed
}

// Passed reports whether the run found no violations. Warnings and
// ambiguous entities do not affect pass/fail.
func (r *Report) Passed() bool {
	return len(r.Violations) == 0
}

// Clean reports whether the run found nothing to mention at all.
func (r *Report) Clean() bool {
	return r.Passed() && len(r.Warnings) == 0 &&
		len(r.Ambiguous) == 0 && len(r.Unclassified) == 0
}

// ExitCode maps the report to the process exit contract: zero only
// when the run found no violations and no scan warnings. Ambiguous and
// unclassified entities are excluded from pass/fail unless strict mode
// escalates them.
func (r *Report) ExitCode(strict bool) int {
	if !r.Passed() || len(r.Warnings) > 0 {
		return 1
	}
	if strict && !r.Clean() {
		return 1
	}
	return 0
}
