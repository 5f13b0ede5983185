package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/conformity/classify"
	"github.com/c360studio/conformity/ruleset"
	"github.com/c360studio/conformity/scan"
	"github.com/c360studio/conformity/validate"
)

func sampleInputs() (*scan.Result, classify.Result, []validate.Violation) {
	entities := []scan.Entity{
		{Name: "hail", Path: "roles/hail", Shape: scan.ShapeRoleDir},
		{Name: "hail_version", Path: "roles/hail/defaults/main.yml", Line: 1, Shape: scan.ShapeRoleDefault, Scope: "hail"},
		{Name: "HailVersion", Path: "roles/hail/defaults/main.yml", Line: 2, Shape: scan.ShapeRoleDefault, Scope: "hail"},
	}
	scanRes := &scan.Result{
		Root:     "/repo",
		Entities: entities,
		Warnings: []scan.Warning{{Path: "roles/broken", Message: "unreadable: permission denied"}},
	}

	var classifications []classify.Classification
	for _, e := range entities {
		classifications = append(classifications, classify.Classification{
			Entity: e, Kind: ruleset.KindRole, Scope: "hail",
		})
	}
	clsRes := classify.Result{Classified: classifications}

	violations := []validate.Violation{{
		Entity:  entities[2],
		Kind:    ruleset.KindRole,
		Reason:  validate.ReasonBadCasing,
		Message: `variable "HailVersion" is not snake_case`,
	}}
	return scanRes, clsRes, violations
}

func TestBuildCounts(t *testing.T) {
	r := Build(sampleInputs())

	assert.Equal(t, "/repo", r.Root)
	assert.Equal(t, 3, r.Counts.Entities)
	assert.Equal(t, 2, r.Counts.Passed)
	assert.Equal(t, 1, r.Counts.Violations)
	assert.Equal(t, 1, r.Counts.Warnings)
	assert.NotEmpty(t, r.RunID)
	assert.False(t, r.GeneratedAt.IsZero())
}

func TestBuildOrdersViolations(t *testing.T) {
	scanRes := &scan.Result{Root: "/repo"}
	shuffled := []validate.Violation{
		{Entity: scan.Entity{Path: "roles/b", Line: 2, Name: "beta"}, Reason: validate.ReasonMissingPrefix},
		{Entity: scan.Entity{Path: "roles/a", Line: 9, Name: "gamma"}, Reason: validate.ReasonBadCasing},
		{Entity: scan.Entity{Path: "roles/b", Line: 2, Name: "beta"}, Reason: validate.ReasonBadCasing},
		{Entity: scan.Entity{Path: "roles/a", Line: 1, Name: "alpha"}, Reason: validate.ReasonMissingPrefix},
		{Entity: scan.Entity{Path: "roles/b", Line: 7, Name: "alpha"}, Reason: validate.ReasonBadCasing},
	}

	r := Build(scanRes, classify.Result{}, shuffled)

	got := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		got[i] = v.Entity.Ref() + "/" + v.Reason.String()
	}
	// Within a file the reason code outranks the line number, and the
	// variable name breaks reason ties.
	want := []string{
		"roles/a:9/BadCasing",
		"roles/a:1/MissingPrefix",
		"roles/b:7/BadCasing",
		"roles/b:2/BadCasing",
		"roles/b:2/MissingPrefix",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("violation order mismatch (-want +got):\n%s", diff)
	}
}

func TestExitCodes(t *testing.T) {
	scanRes := &scan.Result{Root: "/repo"}

	clean := Build(scanRes, classify.Result{}, nil)
	assert.True(t, clean.Passed())
	assert.True(t, clean.Clean())
	assert.Equal(t, 0, clean.ExitCode(false))
	assert.Equal(t, 0, clean.ExitCode(true))

	_, _, violations := sampleInputs()
	failing := Build(scanRes, classify.Result{}, violations)
	assert.False(t, failing.Passed())
	assert.Equal(t, 1, failing.ExitCode(false))

	warned := Build(&scan.Result{
		Root:     "/repo",
		Warnings: []scan.Warning{{Path: "roles/broken", Message: "unreadable"}},
	}, classify.Result{}, nil)
	assert.True(t, warned.Passed(), "warnings do not affect the pass verdict")
	assert.Equal(t, 1, warned.ExitCode(false), "unresolved warnings fail the run")

	ambiguous := Build(scanRes, classify.Result{
		Ambiguous: []classify.Ambiguity{{
			Entity: scan.Entity{Path: "playbooks/group_vars/x.yml"},
			Kinds:  []ruleset.Kind{ruleset.KindGroup, ruleset.KindPlaybook},
		}},
	}, nil)
	assert.True(t, ambiguous.Passed(), "ambiguity does not fail the run")
	assert.False(t, ambiguous.Clean())
	assert.Equal(t, 0, ambiguous.ExitCode(false))
	assert.Equal(t, 1, ambiguous.ExitCode(true), "strict mode escalates ambiguity")
}

func TestRenderText(t *testing.T) {
	r := Build(sampleInputs())

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, FormatText))

	want := strings.Join([]string{
		"Conformance check: /repo",
		"Entities: 3 scanned, 2 passed",
		"",
		"Violations (1):",
		`  ✗ roles/hail/defaults/main.yml:2 [role/BadCasing] variable "HailVersion" is not snake_case`,
		"",
		"Scan warnings (1):",
		"  ! roles/broken: unreadable: permission denied",
		"",
		"Result: ✗ FAILED (1 violation)",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestRenderTextPassed(t *testing.T) {
	r := Build(&scan.Result{Root: "/repo"}, classify.Result{}, nil)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, FormatText))

	assert.Contains(t, buf.String(), "Result: ✓ PASSED")
	assert.NotContains(t, buf.String(), "Violations")
}

func TestRenderTextWarningsOnly(t *testing.T) {
	r := Build(&scan.Result{
		Root:     "/repo",
		Warnings: []scan.Warning{{Path: "roles/broken", Message: "unreadable: permission denied"}},
	}, classify.Result{}, nil)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, FormatText))

	assert.Contains(t, buf.String(), "Result: ! INCOMPLETE (1 scan warning)")
	assert.NotContains(t, buf.String(), "PASSED")
}

func TestRenderIsByteIdenticalAcrossRuns(t *testing.T) {
	// Two builds of the same inputs differ in run id and timestamp,
	// but render to exactly the same bytes.
	first := Build(sampleInputs())
	second := Build(sampleInputs())
	require.NotEqual(t, first.RunID, second.RunID)

	for _, format := range []Format{FormatText, FormatJSON} {
		var a, b bytes.Buffer
		require.NoError(t, Render(&a, first, format))
		require.NoError(t, Render(&b, second, format))
		assert.Equal(t, a.String(), b.String(), "format %s", format)
	}
}

func TestRenderJSON(t *testing.T) {
	r := Build(sampleInputs())

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r, FormatJSON))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.NotContains(t, doc, "run_id")
	assert.NotContains(t, doc, "generated_at")
	assert.Equal(t, "/repo", doc["root"])
	assert.Equal(t, false, doc["passed"])

	violations, ok := doc["violations"].([]any)
	require.True(t, ok)
	require.Len(t, violations, 1)
	v := violations[0].(map[string]any)
	assert.Equal(t, "roles/hail/defaults/main.yml", v["path"])
	assert.Equal(t, float64(2), v["line"])
	assert.Equal(t, "BadCasing", v["reason"])
}

func TestRenderUnknownFormat(t *testing.T) {
	r := Build(&scan.Result{Root: "/repo"}, classify.Result{}, nil)

	err := Render(&bytes.Buffer{}, r, Format("xml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "xml"`)
	assert.Contains(t, err.Error(), "json, text")
}

func TestFormatsListing(t *testing.T) {
	formats := Formats()
	require.Len(t, formats, 2)
	assert.Equal(t, FormatJSON, formats[0].Name)
	assert.Equal(t, FormatText, formats[1].Name)
}

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	require.NoError(t, p.Publish(context.Background(), Build(sampleInputs())))
	p.Close()
}
