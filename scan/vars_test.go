package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVars(t *testing.T) {
	decls, err := parseVars([]byte("hail_version: 1.2.3\nhail_port: 8080\n"))
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.Equal(t, varDecl{name: "hail_version", line: 1}, decls[0])
	assert.Equal(t, varDecl{name: "hail_port", line: 2}, decls[1])
}

func TestParseVarsNonMapping(t *testing.T) {
	decls, err := parseVars([]byte("- one\n- two\n"))
	require.NoError(t, err)
	assert.Empty(t, decls)

	decls, err = parseVars([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, decls)
}

func TestParseVarsMalformed(t *testing.T) {
	_, err := parseVars([]byte("broken: [unclosed\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse yaml")
}

func TestParsePlaybookShape(t *testing.T) {
	_, ok, err := parsePlaybook([]byte("key: value\n"))
	require.NoError(t, err)
	assert.False(t, ok, "a mapping document is not a playbook")

	_, ok, err = parsePlaybook([]byte("- name: just a task\n  command: ls\n"))
	require.NoError(t, err)
	assert.False(t, ok, "a task list without hosts is not a playbook")

	doc, ok, err := parsePlaybook([]byte("- hosts: all\n"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, doc.plays)
}

func TestParsePlaybookVarsAndFacts(t *testing.T) {
	src := []byte(`- name: first play
  hosts: hailers
  vars:
    deploy_target: staging
    deploy_retries: 3
  pre_tasks:
    - name: stamp start
      ansible.builtin.set_fact:
        deploy_FACT_started: true
        cacheable: true
  tasks:
    - block:
        - name: stamp inner
          ansible.builtin.set_fact:
            deploy_FACT_inner: 1
      rescue:
        - name: stamp failure
          ansible.builtin.set_fact:
            deploy_FACT_failed: 1
- name: second play
  hosts: all
  post_tasks:
    - name: stamp end
      ansible.builtin.set_fact:
        deploy_FACT_finished: true
`)

	doc, ok, err := parsePlaybook(src)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, doc.plays)

	names := make([]string, 0, len(doc.vars))
	for _, d := range doc.vars {
		names = append(names, d.name)
	}
	assert.Equal(t, []string{"deploy_target", "deploy_retries"}, names)

	factNames := make([]string, 0, len(doc.facts))
	for _, d := range doc.facts {
		factNames = append(factNames, d.name)
	}
	// cacheable is a set_fact modifier, never a fact.
	assert.Equal(t, []string{
		"deploy_FACT_started",
		"deploy_FACT_inner",
		"deploy_FACT_failed",
		"deploy_FACT_finished",
	}, factNames)
}

func TestParseTaskFacts(t *testing.T) {
	src := []byte(`- name: plain fact
  ansible.builtin.set_fact:
    hail_FACT_ready: true
- name: nested facts
  block:
    - always:
        - ansible.builtin.set_fact:
            hail_FACT_cleaned: true
`)

	decls, err := parseTaskFacts(src)
	require.NoError(t, err)
	require.Len(t, decls, 2)
	assert.Equal(t, "hail_FACT_ready", decls[0].name)
	assert.Equal(t, "hail_FACT_cleaned", decls[1].name)
}

func TestParseTaskFactsNonSequence(t *testing.T) {
	decls, err := parseTaskFacts([]byte("not: a task list\n"))
	require.NoError(t, err)
	assert.Empty(t, decls)
}
