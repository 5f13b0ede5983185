package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree materializes a map of relative paths to file contents
// under root, creating parent directories as needed.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func scanTree(t *testing.T, root string, opts Options) *Result {
	t.Helper()
	res, err := New(opts).Scan(context.Background(), root)
	require.NoError(t, err)
	return res
}

func entitiesOf(res *Result, shape Shape) []Entity {
	var out []Entity
	for _, e := range res.Entities {
		if e.Shape == shape {
			out = append(out, e)
		}
	}
	return out
}

func TestScanEmptyRoot(t *testing.T) {
	res := scanTree(t, t.TempDir(), Options{})

	assert.Empty(t, res.Entities)
	assert.Empty(t, res.Warnings)
}

func TestScanInvalidRoot(t *testing.T) {
	_, err := New(Options{}).Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRoot)

	file := filepath.Join(t.TempDir(), "plain.yml")
	require.NoError(t, os.WriteFile(file, []byte("a: 1\n"), 0o644))
	_, err = New(Options{}).Scan(context.Background(), file)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestScanRoleLayout(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"roles/hail/defaults/main.yml": "hail_version: 1.2.3\nhail_port: 8080\n",
		"roles/hail/vars/main.yml":     "hail_internal_path: /opt/hail\n",
		"roles/hail/tasks/main.yml": `- name: record install state
  ansible.builtin.set_fact:
    hail_FACT_installed: true
`,
		"roles/hail/README.md": "# hail\n\nhail_version controls the release.\n",
	})

	res := scanTree(t, root, Options{})

	roles := entitiesOf(res, ShapeRoleDir)
	require.Len(t, roles, 1)
	assert.Equal(t, "hail", roles[0].Name)
	assert.Equal(t, "roles/hail", roles[0].Path)

	defaults := entitiesOf(res, ShapeRoleDefault)
	require.Len(t, defaults, 2)
	assert.Equal(t, "hail_version", defaults[0].Name)
	assert.Equal(t, 1, defaults[0].Line)
	assert.Equal(t, "hail", defaults[0].Scope)
	assert.Equal(t, "hail_port", defaults[1].Name)
	assert.Equal(t, 2, defaults[1].Line)

	vars := entitiesOf(res, ShapeRoleVar)
	require.Len(t, vars, 1)
	assert.Equal(t, "hail_internal_path", vars[0].Name)

	facts := entitiesOf(res, ShapeTaskFact)
	require.Len(t, facts, 1)
	assert.Equal(t, "hail_FACT_installed", facts[0].Name)
	assert.Equal(t, "hail", facts[0].Scope)

	doc, ok := res.RoleDocs["hail"]
	require.True(t, ok)
	assert.Equal(t, "roles/hail/README.md", doc.Path)
	assert.Contains(t, doc.Content, "hail_version")
}

func TestScanGroupAndHostForms(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"group_vars/hailers/vars.yml":   "hailers_GROUP_version: 2\n",
		"group_vars/stormers.yml":       "stormers_GROUP_region: eu\n",
		"host_vars/db-primary/vars.yml": "db_primary_HOST_port: 5432\n",
	})

	res := scanTree(t, root, Options{})

	groups := entitiesOf(res, ShapeGroupEntry)
	require.Len(t, groups, 2)
	assert.Equal(t, "hailers", groups[0].Name)
	assert.Equal(t, "group_vars/hailers", groups[0].Path)
	assert.Equal(t, "stormers", groups[1].Name)
	assert.Equal(t, "group_vars/stormers.yml", groups[1].Path)

	groupVars := entitiesOf(res, ShapeGroupVar)
	require.Len(t, groupVars, 2)
	assert.Equal(t, "hailers_GROUP_version", groupVars[0].Name)
	assert.Equal(t, "hailers", groupVars[0].Scope)
	assert.Equal(t, "stormers_GROUP_region", groupVars[1].Name)
	assert.Equal(t, "stormers", groupVars[1].Scope)

	hosts := entitiesOf(res, ShapeHostEntry)
	require.Len(t, hosts, 1)
	assert.Equal(t, "db-primary", hosts[0].Name)

	hostVars := entitiesOf(res, ShapeHostVar)
	require.Len(t, hostVars, 1)
	assert.Equal(t, "db_primary_HOST_port", hostVars[0].Name)
	assert.Equal(t, "db-primary", hostVars[0].Scope)
}

func TestScanNestedInventoryGroupVars(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"inventories/prod/group_vars/hailers/vars.yml": "hailers_GROUP_tier: gold\n",
	})

	res := scanTree(t, root, Options{})

	groups := entitiesOf(res, ShapeGroupEntry)
	require.Len(t, groups, 1)
	assert.Equal(t, "inventories/prod/group_vars/hailers", groups[0].Path)

	vars := entitiesOf(res, ShapeGroupVar)
	require.Len(t, vars, 1)
	assert.Equal(t, "hailers", vars[0].Scope)
}

func TestScanPlaybooks(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"site.yml": `- name: site
  hosts: all
  vars:
    site_environment: prod
  tasks:
    - name: remember deploy time
      ansible.builtin.set_fact:
        site_FACT_deployed_at: now
`,
		"playbooks/deploy.yml": `- hosts: hailers
  tasks: []
`,
		"playbooks/notes.yml": "summary: not a playbook\n",
		"requirements.yml":    "roles: []\n",
	})

	res := scanTree(t, root, Options{})

	playbooks := entitiesOf(res, ShapePlaybookFile)
	require.Len(t, playbooks, 2)
	assert.Equal(t, "deploy", playbooks[0].Name)
	assert.Equal(t, "playbooks/deploy.yml", playbooks[0].Path)
	assert.Equal(t, "site", playbooks[1].Name)

	playVars := entitiesOf(res, ShapePlayVar)
	require.Len(t, playVars, 1)
	assert.Equal(t, "site_environment", playVars[0].Name)
	assert.Equal(t, "site", playVars[0].Scope)

	facts := entitiesOf(res, ShapePlayFact)
	require.Len(t, facts, 1)
	assert.Equal(t, "site_FACT_deployed_at", facts[0].Name)

	// YAML in a playbook directory that is not a playbook stays a
	// visible candidate; plain YAML at the root does not.
	other := entitiesOf(res, ShapeYAMLFile)
	require.Len(t, other, 1)
	assert.Equal(t, "playbooks/notes.yml", other[0].Path)
}

func TestScanUnreadableDirWarnsAndContinues(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"roles/broken/defaults/main.yml": "broken_x: 1\n",
		"roles/hail/defaults/main.yml":   "hail_version: 1\n",
	})
	brokenDir := filepath.Join(root, "roles", "broken")
	require.NoError(t, os.Chmod(brokenDir, 0o000))
	t.Cleanup(func() { _ = os.Chmod(brokenDir, 0o755) })

	res := scanTree(t, root, Options{})

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "roles/broken", res.Warnings[0].Path)

	// Both role directories are still discovered, and the readable
	// sibling's variables are intact.
	roles := entitiesOf(res, ShapeRoleDir)
	require.Len(t, roles, 2)
	defaults := entitiesOf(res, ShapeRoleDefault)
	require.Len(t, defaults, 1)
	assert.Equal(t, "hail_version", defaults[0].Name)
}

func TestScanMalformedYAMLWarnsAndContinues(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"group_vars/hailers.yml":  "broken: [unclosed\n",
		"group_vars/stormers.yml": "stormers_GROUP_ok: true\n",
	})

	res := scanTree(t, root, Options{})

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "group_vars/hailers.yml", res.Warnings[0].Path)

	// The malformed file still surfaces as a scope entry; its vars are
	// simply absent. The sibling is unaffected.
	groups := entitiesOf(res, ShapeGroupEntry)
	require.Len(t, groups, 2)
	vars := entitiesOf(res, ShapeGroupVar)
	require.Len(t, vars, 1)
	assert.Equal(t, "stormers_GROUP_ok", vars[0].Name)
}

func TestScanIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"roles/hail/defaults/main.yml": "hail_version: 1\n",
		"group_vars/hailers/vars.yml":  "hailers_GROUP_a: 1\nhailers_GROUP_b: 2\n",
		"site.yml":                     "- hosts: all\n",
	})

	first := scanTree(t, root, Options{})
	second := scanTree(t, root, Options{})

	assert.Equal(t, first.Entities, second.Entities)
	assert.Equal(t, first.Warnings, second.Warnings)
}

func TestScanIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"legacy/group_vars/old.yml":   "old_GROUP_x: 1\n",
		"group_vars/hailers/vars.yml": "hailers_GROUP_x: 1\n",
		"site.retry":                  "- hosts: all\n",
		".git/config":                 "[core]\n",
	})

	res := scanTree(t, root, Options{IgnorePatterns: []string{"legacy"}})

	groups := entitiesOf(res, ShapeGroupEntry)
	require.Len(t, groups, 1)
	assert.Equal(t, "hailers", groups[0].Name)
	assert.Empty(t, res.Warnings)
}

func TestScanRespectsRepoGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":                         "# pre-migration content\nlegacy/\n*.bak.yml\n",
		"legacy/group_vars/hailers/vars.yml": "BadName: 1\n",
		"group_vars/hailers/vars.yml":        "hailers_GROUP_version: 2\n",
		"group_vars/stormers.bak.yml":        "Old: 1\n",
	})

	res := scanTree(t, root, Options{})

	for _, e := range res.Entities {
		assert.False(t, strings.HasPrefix(e.Path, "legacy/"), "gitignored path scanned: %s", e.Path)
		assert.False(t, strings.HasSuffix(e.Path, ".bak.yml"), "gitignored file scanned: %s", e.Path)
	}
	groups := entitiesOf(res, ShapeGroupEntry)
	require.Len(t, groups, 1)
	assert.Equal(t, "group_vars/hailers", groups[0].Path)
	vars := entitiesOf(res, ShapeGroupVar)
	require.Len(t, vars, 1)
	assert.Equal(t, "hailers_GROUP_version", vars[0].Name)
}

func TestScanSkipsVendoredContent(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"collections/ansible_collections/acme/util/group_vars/webs/vars.yml": "webs_GROUP_x: 1\n",
		"filter_plugins/group_vars/old/vars.yml":                             "old_GROUP_x: 1\n",
		"group_vars/hailers/vars.yml":                                        "hailers_GROUP_version: 2\n",
	})

	res := scanTree(t, root, Options{})

	require.Len(t, res.Entities, 2)
	groups := entitiesOf(res, ShapeGroupEntry)
	require.Len(t, groups, 1)
	assert.Equal(t, "hailers", groups[0].Name)
	assert.Empty(t, res.Warnings)
}

func TestScanUnreadableGitignoreWarns(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":                  "legacy/\n",
		"group_vars/hailers/vars.yml": "hailers_GROUP_version: 2\n",
	})
	ignoreFile := filepath.Join(root, ".gitignore")
	require.NoError(t, os.Chmod(ignoreFile, 0o000))
	t.Cleanup(func() { _ = os.Chmod(ignoreFile, 0o644) })

	res := scanTree(t, root, Options{})

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, ".gitignore", res.Warnings[0].Path)
	assert.Len(t, entitiesOf(res, ShapeGroupVar), 1)
}

func TestScanContextCancellation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"roles/hail/defaults/main.yml": "hail_version: 1\n",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}).Scan(ctx, root)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
