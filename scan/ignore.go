package scan

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// defaultIgnores are path patterns skipped on every scan, in gitignore
// syntax. Retry files are Ansible crash artifacts, never real
// playbooks. Vendored collections and filter plugins are outside the
// naming rules.
var defaultIgnores = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	".venv",
	"venv",
	".tox",
	".cache",
	"collections",
	"filter_plugins",
	"*.retry",
}

// newIgnorer compiles the default skip list, the repository's own
// .gitignore lines, and caller-supplied patterns into a single matcher.
func newIgnorer(repo, extra []string) *gitignore.GitIgnore {
	lines := make([]string, 0, len(defaultIgnores)+len(repo)+len(extra))
	lines = append(lines, defaultIgnores...)
	lines = append(lines, repo...)
	lines = append(lines, extra...)
	return gitignore.CompileIgnoreLines(lines...)
}

// repoIgnoreLines reads the .gitignore at the repository root. A
// missing file yields no lines; any other failure is returned so the
// scan can record a warning.
func repoIgnoreLines(root string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}
