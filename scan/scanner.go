package scan

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options configures a Scanner. The zero value scans with default
// ignore patterns and playbook directories.
type Options struct {
	// IgnorePatterns are additional gitignore-style patterns to skip,
	// applied on top of the built-in defaults and the scanned
	// repository's own .gitignore.
	IgnorePatterns []string
	// PlaybookDirs are the directories searched for playbooks,
	// relative to the root. "." means the root itself.
	PlaybookDirs []string
	// Logger receives scan diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Scanner discovers rule-relevant entities in a repository tree. A
// Scanner is safe for repeated use; each Scan is independent and picks
// up the current .gitignore of the scanned root.
type Scanner struct {
	extraIgnores []string
	playbookDirs []string
	logger       *slog.Logger
}

// New creates a Scanner from the given options.
func New(opts Options) *Scanner {
	dirs := opts.PlaybookDirs
	if len(dirs) == 0 {
		dirs = []string{".", "playbooks"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		extraIgnores: append([]string(nil), opts.IgnorePatterns...),
		playbookDirs: append([]string(nil), dirs...),
		logger:       logger,
	}
}

// Scan walks root and collects entities, warnings, and role
// documentation. The walk order is lexical, so results are
// deterministic for a given tree. A root that is missing, not a
// directory, or entirely unreadable fails with ErrInvalidRoot;
// problems below the root are recorded as warnings and the walk
// continues.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	if _, err := os.ReadDir(abs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}

	res := &Result{
		Root:     abs,
		Entities: []Entity{},
		RoleDocs: make(map[string]RoleDoc),
	}

	repoLines, ignoreErr := repoIgnoreLines(abs)
	if ignoreErr != nil {
		s.warn(res, ".gitignore", fmt.Sprintf("read: %v", ignoreErr))
	}
	ignorer := newIgnorer(repoLines, s.extraIgnores)

	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel := relPath(abs, path)
		if err != nil {
			if rel == "." {
				return fmt.Errorf("%w: %v", ErrInvalidRoot, err)
			}
			s.warn(res, rel, fmt.Sprintf("unreadable: %v", err))
			return nil
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			// The trailing slash lets directory-only patterns like
			// "legacy/" match.
			if strings.HasPrefix(d.Name(), ".") || ignorer.MatchesPath(rel+"/") {
				return fs.SkipDir
			}
			s.visitDir(res, rel)
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks are not followed; a link cycle would make the
			// walk nondeterministic.
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || ignorer.MatchesPath(rel) {
			return nil
		}
		s.visitFile(res, abs, rel, d.Name())
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	s.logger.Debug("scan complete",
		"root", abs,
		"entities", len(res.Entities),
		"warnings", len(res.Warnings))
	return res, nil
}

// visitDir records scope entities for directories in rule-relevant
// locations.
func (s *Scanner) visitDir(res *Result, rel string) {
	segs := strings.Split(rel, "/")
	n := len(segs)
	base := segs[n-1]
	parent := ""
	if n >= 2 {
		parent = segs[n-2]
	}

	switch {
	case n == 2 && segs[0] == "roles":
		res.Entities = append(res.Entities, Entity{Name: base, Path: rel, Shape: ShapeRoleDir})
	case parent == "group_vars":
		res.Entities = append(res.Entities, Entity{Name: base, Path: rel, Shape: ShapeGroupEntry})
	case parent == "host_vars":
		res.Entities = append(res.Entities, Entity{Name: base, Path: rel, Shape: ShapeHostEntry})
	}
}

// visitFile records file and variable entities for YAML files in
// rule-relevant locations, plus role READMEs.
func (s *Scanner) visitFile(res *Result, abs, rel, name string) {
	segs := strings.Split(rel, "/")

	if name == "README.md" && len(segs) == 3 && segs[0] == "roles" {
		if data, ok := s.readFile(res, abs, rel); ok {
			res.RoleDocs[segs[1]] = RoleDoc{Path: rel, Content: string(data)}
		}
		return
	}

	ext := filepath.Ext(name)
	if ext != ".yml" && ext != ".yaml" {
		return
	}
	stem := strings.TrimSuffix(name, ext)

	// Role-owned carriers: defaults, vars, tasks, handlers.
	if segs[0] == "roles" && len(segs) == 4 {
		role := segs[1]
		switch segs[2] {
		case "defaults":
			s.collectVars(res, abs, rel, ShapeRoleDefault, role)
		case "vars":
			s.collectVars(res, abs, rel, ShapeRoleVar, role)
		case "tasks", "handlers":
			s.collectTaskFacts(res, abs, rel, role)
		}
		return
	}

	if i := indexOf(segs, "group_vars"); i >= 0 {
		s.visitVarsEntry(res, abs, rel, segs, i, stem, ShapeGroupEntry, ShapeGroupVar)
		return
	}
	if i := indexOf(segs, "host_vars"); i >= 0 {
		s.visitVarsEntry(res, abs, rel, segs, i, stem, ShapeHostEntry, ShapeHostVar)
		return
	}

	s.visitPlaybookCandidate(res, abs, rel, segs, stem)
}

// visitVarsEntry handles files under a group_vars or host_vars
// container. A file directly under the container is the file form of a
// scope; a file one level deeper carries variables for the enclosing
// scope directory.
func (s *Scanner) visitVarsEntry(res *Result, abs, rel string, segs []string, i int, stem string, entryShape, varShape Shape) {
	switch len(segs) {
	case i + 2:
		res.Entities = append(res.Entities, Entity{Name: stem, Path: rel, Shape: entryShape})
		s.collectVars(res, abs, rel, varShape, stem)
	case i + 3:
		s.collectVars(res, abs, rel, varShape, segs[i+1])
	}
}

// visitPlaybookCandidate handles YAML files at the root or under a
// configured playbook directory. Files shaped like playbooks yield a
// playbook entity plus its vars and facts; other YAML inside a
// playbook directory is recorded as an unshaped candidate.
func (s *Scanner) visitPlaybookCandidate(res *Result, abs, rel string, segs []string, stem string) {
	atRoot := len(segs) == 1
	inDir := false
	for _, dir := range s.playbookDirs {
		if dir == "." {
			continue
		}
		if strings.HasPrefix(rel, dir+"/") {
			inDir = true
			break
		}
	}
	if atRoot && !s.rootIsPlaybookDir() {
		return
	}
	if !atRoot && !inDir {
		return
	}

	data, ok := s.readFile(res, abs, rel)
	if !ok {
		return
	}
	doc, isPlaybook, err := parsePlaybook(data)
	if err != nil {
		s.warn(res, rel, err.Error())
		return
	}
	if !isPlaybook {
		if inDir {
			res.Entities = append(res.Entities, Entity{Name: stem, Path: rel, Shape: ShapeYAMLFile})
		}
		return
	}

	res.Entities = append(res.Entities, Entity{Name: stem, Path: rel, Shape: ShapePlaybookFile})
	for _, d := range doc.vars {
		res.Entities = append(res.Entities, Entity{Name: d.name, Path: rel, Line: d.line, Shape: ShapePlayVar, Scope: stem})
	}
	for _, d := range doc.facts {
		res.Entities = append(res.Entities, Entity{Name: d.name, Path: rel, Line: d.line, Shape: ShapePlayFact, Scope: stem})
	}
}

func (s *Scanner) collectVars(res *Result, abs, rel string, shape Shape, scope string) {
	data, ok := s.readFile(res, abs, rel)
	if !ok {
		return
	}
	decls, err := parseVars(data)
	if err != nil {
		s.warn(res, rel, err.Error())
		return
	}
	for _, d := range decls {
		res.Entities = append(res.Entities, Entity{Name: d.name, Path: rel, Line: d.line, Shape: shape, Scope: scope})
	}
}

func (s *Scanner) collectTaskFacts(res *Result, abs, rel, role string) {
	data, ok := s.readFile(res, abs, rel)
	if !ok {
		return
	}
	decls, err := parseTaskFacts(data)
	if err != nil {
		s.warn(res, rel, err.Error())
		return
	}
	for _, d := range decls {
		res.Entities = append(res.Entities, Entity{Name: d.name, Path: rel, Line: d.line, Shape: ShapeTaskFact, Scope: role})
	}
}

func (s *Scanner) readFile(res *Result, abs, rel string) ([]byte, bool) {
	data, err := os.ReadFile(filepath.Join(abs, filepath.FromSlash(rel)))
	if err != nil {
		s.warn(res, rel, fmt.Sprintf("read: %v", err))
		return nil, false
	}
	return data, true
}

func (s *Scanner) warn(res *Result, rel, msg string) {
	res.Warnings = append(res.Warnings, Warning{Path: rel, Message: msg})
	s.logger.Warn("scan warning", "path", rel, "message", msg)
}

func (s *Scanner) rootIsPlaybookDir() bool {
	for _, dir := range s.playbookDirs {
		if dir == "." {
			return true
		}
	}
	return false
}

func indexOf(segs []string, name string) int {
	for i, s := range segs {
		if s == name {
			return i
		}
	}
	return -1
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
