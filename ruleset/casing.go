package ruleset

import (
	"regexp"
	"strings"
)

var (
	kebabRe = regexp.MustCompile(`^[a-z][a-z0-9]*(?:-[a-z0-9]+)*$`)
	snakeRe = regexp.MustCompile(`^[a-z][a-z0-9]*(?:_[a-z0-9]+)*$`)

	camelFirstRe = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	camelRestRe  = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// IsKebab reports whether s is lowercase kebab-case: letters and
// digits separated by single dashes, starting with a letter.
func IsKebab(s string) bool {
	return kebabRe.MatchString(s)
}

// IsSnake reports whether s is lowercase snake_case: letters and
// digits separated by single underscores, starting with a letter.
func IsSnake(s string) bool {
	return snakeRe.MatchString(s)
}

// SnakeName converts a scope name to its snake_case form. Dashes
// become underscores and camel-case boundaries are split, so both
// "c1-hailers" and "HailVersion" normalize predictably.
func SnakeName(s string) string {
	s = strings.ReplaceAll(s, "-", "_")
	s = camelFirstRe.ReplaceAllString(s, "${1}_${2}")
	s = camelRestRe.ReplaceAllString(s, "${1}_${2}")
	s = underscoreRe.ReplaceAllString(s, "_")
	return strings.ToLower(s)
}

// VarCasingOK reports whether a variable name satisfies snake_case
// once the rule's literal uppercase marker is set aside. A single
// leading underscore marks a private variable and is ignored here.
func VarCasingOK(name, marker string) bool {
	core := strings.TrimPrefix(name, "_")
	if marker != "" {
		core = strings.ReplaceAll(core, "_"+marker+"_", "_")
	}
	return IsSnake(core)
}

// NormalizeVar returns the snake_case form of a variable name with the
// rule's marker preserved in place. Prefix checks run against this
// form so a casing violation does not double-report as a missing
// prefix.
func NormalizeVar(name, marker string) string {
	core := strings.TrimPrefix(name, "_")
	if marker == "" {
		return SnakeName(core)
	}
	token := "_" + marker + "_"
	parts := strings.Split(core, token)
	for i := range parts {
		parts[i] = SnakeName(parts[i])
	}
	return strings.Join(parts, token)
}

// IsPrivate reports whether a variable name is marked private by a
// leading underscore.
func IsPrivate(name string) bool {
	return strings.HasPrefix(name, "_")
}
