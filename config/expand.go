package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dop251/goja"
)

var (
	expressionPattern = regexp.MustCompile(`\$\{\{(.*?)\}\}`)
	variablePattern   = regexp.MustCompile(`\$(?:(\$)|([_a-zA-Z][_a-zA-Z0-9]*)|\{([_a-zA-Z][_a-zA-Z0-9]*)\})`)
	commentPattern    = regexp.MustCompile(`##.*$`)
)

// stripComments removes "##" comments, which TOML itself would not treat as
// comments inside strings.
func stripComments(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = commentPattern.ReplaceAllString(line, "")
	}
	return strings.Join(lines, "\n")
}

// expandExpressions replaces each ${{expr}} with the value of expr evaluated
// against the variable map, e.g. ${{port+5}}.
func expandExpressions(text string, vars map[string]any) (string, error) {
	matches := expressionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	vm := goja.New()
	for name, value := range vars {
		if err := vm.Set(name, value); err != nil {
			return "", fmt.Errorf("failed to bind variable %s: %w", name, err)
		}
	}

	for _, match := range matches {
		value, err := vm.RunString(match[1])
		if err != nil {
			return "", fmt.Errorf("failed to evaluate expression %q: %w", match[1], err)
		}
		text = strings.Replace(text, match[0], value.String(), 1)
	}

	return text, nil
}

// substituteVariables expands $var and ${var}. Unknown variables are left in
// place and $$ becomes a literal $.
func substituteVariables(text string, vars map[string]any) string {
	return variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		if groups[1] != "" {
			return "$"
		}

		name := groups[2]
		if name == "" {
			name = groups[3]
		}
		value, ok := vars[name]
		if !ok {
			return match
		}
		return fmt.Sprint(value)
	})
}
