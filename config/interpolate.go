package config

import (
	"regexp"
	"strings"

	fperrors "github.com/legout/flowerpower-sub010/errors"
)

// varPattern matches ${VAR}, ${VAR:-default} and ${VAR?message}.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)((?::-|\?)[^}]*)?\}`)

// Interpolate substitutes ${VAR} references in a raw document using the
// given environment. ${VAR:-default} falls back to the default when VAR is
// unset; ${VAR?message} fails the whole interpolation when VAR is unset.
// The source string names the document for error reporting.
func Interpolate(raw string, env map[string]string, source string) (string, error) {
	var firstErr error

	out := varPattern.ReplaceAllStringFunc(raw, func(match string) string {
		groups := varPattern.FindStringSubmatch(match)
		name, modifier := groups[1], groups[2]

		if val, ok := env[name]; ok && val != "" {
			return val
		}

		switch {
		case strings.HasPrefix(modifier, ":-"):
			return modifier[2:]
		case strings.HasPrefix(modifier, "?"):
			if firstErr == nil {
				firstErr = fperrors.UnresolvedVariable(name, source, strings.TrimPrefix(modifier, "?"))
			}
			return match
		default:
			if firstErr == nil {
				firstErr = fperrors.UnresolvedVariable(name, source, "")
			}
			return match
		}
	})

	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}
