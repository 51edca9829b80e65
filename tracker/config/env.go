package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// $${VAR} escapes, ${VAR}, ${VAR:-default}, ${VAR:?message}
var envRef = regexp.MustCompile(`\$\$\{[^}]*\}|\$\{[^}]*\}`)

// SubstituteEnvVars expands environment references in YAML content.
// Every missing required variable is reported; the expanded text is
// returned alongside the error.
func SubstituteEnvVars(content string) (string, error) {
	var errs []error

	out := envRef.ReplaceAllStringFunc(content, func(ref string) string {
		if strings.HasPrefix(ref, "$$") {
			return ref[1:]
		}
		expr := ref[2 : len(ref)-1]

		if name, msg, ok := strings.Cut(expr, ":?"); ok {
			name = strings.TrimSpace(name)
			if v := os.Getenv(name); v != "" {
				return v
			}
			msg = strings.TrimSpace(msg)
			if msg == "" {
				msg = fmt.Sprintf("required environment variable %s is not set", name)
			}
			errs = append(errs, errors.New(msg))
			return ""
		}

		if name, def, ok := strings.Cut(expr, ":-"); ok {
			if v := os.Getenv(strings.TrimSpace(name)); v != "" {
				return v
			}
			return strings.TrimSpace(def)
		}

		return os.Getenv(strings.TrimSpace(expr))
	})

	return out, errors.Join(errs...)
}
