package archive

import (
	"strings"

	"github.com/jmgilman/go/archive/errors"
)

// parseOptions splits an option string into module options.
func parseOptions(s string) ([]moduleOption, error) {
	var out []moduleOption
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		var o moduleOption
		if mod, rest, ok := strings.Cut(item, ":"); ok {
			o.module = mod
			item = rest
		}
		negate := strings.HasPrefix(item, "!")
		item = strings.TrimPrefix(item, "!")
		key, value, hasValue := strings.Cut(item, "=")
		if key == "" {
			return nil, errors.Newf(errors.CodeInvalidConfig, "Empty option name in %q", s)
		}
		switch {
		case negate && hasValue:
			return nil, errors.Newf(errors.CodeInvalidConfig, "Negated option %q cannot take a value", key)
		case negate:
			value = ""
		case !hasValue:
			value = "1"
		}
		o.key = key
		o.value = value
		out = append(out, o)
	}
	return out, nil
}
