// Package validate checks archive member names before they are written to
// a filesystem. It rejects absolute names, names that climb out of the
// extraction root, and names carrying control characters.
package validate

import (
	"path"
	"strings"
	"unicode/utf8"

	"github.com/jmgilman/go/archive/errors"
)

// PathValidator validates member pathnames and symlink targets.
type PathValidator struct {
	// AllowHiddenFiles permits components starting with a dot.
	AllowHiddenFiles bool
}

// NewPathValidator returns a validator that rejects hidden files.
func NewPathValidator() *PathValidator {
	return &PathValidator{}
}

// ValidatePath returns a CodeSecurity error when name is unsafe to extract.
// A leading "./" is accepted since several formats store names that way.
func (v *PathValidator) ValidatePath(name string) error {
	if isWhitespaceOnly(name) {
		return errors.New(errors.CodeSecurity, "empty path")
	}
	if IsAbsolute(name) {
		return errors.Newf(errors.CodeSecurity, "absolute path not allowed: %q", name)
	}
	if hasEncodedTraversal(name) {
		return errors.Newf(errors.CodeSecurity, "encoded path traversal detected: %q", name)
	}
	if hasTraversal(name) {
		return errors.Newf(errors.CodeSecurity, "path traversal detected: %q", name)
	}
	if err := checkCharacters(name); err != nil {
		return err
	}
	if !v.AllowHiddenFiles && isHidden(name) {
		return errors.Newf(errors.CodeSecurity, "hidden files not allowed: %q", name)
	}
	return nil
}

// IsPathSafe reports whether ValidatePath accepts name.
func (v *PathValidator) IsPathSafe(name string) bool {
	return v.ValidatePath(name) == nil
}

// ValidateSymlink checks that target is a relative path without ".."
// components. Lexical resolution cannot account for links created by
// earlier entries, so targets may only point below the link's directory.
func (v *PathValidator) ValidateSymlink(link, target string) error {
	if target == "" {
		return errors.Newf(errors.CodeSecurity, "empty symlink target: %q", link)
	}
	if IsAbsolute(target) {
		return errors.Newf(errors.CodeSecurity, "symlink target is absolute: %q -> %q", link, target)
	}
	if hasEncodedTraversal(target) || strings.Contains(target, "\\") {
		return errors.Newf(errors.CodeSecurity, "symlink target is not a plain path: %q -> %q", link, target)
	}
	if hasTraversal(target) {
		return errors.Newf(errors.CodeSecurity, "symlink target contains path traversal: %q -> %q", link, target)
	}
	return nil
}

// Clean returns the slash-separated relative form of a member name:
// leading "./" and "/" are removed and the result is cleaned. The root
// itself becomes ".".
func Clean(name string) string {
	return path.Clean(strings.TrimLeft(name, "/"))
}

// StripPrefix removes prefix from name on a component boundary. It reports
// false when name does not live under prefix.
func StripPrefix(name, prefix string) (string, bool) {
	prefix = Clean(prefix)
	name = Clean(name)
	if prefix == "." {
		return name, true
	}
	if name == prefix {
		return ".", true
	}
	if strings.HasPrefix(name, prefix+"/") {
		return name[len(prefix)+1:], true
	}
	return name, false
}

// IsAbsolute reports whether name is absolute on any common platform,
// including Windows drive letters and UNC shares.
func IsAbsolute(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	if len(name) >= 3 && name[1] == ':' && (name[2] == '\\' || name[2] == '/') {
		drive := name[0]
		if (drive >= 'A' && drive <= 'Z') || (drive >= 'a' && drive <= 'z') {
			return true
		}
	}
	return strings.HasPrefix(name, "\\\\")
}

var encodedVariants = []string{
	"..%2f", "..%5c",
	"%2e%2e%2f", "%2e%2e%5c",
	"%2e%2e/", "%2e%2e\\",
	"..%c0%af", "..%c1%9c",
}

func hasEncodedTraversal(name string) bool {
	lower := strings.ToLower(name)
	for _, variant := range encodedVariants {
		if strings.Contains(lower, variant) {
			return true
		}
	}
	return false
}

// hasTraversal looks for ".." components with either separator.
func hasTraversal(name string) bool {
	if !strings.Contains(name, "..") {
		return false
	}
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

// checkCharacters rejects NUL, control characters other than tab, LF and
// CR, DEL and invalid UTF-8.
func checkCharacters(name string) error {
	if !utf8.ValidString(name) {
		return errors.Newf(errors.CodeSecurity, "invalid UTF-8 in path: %q", name)
	}
	for _, r := range name {
		if r == 0 {
			return errors.Newf(errors.CodeSecurity, "NUL byte in path: %q", name)
		}
		if (r < 32 && r != '\t' && r != '\n' && r != '\r') || r == 127 {
			return errors.Newf(errors.CodeSecurity, "control character in path: %q (U+%04X)", name, r)
		}
	}
	return nil
}

func isHidden(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

func isWhitespaceOnly(name string) bool {
	for _, r := range name {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
