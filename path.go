// This file implements filename-to-on-disk-path sanitization.
package tftp

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned by SanitizePath when the resulting path
// would fall outside dir.
var ErrPathEscape = fmt.Errorf("tftp: path escapes configured directory")

// SanitizePath turns a client-supplied filename into an absolute path
// inside dir, in five steps:
//  1. strip a Windows drive specifier (X:) if present
//  2. strip leading '/' or '\'
//  3. replace the foreign separator with the host separator
//  4. join to dir
//  5. reject if any component is ".." or the result escapes dir
func SanitizePath(dir, filename string) (string, error) {
	name := filename
	if len(name) >= 2 && name[1] == ':' && isASCIILetter(name[0]) {
		name = name[2:]
	}
	name = strings.TrimLeft(name, "/\\")
	name = strings.ReplaceAll(name, foreignSeparator(), string(filepath.Separator))

	for _, part := range strings.Split(name, string(filepath.Separator)) {
		if part == ".." {
			return "", ErrPathEscape
		}
	}

	base, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(base, name)

	rel, err := filepath.Rel(base, joined)
	if err != nil {
		return "", ErrPathEscape
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathEscape
	}
	return joined, nil
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func foreignSeparator() string {
	if filepath.Separator == '/' {
		return "\\"
	}
	return "/"
}
