package platform

import (
	"os"
	"strings"
)

// resolveIdentity recovers a display name and an executable path from a
// possibly truncated short name and the flattened command line of a process.
// It is used when the executable link of the process cannot be read.
//
// A path is only reported if exists accepts it. ok is false when neither a
// short name nor a command line is available.
func resolveIdentity(partial, cmdline string, exists func(string) bool) (name, path string, ok bool) {
	if exists == nil {
		exists = fileExists
	}

	// The short name usually appears in the command line, possibly cut off.
	// Widen it to the surrounding whitespace-delimited token.
	if partial != "" {
		if start := strings.Index(cmdline, partial); start != -1 {
			startSpace := strings.LastIndexByte(cmdline[:start], ' ')
			endSpace := len(cmdline)
			if i := strings.IndexByte(cmdline[start+len(partial):], ' '); i != -1 {
				endSpace = start + len(partial) + i
			}

			// The last occurrence inside the token is the base name.
			start = strings.LastIndex(cmdline[:endSpace], partial)
			name = strings.TrimSuffix(cmdline[start:endSpace], ":")

			candidate := strings.TrimSuffix(cmdline[startSpace+1:endSpace], ":")
			if exists(candidate) {
				path = candidate
			}
			return name, path, true
		}
	}

	// Otherwise the first token of the command line is taken as the binary.
	space := strings.IndexByte(cmdline, ' ')
	if space == -1 {
		space = len(cmdline)
	}
	if space > 0 {
		candidate := cmdline[:space]
		name = candidate[strings.LastIndexByte(candidate, '/')+1:]
		if exists(candidate) {
			path = candidate
		}
		return name, path, true
	}

	// No command line at all: the short name is the best there is.
	if partial != "" {
		return partial, "", true
	}
	return "", "", false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
