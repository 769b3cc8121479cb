package store

import (
	"path"
	"path/filepath"
	"strings"
)

const (
	inputSuffix  = "_o.c"
	outputSuffix = "_t.c"
	flowSuffix   = "_t.json"
)

// Layout derives artifact file names and paths from a content reference.
type Layout struct {
	Dir string
}

// InputName returns the original input file name for ref.
func InputName(ref string) string { return ref + inputSuffix }

// OutputName returns the transformed output file name for ref.
func OutputName(ref string) string { return ref + outputSuffix }

// FlowName returns the structured byproduct file name for ref.
func FlowName(ref string) string { return ref + flowSuffix }

// InputPath returns the absolute path of the original input.
func (l Layout) InputPath(ref string) string { return filepath.Join(l.Dir, InputName(ref)) }

// OutputPath returns the absolute path of the transformed output.
func (l Layout) OutputPath(ref string) string { return filepath.Join(l.Dir, OutputName(ref)) }

// FlowPath returns the absolute path of the structured byproduct.
func (l Layout) FlowPath(ref string) string { return filepath.Join(l.Dir, FlowName(ref)) }

// All returns every path that may exist for ref.
func (l Layout) All(ref string) []string {
	return []string{l.InputPath(ref), l.OutputPath(ref), l.FlowPath(ref)}
}

// RemotePath joins a file name onto a directory as seen by another host.
// Forward slashes are used regardless of the local OS.
func RemotePath(dir, name string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return name
	}
	return path.Join(dir, name)
}

// ValidRef reports whether ref is safe to embed in a file name.
func ValidRef(ref string) bool {
	if ref == "" || len(ref) > 64 {
		return false
	}
	for _, r := range ref {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
