package workflow

import (
	"strings"

	"codeflow/internal/store"
)

// buildCommand expands the transform argv template for ref. File
// placeholders resolve to names under remoteDir, the files directory as
// seen from the sandbox host.
func buildCommand(template []string, remoteDir, ref string) []string {
	replacer := strings.NewReplacer(
		"{input}", store.RemotePath(remoteDir, store.InputName(ref)),
		"{output}", store.RemotePath(remoteDir, store.OutputName(ref)),
		"{flow}", store.RemotePath(remoteDir, store.FlowName(ref)),
		"{ref}", ref,
	)
	argv := make([]string, len(template))
	for i, arg := range template {
		argv[i] = replacer.Replace(arg)
	}
	return argv
}
