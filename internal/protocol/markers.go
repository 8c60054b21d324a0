// Package protocol defines the line-oriented completion protocol between
// the agent command and the engine adapter.
package protocol

import (
	"bytes"
	"strings"
)

const OutputPrefix = "CONVEYOR_OUTPUT:"

// ExtractOutputs scans agent output for CONVEYOR_OUTPUT:<name> lines.
// Returns the named outputs in order of first appearance and the output
// with all marker lines removed.
func ExtractOutputs(output []byte) (names []string, cleanOutput []byte) {
	seen := make(map[string]bool)
	var clean [][]byte
	for _, line := range bytes.Split(output, []byte("\n")) {
		trimmed := strings.TrimSpace(string(line))
		if strings.HasPrefix(trimmed, OutputPrefix) {
			name := strings.TrimSpace(trimmed[len(OutputPrefix):])
			if name != "" && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		} else {
			clean = append(clean, line)
		}
	}
	joined := bytes.Join(clean, []byte("\n"))
	joined = bytes.TrimRight(joined, "\n")
	if len(joined) > 0 {
		joined = append(joined, '\n')
	}
	return names, joined
}
