package protocol_test

import (
	"testing"

	"github.com/conveyor-dev/conveyor/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func TestExtractOutputs(t *testing.T) {
	output := []byte("working on it\nCONVEYOR_OUTPUT:completed\nall done\n")

	names, clean := protocol.ExtractOutputs(output)
	assert.Equal(t, []string{"completed"}, names)
	assert.Equal(t, "working on it\nall done\n", string(clean))
}

func TestExtractOutputs_MultipleAndDuplicates(t *testing.T) {
	output := []byte("CONVEYOR_OUTPUT:completed\n  CONVEYOR_OUTPUT: notes \nCONVEYOR_OUTPUT:completed\n")

	names, clean := protocol.ExtractOutputs(output)
	assert.Equal(t, []string{"completed", "notes"}, names)
	assert.Empty(t, clean)
}

func TestExtractOutputs_NoMarkers(t *testing.T) {
	names, clean := protocol.ExtractOutputs([]byte("just some logs\n"))
	assert.Empty(t, names)
	assert.Equal(t, "just some logs\n", string(clean))
}
