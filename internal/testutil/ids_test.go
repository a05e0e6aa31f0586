package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs("")
	assert.Equal(t, "session-1", g.Generate())
	assert.Equal(t, "session-2", g.Generate())

	p := NewSequentialIDs("prop")
	assert.Equal(t, "prop-1", p.Generate())
}
