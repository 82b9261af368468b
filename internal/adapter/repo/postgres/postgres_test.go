package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVectorLiteral(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "[]", vectorLiteral(nil))
	assert.Equal(t, "[1]", vectorLiteral([]float32{1}))
	assert.Equal(t, "[0.5,-0.25,3]", vectorLiteral([]float32{0.5, -0.25, 3}))
}

func TestTitleCase(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Machine Learning", titleCase("machine-learning"))
	assert.Equal(t, "Ai", titleCase("ai"))
	assert.Equal(t, "A  B", titleCase("a--b"), "empty segments keep their separator")
}
