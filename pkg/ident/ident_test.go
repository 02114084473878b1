package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	id, err := Generate("MoistureSensor", 4)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(id, "MoistureSensor-"))
	assert.Len(t, id, len("MoistureSensor-")+8)

	other, err := Generate("MoistureSensor", 4)
	require.NoError(t, err)
	assert.NotEqual(t, id, other)
}
