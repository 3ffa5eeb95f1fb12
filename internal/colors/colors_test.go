package colors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorizeToggle(t *testing.T) {
	prev := IsColorEnabled()
	defer SetColorEnabled(prev)

	SetColorEnabled(false)
	assert.Equal(t, "3", Version(3))
	assert.Equal(t, "abcd", Hash("abcdef", 4))
	assert.Equal(t, "abcdef", Hash("abcdef", 0))

	SetColorEnabled(true)
	assert.Equal(t, BrightYellow+"abcd"+ColorReset, Hash("abcdef", 4))
	assert.Equal(t, BrightRed+"x"+ColorReset, ErrorText("x"))
}
