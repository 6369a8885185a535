package prompttest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/homeproxy/internal/prompt"
)

func TestScripted(t *testing.T) {
	s := NewScripted("", true, 1, []int{0}, "secret")

	v, err := s.Ask("Port", "8080", nil)
	require.NoError(t, err)
	assert.Equal(t, "8080", v)

	ok, err := s.Confirm("Sure?", false)
	require.NoError(t, err)
	assert.True(t, ok)

	i, err := s.Select("Mode", []string{"a", "b"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	sel, err := s.MultiSelect("Zones", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, sel)

	_, err = s.Confirm("Wrong kind", false)
	assert.Error(t, err)

	_, err = s.Ask("Out of answers", "", nil)
	assert.ErrorIs(t, err, prompt.ErrAborted)

	assert.Equal(t, []string{"Port", "Sure?", "Mode", "Zones", "Wrong kind", "Out of answers"}, s.Asked)
}
