package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJoinPorts(t *testing.T) {
	assert.Equal(t, "80, 443", joinPorts([]int{80, 443}))
	assert.Equal(t, "8080", joinPorts([]int{8080}))
	assert.Equal(t, "", joinPorts(nil))
}
