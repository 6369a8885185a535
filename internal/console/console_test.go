package console

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsole_PlainOutputWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)

	c.Step("Checking %s", "docker")
	c.Success("ready")
	c.Warn("port %d busy", 80)
	c.Fail("boom")
	c.Detail("more")

	out := buf.String()
	assert.Contains(t, out, "\n==> Checking docker\n")
	assert.Contains(t, out, "✓ ready\n")
	assert.Contains(t, out, "! port 80 busy\n")
	assert.Contains(t, out, "✗ boom\n")
	assert.Contains(t, out, "   more\n")
	assert.NotContains(t, out, "\x1b[")
}

func TestConsole_Rule(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).Rule(3)
	assert.Equal(t, "━━━\n", buf.String())
}
