package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDiff_NoChanges(t *testing.T) {
	v := map[string]string{"cpu.cpu_socket(s)": "2"}
	out, err := RenderDiff("cached", v, "current", v, false)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestRenderDiff_ReportsChangedKey(t *testing.T) {
	from := map[string]string{"memory.memtotal": "1024", "uname.machine": "x86_64"}
	to := map[string]string{"memory.memtotal": "2048", "uname.machine": "x86_64"}

	out, err := RenderDiff("cached", from, "current", to, false)
	require.NoError(t, err)
	assert.Contains(t, out, "memory.memtotal")
	assert.Contains(t, out, "2048")
	assert.NotContains(t, out, "uname.machine")
}
