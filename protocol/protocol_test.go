package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	surface, ok := Lookup("wl_surface")
	require.True(t, ok)
	assert.Equal(t, 4, surface.Version)
	assert.Equal(t, "attach", surface.RequestName(1))
	assert.Equal(t, "commit", surface.RequestName(6))
	assert.Equal(t, "op42", surface.RequestName(42))
	assert.Equal(t, 4, surface.Since(9))
	assert.True(t, surface.Requests[0].IsDestructor())

	_, ok = Lookup("xdg_wm_base")
	assert.False(t, ok)
}

func TestEmbeddedInterfaces(t *testing.T) {
	for _, name := range []string{
		"wl_display",
		"wl_registry",
		"wl_callback",
		"wl_compositor",
		"wl_region",
		"wl_buffer",
		"wl_shm",
		"wl_shm_pool",
		"wpe_bridge",
		"zwp_linux_dmabuf_v1",
		"zwp_linux_buffer_params_v1",
		"wl_eglstream_controller",
	} {
		t.Run(name, func(t *testing.T) {
			iface, ok := Lookup(name)
			require.True(t, ok)
			assert.Positive(t, iface.Version)
		})
	}
}

func TestEnum(t *testing.T) {
	display := MustLookup("wl_display")
	errs, ok := display.Enum("error")
	require.True(t, ok)

	v, ok := errs.Value("no_memory")
	require.True(t, ok)
	assert.Equal(t, uint32(2), v)

	bridge := MustLookup("wpe_bridge")
	assert.Equal(t, "connected", bridge.EventName(0))
	assert.Equal(t, uint32(1), Version("wpe_bridge"))
}
