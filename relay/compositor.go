package relay

import (
	wl "deedles.dev/wlexport/server"
)

const compositorVersion = 4

func (inst *Instance) addCompositor() *wl.Global {
	return inst.server.AddGlobal(wl.CompositorInterface, compositorVersion, func(c *wl.Client, version, id uint32) error {
		comp, err := wl.NewCompositor(c, version, id)
		if err != nil {
			return err
		}

		comp.Handler = func(req wl.CompositorRequest) error {
			switch req := req.(type) {
			case wl.CompositorCreateSurface:
				inst.newSurface(req.Surface)
			case wl.CompositorCreateRegion:
				// Regions are accepted and ignored.
			}
			return nil
		}
		return nil
	})
}
