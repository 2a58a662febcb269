package relay

import (
	"math"

	"deedles.dev/wlexport/bridge"
	wl "deedles.dev/wlexport/server"
)

func (inst *Instance) addBridge() *wl.Global {
	return bridge.AddGlobal(inst.server, func(b *bridge.Bridge) {
		b.Handler = func(req bridge.Connect) error {
			return inst.connect(b, req.Surface)
		}
	})
}

// connect gives res a new ID and reports it to the client.
func (inst *Instance) connect(b *bridge.Bridge, res *wl.Surface) error {
	s, ok := inst.surfaces[res]
	if !ok {
		return nil
	}
	if inst.lastViewID == math.MaxUint32 {
		return wl.ErrNoMemory
	}

	inst.lastViewID++
	id := inst.lastViewID
	b.Connected(id)
	inst.views[id] = &view{surface: s}

	inst.logger.Debug("surface connected", "id", id, "surface", res)
	return nil
}
