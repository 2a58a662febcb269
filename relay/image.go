package relay

import (
	"deedles.dev/wlexport/dmabuf"
	"deedles.dev/wlexport/egl"
	wl "deedles.dev/wlexport/server"
)

// CreateImage imports a legacy buffer. It returns egl.NoImage if no
// display is bound or the import fails.
func (inst *Instance) CreateImage(buf *wl.Buffer) egl.Image {
	if (inst.display == nil) || (inst.createImage == nil) {
		return egl.NoImage
	}
	return inst.createImage(egl.TargetWaylandBuffer, buf, nil)
}

// CreateDMABufImage imports a dma-buf buffer. It returns egl.NoImage
// if no display is bound or the import fails.
func (inst *Instance) CreateDMABufImage(buf *dmabuf.Buffer) egl.Image {
	if (inst.display == nil) || (inst.createImage == nil) {
		return egl.NoImage
	}
	return inst.createImage(egl.TargetLinuxDMABuf, nil, egl.DMABufAttribs(buf.Attributes()))
}

// DestroyImage frees an image returned by CreateImage or
// CreateDMABufImage.
func (inst *Instance) DestroyImage(img egl.Image) {
	if (inst.display == nil) || (inst.destroyImage == nil) || (img == egl.NoImage) {
		return
	}
	inst.destroyImage(img)
}
