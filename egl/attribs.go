package egl

import (
	"deedles.dev/wlexport/dmabuf"
)

const (
	None   = 0x3038
	Width  = 0x3057
	Height = 0x3056

	LinuxDRMFourCC      = 0x3271
	TargetLinuxDMABuf   = 0x3270
	TargetWaylandBuffer = 0x31D5
)

// Per-plane dma-buf attribute names, indexed by plane.
var (
	PlaneFD         = [dmabuf.MaxPlanes]int32{0x3272, 0x3275, 0x3278, 0x3440}
	PlaneOffset     = [dmabuf.MaxPlanes]int32{0x3273, 0x3276, 0x3279, 0x3441}
	PlanePitch      = [dmabuf.MaxPlanes]int32{0x3274, 0x3277, 0x327A, 0x3442}
	PlaneModifierLo = [dmabuf.MaxPlanes]int32{0x3443, 0x3445, 0x3447, 0x3449}
	PlaneModifierHi = [dmabuf.MaxPlanes]int32{0x3444, 0x3446, 0x3448, 0x344A}
)

// DMABufAttribs builds the attribute list used to import a dma-buf
// with TargetLinuxDMABuf. The list is terminated by None.
func DMABufAttribs(attr dmabuf.Attributes) []int32 {
	attribs := make([]int32, 0, 6+10*attr.Planes+1)
	attribs = append(attribs,
		Width, attr.Width,
		Height, attr.Height,
		LinuxDRMFourCC, int32(attr.Format),
	)

	for i := range attr.Planes {
		mod := attr.Modifier[i]
		attribs = append(attribs,
			PlaneFD[i], int32(attr.FD[i]),
			PlaneOffset[i], int32(attr.Offset[i]),
			PlanePitch[i], int32(attr.Stride[i]),
			PlaneModifierLo[i], int32(uint32(mod&0xFFFFFFFF)),
			PlaneModifierHi[i], int32(uint32(mod>>32)),
		)
	}

	return append(attribs, None)
}

// ParseDMABufAttribs is the inverse of DMABufAttribs. FDs are
// returned as given and are not owned by the result.
func ParseDMABufAttribs(attribs []int32) (attr dmabuf.Attributes, ok bool) {
	var mods [dmabuf.MaxPlanes][2]uint32
	for i := 0; i < len(attribs); i += 2 {
		k := attribs[i]
		if k == None {
			for p := range attr.Planes {
				attr.Modifier[p] = (uint64(mods[p][1]) << 32) | uint64(mods[p][0])
			}
			return attr, true
		}
		if i+1 >= len(attribs) {
			return attr, false
		}
		v := attribs[i+1]

		switch k {
		case Width:
			attr.Width = v
		case Height:
			attr.Height = v
		case LinuxDRMFourCC:
			attr.Format = uint32(v)
		default:
			p, field := planeAttrib(k)
			if p < 0 {
				return attr, false
			}
			attr.Planes = max(attr.Planes, p+1)
			switch field {
			case 0:
				attr.FD[p] = int(v)
			case 1:
				attr.Offset[p] = uint32(v)
			case 2:
				attr.Stride[p] = uint32(v)
			case 3:
				mods[p][0] = uint32(v)
			case 4:
				mods[p][1] = uint32(v)
			}
		}
	}
	return attr, false
}

func planeAttrib(k int32) (plane, field int) {
	for p := range dmabuf.MaxPlanes {
		for f, names := range [][dmabuf.MaxPlanes]int32{PlaneFD, PlaneOffset, PlanePitch, PlaneModifierLo, PlaneModifierHi} {
			if names[p] == k {
				return p, f
			}
		}
	}
	return -1, -1
}
