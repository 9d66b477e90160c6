package console

import "unsafe"

// VGAText is a Sink that renders bytes onto an 80x25 EGA-compatible text
// mode framebuffer, identity-mapped at FBPhysAddr (conventionally 0xb8000).
// Grounded on
// _examples/gopher-os-gopher-os/src/gopheros/device/video/console/vga_text.go,
// reduced to exactly the io.Writer surface spec.md's console component
// needs — no Fill/Scroll/palette API, since those are screen-editing
// concerns the "UART/VGA/framebuffer console sinks" Non-goal excludes; this
// sink only needs to stream printk-style lines.
type VGAText struct {
	cols, rows uint32
	fbPhysAddr uintptr

	col, row uint32
	attr     byte
}

const defaultVGAAttr = 0x07 // light grey on black

// NewVGAText returns a VGAText sink rendering into fbPhysAddr, a
// columns x rows character grid.
func NewVGAText(columns, rows uint32, fbPhysAddr uintptr) *VGAText {
	return &VGAText{cols: columns, rows: rows, fbPhysAddr: fbPhysAddr, attr: defaultVGAAttr}
}

func (v *VGAText) cell(row, col uint32) *uint16 {
	off := (uintptr(row)*uintptr(v.cols) + uintptr(col)) * 2
	return (*uint16)(unsafe.Pointer(v.fbPhysAddr + off))
}

func (v *VGAText) putc(ch byte) {
	if ch == '\n' {
		v.col, v.row = 0, v.row+1
	} else {
		*v.cell(v.row, v.col) = uint16(v.attr)<<8 | uint16(ch)
		v.col++
	}

	if v.col >= v.cols {
		v.col, v.row = 0, v.row+1
	}
	if v.row >= v.rows {
		v.scroll()
		v.row = v.rows - 1
	}
}

func (v *VGAText) scroll() {
	for row := uint32(1); row < v.rows; row++ {
		for col := uint32(0); col < v.cols; col++ {
			*v.cell(row-1, col) = *v.cell(row, col)
		}
	}
	clear := uint16(v.attr)<<8 | uint16(' ')
	for col := uint32(0); col < v.cols; col++ {
		*v.cell(v.rows-1, col) = clear
	}
}

// Write implements Sink, rendering every byte of p onto the text grid.
func (v *VGAText) Write(p []byte) (int, error) {
	for _, b := range p {
		v.putc(b)
	}
	return len(p), nil
}
