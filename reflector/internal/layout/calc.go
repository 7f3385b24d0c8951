package layout

// Field is the size and alignment of one member, in declaration order.
type Field struct {
	Size  uintptr
	Align uintptr
}

// Info is a computed aggregate layout: per-member byte offsets plus the
// padded total size and alignment of the whole.
type Info struct {
	Offsets []uintptr
	Size    uintptr
	Align   uintptr
}

// AlignTo rounds offset up to the next multiple of align.
func AlignTo(offset, align uintptr) uintptr {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Compute lays the fields out sequentially: each member is aligned to its own
// alignment, and the total is padded to the maximum member alignment. This is
// the stand-in layout a reflected aggregate is checked against; a type whose
// true layout disagrees cannot be described member-by-member.
func Compute(fields []Field) Info {
	if len(fields) == 0 {
		return Info{Align: 1}
	}

	offsets := make([]uintptr, len(fields))
	maxAlign := uintptr(1)
	offset := uintptr(0)

	for i, f := range fields {
		offset = AlignTo(offset, f.Align)
		offsets[i] = offset

		if f.Align > maxAlign {
			maxAlign = f.Align
		}

		offset += f.Size
	}

	return Info{
		Offsets: offsets,
		Size:    AlignTo(offset, maxAlign),
		Align:   maxAlign,
	}
}
