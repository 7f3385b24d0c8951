package layout

import "testing"

func TestAlignTo(t *testing.T) {
	tests := []struct {
		offset, align, want uintptr
	}{
		{0, 1, 0},
		{0, 4, 0},
		{1, 1, 1},
		{1, 4, 4},
		{4, 4, 4},
		{5, 8, 8},
		{13, 2, 14},
		{7, 0, 7},
	}

	for _, tt := range tests {
		if got := AlignTo(tt.offset, tt.align); got != tt.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", tt.offset, tt.align, got, tt.want)
		}
	}
}

func TestCompute_Empty(t *testing.T) {
	info := Compute(nil)
	if info.Size != 0 || info.Align != 1 {
		t.Errorf("empty layout = {size %d, align %d}, want {0, 1}", info.Size, info.Align)
	}
}

func TestCompute_Sequential(t *testing.T) {
	// struct { a int32; b int8; c int16 } -> offsets 0, 4, 6, size 8
	info := Compute([]Field{
		{Size: 4, Align: 4},
		{Size: 1, Align: 1},
		{Size: 2, Align: 2},
	})

	want := []uintptr{0, 4, 6}
	for i, off := range want {
		if info.Offsets[i] != off {
			t.Errorf("offset[%d] = %d, want %d", i, info.Offsets[i], off)
		}
	}
	if info.Size != 8 {
		t.Errorf("size = %d, want 8", info.Size)
	}
	if info.Align != 4 {
		t.Errorf("align = %d, want 4", info.Align)
	}
}

func TestCompute_TrailingPadding(t *testing.T) {
	// struct { a int64; b int8 } -> size padded to 16
	info := Compute([]Field{
		{Size: 8, Align: 8},
		{Size: 1, Align: 1},
	})

	if info.Size != 16 {
		t.Errorf("size = %d, want 16", info.Size)
	}
	if info.Offsets[1] != 8 {
		t.Errorf("offset[1] = %d, want 8", info.Offsets[1])
	}
}

func TestCompute_InteriorPadding(t *testing.T) {
	// struct { a int8; b int64; c int32 } -> offsets 0, 8, 16, size 24
	info := Compute([]Field{
		{Size: 1, Align: 1},
		{Size: 8, Align: 8},
		{Size: 4, Align: 4},
	})

	want := []uintptr{0, 8, 16}
	for i, off := range want {
		if info.Offsets[i] != off {
			t.Errorf("offset[%d] = %d, want %d", i, info.Offsets[i], off)
		}
	}
	if info.Size != 24 {
		t.Errorf("size = %d, want 24", info.Size)
	}
}
