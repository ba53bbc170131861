package memmod

import "testing"

func TestAlignUpDown(t *testing.T) {
	cases := []struct {
		value, alignment, down, up uintptr
	}{
		{0, 0x1000, 0, 0},
		{1, 0x1000, 0, 0x1000},
		{0x1000, 0x1000, 0x1000, 0x1000},
		{0x1001, 0x1000, 0x1000, 0x2000},
		{0xfff, 0x1000, 0, 0x1000},
	}
	for _, c := range cases {
		if got := alignDown(c.value, c.alignment); got != c.down {
			t.Errorf("alignDown(%#x, %#x) = %#x, want %#x", c.value, c.alignment, got, c.down)
		}
		if got := alignUp(c.value, c.alignment); got != c.up {
			t.Errorf("alignUp(%#x, %#x) = %#x, want %#x", c.value, c.alignment, got, c.up)
		}
	}
}

func TestAddressListFreeNilSafe(t *testing.T) {
	var list *addressList
	list.free() // must not panic on an empty list
}
