package mathx

import "testing"

func TestFloorDivMod(t *testing.T) {
	cases := []struct{ a, b, q, m int }{
		{7, 4, 1, 3},
		{-1, 4, -1, 3},
		{-4, 4, -1, 0},
		{-5, 4, -2, 3},
		{0, 16, 0, 0},
	}
	for _, c := range cases {
		if q := FloorDiv(c.a, c.b); q != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, q, c.q)
		}
		if m := Mod(c.a, c.b); m != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, m, c.m)
		}
		if c.q*c.b+c.m != c.a {
			t.Fatalf("identity broken for %+v", c)
		}
	}
}

func TestHash2_StableAndUnitRange(t *testing.T) {
	if Hash2(1, 2, 3) != Hash2(1, 2, 3) {
		t.Fatalf("Hash2 not deterministic")
	}
	if Hash2(1, 2, 3) == Hash2(1, 3, 2) {
		t.Fatalf("Hash2 symmetric in x/z")
	}
	for x := -50; x < 50; x++ {
		u := Unit(Hash2(42, x, -x))
		if u < 0 || u >= 1 {
			t.Fatalf("Unit=%v out of range", u)
		}
	}
}

func TestSmoothstepEnds(t *testing.T) {
	if Smoothstep(0) != 0 || Smoothstep(1) != 1 || Smoothstep(0.5) != 0.5 {
		t.Fatalf("smoothstep ends wrong")
	}
	if Lerp(2, 6, 0.25) != 3 {
		t.Fatalf("Lerp=%v want 3", Lerp(2, 6, 0.25))
	}
}
