package hexagon

import "testing"

func TestS(t *testing.T) {
	cases := []struct {
		hex  Hex
		want int
	}{
		{Hex{0, 0}, 0},
		{Hex{1, 0}, -1},
		{Hex{-2, 3}, -1},
		{Hex{5, -2}, -3},
	}
	for _, c := range cases {
		if got := c.hex.S(); got != c.want {
			t.Errorf("S(%v) = %d, want %d", c.hex, got, c.want)
		}
	}
}

func TestNeighborsOrder(t *testing.T) {
	origin := Hex{Q: 2, R: -1}
	ngbrs := origin.Neighbors()
	if len(ngbrs) != 6 {
		t.Fatalf("expected 6 neighbors, got %d", len(ngbrs))
	}
	for i, n := range ngbrs {
		want := origin.Add(Directions[i])
		if n != want {
			t.Errorf("neighbor %d = %v, want %v", i, n, want)
		}
		if Distance(origin, n) != 1 {
			t.Errorf("neighbor %d at distance %d", i, Distance(origin, n))
		}
	}
	// Directions must sum to zero, being three opposite pairs.
	var sum Hex
	for _, d := range Directions {
		sum = sum.Add(d)
	}
	if sum != Center {
		t.Errorf("directions sum to %v, want %v", sum, Center)
	}
}

func TestDistance(t *testing.T) {
	cases := []struct {
		a, b Hex
		want int
	}{
		{Hex{0, 0}, Hex{0, 0}, 0},
		{Hex{0, 0}, Hex{1, 0}, 1},
		{Hex{0, 0}, Hex{2, -1}, 2},
		{Hex{0, 0}, Hex{-3, 3}, 3},
		{Hex{1, 2}, Hex{1, 2}, 0},
		{Hex{-2, 1}, Hex{3, -1}, 5},
	}
	for _, c := range cases {
		if got := Distance(c.a, c.b); got != c.want {
			t.Errorf("Distance(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
		if got := Distance(c.b, c.a); got != c.want {
			t.Errorf("Distance(%v, %v) = %d, want %d (asymmetric)", c.b, c.a, got, c.want)
		}
	}
}

func TestRange(t *testing.T) {
	if got := Range(Center, -1); got != nil {
		t.Errorf("Range(-1) = %v, want nil", got)
	}
	if got := Range(Center, 0); len(got) != 1 || got[0] != Center {
		t.Errorf("Range(0) = %v, want just the center", got)
	}
	center := Hex{Q: 3, R: -2}
	for radius := 1; radius <= 4; radius++ {
		got := Range(center, radius)
		want := 1 + 3*radius*(radius+1)
		if len(got) != want {
			t.Fatalf("Range(radius=%d): %d hexes, want %d", radius, len(got), want)
		}
		seen := make(map[Hex]bool, len(got))
		for _, h := range got {
			if seen[h] {
				t.Fatalf("Range(radius=%d): duplicate %v", radius, h)
			}
			seen[h] = true
			if d := Distance(center, h); d > radius {
				t.Errorf("Range(radius=%d): %v at distance %d", radius, h, d)
			}
		}
	}
}

func TestRing(t *testing.T) {
	if got := Ring(Center, -1); got != nil {
		t.Errorf("Ring(-1) = %v, want nil", got)
	}
	if got := Ring(Center, 0); len(got) != 1 || got[0] != Center {
		t.Errorf("Ring(0) = %v, want just the center", got)
	}
	center := Hex{Q: -1, R: 4}
	for radius := 1; radius <= 4; radius++ {
		got := Ring(center, radius)
		if len(got) != 6*radius {
			t.Fatalf("Ring(radius=%d): %d hexes, want %d", radius, len(got), 6*radius)
		}
		seen := make(map[Hex]bool, len(got))
		for _, h := range got {
			if seen[h] {
				t.Fatalf("Ring(radius=%d): duplicate %v", radius, h)
			}
			seen[h] = true
			if d := Distance(center, h); d != radius {
				t.Errorf("Ring(radius=%d): %v at distance %d", radius, h, d)
			}
		}
	}
}

func TestRotate(t *testing.T) {
	h := Hex{Q: 3, R: -1}
	if got := Rotate(h, 0); got != h {
		t.Errorf("Rotate 0 = %v, want %v", got, h)
	}
	if got := Rotate(h, 6); got != h {
		t.Errorf("full rotation = %v, want %v", got, h)
	}
	// Three rotations mirror through the center.
	if got, want := Rotate(h, 3), (Hex{Q: -3, R: 1}); got != want {
		t.Errorf("Rotate 3 = %v, want %v", got, want)
	}
	if got := Rotate(Rotate(h, 2), -2); got != h {
		t.Errorf("rotate and unrotate = %v, want %v", got, h)
	}
	if d := Distance(Center, Rotate(h, 1)); d != Distance(Center, h) {
		t.Errorf("rotation changed distance to center: %d", d)
	}
}

func TestLine(t *testing.T) {
	origin := Hex{Q: 0, R: 0}
	through := Hex{Q: 1, R: 0}
	line := NewLine(origin, through)
	want := []Hex{{2, 0}, {3, 0}, {4, 0}}
	for i, w := range want {
		if got := line.Next(); got != w {
			t.Errorf("Next %d = %v, want %v", i, got, w)
		}
	}
	line.Reset()
	if got := line.Next(); got != want[0] {
		t.Errorf("Next after Reset = %v, want %v", got, want[0])
	}
}

func TestLineBehindTarget(t *testing.T) {
	// The first hex yielded is the landing tile for a push: one past the
	// pushed neighbor, along the actor-to-target line.
	actor := Hex{Q: 2, R: -3}
	for _, dir := range Directions {
		target := actor.Add(dir)
		line := NewLine(actor, target)
		landing := line.Next()
		if got, want := landing, target.Add(dir); got != want {
			t.Errorf("landing behind %v = %v, want %v", target, got, want)
		}
		if Distance(actor, landing) != 2 {
			t.Errorf("landing %v at distance %d from actor", landing, Distance(actor, landing))
		}
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	for q := -5; q <= 5; q++ {
		for r := -5; r <= 5; r++ {
			h := Hex{Q: q, R: r}
			x, y := h.Offset()
			if got := FromOffset(x, y); got != h {
				t.Errorf("offset round trip %v -> (%d,%d) -> %v", h, x, y, got)
			}
		}
	}
}

func TestFromOffset(t *testing.T) {
	cases := []struct {
		x, y int
		want Hex
	}{
		{0, 0, Hex{0, 0}},
		{1, 0, Hex{1, 0}},
		{0, 1, Hex{0, 1}},
		{0, 2, Hex{-1, 2}},
		{-1, -2, Hex{0, -2}},
	}
	for _, c := range cases {
		if got := FromOffset(c.x, c.y); got != c.want {
			t.Errorf("FromOffset(%d, %d) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}
