// Package hexagon provides integer hex-grid coordinate math on axial
// coordinates (q, r), with the third cube coordinate s derived as -q-r.
//
// All operations are pure functions over the coordinate domain: they never
// fail, never mutate their receivers, and share no state. The six neighbor
// directions are enumerated in a fixed clockwise order; consumers that index
// into directions rely on that order being stable.
package hexagon

// Hex is a whole-number point in hex space, in axial coordinates.
// It can also be read as a vector from Center; Add and Sub treat it as one.
type Hex struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// Center is the origin of the coordinate system and the map center.
var Center = Hex{0, 0}

// Directions are the 6 hexes adjacent to Center, in fixed clockwise order.
var Directions = [6]Hex{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// S returns the implicit third cube coordinate.
func (h Hex) S() int {
	return -h.Q - h.R
}

// Add returns the vector sum of h and other.
func (h Hex) Add(other Hex) Hex {
	return Hex{Q: h.Q + other.Q, R: h.R + other.R}
}

// Sub returns the vector difference of h and other.
func (h Hex) Sub(other Hex) Hex {
	return Hex{Q: h.Q - other.Q, R: h.R - other.R}
}

// Neighbors returns the 6 adjacent hexes in the order of Directions.
func (h Hex) Neighbors() [6]Hex {
	var result [6]Hex
	for i, dir := range Directions {
		result[i] = h.Add(dir)
	}
	return result
}

// Distance returns the number of steps between a and b: the maximum of the
// absolute cube-coordinate deltas. It is symmetric, non-negative, and zero
// iff a == b.
func Distance(a, b Hex) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	max := dq
	if dr > max {
		max = dr
	}
	if ds > max {
		max = ds
	}
	return max
}

// Range returns all hexes within the given distance of center, including
// center itself, in a deterministic order. A negative radius yields nil;
// radius 0 yields only the center.
func Range(center Hex, radius int) []Hex {
	if radius < 0 {
		return nil
	}
	result := make([]Hex, 0, 1+3*radius*(radius+1))
	for q := -radius; q <= radius; q++ {
		lo := -radius
		if -q-radius > lo {
			lo = -q - radius
		}
		hi := radius
		if -q+radius < hi {
			hi = -q + radius
		}
		for r := lo; r <= hi; r++ {
			result = append(result, center.Add(Hex{Q: q, R: r}))
		}
	}
	return result
}

// Ring returns the hexes at exactly the given distance from center, in a
// deterministic order. A negative radius yields nil; radius 0 yields only
// the center.
func Ring(center Hex, radius int) []Hex {
	if radius < 0 {
		return nil
	}
	if radius == 0 {
		return []Hex{center}
	}
	result := make([]Hex, 0, 6*radius)
	hex := center
	for i := 0; i < radius; i++ {
		hex = hex.Add(Directions[4])
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < radius; j++ {
			result = append(result, hex)
			hex = hex.Add(Directions[i])
		}
	}
	return result
}

// Rotate returns the hex given by rotating h about Center by 60 degrees per
// rotation. Positive rotations go clockwise, negative counter-clockwise.
func Rotate(h Hex, rotations int) Hex {
	for ; rotations > 0; rotations-- {
		h = Hex{Q: -h.R, R: -h.S()}
	}
	for ; rotations < 0; rotations++ {
		h = Hex{Q: -h.S(), R: -h.Q}
	}
	return h
}

// Line is a lazy, restartable cursor over the hexes continuing the straight
// line that intersects an origin hex and one of its neighbors. The cursor
// starts past the neighbor and advances indefinitely; callers impose their
// own bound by how often they call Next.
type Line struct {
	start Hex
	dir   Hex
	cur   Hex
}

// NewLine returns a line cursor from origin through the adjacent hex
// through. The first Next yields the hex directly beyond through.
// Behavior is only meaningful when through is a neighbor of origin.
func NewLine(origin, through Hex) *Line {
	return &Line{start: through, dir: through.Sub(origin), cur: through}
}

// Next advances the cursor and returns the next hex on the line.
func (l *Line) Next() Hex {
	l.cur = l.cur.Add(l.dir)
	return l.cur
}

// Reset rewinds the cursor so the next call to Next yields the first hex
// past the line's defining neighbor again.
func (l *Line) Reset() {
	l.cur = l.start
}

// FromOffset converts offset (x, y) coordinates to a Hex. Offset pairs are
// the format the on-disk map files use.
func FromOffset(x, y int) Hex {
	q := x - (y-(y&1))/2
	return Hex{Q: q, R: y}
}

// Offset returns the offset (x, y) coordinates of h.
func (h Hex) Offset() (x, y int) {
	x = h.Q + (h.R-(h.R&1))/2
	return x, h.R
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
