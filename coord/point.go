package coord

// Point is a machine coordinate in millimetres.
type Point struct{ X, Y, Z float64 }

// Axes lists the axis letters a Point carries, in report order.
const Axes = "XYZ"

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}

// Get returns the value for the named axis.
func (p Point) Get(axis byte) (float64, bool) {
	switch axis {
	case 'X', 'x':
		return p.X, true
	case 'Y', 'y':
		return p.Y, true
	case 'Z', 'z':
		return p.Z, true
	}
	return 0, false
}

// Set returns a copy of p with the named axis replaced.
// Unknown axes leave p unchanged.
func (p Point) Set(axis byte, v float64) Point {
	switch axis {
	case 'X', 'x':
		p.X = v
	case 'Y', 'y':
		p.Y = v
	case 'Z', 'z':
		p.Z = v
	}
	return p
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}
