package fanctl

import "sort"

// Curve size bounds.
const (
	MinCurvePoints = 2
	MaxCurvePoints = 15
)

// insertGapThreshold is the minimum temperature gap, in degrees, that
// Insert will bisect.
const insertGapThreshold = 5

// Point is one (temperature, speed) control point.
type Point struct {
	Temp  int `json:"temp"`
	Speed int `json:"speed"`
}

// defaultPoints is the built-in curve applied until configuration replaces it.
var defaultPoints = []Point{
	{30, 0}, {40, 20}, {50, 35}, {60, 50}, {70, 70}, {80, 90}, {90, 100},
}

// Curve maps temperature to fan speed by linear interpolation over an
// ordered set of control points. Points are kept sorted by temperature
// after every mutation.
type Curve struct {
	points []Point
}

// NewCurve creates a curve from the given points, falling back to the
// default curve when fewer than two are supplied. Speeds are clamped to
// 0..100.
func NewCurve(points []Point) *Curve {
	c := &Curve{}
	c.SetPoints(points)
	return c
}

// DefaultCurve returns a curve with the built-in control points.
func DefaultCurve() *Curve {
	return NewCurve(nil)
}

// Points returns a copy of the control points in ascending temperature order.
func (c *Curve) Points() []Point {
	out := make([]Point, len(c.points))
	copy(out, c.points)
	return out
}

// Len returns the number of control points.
func (c *Curve) Len() int {
	return len(c.points)
}

// SetPoints replaces the whole curve. Out-of-range speeds are clamped,
// never rejected; fewer than MinCurvePoints falls back to the default
// curve; more than MaxCurvePoints is truncated after sorting.
func (c *Curve) SetPoints(points []Point) {
	if len(points) < MinCurvePoints {
		points = defaultPoints
	}
	pts := make([]Point, len(points))
	copy(pts, points)
	for i := range pts {
		pts[i].Speed = clampInt(pts[i].Speed, 0, 100)
	}
	sort.Slice(pts, func(i, j int) bool { return pts[i].Temp < pts[j].Temp })
	if len(pts) > MaxCurvePoints {
		pts = pts[:MaxCurvePoints]
	}
	c.points = pts
}

// SpeedFor returns the speed for a temperature. Below the lowest point it
// returns that point's speed, above the highest the highest point's speed;
// in between it interpolates linearly, truncating toward zero.
func (c *Curve) SpeedFor(temp int) int {
	pts := c.points
	if temp <= pts[0].Temp {
		return pts[0].Speed
	}
	last := pts[len(pts)-1]
	if temp >= last.Temp {
		return last.Speed
	}
	for i := 0; i < len(pts)-1; i++ {
		p1, p2 := pts[i], pts[i+1]
		if temp >= p1.Temp && temp <= p2.Temp {
			// Truncate the whole interpolated value toward zero, not just
			// the integer delta; the two differ on descending segments.
			s := float64(p1.Speed) + float64(temp-p1.Temp)*float64(p2.Speed-p1.Speed)/float64(p2.Temp-p1.Temp)
			return int(s)
		}
	}
	return last.Speed
}

// SetPoint replaces the point at index i and re-sorts. Out-of-range
// indexes are ignored; the speed is clamped.
func (c *Curve) SetPoint(i, temp, speed int) {
	if i < 0 || i >= len(c.points) {
		return
	}
	c.points[i] = Point{Temp: temp, Speed: clampInt(speed, 0, 100)}
	sort.Slice(c.points, func(a, b int) bool { return c.points[a].Temp < c.points[b].Temp })
}

// Insert bisects the widest gap wider than insertGapThreshold degrees,
// adding the midpoint of both axes. No-op when the curve is full or no
// such gap exists. Returns whether a point was added.
func (c *Curve) Insert() bool {
	if len(c.points) >= MaxCurvePoints {
		return false
	}
	widest, at := insertGapThreshold, -1
	for i := 0; i < len(c.points)-1; i++ {
		if gap := c.points[i+1].Temp - c.points[i].Temp; gap > widest {
			widest, at = gap, i
		}
	}
	if at < 0 {
		return false
	}
	p1, p2 := c.points[at], c.points[at+1]
	mid := Point{Temp: (p1.Temp + p2.Temp) / 2, Speed: (p1.Speed + p2.Speed) / 2}
	c.points = append(c.points[:at+1], append([]Point{mid}, c.points[at+1:]...)...)
	return true
}

// Remove deletes the point at index i, refusing to drop below
// MinCurvePoints. Returns whether a point was removed.
func (c *Curve) Remove(i int) bool {
	if len(c.points) <= MinCurvePoints {
		return false
	}
	if i < 0 || i >= len(c.points) {
		return false
	}
	c.points = append(c.points[:i], c.points[i+1:]...)
	return true
}

// Reset restores the built-in default curve.
func (c *Curve) Reset() {
	c.SetPoints(nil)
}
