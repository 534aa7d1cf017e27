package layout

import "math"

// Area returns width times height.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Centroid returns the centre point of the box.
func (b BoundingBox) Centroid() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// OverlapArea returns the area of the intersection of a and b, or 0 when
// they do not intersect.
func OverlapArea(a, b BoundingBox) float64 {
	left := math.Max(a.X, b.X)
	right := math.Min(a.X+a.Width, b.X+b.Width)
	top := math.Max(a.Y, b.Y)
	bottom := math.Min(a.Y+a.Height, b.Y+b.Height)

	if right <= left || bottom <= top {
		return 0
	}
	return (right - left) * (bottom - top)
}

// IsContained reports whether inner lies entirely within outer. Edges may touch.
func IsContained(inner, outer BoundingBox) bool {
	return inner.X >= outer.X &&
		inner.Y >= outer.Y &&
		inner.X+inner.Width <= outer.X+outer.Width &&
		inner.Y+inner.Height <= outer.Y+outer.Height
}

// CentroidDistance is the Euclidean distance between box centres.
func CentroidDistance(a, b BoundingBox) float64 {
	ax, ay := a.Centroid()
	bx, by := b.Centroid()
	return math.Hypot(ax-bx, ay-by)
}

// Union returns the minimal box covering all boxes. An empty list yields the
// zero box.
func Union(boxes ...BoundingBox) BoundingBox {
	if len(boxes) == 0 {
		return BoundingBox{}
	}

	minX, minY := boxes[0].X, boxes[0].Y
	maxX, maxY := boxes[0].X+boxes[0].Width, boxes[0].Y+boxes[0].Height
	for _, b := range boxes[1:] {
		minX = math.Min(minX, b.X)
		minY = math.Min(minY, b.Y)
		maxX = math.Max(maxX, b.X+b.Width)
		maxY = math.Max(maxY, b.Y+b.Height)
	}

	return BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
