package click

// Smoothstep eases from 0 at edge0 to 1 at edge1 with the 3t^2 - 2t^3
// curve, clamping outside the edges. A degenerate span (edge1 <= edge0)
// acts as a hard step at edge0.
func Smoothstep(edge0, edge1, x float64) float64 {
	if edge1 <= edge0 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := (x - edge0) / (edge1 - edge0)
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}
