package roadquality

import "math"

// NormalizeAngle folds an angle into [0, 360) and then maps [315, 360) onto
// [-45, 0), so the forward cone is contiguous around zero.
func NormalizeAngle(deg float64) float64 {
	if deg < 0 || deg >= 360 {
		deg = math.Mod(deg, 360)
		if deg < 0 {
			deg += 360
		}
	}
	if deg >= 315 {
		return deg - 360
	}
	return deg
}
