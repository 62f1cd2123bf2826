package gamify

// XPPerLevel is the fixed XP quantum between levels.
const XPPerLevel = 100

// Award sizes for completion events. Reversals use the same magnitudes.
const (
	XPPerTask    = 50
	XPPerSubtask = 10
)

// Level maps accumulated XP to a level. Callers clamp negative XP to
// zero before calling.
func Level(xp int) int {
	return xp/XPPerLevel + 1
}

// ProgressPercent returns progress within the current level, 0-100.
func ProgressPercent(xp int) int {
	floor := (Level(xp) - 1) * XPPerLevel
	p := 100 * (xp - floor) / XPPerLevel
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// XPToNextLevel returns how far the member is from the next level boundary.
func XPToNextLevel(xp int) int {
	ceiling := Level(xp) * XPPerLevel
	return ceiling - xp
}
