// Package sound picks actuator sound filenames from the fixed catalog the
// on-device gateway expects on disk, relative to its own working directory.
package sound

import (
	"fmt"
	"math/rand"
)

const (
	winCount        = 8
	loseCount       = 6
	greenPressCount = 7
)

// Win returns a uniformly random win sound path, "sounds/win/win1.wav".."win8.wav".
func Win(r *rand.Rand) string {
	return fmt.Sprintf("sounds/win/win%d.wav", r.Intn(winCount)+1)
}

// Lose returns a uniformly random lose sound path, "sounds/lose/lose1.wav".."lose6.wav".
func Lose(r *rand.Rand) string {
	return fmt.Sprintf("sounds/lose/lose%d.wav", r.Intn(loseCount)+1)
}

// GreenPress returns a uniformly random "correct press" cue path.
func GreenPress(r *rand.Rand) string {
	return fmt.Sprintf("sounds/on_green_press/green-press%d.wav", r.Intn(greenPressCount)+1)
}
