package verify

import (
	"fmt"

	"faceattend/internal/match"
)

// User-facing prompts. NoFace and MultipleFaces events only update the
// message; they never change session state.
const (
	MsgNoFace        = "no face detected, center your face in the frame"
	MsgHold          = "hold still"
	MsgLowSimilarity = "low similarity, retry with better framing or lighting"
	MsgNoMatch       = "face does not match the enrolled reference"
)

// MultipleFacesMessage prompts everyone but the subject to step out of frame.
func MultipleFacesMessage(count int) string {
	return fmt.Sprintf("%d faces in frame, only one person may be visible", count)
}

// RejectMessage picks the feedback tier for a rejected comparison. The tier
// affects messaging only, never the accept decision.
func RejectMessage(res match.Result) string {
	if res.LowSimilarity() {
		return MsgLowSimilarity
	}
	return MsgNoMatch
}
