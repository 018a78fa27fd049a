package generative

import (
	"fmt"
	"strings"

	"github.com/longregen/reprompt/internal/domain/models"
	"github.com/longregen/reprompt/internal/ports"
)

const describeSystemPrompt = `You write prompts for a text-to-image model.
Given an image, reply with a single prompt that would reproduce it as closely as possible:
subject, composition, style, medium, lighting, colors and camera details.
Reply with the prompt only, no preamble.`

const describeUserPrompt = "Write a text-to-image prompt for this image."

const refineSystemPrompt = `You improve prompts for a text-to-image model.
You are shown a reference image and an image generated from the current prompt,
together with a similarity score between 0 and 1. Rewrite the prompt so the next
generated image is closer to the reference. Reply with the new prompt only.`

func refineUserPrompt(req ports.RefineRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Iteration %d. Current prompt:\n%s\n\n", req.Iteration, req.CurrentPrompt)
	fmt.Fprintf(&b, "Similarity to the reference: %.3f.\n", req.Score)
	b.WriteString("The first image is the reference, the second was generated from the current prompt.")
	return b.String()
}

// historyTurn renders one earlier entry of the stream as a user turn
// followed by the prompt that was in use.
func historyTurn(e models.HistoryEntry) (user, assistant string) {
	switch e.Type {
	case models.EntryError:
		user = fmt.Sprintf("Iteration %d scored %.3f (the previous refinement failed, prompt retained).", e.Iteration, e.Score)
	case models.EntryInitial:
		user = fmt.Sprintf("Iteration %d scored %.3f with the initial description.", e.Iteration, e.Score)
	default:
		user = fmt.Sprintf("Iteration %d scored %.3f.", e.Iteration, e.Score)
	}
	return user, e.Prompt
}
