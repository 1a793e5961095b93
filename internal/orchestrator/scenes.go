package orchestrator

import (
	"fmt"

	"dreamlog-backend/internal/gateway"
	"dreamlog-backend/internal/models"
	"dreamlog-backend/internal/segment"
)

const noTextDirective = "IMPORTANT: Do not include any text, words, letters, or writing in the image."

type scene struct {
	name        string
	description string
	direction   string
	composition string
}

var scenes = [3]scene{
	{
		name:        "Scene 1",
		description: "Beginning of the story",
		direction:   "Make it feel like the start of a fairy tale: introduce the main character(s) and setting clearly.",
		composition: "wide establishing shot, cinematic lighting, detailed storybook artwork",
	},
	{
		name:        "Scene 2",
		description: "Middle of the story",
		direction:   "Focus on the main action or conflict, show drama, movement, and emotions.",
		composition: "dynamic mid-shot, detailed character expressions, high-quality fairy tale illustration",
	},
	{
		name:        "Scene 3",
		description: "End of the story",
		direction:   "Show the resolution or magical transformation, make it feel satisfying and final.",
		composition: "resolving full-scene shot, warm and complete storybook atmosphere, polished illustration",
	},
}

// scenePrompts segments the story and returns one unresolved SceneImage per
// narrative third, in order.
func scenePrompts(story string, tone models.Tone) [3]models.SceneImage {
	style := gateway.ImageStyle(tone)
	segments := segment.Split(story).Ordered()

	var out [3]models.SceneImage
	for i, s := range scenes {
		out[i] = models.SceneImage{
			Index:       i + 1,
			Scene:       s.name,
			Description: s.description,
			Segment:     segments[i],
			Prompt: fmt.Sprintf("Illustrate this scene: %s | %s | Style: %s | Composition: %s. %s",
				segments[i], s.direction, style, s.composition, noTextDirective),
		}
	}
	return out
}
