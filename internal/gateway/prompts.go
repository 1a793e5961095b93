package gateway

import (
	"fmt"

	"dreamlog-backend/internal/models"
)

const titleSystemPrompt = `You are a creative title generator. Create a short, engaging title (3-6 words) for a fairy tale based on the dream description provided. The title should be magical, whimsical, and capture the essence of the dream. Do not use quotation marks.`

const analysisSystemPrompt = `You are a compassionate dream analyst with expertise in psychology and symbolism. Analyze the provided dream and offer insights into its potential meanings, symbols, and emotional significance.

Guidelines:
- Provide a thoughtful, empathetic analysis (200-300 words)
- Identify key symbols and their possible meanings
- Discuss potential emotional themes or life situations it might reflect
- Offer constructive insights without being prescriptive
- Use accessible language, avoiding excessive jargon
- Be supportive and encouraging
- Remember this is for self-reflection, not clinical diagnosis`

var tonePrompts = map[models.Tone]string{
	models.ToneWhimsical:   "Transform this dream into a whimsical, playful fairy tale with magical creatures, rainbow colors, and joyful adventures. Make it feel like a Disney story with wonder and delight.",
	models.ToneMystical:    "Transform this dream into a mystical, magical fairy tale with ancient wisdom, ethereal beings, and spiritual undertones. Include elements of wonder, mystery, and enlightenment.",
	models.ToneAdventurous: "Transform this dream into an adventurous, bold fairy tale with brave heroes, epic quests, and thrilling challenges. Make it exciting and action-packed with courage and triumph.",
	models.ToneGentle:      "Transform this dream into a gentle, soothing fairy tale with kind characters, peaceful settings, and heartwarming moments. Make it comforting, tender, and full of love.",
	models.ToneMysterious:  "Transform this dream into a mysterious, dark fairy tale with shadows, secrets, and intriguing plot twists. Keep it atmospheric and engaging but not too scary.",
	models.ToneComedy:      "Transform this dream into a mysterious, dark fairy tale with sarcastic humor, dramatic secrets, and absurd plot twists. Keep it atmospheric and intriguing, but make it funny, more spooky comedy than actual horror.",
}

var lengthWords = map[models.Length]string{
	models.LengthShort:  "150-250 words",
	models.LengthMedium: "300-500 words",
	models.LengthLong:   "600-800 words",
}

var lengthTokens = map[models.Length]int{
	models.LengthShort:  400,
	models.LengthMedium: 800,
	models.LengthLong:   1200,
}

var imageStyles = map[models.Tone]string{
	models.ToneWhimsical:   "whimsical fairy tale illustration, bright vibrant colors, Disney-style animation, magical and playful, soft lighting",
	models.ToneMystical:    "mystical fairy tale artwork, ethereal lighting, fantasy art style, magical realism, dreamy atmosphere",
	models.ToneAdventurous: "epic fantasy illustration, adventure book art style, dynamic composition, heroic and bold",
	models.ToneGentle:      "soft watercolor fairy tale illustration, pastel colors, gentle and peaceful, children's book style",
	models.ToneMysterious:  "gothic fairy tale illustration, dramatic shadows, mysterious atmosphere, dark fantasy art",
	models.ToneComedy:      "playful spooky cartoon illustration, exaggerated expressions, moody colors with comic timing, tongue-in-cheek gothic storybook art",
}

func storySystemPrompt(tone models.Tone, length models.Length) string {
	toneText, ok := tonePrompts[tone]
	if !ok {
		toneText = tonePrompts[models.ToneWhimsical]
	}
	words, ok := lengthWords[length]
	if !ok {
		words = lengthWords[models.LengthMedium]
	}
	return fmt.Sprintf(`You are a master storyteller who specializes in transforming dreams into captivating fairy tales. %s

Guidelines:
- Create a complete, well-structured fairy tale with a clear beginning, middle, and end
- Length: %s
- Include vivid descriptions and engaging dialogue
- Make it appropriate for all ages
- Incorporate classic fairy tale elements (magic, transformation, resolution)
- Use the dream as core inspiration but expand creatively
- Structure the story with clear scene transitions that can be illustrated`, toneText, words)
}

func storyMaxTokens(length models.Length) int {
	if n, ok := lengthTokens[length]; ok {
		return n
	}
	return lengthTokens[models.LengthMedium]
}

// ImageStyle returns the illustration style for tone, including the common
// storybook and no-text directives.
func ImageStyle(tone models.Tone) string {
	base, ok := imageStyles[tone]
	if !ok {
		base = imageStyles[models.ToneWhimsical]
	}
	return base + ", high quality, detailed artwork, storybook illustration, beautiful composition, no text, no words, no letters, no writing, text-free illustration"
}
