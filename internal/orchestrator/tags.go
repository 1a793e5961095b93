package orchestrator

import "strings"

var (
	emotionWords = []string{"happy", "sad", "anxious", "peaceful", "excited", "fearful", "content", "frustrated"}
	themeWords   = []string{"freedom", "control", "love", "loss", "growth", "conflict", "journey", "transformation"}
)

// deriveTags does a case-insensitive substring match of the analysis against
// the fixed vocabularies. The result is advisory metadata only.
func deriveTags(analysis string) (themes, emotions []string) {
	lower := strings.ToLower(analysis)
	return matchWords(lower, themeWords), matchWords(lower, emotionWords)
}

func matchWords(text string, vocabulary []string) []string {
	matched := []string{}
	for _, w := range vocabulary {
		if strings.Contains(text, w) {
			matched = append(matched, w)
		}
	}
	return matched
}
