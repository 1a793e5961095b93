// Package segment splits a story into the three narrative positions used
// for illustration prompts.
package segment

import (
	"regexp"
	"strings"
)

// sentencePattern matches a run of non-terminators followed by one or more
// terminators, or a trailing run with no terminator at all.
var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+|[^.!?]+$`)

type Segments struct {
	Beginning string `json:"beginning"`
	Middle    string `json:"middle"`
	End       string `json:"end"`
}

// Sentences returns the trimmed, non-empty sentences of prose in order.
func Sentences(prose string) []string {
	matches := sentencePattern.FindAllString(prose, -1)
	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := strings.TrimSpace(m); s != "" && strings.Trim(s, ".!?") != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// Split partitions prose into beginning, middle and end. With fewer than
// three sentences every segment is the whole trimmed prose, so downstream
// prompts are never empty.
func Split(prose string) Segments {
	sentences := Sentences(prose)
	n := len(sentences)
	if n < 3 {
		whole := strings.TrimSpace(prose)
		return Segments{Beginning: whole, Middle: whole, End: whole}
	}

	third := n / 3
	return Segments{
		Beginning: join(sentences[:third]),
		Middle:    join(sentences[third : 2*third]),
		End:       join(sentences[2*third:]),
	}
}

// Ordered returns the segments in scene order.
func (s Segments) Ordered() [3]string {
	return [3]string{s.Beginning, s.Middle, s.End}
}

func join(sentences []string) string {
	return strings.TrimSpace(strings.Join(sentences, " "))
}
