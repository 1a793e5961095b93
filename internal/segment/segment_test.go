package segment_test

import (
	"strings"
	"testing"

	"dreamlog-backend/internal/segment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_FewerThanThreeSentences(t *testing.T) {
	cases := []string{
		"",
		"  I flew over a purple forest  ",
		"I flew over a purple forest and met a fox who spoke in riddles.",
		"The fox laughed. Then it vanished!",
	}
	for _, prose := range cases {
		got := segment.Split(prose)
		want := strings.TrimSpace(prose)
		assert.Equal(t, want, got.Beginning, prose)
		assert.Equal(t, want, got.Middle, prose)
		assert.Equal(t, want, got.End, prose)
	}
}

func TestSplit_PartitionsIntoThirds(t *testing.T) {
	prose := "Once upon a time. A fox appeared! It asked a riddle? The girl answered. The forest glowed. She woke up."

	got := segment.Split(prose)

	assert.Equal(t, "Once upon a time. A fox appeared!", got.Beginning)
	assert.Equal(t, "It asked a riddle? The girl answered.", got.Middle)
	assert.Equal(t, "The forest glowed. She woke up.", got.End)
}

func TestSplit_RemainderGoesToEnd(t *testing.T) {
	prose := "One. Two. Three. Four. Five."

	got := segment.Split(prose)

	assert.Equal(t, "One.", got.Beginning)
	assert.Equal(t, "Two.", got.Middle)
	assert.Equal(t, "Three. Four. Five.", got.End)
}

func TestSplit_PreservesSentenceSequence(t *testing.T) {
	prose := `The moon was a lantern.   Owls whispered secrets!
Rivers ran upward?! Stars fell like snow. The child laughed. Morning came... Everything was new.`

	got := segment.Split(prose)
	for _, part := range got.Ordered() {
		require.NotEmpty(t, part)
	}

	rejoined := strings.Join(strings.Fields(got.Beginning+" "+got.Middle+" "+got.End), " ")
	original := strings.Join(strings.Fields(strings.Join(segment.Sentences(prose), " ")), " ")
	assert.Equal(t, original, rejoined)
	assert.NotContains(t, got.Beginning, got.Middle)
	assert.NotContains(t, got.Middle, got.End)
}

func TestSplit_TrailingFragmentCountsAsSentence(t *testing.T) {
	sentences := segment.Sentences("A fox sang. The trees swayed. Night fell. and then she woke")

	require.Len(t, sentences, 4)
	assert.Equal(t, "and then she woke", sentences[3])
}

func TestSplit_Deterministic(t *testing.T) {
	prose := "First light. Second wind. Third eye. Fourth wall. Fifth element. Sixth sense. Seventh heaven."

	assert.Equal(t, segment.Split(prose), segment.Split(prose))
}
