package intent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()
	cases := []struct {
		msg  string
		want Intent
	}{
		{"How much will I owe in capital gains tax?", Tax},
		{"Is my portfolio too aggressive for a market crash?", Risk},
		{"Am I on track to retire early?", Goals},
		{"What is my net worth?", General},
		{"hello, how's the weather?", GeneralChat},
		{"", GeneralChat},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			require.Equal(t, tc.want, c.Classify(tc.msg).Intent)
		})
	}
}

func TestClassify_PhraseOutweighsKeyword(t *testing.T) {
	c := NewClassifier()
	res := c.Classify("asset allocation")
	require.Equal(t, Risk, res.Intent)
	require.InDelta(t, PhraseWeight, res.Score, 1e-9)

	res = c.Classify("money")
	require.Equal(t, General, res.Intent)
	require.InDelta(t, KeywordWeight, res.Score, 1e-9)
}

func TestClassify_TieBreakOrder(t *testing.T) {
	c := NewClassifier()
	// one keyword each for tax and goals.
	res := c.Classify("retirement taxes")
	require.Equal(t, Tax, res.Intent)
	require.InDelta(t, res.Scores[Tax], res.Scores[Goals], 1e-9)

	res = c.Classify("retirement risk")
	require.Equal(t, Risk, res.Intent)
}

func TestClassify_NeverEmpty(t *testing.T) {
	c := NewClassifier()
	for _, msg := range []string{"???", "the", "12345", "🙂"} {
		require.NotEmpty(t, c.Classify(msg).Intent)
	}
}
