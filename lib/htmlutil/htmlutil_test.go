package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"", ""},
		{"  MAT101  ", "MAT101"},
		{"Calculus\n\tI", "Calculus I"},
		{"a   b \t c", "a b c"},
		{"\n\n\n", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.expected, CleanText(c.in), "input: %q", c.in)
	}
}

func TestNormalizerMemoizes(t *testing.T) {
	n := NewNormalizer(8)
	first := n.Clean("  Zorunlu \n")
	second := n.Clean("  Zorunlu \n")
	require.Equal(t, "Zorunlu", first)
	require.Equal(t, first, second)
	require.Equal(t, 1, n.memo.Len())
}

func TestGetText(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<table><tr><td>MAT101<a name="detail">  detay</a></td></tr></table>`,
	))
	require.NoError(t, err)
	node := doc.Find("td").Nodes[0]
	require.Equal(t, "MAT101  detay", GetText(node))
}
