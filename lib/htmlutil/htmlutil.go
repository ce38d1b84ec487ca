package htmlutil

import (
	"bytes"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// CleanText collapses whitespace runs to a single space, strips
// leading/trailing whitespace and drops embedded newlines/tabs.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	cleaned := strings.TrimSpace(innerWhitespace.ReplaceAllString(text, " "))
	cleaned = strings.ReplaceAll(cleaned, "\n", " ")
	return strings.ReplaceAll(cleaned, "\t", " ")
}

// Normalizer memoizes CleanText for inputs that repeat a lot, like
// grade codes and attendance markers that appear on every table row.
type Normalizer struct {
	memo *lru.Cache[string, string]
}

func NewNormalizer(size int) *Normalizer {
	memo, err := lru.New[string, string](size)
	if err != nil {
		// lru.New only errors on a non-positive size
		panic(err)
	}
	return &Normalizer{memo: memo}
}

func (n *Normalizer) Clean(text string) string {
	if text == "" {
		return ""
	}
	if cached, hit := n.memo.Get(text); hit {
		return cached
	}
	cleaned := CleanText(text)
	n.memo.Add(text, cleaned)
	return cleaned
}
