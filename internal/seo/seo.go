// Package seo extracts the mechanically-derived signal set the Cache
// Synchronizer folds into blob metadata: title, meta description, heading
// count, social-card presence, viewport presence, and a soft-404
// heuristic (distilled spec §1, "SEO signal extraction... are well-defined
// but mechanical").
package seo

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/lovablehtml/prerender/pkg/types"
)

const maxTitleLength = 500

// softErrorPhrases are short, case-insensitive markers of a soft-404 page:
// a page the server answered with 200 OK but whose body is really an
// error or "not found" page.
var softErrorPhrases = []string{
	"page not found",
	"404 not found",
	"page does not exist",
	"we can't find that page",
	"the page you requested could not be found",
	"this page doesn't exist",
}

// Analyze parses rendered HTML and extracts the SEOAnalysis fields. A
// parse failure yields a zero-value analysis rather than an error, since
// every field here is best-effort and the synchronizer tolerates empty
// strings and zero counts.
func Analyze(htmlBody string) types.SEOAnalysis {
	root, err := html.Parse(bytes.NewReader([]byte(htmlBody)))
	if err != nil {
		return types.SEOAnalysis{}
	}

	head := findElement(root, "head")
	body := findElement(root, "body")

	analysis := types.SEOAnalysis{
		Title:           extractTitle(head),
		MetaDescription: extractMetaContent(head, "description"),
		H1Count:         len(findAllElements(body, "h1")),
		HasOpenGraph:    hasMetaProperty(head, "og:"),
		HasTwitterCard:  hasMetaName(head, "twitter:"),
		HasViewport:     hasMetaName(head, "viewport"),
	}
	analysis.IsSoft404 = looksLikeSoft404(analysis.Title, getTextContent(body))

	return analysis
}

func extractTitle(head *html.Node) string {
	if head == nil {
		return ""
	}
	title := findElement(head, "title")
	if title == nil {
		return ""
	}
	return truncateRunes(strings.Join(strings.Fields(getTextContent(title)), " "), maxTitleLength)
}

func extractMetaContent(head *html.Node, name string) string {
	if head == nil {
		return ""
	}
	for _, meta := range findAllElements(head, "meta") {
		if strings.EqualFold(getAttr(meta, "name"), name) {
			if content := strings.TrimSpace(getAttr(meta, "content")); content != "" {
				return content
			}
		}
	}
	return ""
}

func hasMetaProperty(head *html.Node, prefix string) bool {
	if head == nil {
		return false
	}
	for _, meta := range findAllElements(head, "meta") {
		if strings.HasPrefix(strings.ToLower(getAttr(meta, "property")), prefix) {
			return true
		}
	}
	return false
}

func hasMetaName(head *html.Node, prefix string) bool {
	if head == nil {
		return false
	}
	for _, meta := range findAllElements(head, "meta") {
		if strings.HasPrefix(strings.ToLower(getAttr(meta, "name")), prefix) {
			return true
		}
	}
	return false
}

// looksLikeSoft404 checks the title and visible body text against a small
// set of common "not found" phrasings. This is deliberately conservative:
// it only flags pages that say so in plain language.
func looksLikeSoft404(title, bodyText string) bool {
	haystack := strings.ToLower(title + " " + bodyText)
	for _, phrase := range softErrorPhrases {
		if strings.Contains(haystack, phrase) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

func findElement(node *html.Node, tag string) *html.Node {
	if node == nil {
		return nil
	}
	return findElementLower(node, strings.ToLower(tag))
}

func findElementLower(node *html.Node, lowerTag string) *html.Node {
	if node.Type == html.ElementNode && strings.ToLower(node.Data) == lowerTag {
		return node
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if found := findElementLower(c, lowerTag); found != nil {
			return found
		}
	}
	return nil
}

func findAllElements(parent *html.Node, tag string) []*html.Node {
	if parent == nil {
		return nil
	}
	tag = strings.ToLower(tag)
	var results []*html.Node
	var search func(*html.Node)
	search = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			search(c)
		}
	}
	search(parent)
	return results
}

func getAttr(node *html.Node, name string) string {
	if node == nil {
		return ""
	}
	name = strings.ToLower(name)
	for _, attr := range node.Attr {
		if strings.ToLower(attr.Key) == name {
			return attr.Val
		}
	}
	return ""
}

func getTextContent(node *html.Node) string {
	if node == nil {
		return ""
	}
	var sb strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(node)
	return sb.String()
}
