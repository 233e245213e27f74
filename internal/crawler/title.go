package crawler

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// maxTitleLength bounds the stored page title.
const maxTitleLength = 256

// extractTitle returns the text of the first title element, with runs of
// whitespace collapsed.
func extractTitle(content io.Reader) (string, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return "", err
	}

	var title string
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title = n.FirstChild.Data
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(doc)

	title = strings.Join(strings.Fields(title), " ")
	if len(title) > maxTitleLength {
		title = strings.ToValidUTF8(title[:maxTitleLength], "")
	}
	return title, nil
}
