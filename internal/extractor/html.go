package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ExtractHTML walks the parsed tree and collects visible text, skipping
// script/style/head subtrees.
func ExtractHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var textBuilder strings.Builder
	collectText(doc, &textBuilder)

	extractedText := cleanText(textBuilder.String())

	if extractedText == "" {
		return "", fmt.Errorf("no text could be extracted from HTML")
	}

	return extractedText, nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "head", "noscript":
			return
		}
	}

	if n.Type == html.TextNode {
		text := strings.TrimSpace(n.Data)
		if text != "" {
			sb.WriteString(text)
			sb.WriteString("\n")
		}
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
}
