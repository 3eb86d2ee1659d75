package inbox

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// urlPattern matches shareable post and reel links.
var urlPattern = regexp.MustCompile(`https?://(?:www\.)?instagram\.com/(?:p|reel)/[A-Za-z0-9_-]+/?`)

// linkBase resolves relative hrefs found in message markup.
var linkBase = &url.URL{Scheme: "https", Host: "www.instagram.com", Path: "/"}

// ExtractURL returns the first post or reel link in text, or "" if there is
// none.
func ExtractURL(text string) string {
	return urlPattern.FindString(text)
}

// ExtractLinks returns the post and reel links of the anchors in an HTML
// fragment, in document order and without duplicates. Relative hrefs are
// resolved against the site root.
func ExtractLinks(fragment string) []string {
	if strings.TrimSpace(fragment) == "" {
		return nil
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil
	}

	var links []string
	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if link := matchHref(n); link != "" && !seen[link] {
				seen[link] = true
				links = append(links, link)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func matchHref(n *html.Node) string {
	for _, attr := range n.Attr {
		if attr.Key != "href" {
			continue
		}
		ref, err := url.Parse(strings.TrimSpace(attr.Val))
		if err != nil {
			return ""
		}
		return urlPattern.FindString(linkBase.ResolveReference(ref).String())
	}
	return ""
}

// MessageID identifies a message by its conversation position and a hash of
// its trimmed text. Equal text in the same conversation slot yields the same
// ID across runs. Collisions are possible, so the ID only supports
// best-effort deduplication.
func MessageID(conversation int, text string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.TrimSpace(text)))
	return fmt.Sprintf("%d_%x", conversation, h.Sum64())
}
