package market

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/pagerefresh/internal/foundation/errors"
)

// attachmentClass marks the paragraph holding the report download links.
const attachmentClass = "report_attachment_links"

// FindAttachmentLink returns the href of the first link inside the first
// report attachment paragraph, resolved against base.
func FindAttachmentLink(r io.Reader, base string) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryGenerator, "failed to parse report page").Build()
	}

	container := findNode(doc, func(n *html.Node) bool {
		return n.DataAtom == atom.P && hasClass(n, attachmentClass)
	})
	if container == nil {
		return "", ErrLinkNotFound.WithContext("reason", "attachment container missing")
	}
	link := findNode(container, func(n *html.Node) bool { return n.DataAtom == atom.A })
	href := attr(link, "href")
	if href == "" {
		return "", ErrLinkNotFound.WithContext("reason", "download link missing")
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryConfig, "invalid market base url").
			WithContext("base_url", base).
			Build()
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryGenerator, "invalid attachment link").
			WithContext("href", href).
			Build()
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// findNode walks n depth-first and returns the first element matching match.
func findNode(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}
