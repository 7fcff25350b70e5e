package crawler

import (
	"errors"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LinkExtractor finds candidate URLs in a document.
type LinkExtractor interface {
	// Extract returns absolute URLs referenced by body, resolved against
	// base. On a read or tokenize error it returns what was found so far
	// together with the error.
	Extract(base *url.URL, body io.Reader) (*ParseResult, error)
}

// ParseResult holds what the parser found in one document.
type ParseResult struct {
	// Title is the text of the first <title> element.
	Title string

	// Links are absolute URLs in document order. Duplicates are kept.
	Links []string
}

// Parser extracts links from HTML using golang.org/x/net/html.
// It reads a[href], link[href], img[src] and script[src]. The first
// <base href> replaces base for the links that follow it.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// linkAttrs maps the elements the parser reads to the attribute holding the URL.
var linkAttrs = map[atom.Atom]string{
	atom.A:      "href",
	atom.Link:   "href",
	atom.Img:    "src",
	atom.Script: "src",
}

// Extract implements LinkExtractor.
func (p *Parser) Extract(base *url.URL, body io.Reader) (*ParseResult, error) {
	result := &ParseResult{Links: make([]string, 0)}
	z := html.NewTokenizer(body)
	inTitle := false
	baseSet := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return result, err
			}
			return result, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom == atom.Title && result.Title == "" {
				inTitle = true
				continue
			}
			if tok.DataAtom == atom.Base && !baseSet {
				if href := resolveURL(base, getAttr(tok, "href")); href != "" {
					if u, err := url.Parse(href); err == nil {
						base = u
						baseSet = true
					}
				}
				continue
			}
			key, ok := linkAttrs[tok.DataAtom]
			if !ok {
				continue
			}
			if resolved := resolveURL(base, getAttr(tok, key)); resolved != "" {
				result.Links = append(result.Links, resolved)
			}

		case html.TextToken:
			if inTitle {
				result.Title = strings.TrimSpace(string(z.Text()))
				inTitle = false
			}

		case html.EndTagToken:
			inTitle = false
		}
	}
}

// DirectoryBase returns the URL links in pageURL are resolved against:
// pageURL with everything after the last "/" of its path removed.
func DirectoryBase(pageURL string) (*url.URL, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}
	base := *u
	if i := strings.LastIndex(base.Path, "/"); i >= 0 {
		base.Path = base.Path[:i+1]
	} else {
		base.Path = "/"
	}
	base.RawPath = ""
	base.RawQuery = ""
	base.ForceQuery = false
	base.Fragment = ""
	base.RawFragment = ""
	return &base, nil
}

// resolveURL resolves href against base. References that cannot lead to
// another document resolve to "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}

	lower := strings.ToLower(href)
	for _, scheme := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// getAttr retrieves an attribute value from a token.
func getAttr(tok html.Token, key string) string {
	for _, attr := range tok.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
