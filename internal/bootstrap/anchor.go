// Package bootstrap resolves the country code a dashboard is mounted for,
// either from configuration or from the anchor element of a host page.
package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	ErrNoAnchor     = errors.New("no country anchor element found")
	ErrNoIdentifier = errors.New("country anchor element has no id")
	ErrInvalidCode  = errors.New("invalid country code")
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,16}$`)

// ValidCode reports whether code is usable as a resource path segment.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// Anchor is the host element a dashboard mounts into. Its ID is the
// country code.
type Anchor struct {
	ID string
}

// FindAnchor returns the first element carrying markerClass.
func FindAnchor(r io.Reader, markerClass string) (Anchor, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Anchor{}, fmt.Errorf("parse page: %w", err)
	}

	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, markerClass) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if found == nil {
		return Anchor{}, ErrNoAnchor
	}
	id := strings.TrimSpace(getAttrValue(found, "id"))
	if id == "" {
		return Anchor{}, ErrNoIdentifier
	}
	return Anchor{ID: id}, nil
}

// FindAnchorFile is FindAnchor over a page on disk.
func FindAnchorFile(path, markerClass string) (Anchor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Anchor{}, err
	}
	defer f.Close()
	return FindAnchor(f, markerClass)
}

// Resolve picks the country code to mount: an explicit code wins, otherwise
// the page is scanned once.
func Resolve(country, page, markerClass string) (string, error) {
	code := strings.TrimSpace(country)
	if code == "" {
		if page == "" {
			return "", ErrNoAnchor
		}
		a, err := FindAnchorFile(page, markerClass)
		if err != nil {
			return "", err
		}
		code = a.ID
	}
	if !ValidCode(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return code, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func getAttrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
