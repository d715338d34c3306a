// Package markup summarises page HTML and shrinks it for prompts.
package markup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/pario-ai/gherkit/pkg/models"
)

// Elements whose subtrees carry nothing an action planner can use.
var dropped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Link:     true,
	atom.Meta:     true,
}

// Hash returns the hex SHA-256 of the raw markup.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Summarize counts the interactive structure of a page.
func Summarize(raw string) models.PageMetadata {
	meta := models.PageMetadata{Length: len(raw)}
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return meta
	}

	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.DataAtom {
		case atom.Title:
			if meta.Title == "" {
				meta.Title = strings.TrimSpace(text(n))
			}
		case atom.A:
			if _, ok := attr(n, "href"); ok {
				meta.Links++
			}
		case atom.Button:
			meta.Buttons++
		case atom.Input:
			switch t, _ := attr(n, "type"); strings.ToLower(t) {
			case "button", "submit", "reset":
				meta.Buttons++
			}
		case atom.Form:
			meta.Forms++
		case atom.Dialog:
			meta.Dialogs++
		default:
			if role, _ := attr(n, "role"); role == "button" {
				meta.Buttons++
			}
		}
		if n.DataAtom != atom.Dialog {
			if role, _ := attr(n, "role"); role == "dialog" || role == "alertdialog" {
				meta.Dialogs++
			} else if modal, _ := attr(n, "aria-modal"); modal == "true" {
				meta.Dialogs++
			}
		}
		return true
	})
	return meta
}

// Reduce strips scripts, styles, comments and other non-structural nodes
// and returns at most limit characters of the remaining markup. A limit of
// zero or less disables truncation.
func Reduce(raw string, limit int) string {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return Truncate(raw, limit)
	}
	prune(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return Truncate(raw, limit)
	}
	return Truncate(buf.String(), limit)
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	i := 0
	for pos := range s {
		if i == limit {
			return s[:pos]
		}
		i++
	}
	return s
}

func prune(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode,
			c.Type == html.ElementNode && dropped[c.DataAtom]:
			n.RemoveChild(c)
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
			n.RemoveChild(c)
		default:
			prune(c)
		}
		c = next
	}
}

func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}
