package acquire

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/bets3435-dev/book-search-app/internal/models"
)

var trailingDigits = regexp.MustCompile(`/(\d+)$`)

// Detail is the data read from a product page.
type Detail struct {
	Description string
	PublishDate string
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func is(n *html.Node, tag atom.Atom, class string) bool {
	return n.Type == html.ElementNode && n.DataAtom == tag && (class == "" || hasClass(n, class))
}

// find returns the first descendant of n matching tag and class, in document order.
func find(n *html.Node, tag atom.Atom, class string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if is(c, tag, class) {
			return c
		}
		if m := find(c, tag, class); m != nil {
			return m
		}
	}
	return nil
}

// text returns the whitespace-collapsed text content of n.
func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func absolute(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

// parseSearchResults extracts up to maxItems items. Each div.item_info is paired with the
// nearest div.item_img preceding it in the document for its cover image.
func parseSearchResults(doc *html.Node, base *url.URL, maxItems int) []Item {
	var (
		items   []Item
		lastImg *html.Node
	)
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		switch {
		case is(n, atom.Div, "item_img"):
			lastImg = n
		case is(n, atom.Div, "item_info"):
			items = append(items, extractItem(n, lastImg, base, len(items)))
			return maxItems <= 0 || len(items) < maxItems
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(doc)
	return items
}

func extractItem(info, img *html.Node, base *url.URL, index int) Item {
	titleNode := find(info, atom.A, "gd_name")
	title := text(titleNode)
	if title == "" {
		return Item{Index: index, Err: &ExtractError{Index: index, Reason: ReasonNoTitle}}
	}

	link := ""
	if titleNode != nil {
		link = absolute(base, attr(titleNode, "href"))
	}
	extras := map[string]string{models.ExtraSource: SourceName}
	set := func(key, val string) {
		if val != "" {
			extras[key] = val
		}
	}
	set(models.ExtraLink, link)
	set(models.ExtraPrice, text(find(info, atom.Span, "price")))
	if img != nil {
		if cover := find(img, atom.Img, ""); cover != nil {
			src := attr(cover, "src")
			if src == "" {
				src = attr(cover, "data-original")
			}
			set(models.ExtraCoverImage, absolute(base, src))
		}
	}
	if m := trailingDigits.FindStringSubmatch(link); m != nil {
		set(models.ExtraISBN, m[1])
	}

	return Item{Index: index, Book: &models.Book{
		Title:     title,
		Author:    text(find(info, atom.Span, "authPub")),
		Publisher: text(find(info, atom.Span, "pub")),
		Extras:    extras,
	}}
}

func parseDetail(doc *html.Node) Detail {
	return Detail{
		Description: text(find(doc, atom.Div, "gd_detail")),
		PublishDate: text(find(doc, atom.Span, "gd_date")),
	}
}
