package capture

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/jamesaudcent/infinidom/vdom"
)

// excerptLen bounds every extracted text snippet.
const excerptLen = 100

// ancestry walks parent elements of the target, nearest first, summarising
// each until the page root or the depth ceiling. The root itself is never
// included.
func ancestry(target *html.Node) []vdom.Ancestor {
	var out []vdom.Ancestor
	for n := target.Parent; n != nil && len(out) < vdom.MaxAncestry; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if n.Data == "body" || n.Data == "html" {
			break
		}
		out = append(out, summarize(n))
	}
	return out
}

func summarize(n *html.Node) vdom.Ancestor {
	return vdom.Ancestor{
		Tag:            n.Data,
		ID:             attr(n, "id"),
		Classes:        semanticClasses(n),
		DataAttributes: dataAttributes(n),
		Role:           attr(n, "role"),
		AriaLabel:      attr(n, "aria-label"),
		Text:           tagText(n),
	}
}

// statePrefixes are responsive and state variants; a class carrying one is
// pure styling.
var statePrefixes = []string{"sm:", "md:", "lg:", "xl:", "2xl:", "hover:", "focus:", "active:", "disabled:", "group-hover:"}

// utilityPrefixes match the layout/styling utility vocabulary (spacing,
// sizing, flex/grid, positioning, typography, color).
var utilityPrefixes = []string{
	"m-", "mx-", "my-", "mt-", "mb-", "ml-", "mr-",
	"p-", "px-", "py-", "pt-", "pb-", "pl-", "pr-",
	"w-", "h-", "min-w-", "min-h-", "max-w-", "max-h-", "size-",
	"gap-", "space-", "items-", "justify-", "content-", "self-", "place-",
	"flex-", "grid-", "col-", "row-", "order-", "basis-", "grow-", "shrink-",
	"top-", "bottom-", "left-", "right-", "inset-", "z-",
	"text-", "bg-", "border-", "rounded-", "shadow-", "ring-", "divide-", "outline-",
	"font-", "leading-", "tracking-", "whitespace-", "break-",
	"overflow-", "object-", "opacity-", "transition-", "duration-", "ease-", "cursor-",
}

var utilityExact = map[string]bool{
	"flex": true, "grid": true, "block": true, "inline": true, "inline-block": true,
	"inline-flex": true, "hidden": true, "container": true,
	"absolute": true, "relative": true, "fixed": true, "sticky": true, "static": true,
	"truncate": true, "rounded": true, "shadow": true, "border": true, "ring": true,
	"italic": true, "underline": true, "uppercase": true, "lowercase": true, "capitalize": true,
	"antialiased": true,
}

// semanticClasses filters the class list down to names that carry meaning
// about the element's role, dropping the styling utility noise.
func semanticClasses(n *html.Node) []string {
	var out []string
	for _, cls := range classes(n) {
		if isUtilityClass(cls) {
			continue
		}
		out = append(out, cls)
	}
	return out
}

func isUtilityClass(cls string) bool {
	for _, p := range statePrefixes {
		if strings.HasPrefix(cls, p) {
			return true
		}
	}
	if utilityExact[cls] {
		return true
	}
	for _, p := range utilityPrefixes {
		if strings.HasPrefix(cls, p) {
			return true
		}
	}
	return false
}

// tagText extracts a tag-appropriate text excerpt: headings speak for
// themselves, containers borrow their nearest heading or caption, list
// items contribute only their direct text, table rows a short cell join.
func tagText(n *html.Node) string {
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6", "label", "td", "th", "caption", "figcaption":
		return excerpt(collapsedText(n))
	case "section", "article", "main", "aside", "nav", "header", "footer":
		if h := findFirst(n, headingTags); h != nil {
			return excerpt(collapsedText(h))
		}
		if cap := findFirst(n, map[string]bool{"caption": true, "figcaption": true}); cap != nil {
			return excerpt(collapsedText(cap))
		}
		return ""
	case "figure":
		if cap := findFirst(n, map[string]bool{"figcaption": true}); cap != nil {
			return excerpt(collapsedText(cap))
		}
		return ""
	case "li":
		return excerpt(directText(n))
	case "tr":
		return excerpt(rowText(n))
	default:
		return ""
	}
}

var headingTags = map[string]bool{"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true}

func findFirst(root *html.Node, tags map[string]bool) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n != root && n.Type == html.ElementNode && tags[n.Data] {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}

// collapsedText is the full text content with whitespace collapsed.
func collapsedText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// directText is the text of immediate children only, skipping nested
// elements.
func directText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteString(" ")
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// rowText joins the first cells of a table row.
func rowText(n *html.Node) string {
	const maxCells = 3
	var parts []string
	for c := n.FirstChild; c != nil && len(parts) < maxCells; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			if t := collapsedText(c); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " | ")
}

func excerpt(s string) string {
	if len(s) <= excerptLen {
		return s
	}
	// Cut on a rune boundary so a multi-byte character is never split.
	cut := excerptLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
