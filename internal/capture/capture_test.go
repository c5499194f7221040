package capture

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// parseTarget parses a body fragment and returns the element with the
// given id.
func parseTarget(t *testing.T, body, id string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatal(err)
	}
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if found == nil {
		t.Fatalf("no element with id %q in %q", id, body)
	}
	return found
}

func newCapturer(t *testing.T) *Capturer {
	t.Helper()
	c, err := New("https://site.example/products", nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNativeActionFiltering(t *testing.T) {
	c := newCapturer(t)
	cases := []struct {
		name string
		body string
	}{
		{"blank target", `<a id="t" href="/x" target="_blank">x</a>`},
		{"mailto", `<a id="t" href="mailto:a@b.com">mail</a>`},
		{"tel", `<a id="t" href="tel:+3212345">call</a>`},
		{"javascript", `<a id="t" href="javascript:void(0)">js</a>`},
		{"cross origin", `<a id="t" href="https://other.example/page">away</a>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Capture(DOMEvent{Type: "click", Target: parseTarget(t, tc.body, "t")})
			if !errors.Is(err, ErrNativeAction) {
				t.Errorf("err: got %v, want ErrNativeAction", err)
			}
		})
	}
}

func TestSameOriginAnchorNavigates(t *testing.T) {
	c := newCapturer(t)
	res, err := c.Capture(DOMEvent{Type: "click", Target: parseTarget(t,
		`<a id="t" href="https://site.example/about">about</a>`, "t")})
	if err != nil {
		t.Fatal(err)
	}
	if res.NavigatePath != "/about" {
		t.Errorf("path: got %q, want %q", res.NavigatePath, "/about")
	}
	if res.Event.Href != "https://site.example/about" {
		t.Errorf("href: got %q", res.Event.Href)
	}
}

func TestRelativeAnchorNavigates(t *testing.T) {
	c := newCapturer(t)
	res, err := c.Capture(DOMEvent{Type: "click", Target: parseTarget(t,
		`<a id="t" href="pricing">pricing</a>`, "t")})
	if err != nil {
		t.Fatal(err)
	}
	if res.NavigatePath != "/pricing" {
		t.Errorf("path: got %q, want %q", res.NavigatePath, "/pricing")
	}
}

func TestDataPathNormalisedAndPreferred(t *testing.T) {
	c := newCapturer(t)

	res, err := c.Capture(DOMEvent{Type: "click", Target: parseTarget(t,
		`<button id="t" data-path="features">More</button>`, "t")})
	if err != nil {
		t.Fatal(err)
	}
	if res.NavigatePath != "/features" {
		t.Errorf("path: got %q, want %q", res.NavigatePath, "/features")
	}

	// data-path wins over the anchor's own href.
	res, err = c.Capture(DOMEvent{Type: "click", Target: parseTarget(t,
		`<a id="t" href="/other" data-path="/explicit">x</a>`, "t")})
	if err != nil {
		t.Fatal(err)
	}
	if res.NavigatePath != "/explicit" {
		t.Errorf("path: got %q, want %q", res.NavigatePath, "/explicit")
	}
}

func TestEventFields(t *testing.T) {
	c := newCapturer(t)
	res, err := c.Capture(DOMEvent{
		Type: "click",
		Target: parseTarget(t,
			`<button id="t" class="cta primary" data-action="buy" data-infinidom-interactive="true">Buy now</button>`, "t"),
	})
	if err != nil {
		t.Fatal(err)
	}
	e := res.Event
	if e.EventType != "click" || e.TargetTag != "button" || e.TargetID != "t" {
		t.Errorf("basics: %+v", e)
	}
	if e.TargetSelector != "button#t.cta.primary" {
		t.Errorf("selector: got %q", e.TargetSelector)
	}
	if e.TargetText != "Buy now" {
		t.Errorf("text: got %q", e.TargetText)
	}
	if e.DataAttributes["action"] != "buy" {
		t.Errorf("data attrs: %v", e.DataAttributes)
	}
	if _, ok := e.DataAttributes["infinidom-interactive"]; ok {
		t.Error("reserved marker must not leak into data attributes")
	}
}

func TestInputValueAndFormData(t *testing.T) {
	c := newCapturer(t)
	res, err := c.Capture(DOMEvent{
		Type:   "submit",
		Target: parseTarget(t, `<form id="t"><input name="q"></form>`, "t"),
		Value:  "golang",
		Form:   map[string]string{"q": "golang"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Event.InputValue != "golang" {
		t.Errorf("input value: got %q", res.Event.InputValue)
	}
	if res.Event.FormData["q"] != "golang" {
		t.Errorf("form data: %v", res.Event.FormData)
	}
}

func TestAncestryDepthAndRootExclusion(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 15; i++ {
		b.WriteString(`<div class="level">`)
	}
	b.WriteString(`<button id="t">deep</button>`)
	for i := 0; i < 15; i++ {
		b.WriteString(`</div>`)
	}

	c := newCapturer(t)
	res, err := c.Capture(DOMEvent{Type: "click", Target: parseTarget(t, b.String(), "t")})
	if err != nil {
		t.Fatal(err)
	}
	h := res.Event.ElementHierarchy
	if len(h) != 10 {
		t.Fatalf("ancestry: got %d entries, want 10", len(h))
	}
	for _, a := range h {
		if a.Tag == "body" || a.Tag == "html" {
			t.Errorf("page root leaked into ancestry: %q", a.Tag)
		}
	}
}

func TestAncestrySemanticSummaries(t *testing.T) {
	body := `
<section id="pricing" class="py-16 sm:py-24 pricing-section" aria-label="Pricing">
  <h2 class="text-3xl font-bold">Plans</h2>
  <ul class="grid grid-cols-3 gap-8 plan-list">
    <li class="plan">Starter <span>(free)</span>
      <button id="t" class="rounded-md bg-indigo-600 cta">Choose</button>
    </li>
  </ul>
</section>`

	c := newCapturer(t)
	res, err := c.Capture(DOMEvent{Type: "click", Target: parseTarget(t, body, "t")})
	if err != nil {
		t.Fatal(err)
	}
	h := res.Event.ElementHierarchy
	if len(h) != 3 {
		t.Fatalf("ancestry: got %d entries (%+v), want li, ul, section", len(h), h)
	}

	li := h[0]
	if li.Tag != "li" || li.Text != "Starter" {
		t.Errorf("li summary: %+v (direct text only, nested span excluded)", li)
	}

	ul := h[1]
	if ul.Tag != "ul" {
		t.Errorf("ul summary: %+v", ul)
	}
	if len(ul.Classes) != 1 || ul.Classes[0] != "plan-list" {
		t.Errorf("ul classes: got %v, want [plan-list]", ul.Classes)
	}

	sec := h[2]
	if sec.Tag != "section" || sec.ID != "pricing" {
		t.Errorf("section summary: %+v", sec)
	}
	if sec.Text != "Plans" {
		t.Errorf("section text: got %q, want nearest heading", sec.Text)
	}
	if sec.AriaLabel != "Pricing" {
		t.Errorf("aria label: got %q", sec.AriaLabel)
	}
	if len(sec.Classes) != 1 || sec.Classes[0] != "pricing-section" {
		t.Errorf("section classes: got %v, want [pricing-section]", sec.Classes)
	}
}

func TestTableRowText(t *testing.T) {
	body := `<table><tbody><tr id="r"><td>Alpha</td><td>42</td><td>ok</td><td>ignored</td></tr></tbody></table>`
	tr := parseTarget(t, body, "r")
	if got := tagText(tr); got != "Alpha | 42 | ok" {
		t.Errorf("row text: got %q, want %q", got, "Alpha | 42 | ok")
	}
}

func TestExcerptKeepsRunesWhole(t *testing.T) {
	// 40 three-byte runes: 120 bytes, and 100 is not a rune boundary.
	long := strings.Repeat("日", 40)
	got := excerpt(long)
	if len(got) > excerptLen {
		t.Errorf("length: got %d bytes, want at most %d", len(got), excerptLen)
	}
	if !utf8.ValidString(got) {
		t.Errorf("excerpt split a rune: %q", got)
	}
	if got != strings.Repeat("日", 33) {
		t.Errorf("got %q, want 33 whole runes", got)
	}

	short := "héllo"
	if excerpt(short) != short {
		t.Errorf("short strings must pass through unchanged")
	}
}

func TestUtilityClassFilter(t *testing.T) {
	cases := map[string]bool{
		"mx-auto":       true,
		"max-w-7xl":     true,
		"lg:px-8":       true,
		"hover:bg-gray": true,
		"flex":          true,
		"text-gray-600": true,
		"product-card":  false,
		"nav-menu":      false,
		"hero":          false,
	}
	for cls, want := range cases {
		if got := isUtilityClass(cls); got != want {
			t.Errorf("isUtilityClass(%q): got %v, want %v", cls, got, want)
		}
	}
}
