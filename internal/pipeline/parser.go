package pipeline

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"basegraph.app/quizsolver/internal/model"
)

// Parser extracts the question, a submission endpoint and resource
// descriptors from rendered markup. It never fails; unparseable markup yields
// an empty page.
type Parser interface {
	Parse(markup, baseURL string) model.ParsedPage
}

const maxQuestionChars = 8000

var (
	submitHints = []string{"submit", "/api/", "answer", "post"}

	// keys checked, in order, inside embedded JSON blocks
	submitJSONKeys = []string{"submit", "submit_url", "url", "endpoint", "action"}

	urlPattern   = regexp.MustCompile(`(?i)https?://[^\s'"<>]+|/[\w\-/]+`)
	blankLines   = regexp.MustCompile(`\n\s*\n+`)
	atobPattern  = regexp.MustCompile("atob\\(\\s*(?:`([^`]+)`|'([^']+)'|\"([^\"]+)\")\\s*\\)")
	skippedNodes = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}
)

type HTMLParser struct{}

func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

func (p *HTMLParser) Parse(markup, baseURL string) model.ParsedPage {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return model.ParsedPage{Resources: []model.ResourceDescriptor{}}
	}

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	question := truncateRunes(visibleText(root), maxQuestionChars)

	resources := make([]model.ResourceDescriptor, 0)
	resources = append(resources, codeBlocks(doc)...)
	resources = append(resources, atobPayloads(doc)...)
	resources = append(resources, links(doc, baseURL)...)

	return model.ParsedPage{
		QuestionText: question,
		SubmitURL:    findSubmitURL(doc, question, resources, baseURL),
		Resources:    resources,
	}
}

// findSubmitURL picks the submission endpoint in priority order: a
// submit-looking path in the visible text, a submit-looking anchor or any
// form action, a URL field inside embedded JSON, then any URL in the text.
func findSubmitURL(doc *goquery.Document, question string, resources []model.ResourceDescriptor, baseURL string) string {
	for _, token := range strings.Fields(question) {
		if strings.HasPrefix(token, "/") && hasSubmitHint(token) {
			return resolveURL(baseURL, strings.TrimSpace(token))
		}
	}

	if link := submitLink(doc, baseURL); link != "" {
		return link
	}

	for _, r := range resources {
		if r.Source != model.DescriptorSourceEmbedded {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(strings.TrimSpace(r.Content)), &obj); err != nil {
			continue
		}
		for _, key := range submitJSONKeys {
			if v, ok := obj[key]; ok && truthy(v) {
				return resolveURL(baseURL, strings.TrimSpace(fmt.Sprint(v)))
			}
		}
	}

	if m := urlPattern.FindString(question); m != "" {
		return resolveURL(baseURL, m)
	}
	return ""
}

func submitLink(doc *goquery.Document, baseURL string) string {
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if hasSubmitHint(href) || hasSubmitHint(a.Text()) {
			found = resolveURL(baseURL, href)
			return false
		}
		return true
	})
	if found != "" {
		return found
	}

	if action, ok := doc.Find("form[action]").First().Attr("action"); ok {
		return resolveURL(baseURL, action)
	}
	return ""
}

func links(doc *goquery.Document, baseURL string) []model.ResourceDescriptor {
	var out []model.ResourceDescriptor
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		out = append(out, model.ResourceDescriptor{
			Source: model.DescriptorSourceURL,
			URL:    resolveURL(baseURL, href),
			Text:   strings.TrimSpace(a.Text()),
		})
	})
	return out
}

func codeBlocks(doc *goquery.Document) []model.ResourceDescriptor {
	var out []model.ResourceDescriptor
	doc.Find("pre, code").Each(func(_ int, s *goquery.Selection) {
		if txt := strings.TrimSpace(s.Text()); txt != "" {
			out = append(out, model.ResourceDescriptor{
				Source:  model.DescriptorSourceEmbedded,
				Content: txt,
			})
		}
	})
	return out
}

func atobPayloads(doc *goquery.Document) []model.ResourceDescriptor {
	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		scripts = append(scripts, s.Text())
	})

	var out []model.ResourceDescriptor
	for _, m := range atobPattern.FindAllStringSubmatch(strings.Join(scripts, " "), -1) {
		payload := strings.TrimSpace(m[1] + m[2] + m[3])
		if payload != "" {
			out = append(out, model.ResourceDescriptor{
				Source:  model.DescriptorSourceEmbeddedBase64,
				Content: payload,
			})
		}
	}
	return out
}

// visibleText joins text nodes with newlines, skipping script-like elements,
// and collapses runs of blank lines.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedNodes[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}

	text := strings.TrimSpace(strings.Join(parts, "\n"))
	return blankLines.ReplaceAllString(text, "\n\n")
}

func hasSubmitHint(s string) bool {
	s = strings.ToLower(s)
	for _, h := range submitHints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// resolveURL resolves ref against base the way a browser would.
func resolveURL(base, ref string) string {
	if base == "" {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
