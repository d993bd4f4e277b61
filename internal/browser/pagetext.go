package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

const defaultTextLimit = 4000

// PageText turns the live page into a short readable text: title,
// excerpt and the sanitized main content, cut at limit bytes.
func PageText(ctx context.Context, p Page, limit int) (string, error) {
	doc, err := p.HTML(ctx)
	if err != nil {
		return "", err
	}
	location, err := p.URL(ctx)
	if err != nil {
		return "", err
	}
	return Digest(doc, location, limit)
}

// Digest extracts the readable part of an HTML document.
func Digest(doc, location string, limit int) (string, error) {
	if limit <= 0 {
		limit = defaultTextLimit
	}
	pageURL, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("failed to parse page URL: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(doc), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	policy := bluemonday.StrictPolicy()
	var b strings.Builder
	if title := strings.TrimSpace(policy.Sanitize(article.Title)); title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n", title)
	}
	if excerpt := strings.TrimSpace(policy.Sanitize(article.Excerpt)); excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", excerpt)
	}
	content := strings.Join(strings.Fields(policy.Sanitize(article.TextContent)), " ")
	if content == "" {
		// No article found: fall back to the whole document's text.
		content = strings.Join(strings.Fields(visibleText(doc)), " ")
	}
	if content != "" {
		b.WriteString("CONTENT: ")
		b.WriteString(content)
	}

	out := b.String()
	if len(out) > limit {
		out = truncateUTF8(out, limit) + " ..."
	}
	return out, nil
}

// visibleText concatenates the text nodes of doc outside script, style,
// noscript and template elements.
func visibleText(doc string) string {
	var (
		b      strings.Builder
		hidden int
	)
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; keep what was read.
			return b.String()
		case html.StartTagToken:
			if isHiddenTag(z) {
				hidden++
			}
		case html.EndTagToken:
			if isHiddenTag(z) && hidden > 0 {
				hidden--
			}
		case html.TextToken:
			if hidden == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isHiddenTag(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
