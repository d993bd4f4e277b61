// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rahul/webpilot/internal/browser"
)

// Element is one node of a fake document.
type Element struct {
	Tag  string
	Type string
}

// Site is a fake document served at a URL.
type Site struct {
	Title    string
	HTML     string
	Elements []Element
}

// Call is one recorded interaction.
type Call struct {
	Op       string
	Selector string
	Text     string
}

// Page is a scripted browser.Page. Annotation numbers the current site's
// elements exactly like the real script; clicks and fills must target an
// index from the latest pass on the current document.
type Page struct {
	mu sync.Mutex

	Sites map[string]Site
	// Fail makes the named operation return an error.
	Fail map[string]error

	current  string
	indexed  map[int]Element
	calls    []Call
	shots    int
	closed   int
	overlays int
	overlaid bool
}

func NewPage(sites map[string]Site) *Page {
	return &Page{Sites: sites, Fail: map[string]error{}}
}

func (p *Page) record(c Call) error {
	p.calls = append(p.calls, c)
	if err := p.Fail[c.Op]; err != nil {
		return err
	}
	return nil
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(Call{Op: "navigate", Text: url}); err != nil {
		return err
	}
	if _, ok := p.Sites[url]; !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", url)
	}
	p.current = url
	p.indexed = nil
	p.overlaid = false
	return nil
}

type annotateOptions struct {
	Selector string   `json:"selector"`
	Overlay  bool     `json:"overlay"`
	Colors   []string `json:"colors"`
}

func (p *Page) Evaluate(_ context.Context, script string, res any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if script == browser.ClearOverlayScript {
		if err := p.record(Call{Op: "clear overlay"}); err != nil {
			return err
		}
		p.overlaid = false
		return nil
	}
	if err := p.record(Call{Op: "evaluate"}); err != nil {
		return err
	}
	if !strings.HasPrefix(script, browser.AnnotateScript) {
		return errors.New("unsupported script")
	}
	arg := strings.TrimSuffix(strings.TrimPrefix(script, browser.AnnotateScript+"("), ")")
	var opts annotateOptions
	if err := json.Unmarshal([]byte(arg), &opts); err != nil {
		return err
	}
	if opts.Overlay {
		p.overlays++
	}
	p.overlaid = opts.Overlay

	wanted := map[string]bool{}
	for _, s := range strings.Split(opts.Selector, ",") {
		wanted[strings.TrimSpace(s)] = true
	}

	p.indexed = map[int]Element{}
	var boxes []map[string]any
	for i, el := range p.Sites[p.current].Elements {
		if !wanted[el.Tag] {
			continue
		}
		index := len(p.indexed) + 1
		p.indexed[index] = el
		var typ any
		if el.Tag == "input" {
			typ = el.Type
			if el.Type == "" {
				typ = "text"
			}
		}
		boxes = append(boxes, map[string]any{
			"index": index, "x": 10, "y": float64(40 * i), "width": 100, "height": 30,
			"tag": el.Tag, "type": typ,
		})
	}
	if res == nil {
		return nil
	}
	raw, err := json.Marshal(boxes)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, res)
}

// Screenshot records its call with Text "overlaid" while overlay boxes are
// on the page.
func (p *Page) Screenshot(context.Context, bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var state string
	if p.overlaid {
		state = "overlaid"
	}
	if err := p.record(Call{Op: "screenshot", Text: state}); err != nil {
		return nil, err
	}
	p.shots++
	return []byte(fmt.Sprintf("PNG %s #%d", p.current, p.shots)), nil
}

func (p *Page) StopLoading(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record(Call{Op: "stop"})
}

func (p *Page) target(selector string) (Element, error) {
	var index int
	if _, err := fmt.Sscanf(selector, `[`+browser.IndexAttribute+`="%d"]`, &index); err != nil {
		return Element{}, fmt.Errorf("unsupported selector %s", selector)
	}
	el, ok := p.indexed[index]
	if !ok {
		return Element{}, fmt.Errorf("no node found for selector %s", selector)
	}
	return el, nil
}

func (p *Page) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(Call{Op: "click", Selector: selector}); err != nil {
		return err
	}
	_, err := p.target(selector)
	return err
}

func (p *Page) Fill(_ context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(Call{Op: "fill", Selector: selector, Text: text}); err != nil {
		return err
	}
	el, err := p.target(selector)
	if err != nil {
		return err
	}
	if el.Tag != "input" && el.Tag != "textarea" {
		return fmt.Errorf("element %s is not fillable", selector)
	}
	return nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record(Call{Op: "html"}); err != nil {
		return "", err
	}
	site := p.Sites[p.current]
	if site.HTML != "" {
		return site.HTML, nil
	}
	return "<html><head><title>" + site.Title + "</title></head><body></body></html>", nil
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// Calls returns the recorded interactions with op in ops, or all of them.
func (p *Page) Calls(ops ...string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(ops) == 0 {
		return append([]Call(nil), p.calls...)
	}
	var out []Call
	for _, c := range p.calls {
		for _, op := range ops {
			if c.Op == op {
				out = append(out, c)
			}
		}
	}
	return out
}

// Closed reports how many times Close was called.
func (p *Page) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Overlays reports how many annotation passes drew an overlay.
func (p *Page) Overlays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlays
}

// Launcher hands out Page, or fails with Err.
type Launcher struct {
	Page     *Page
	Err      error
	launches int
	mu       sync.Mutex
}

func (l *Launcher) Launch(context.Context) (browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Page, nil
}

// Launches reports how many sessions were requested.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}
