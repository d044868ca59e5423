package browser

import (
	"fmt"
	"strings"
)

// LaunchOptions selects the window mode and profile strategy for Launch.
type LaunchOptions struct {
	Headless          bool
	PersistentProfile bool
}

// DomElement is one visible interactive element. Index is the ordinal used by
// ClickElement, TypeText and SelectOption; it is only meaningful against the
// enumeration the page produces at call time.
type DomElement struct {
	Index         int               `json:"index"`
	Tag           string            `json:"tag"`
	Text          string            `json:"text,omitempty"`
	Attributes    map[string]string `json:"attributes"`
	IsInteractive bool              `json:"is_interactive"`
	IsVisible     bool              `json:"is_visible"`
	Selector      string            `json:"selector"`
}

// PageState is a snapshot of the active page.
type PageState struct {
	URL                 string       `json:"url"`
	Title               string       `json:"title"`
	InteractiveElements []DomElement `json:"interactive_elements"`
	Screenshot          []byte       `json:"screenshot,omitempty"`
	ConsoleLogs         []string     `json:"console_logs"`
}

// ToLLMPrompt renders the page as a compact element listing for a language model.
func (p *PageState) ToLLMPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current Page: %s\nURL: %s\n\nInteractive Elements:\n", p.Title, p.URL)
	for _, el := range p.InteractiveElements {
		if !el.IsInteractive || !el.IsVisible {
			continue
		}
		var attrs strings.Builder
		if v, ok := el.Attributes["placeholder"]; ok {
			fmt.Fprintf(&attrs, " placeholder=%q", v)
		}
		if v, ok := el.Attributes["value"]; ok && v != "" {
			fmt.Fprintf(&attrs, " value=%q", v)
		}
		if v, ok := el.Attributes["type"]; ok {
			fmt.Fprintf(&attrs, " type=%q", v)
		}
		if v, ok := el.Attributes["name"]; ok {
			fmt.Fprintf(&attrs, " name=%q", v)
		}
		fmt.Fprintf(&b, "[%d] <%s%s> %s\n", el.Index, el.Tag, attrs.String(), strings.TrimSpace(el.Text))
	}
	return b.String()
}
