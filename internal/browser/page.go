package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const selectorPollInterval = 100 * time.Millisecond

// Navigate loads url and waits up to NavigationTimeout for the load event,
// then sleeps SettleDelay. Pages that never finish loading (long polling,
// streaming) only log the timeout; the navigation still counts as done.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return wrap("navigate", url, errors.New("empty url"))
	}
	if _, err := s.tab(); err != nil {
		return err
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationTimeout)
	defer cancel()
	err := s.run(navCtx, chromedp.Navigate(url))
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.Info("Navigation wait timed out, continuing.",
			zap.String("url", url), zap.Duration("timeout", s.cfg.NavigationTimeout))
	default:
		return wrap("navigate", url, err)
	}
	return sleepCtx(ctx, s.cfg.SettleDelay)
}

// EvaluateScript runs js in the page and returns the JSON encoding of its
// result. Evaluation errors are returned unchanged inside *Error.
func (s *Session) EvaluateScript(ctx context.Context, js string) (json.RawMessage, error) {
	var raw []byte
	if err := s.run(ctx, chromedp.Evaluate(js, &raw)); err != nil {
		return nil, wrap("evaluate", firstLine(js), err)
	}
	return json.RawMessage(raw), nil
}

// GetPageState reads URL, title, visible interactive elements and buffered
// console output, plus a PNG screenshot when requested.
func (s *Session) GetPageState(ctx context.Context, includeScreenshot bool) (*PageState, error) {
	var url, title string
	if err := s.run(ctx, chromedp.Location(&url), chromedp.Title(&title)); err != nil {
		return nil, wrap("page_state", "", err)
	}
	elements, err := s.interactiveElements(ctx)
	if err != nil {
		return nil, err
	}
	state := &PageState{
		URL:                 url,
		Title:               title,
		InteractiveElements: elements,
		ConsoleLogs:         s.console.snapshot(),
	}
	if includeScreenshot {
		shot, err := s.TakeScreenshot(ctx)
		if err != nil {
			return nil, err
		}
		state.Screenshot = shot
	}
	return state, nil
}

func (s *Session) interactiveElements(ctx context.Context) ([]DomElement, error) {
	raw, err := s.EvaluateScript(ctx, extractElementsJS)
	if err != nil {
		return nil, err
	}
	var elements []DomElement
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, wrap("page_state", "", fmt.Errorf("decode elements: %w", err))
	}
	return elements, nil
}

// TakeScreenshot captures the viewport as PNG.
func (s *Session) TakeScreenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, wrap("screenshot", "", err)
	}
	return buf, nil
}

// PageText returns document.body.innerText.
func (s *Session) PageText(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Evaluate(pageTextJS, &text)); err != nil {
		return "", wrap("page_text", "", err)
	}
	return text, nil
}

// ClickElement clicks the element at index in a fresh enumeration.
func (s *Session) ClickElement(ctx context.Context, index int) error {
	return s.act(ctx, "click", index, clickJS(index))
}

// TypeText sets the value of the element at index, fires input and change,
// then pauses for delay to pace like a person would.
func (s *Session) TypeText(ctx context.Context, index int, text string, delay time.Duration) error {
	if err := s.act(ctx, "type", index, typeJS(index, text)); err != nil {
		return err
	}
	return sleepCtx(ctx, delay)
}

// SelectOption sets a <select> (or any value-bearing element) at index to value.
func (s *Session) SelectOption(ctx context.Context, index int, value string) error {
	return s.act(ctx, "select", index, selectJS(index, value))
}

type actionOutcome struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

func (s *Session) act(ctx context.Context, op string, index int, js string) error {
	if index < 0 {
		return wrap(op, fmt.Sprintf("#%d", index), &ElementNotFoundError{Index: index})
	}
	raw, err := s.EvaluateScript(ctx, js)
	if err != nil {
		return err
	}
	var out actionOutcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return wrap(op, fmt.Sprintf("#%d", index), fmt.Errorf("decode outcome: %w", err))
	}
	if !out.OK {
		return wrap(op, fmt.Sprintf("#%d", index), &ElementNotFoundError{Index: index, Count: out.Count})
	}
	return nil
}

// WaitForSelector polls every 100ms until selector matches or timeout elapses.
func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(selectorPollInterval)
	defer ticker.Stop()

	js := selectorPresentJS(selector)
	for {
		var present bool
		if err := s.run(ctx, chromedp.Evaluate(js, &present)); err != nil {
			return wrap("wait_for_selector", selector, err)
		}
		if present {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return wrap("wait_for_selector", selector, fmt.Errorf("%w after %s", ErrTimeout, timeout))
		case <-ticker.C:
		}
	}
}

func firstLine(js string) string {
	js = strings.TrimSpace(js)
	if i := strings.IndexByte(js, '\n'); i >= 0 {
		js = js[:i]
	}
	if len(js) > 80 {
		js = js[:80]
	}
	return js
}
