// Package navigator drives a browser session toward a goal by asking a
// language model for one action at a time.
package navigator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/browser"
	"github.com/mohammad-safakhou/researcher/internal/helpers"
	"github.com/mohammad-safakhou/researcher/provider"
	"go.uber.org/zap"
)

const (
	DefaultMaxIterations = 50
	clickPause           = 500 * time.Millisecond
	typingDelay          = 50 * time.Millisecond
	defaultWaitSecs      = 10
)

var (
	// ErrMaxIterations is returned when the goal was not completed in time.
	ErrMaxIterations = errors.New("navigator: task execution reached maximum iterations")
	// ErrInvalidAction is returned when the model answers with an unknown action.
	ErrInvalidAction = errors.New("navigator: invalid action from model")
)

// Browser is the subset of *browser.Session the navigator drives.
type Browser interface {
	GetPageState(ctx context.Context, includeScreenshot bool) (*browser.PageState, error)
	Navigate(ctx context.Context, url string) error
	ClickElement(ctx context.Context, index int) error
	TypeText(ctx context.Context, index int, text string, delay time.Duration) error
	SelectOption(ctx context.Context, index int, value string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	TakeScreenshot(ctx context.Context) ([]byte, error)
}

// Action is one decoded model instruction.
type Action struct {
	Action       string `json:"action"`
	ElementIndex int    `json:"element_index"`
	Text         string `json:"text"`
	Value        string `json:"value"`
	URL          string `json:"url"`
	Selector     string `json:"selector"`
	TimeoutSecs  int    `json:"timeout_secs"`
	Message      string `json:"message"`
}

// Outcome summarises a finished ExecuteTask run.
type Outcome struct {
	Message     string
	Iterations  int
	Actions     []Action
	Screenshots [][]byte
}

// Navigator pairs a browser with a text generator.
type Navigator struct {
	Browser       Browser
	LLM           provider.TextGenerator
	MaxIterations int
	Vision        bool // attach screenshots to each page state
	Logger        *zap.Logger
	// Sleep is the pause used after clicks, replaceable in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (n *Navigator) logger() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger.Named("navigator")
}

func (n *Navigator) sleep(ctx context.Context, d time.Duration) error {
	if n.Sleep != nil {
		return n.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExecuteTask loops page state -> model -> action until the model reports
// completion or MaxIterations is reached.
func (n *Navigator) ExecuteTask(ctx context.Context, goal string) (*Outcome, error) {
	if n.Browser == nil || n.LLM == nil {
		return nil, errors.New("navigator: browser and llm are required")
	}
	max := n.MaxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}
	log := n.logger()
	log.Info("Starting browser task.", zap.String("goal", goal), zap.Int("max_iterations", max))

	out := &Outcome{}
	for out.Iterations < max {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		state, err := n.Browser.GetPageState(ctx, n.Vision)
		if err != nil {
			return out, fmt.Errorf("page state: %w", err)
		}
		action, err := n.nextAction(ctx, goal, state)
		if err != nil {
			return out, err
		}
		out.Iterations++
		out.Actions = append(out.Actions, action)
		log.Debug("Executing action.", zap.Int("iteration", out.Iterations), zap.String("action", action.Action))

		done, err := n.execute(ctx, action, out)
		if err != nil {
			return out, fmt.Errorf("%s: %w", action.Action, err)
		}
		if done {
			log.Info("Browser task completed.", zap.Int("iterations", out.Iterations), zap.String("message", out.Message))
			return out, nil
		}
	}
	return out, ErrMaxIterations
}

func (n *Navigator) execute(ctx context.Context, a Action, out *Outcome) (bool, error) {
	switch a.Action {
	case "click":
		if err := n.Browser.ClickElement(ctx, a.ElementIndex); err != nil {
			return false, err
		}
		return false, n.sleep(ctx, clickPause)
	case "type":
		return false, n.Browser.TypeText(ctx, a.ElementIndex, a.Text, typingDelay)
	case "select":
		return false, n.Browser.SelectOption(ctx, a.ElementIndex, a.Value)
	case "navigate":
		return false, n.Browser.Navigate(ctx, a.URL)
	case "wait":
		secs := a.TimeoutSecs
		if secs <= 0 {
			secs = defaultWaitSecs
		}
		return false, n.Browser.WaitForSelector(ctx, a.Selector, time.Duration(secs)*time.Second)
	case "screenshot":
		shot, err := n.Browser.TakeScreenshot(ctx)
		if err != nil {
			return false, err
		}
		out.Screenshots = append(out.Screenshots, shot)
		return false, nil
	case "complete":
		out.Message = a.Message
		if out.Message == "" {
			out.Message = "Task completed"
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidAction, a.Action)
	}
}

func (n *Navigator) nextAction(ctx context.Context, goal string, state *browser.PageState) (Action, error) {
	resp, err := n.LLM.GenerateText(ctx, actionPrompt(goal, state))
	if err != nil {
		return Action{}, fmt.Errorf("llm request: %w", err)
	}
	raw, err := helpers.ExtractJSON(resp)
	if err != nil {
		return Action{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	var a Action
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return Action{}, fmt.Errorf("%w: %v (response %q)", ErrInvalidAction, err, resp)
	}
	a.Action = strings.ToLower(strings.TrimSpace(a.Action))
	return a, nil
}

func actionPrompt(goal string, state *browser.PageState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a browser automation assistant. Your task is: %s\n\n", goal)
	b.WriteString(state.ToLLMPrompt())
	b.WriteString("\n\nBased on the current page state and the task, what is the next action to take?\n")
	b.WriteString("Respond with a JSON object representing one of these actions:\n")
	b.WriteString(`- {"action": "click", "element_index": <number>}` + "\n")
	b.WriteString(`- {"action": "type", "element_index": <number>, "text": "<text>"}` + "\n")
	b.WriteString(`- {"action": "select", "element_index": <number>, "value": "<value>"}` + "\n")
	b.WriteString(`- {"action": "navigate", "url": "<url>"}` + "\n")
	b.WriteString(`- {"action": "wait", "selector": "<selector>", "timeout_secs": <number>}` + "\n")
	b.WriteString(`- {"action": "screenshot"}` + "\n")
	b.WriteString(`- {"action": "complete", "message": "<completion message>"}` + "\n")
	b.WriteString("\nOnly respond with the JSON object, no explanation.")
	return b.String()
}

// ExtractStructuredData asks the model to describe the current page as a JSON object.
func (n *Navigator) ExtractStructuredData(ctx context.Context, instruction string) (map[string]any, error) {
	state, err := n.Browser.GetPageState(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("page state: %w", err)
	}
	prompt := fmt.Sprintf("Extract the following information from this web page:\n%s\n\nPage content:\n%s\n\n"+
		"Return the extracted data as a valid JSON object. Only respond with the JSON, no explanation.",
		instruction, state.ToLLMPrompt())
	resp, err := n.LLM.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm request: %w", err)
	}
	raw, err := helpers.ExtractJSON(resp)
	if err != nil {
		return nil, fmt.Errorf("parse extracted data: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("parse extracted data: %w", err)
	}
	return data, nil
}
