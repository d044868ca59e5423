package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/mohammad-safakhou/researcher/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	launchBackoffUnit = time.Second
	closeTimeout      = 5 * time.Second
	consoleCapacity   = 200
)

// Session owns one browser connection and its single page. Page operations
// are serialised; the session must not be driven by two flows at once.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	now    func() time.Time
	probe  ProcessProbe

	mu          sync.Mutex // guards the lifecycle fields below
	closed      bool
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	profileDir  string
	tempProfile bool
	pump        *eventPump

	opMu    sync.Mutex // one protocol command sequence at a time
	console *consoleBuffer

	launchCounter otelmetric.Int64Counter
}

// Option customises a Session.
type Option func(*Session)

// WithProcessProbe replaces the OS process scan used by lock arbitration.
func WithProcessProbe(p ProcessProbe) Option {
	return func(s *Session) { s.probe = p }
}

// WithClock overrides the wall clock used for lock and temp-profile ageing.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates an unlaunched session.
func New(cfg config.BrowserConfig, logger *zap.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		cfg:     cfg.Normalize(),
		logger:  logger.Named("browser"),
		now:     time.Now,
		probe:   ProcessUsingProfile,
		console: newConsoleBuffer(consoleCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	counter, err := otel.Meter("researcher/internal/browser").Int64Counter(
		"browser_launch_attempts_total",
		otelmetric.WithDescription("Browser launch attempts by outcome"),
	)
	if err != nil {
		s.logger.Debug("Launch counter unavailable.", zap.Error(err))
	}
	s.launchCounter = counter
	return s
}

// WithSession launches a session, hands it to fn and always closes it, so a
// temporary profile never outlives the call, even when fn fails or panics.
func WithSession(ctx context.Context, cfg config.BrowserConfig, opts LaunchOptions, logger *zap.Logger, fn func(*Session) error) (err error) {
	s := New(cfg, logger)
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if err := s.Launch(ctx, opts); err != nil {
		return err
	}
	return fn(s)
}

// Launch starts the browser and opens one blank page. Calling Launch on a
// running session is a no-op.
func (s *Session) Launch(ctx context.Context, opts LaunchOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.tabCtx != nil {
		return nil
	}

	var (
		dir  string
		err  error
		temp = !opts.PersistentProfile
	)
	if temp {
		cleanupTempProfiles(os.TempDir(), s.cfg.TempProfileMaxAge, s.now(), s.logger)
		dir, err = os.MkdirTemp("", tempProfilePrefix)
		if err != nil {
			return wrap("launch", "", fmt.Errorf("create temp profile: %w", err))
		}
	} else {
		dir, err = persistentProfileDir(s.cfg.ProfileDir, s.cfg.AppName)
		if err != nil {
			return wrap("launch", "", err)
		}
	}

	arbiter := &lockArbiter{
		staleAfter: s.cfg.LockStaleAfter,
		wait:       s.cfg.LockWait,
		poll:       s.cfg.LockPollInterval,
		probe:      s.probe,
		now:        s.now,
		logger:     s.logger,
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.LaunchAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, time.Duration(attempt-1)*launchBackoffUnit); err != nil {
				lastErr = err
				break
			}
		}
		if !temp {
			if err := arbiter.arbitrate(ctx, dir); err != nil {
				lastErr = err
				s.recordLaunch(ctx, "lock_failed")
				s.logger.Warn("Lock arbitration failed.", zap.Int("attempt", attempt), zap.Error(err))
				if ctx.Err() != nil {
					break
				}
				continue
			}
		}
		if err := s.launchOnce(ctx, dir, opts.Headless); err != nil {
			lastErr = err
			s.recordLaunch(ctx, "failed")
			s.logger.Warn("Browser launch attempt failed.", zap.Int("attempt", attempt), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		s.profileDir = dir
		s.tempProfile = temp
		s.recordLaunch(ctx, "ok")
		s.logger.Info("Browser launched.",
			zap.String("profile", dir), zap.Bool("temporary", temp),
			zap.Bool("headless", opts.Headless), zap.Int("attempt", attempt))
		return nil
	}

	if temp {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Failed to remove temp profile after launch failure.", zap.String("path", dir), zap.Error(err))
		}
	}
	return wrap("launch", dir, lastErr)
}

// ConnectToExisting attaches to a browser already listening on a DevTools
// websocket URL. The session owns no profile directory in this mode.
func (s *Session) ConnectToExisting(ctx context.Context, wsURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.tabCtx != nil {
		return nil
	}
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), wsURL)
	if err := s.attach(ctx, allocCtx, allocCancel); err != nil {
		return wrap("connect", wsURL, err)
	}
	s.logger.Info("Connected to existing browser.", zap.String("ws_url", wsURL))
	return nil
}

func (s *Session) launchOnce(ctx context.Context, dir string, headless bool) error {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), s.allocatorOptions(dir, headless)...)
	return s.attach(ctx, allocCtx, allocCancel)
}

// attach creates the tab and runs the first (allocating) action on the tab
// context itself: a derived context would tear the browser down with it.
func (s *Session) attach(ctx context.Context, allocCtx context.Context, allocCancel context.CancelFunc) error {
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(s.protocolErrorf),
		chromedp.WithLogf(func(format string, args ...any) {
			s.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(tabCtx, chromedp.Navigate("about:blank")) }()
	select {
	case err := <-errc:
		if err != nil {
			tabCancel()
			allocCancel()
			return err
		}
	case <-ctx.Done():
		tabCancel()
		allocCancel()
		<-errc
		return ctx.Err()
	}

	s.allocCancel = allocCancel
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel
	s.pump = startEventPump(tabCtx, s.console, s.logger)
	return nil
}

func (s *Session) allocatorOptions(dir string, headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(dir),
		chromedp.UserAgent(s.cfg.UserAgent),
		chromedp.WindowSize(1280, 1024),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("force-color-profile", "srgb"),
	)
	if headless {
		opts = append(opts, chromedp.Headless, chromedp.DisableGPU)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}
	return opts
}

// protocolErrorf receives chromedp's internal errors. Events the client
// cannot decode are routine with newer browsers and only logged at debug.
func (s *Session) protocolErrorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if isBenignProtocolError(msg) {
		s.logger.Debug("Ignored undecodable protocol message.", zap.String("detail", msg))
		return
	}
	s.logger.Warn("Protocol error.", zap.String("detail", msg))
}

func isBenignProtocolError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "unmarshal") ||
		strings.Contains(m, "did not match any variant") ||
		(strings.Contains(m, "unknown") && strings.Contains(m, "event"))
}

func (s *Session) recordLaunch(ctx context.Context, outcome string) {
	if s.launchCounter == nil {
		return
	}
	s.launchCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", outcome)))
}

// tab returns the live tab context or ErrNotLaunched.
func (s *Session) tab() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabCtx == nil {
		return nil, ErrNotLaunched
	}
	return s.tabCtx, nil
}

// run executes actions on the page, bounded by both the tab lifetime and
// the caller's ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := s.tab()
	if err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err = chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Launched reports whether the session currently holds a browser.
func (s *Session) Launched() bool {
	_, err := s.tab()
	return err == nil
}

// ProfileDir returns the profile directory in use, empty before launch.
func (s *Session) ProfileDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileDir
}

// Close shuts the browser down and removes a temporary profile. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.pump != nil {
		s.pump.stop()
		s.pump = nil
	}
	if s.tabCtx != nil {
		done := make(chan error, 1)
		go func(ctx context.Context) { done <- chromedp.Cancel(ctx) }(s.tabCtx)
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Debug("Graceful browser close failed.", zap.Error(err))
			}
		case <-time.After(closeTimeout):
			s.logger.Warn("Timed out closing browser, forcing shutdown.")
		}
		s.tabCancel()
		s.allocCancel()
		s.tabCtx = nil
	}

	var err error
	if s.tempProfile && s.profileDir != "" {
		if rerr := os.RemoveAll(s.profileDir); rerr != nil {
			err = wrap("close", s.profileDir, fmt.Errorf("remove temp profile: %w", rerr))
		}
	}
	s.logger.Info("Browser session closed.", zap.String("profile", s.profileDir), zap.Bool("temporary", s.tempProfile))
	return err
}
