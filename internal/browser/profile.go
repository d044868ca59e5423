package browser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

const (
	lockFileName      = "SingletonLock"
	tempProfilePrefix = "researcher-browser-session-"
)

// ProcessProbe reports whether a browser process is running against profileDir.
type ProcessProbe func(ctx context.Context, profileDir string) (bool, error)

// ProcessUsingProfile scans the OS process table for a command line that
// carries --user-data-dir=<profileDir>.
func ProcessUsingProfile(ctx context.Context, profileDir string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}
	needle := "--user-data-dir=" + profileDir
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue // exited or not ours to inspect
		}
		if strings.Contains(cmdline, needle) {
			return true, nil
		}
	}
	return false, nil
}

// persistentProfileDir resolves <user config dir>/<app>/ChromeProfile unless
// an explicit directory is configured.
func persistentProfileDir(explicit, appName string) (string, error) {
	if explicit != "" {
		return explicit, os.MkdirAll(explicit, 0o755)
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	dir := filepath.Join(base, appName, "ChromeProfile")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create profile dir: %w", err)
	}
	return dir, nil
}

// cleanupTempProfiles removes session profile directories under root older
// than maxAge. Failures are logged only.
func cleanupTempProfiles(root string, maxAge time.Duration, now time.Time, logger *zap.Logger) int {
	entries, err := os.ReadDir(root)
	if err != nil {
		logger.Debug("Temp profile scan failed.", zap.String("root", root), zap.Error(err))
		return 0
	}
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), tempProfilePrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			logger.Warn("Failed to remove stale temp profile.", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("Removed stale temp profiles.", zap.Int("count", removed))
	}
	return removed
}

// lockArbiter decides whether a persistent profile's SingletonLock may be
// broken before launching.
type lockArbiter struct {
	staleAfter time.Duration
	wait       time.Duration
	poll       time.Duration
	probe      ProcessProbe
	now        func() time.Time
	logger     *zap.Logger
}

func (a *lockArbiter) arbitrate(ctx context.Context, profileDir string) error {
	lockPath := filepath.Join(profileDir, lockFileName)
	// Chrome's lock is a dangling symlink on Linux, so never follow it.
	info, err := os.Lstat(lockPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat profile lock: %w", err)
	}

	if age := a.now().Sub(info.ModTime()); age > a.staleAfter {
		a.logger.Info("Removing stale profile lock.", zap.String("lock", lockPath), zap.Duration("age", age))
		return removeLock(lockPath)
	}

	if !a.inUse(ctx, profileDir) {
		a.logger.Info("Profile lock has no owning process, removing.", zap.String("lock", lockPath))
		return removeLock(lockPath)
	}

	a.logger.Info("Profile in use, waiting for it to be released.",
		zap.String("profile", profileDir), zap.Duration("max_wait", a.wait))
	for waited := time.Duration(0); waited < a.wait; waited += a.poll {
		if err := sleepCtx(ctx, a.poll); err != nil {
			return err
		}
		if _, err := os.Lstat(lockPath); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if !a.inUse(ctx, profileDir) {
			return removeLock(lockPath)
		}
	}
	return &Error{Op: "lock", Target: profileDir, Err: ErrProfileInUse}
}

// inUse treats probe failures as "not running" so an unreadable process table
// never blocks a launch for the whole wait window.
func (a *lockArbiter) inUse(ctx context.Context, profileDir string) bool {
	running, err := a.probe(ctx, profileDir)
	if err != nil {
		a.logger.Warn("Process probe failed.", zap.Error(err))
		return false
	}
	return running
}

func removeLock(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove profile lock: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
