package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"

	"cardmarket/internal/logger"
)

// CommonExecutablePaths are probed when no explicit path is configured or the
// configured one fails.
var CommonExecutablePaths = []string{
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/snap/bin/chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

var launchArgs = []string{
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-gpu",
	"--no-first-run",
	"--no-zygote",
	"--disable-extensions",
	"--disable-blink-features=AutomationControlled",
	"--disable-background-timer-throttling",
	"--disable-renderer-backgrounding",
}

// PlaywrightLauncher launches headless Chromium through playwright.
type PlaywrightLauncher struct {
	log        *logger.Logger
	preferred  string
	candidates []string
	timeout    time.Duration
	exists     func(path string) bool
}

func NewPlaywrightLauncher(preferredPath string, timeout time.Duration) *PlaywrightLauncher {
	return &PlaywrightLauncher{
		log:        logger.New("BrowserLauncher"),
		preferred:  preferredPath,
		candidates: CommonExecutablePaths,
		timeout:    timeout,
		exists: func(p string) bool {
			st, err := os.Stat(p)
			return err == nil && !st.IsDir()
		},
	}
}

// executableCandidates lists paths to try in order. An empty string stands for
// the playwright-managed browser and always comes last.
func (l *PlaywrightLauncher) executableCandidates() []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] || !l.exists(p) {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	add(l.preferred)
	add(os.Getenv("PLAYWRIGHT_CHROMIUM_EXECUTABLE_PATH"))
	for _, p := range l.candidates {
		add(p)
	}
	return append(out, "")
}

func (l *PlaywrightLauncher) Launch(ctx context.Context) (Session, func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: playwright run: %v", ErrSessionUnavailable, err)
	}

	var lastErr error
	for _, path := range l.executableCandidates() {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		opts := playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(true),
			Args:     launchArgs,
			Timeout:  playwright.Float(float64(l.timeout.Milliseconds())),
		}
		label := "playwright-managed chromium"
		if path != "" {
			opts.ExecutablePath = playwright.String(path)
			label = path
		}
		b, err := pw.Chromium.Launch(opts)
		if err != nil {
			l.log.LogWarnf("launch with %s failed: %v", label, err)
			lastErr = err
			continue
		}
		l.log.LogInfof("using chromium executable: %s", label)
		closeFn := func() error {
			return errors.Join(b.Close(), pw.Stop())
		}
		return b, closeFn, nil
	}

	_ = pw.Stop()
	return nil, nil, fmt.Errorf("%w: no usable chromium executable: %v", ErrSessionUnavailable, lastErr)
}
