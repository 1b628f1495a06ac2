// Package browser fetches rendered pages with a real Chrome instance and
// distills them into the simplified form the rest of the pipeline consumes.
package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/ciciliostudio/probe/internal/logging"
)

// Fetcher renders pages with chromedp. Each fetch gets its own browser
// context; extraction is rare enough that a persistent instance is not
// worth its lifecycle headaches.
type Fetcher struct {
	headless  bool
	timeout   time.Duration
	userAgent string
}

// FetcherOptions configures a Fetcher. Zero values fall back to defaults.
type FetcherOptions struct {
	Headless  bool
	Timeout   time.Duration
	UserAgent string
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Fetcher{
		headless:  opts.Headless,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
	}
}

// findChrome attempts to find a Chrome executable
func findChrome() (string, error) {
	var paths []string

	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	case "linux":
		paths = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, path := range paths {
		if runtime.GOOS == "darwin" {
			if _, err := os.Stat(path); err == nil {
				logging.Debug("Found Chrome at: %s", path)
				return path, nil
			}
		} else {
			if _, err := exec.LookPath(path); err == nil {
				logging.Debug("Found Chrome at: %s", path)
				return path, nil
			}
		}
	}

	if path, err := exec.LookPath("chrome"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("Chrome browser not found. Please install Chrome, Chromium, or Brave")
}

// FetchedPage is the raw render result before simplification.
type FetchedPage struct {
	URL    string // final URL after redirects
	Title  string
	HTML   string
	Status int // HTTP status of the main document, 0 when unknown
}

// Fetch renders the page and returns its final URL, title, and full HTML.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*FetchedPage, error) {
	chromePath, err := findChrome()
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chromePath),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if !f.headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if f.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.userAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, v ...interface{}) {
		logging.Debug("[Chrome] "+format, v...)
	}))
	defer cancel()

	runCtx, runCancel := context.WithTimeout(browserCtx, f.timeout)
	defer runCancel()

	var page FetchedPage

	// Record the main document's HTTP status from the CDP network events;
	// chromedp surfaces no navigation status of its own.
	var statusMu sync.Mutex
	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		statusMu.Lock()
		if page.Status == 0 {
			page.Status = int(resp.Response.Status)
		}
		statusMu.Unlock()
	})

	logging.Info("Fetching page: %s", url)
	err = chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(url),
		// Let dynamic content settle before capturing
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&page.URL),
		chromedp.Title(&page.Title),
		chromedp.OuterHTML(`html`, &page.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if page.Status >= 400 {
		logging.Warn("Page %s returned HTTP %d", page.URL, page.Status)
	}
	logging.Info("Fetched %s (%q, %d bytes)", page.URL, page.Title, len(page.HTML))
	return &page, nil
}
