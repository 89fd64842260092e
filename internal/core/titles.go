// Package core suggests titles for pages that are about to be bookmarked.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/seckatie/smartbookmark/internal/core/db"
	"github.com/seckatie/smartbookmark/internal/logger"
)

var (
	ErrNoTitle = errors.New("core: page has no title")
	// ErrForbiddenHost is returned for URLs whose host resolves to an
	// address that is not publicly routable.
	ErrForbiddenHost = errors.New("core: refusing to fetch a non-public address")
)

// Ranges IsGlobalUnicast lets through that are still not on the internet.
var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
}

// TitleOptions controls how a page is fetched to find its title.
type TitleOptions struct {
	// Timeout bounds the whole lookup. If <= 0, a default is used.
	Timeout time.Duration
	// Client is used for plain HTTP fetches. Defaults to a client with Timeout.
	Client *http.Client
	// Render loads the page in Chrome (via the DevTools protocol) so titles
	// set by JavaScript are seen. Falls back to a plain fetch on failure.
	Render bool
	// ChromePath optionally overrides the Chrome/Chromium executable path.
	ChromePath string
	// AllowPrivateHosts turns off the check that keeps lookups away from
	// non-public addresses.
	AllowPrivateHosts bool
	Log               logger.Logger
}

// SuggestTitle returns a human readable title for rawURL.
//
// The title is taken from og:title, then <title>, then the first <h1>.
func SuggestTitle(ctx context.Context, rawURL string, opts TitleOptions) (string, error) {
	if err := db.ValidateBookmarkURL(rawURL); err != nil {
		return "", err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTitleTimeout
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if !opts.AllowPrivateHosts {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", err
		}
		if err := checkHost(ctx, u.Hostname()); err != nil {
			return "", err
		}
	}

	if opts.Render {
		title, err := renderTitle(ctx, rawURL, opts)
		if err == nil && title != "" {
			return title, nil
		}
		opts.Log.Warn("render failed, falling back to plain fetch",
			logger.String("url", rawURL), logger.Error(err))
	}

	client := opts.Client
	switch {
	case client != nil:
	case opts.AllowPrivateHosts:
		client = &http.Client{Timeout: opts.Timeout}
	default:
		client = publicClient(opts.Timeout)
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	html, err := fetchPage(ctx, client, rawURL, MaxPageSize)
	if err != nil {
		return "", err
	}
	title := extractTitle(html)
	if title == "" {
		return "", ErrNoTitle
	}
	return title, nil
}

// checkHost resolves host and fails with ErrForbiddenHost if any of its
// addresses is not public.
func checkHost(ctx context.Context, host string) error {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		if !publicAddr(addr) {
			return fmt.Errorf("%w: %s", ErrForbiddenHost, host)
		}
	}
	return nil
}

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return false
	}
	for _, p := range nonPublicPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

// refuseNonPublic is a net.Dialer Control hook. It sees the address actually
// being dialed, so redirects and re-resolved names are covered too.
func refuseNonPublic(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !publicAddr(addr) {
		return fmt.Errorf("%w: %s", ErrForbiddenHost, addr)
	}
	return nil
}

// publicClient returns a client that can only connect to public addresses.
// Proxy settings are not honoured.
func publicClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: timeout, Control: refuseNonPublic}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: timeout,
		},
	}
}

// fetchPage fetches a URL and returns at most maxSize bytes of its body.
func fetchPage(ctx context.Context, client *http.Client, urlStr string, maxSize int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", err
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", urlStr, resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	if maxSize > 0 {
		reader = io.LimitReader(resp.Body, maxSize)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// extractTitle picks the best title candidate from an HTML document.
func extractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	candidates := []string{
		doc.Find(`meta[property="og:title"]`).First().AttrOr("content", ""),
		doc.Find("title").First().Text(),
		doc.Find("h1").First().Text(),
	}
	for _, c := range candidates {
		if t := cleanTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func cleanTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > MaxTitleLen {
		s = string([]rune(s)[:MaxTitleLen])
	}
	return s
}

// renderTitle loads rawURL in Chrome and reads document.title after the
// network goes idle.
func renderTitle(ctx context.Context, rawURL string, opts TitleOptions) (string, error) {
	timeout := opts.Timeout
	if timeout < DefaultRenderTimeout {
		timeout = DefaultRenderTimeout
	}

	allocatorOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocatorOpts = append(allocatorOpts,
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
		chromedp.UserAgent(UserAgent),
	)
	if opts.ChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(opts.ChromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, timeout)
	defer cancelRun()

	var title, html string

	waitForNetworkIdle := func(ctx context.Context) error {
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}

		idle := make(chan struct{}, 1)
		chromedp.ListenTarget(ctx, func(ev any) {
			if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		})

		if err := chromedp.Navigate(rawURL).Do(ctx); err != nil {
			return err
		}

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	if err := chromedp.Run(runCtx,
		chromedp.ActionFunc(waitForNetworkIdle),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(DefaultNetworkIdleDelay),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("render %s: %w", rawURL, err)
	}

	// Some pages leave document.title blank; fall back to parsing the HTML.
	if t := cleanTitle(title); t != "" {
		return t, nil
	}
	return extractTitle(html), nil
}
