package browser

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// DefaultUserAgent matches the portal's expected desktop browser.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.7151.41 Safari/537.36"

type ChromeOptions struct {
	Headless  bool
	UserAgent string
}

// Chrome drives a local Chrome instance over the devtools protocol.
type Chrome struct {
	browser context.Context
	cancels []context.CancelFunc
}

func NewChrome(ctx context.Context, opts ChromeOptions) (*Chrome, error) {
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	flags := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, flags...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	c := &Chrome{
		browser: browserCtx,
		cancels: []context.CancelFunc{browserCancel, allocCancel},
	}

	// hide the automation marker before any portal script runs
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(
			"Object.defineProperty(navigator, 'webdriver', {get: () => undefined})",
		).Do(ctx)
		return err
	}))
	if err != nil {
		c.Quit()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return c, nil
}

// run executes actions on the browser context, bounded by the caller's
// deadline when one is set.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx := c.browser
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(runCtx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := c.run(ctx, chromedp.Location(&url))
	return url, err
}

func (c *Chrome) PageSource(ctx context.Context) (string, error) {
	var source string
	err := c.run(ctx, chromedp.Evaluate("document.documentElement.outerHTML", &source))
	return source, err
}

func (c *Chrome) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	script := fmt.Sprintf(
		"document.querySelectorAll(%s).length > 0",
		strconv.Quote(selector),
	)
	err := c.run(ctx, chromedp.Evaluate(script, &found))
	return found, err
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	return c.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (c *Chrome) SetValue(ctx context.Context, selector, value string) error {
	return c.run(ctx, chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (c *Chrome) SelectOption(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) { return false; }
		el.value = %s;
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, strconv.Quote(selector), strconv.Quote(value))

	var ok bool
	err := c.run(ctx, chromedp.Evaluate(script, &ok))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("select %q: element not found", selector)
	}
	return nil
}

func (c *Chrome) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		var discard any
		out = &discard
	}
	return c.run(ctx, chromedp.Evaluate(script, out))
}

func (c *Chrome) Cookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, rc := range raw {
			cookies = append(cookies, Cookie{
				Name:     rc.Name,
				Value:    rc.Value,
				Domain:   rc.Domain,
				Path:     rc.Path,
				Expiry:   rc.Expires,
				Secure:   rc.Secure,
				HttpOnly: rc.HTTPOnly,
			})
		}
		return nil
	}))
	return cookies, err
}

func (c *Chrome) AddCookie(ctx context.Context, cookie Cookie) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		setter := network.SetCookie(cookie.Name, cookie.Value).
			WithDomain(cookie.Domain).
			WithPath(cookie.Path).
			WithSecure(cookie.Secure).
			WithHTTPOnly(cookie.HttpOnly)
		if cookie.Expiry != 0 {
			expiry := cdp.TimeSinceEpoch(epochToTime(cookie.Expiry))
			setter = setter.WithExpires(&expiry)
		}
		return setter.Do(ctx)
	}))
}

func (c *Chrome) ClearCookies(ctx context.Context) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.ClearBrowserCookies().Do(ctx)
	}))
}

func epochToTime(epoch float64) time.Time {
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

func (c *Chrome) Quit() error {
	for _, cancel := range c.cancels {
		cancel()
	}
	return nil
}
