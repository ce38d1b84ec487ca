// Package browser wraps a controllable browser instance behind a small
// capability interface so portal-driving logic can be tested against a
// fake implementation without a real browser.
package browser

import (
	"context"
)

// Cookie is an opaque authentication token entry. Fields beyond
// name/value/domain are carried along but never interpreted.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path,omitempty"`
	Expiry   float64 `json:"expiry,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	HttpOnly bool    `json:"httpOnly,omitempty"`
}

// Driver is the capability boundary over one live browser session.
// All methods are strictly sequential, the portal UI being driven is
// stateful and does not tolerate concurrent manipulation.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)

	// Exists reports whether at least one element matches the css selector
	// right now, it does not wait.
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
	// SelectOption sets the value of a <select> element and fires its
	// change event so the portal's AJAX refresh triggers.
	SelectOption(ctx context.Context, selector, value string) error
	// Evaluate runs a script in the page and unmarshals its JSON result
	// into out. out may be nil when the result is irrelevant.
	Evaluate(ctx context.Context, script string, out any) error

	Cookies(ctx context.Context) ([]Cookie, error)
	AddCookie(ctx context.Context, cookie Cookie) error
	ClearCookies(ctx context.Context) error

	// Quit releases the browser. It must be called on every exit path.
	Quit() error
}
