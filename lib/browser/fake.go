package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Fake is an in-memory Driver for tests. Behavior hooks mutate the fake's
// page state in response to navigation, clicks and option selection, which
// is enough to script multi-step portal flows without a browser.
type Fake struct {
	mu sync.Mutex

	URL      string
	Source   string
	Elements map[string]bool
	Jar      []Cookie

	// Actions records every driver call in order, e.g. "click:#Donem".
	Actions []string

	NavigateFunc func(f *Fake, url string)
	ClickFunc    func(f *Fake, selector string) error
	SelectFunc   func(f *Fake, selector, value string) error
	EvaluateFunc func(f *Fake, script string) (any, error)
	AddCookieErr func(cookie Cookie) error

	QuitCalled bool
}

func NewFake() *Fake {
	return &Fake{Elements: map[string]bool{}}
}

func (f *Fake) record(action string) {
	f.Actions = append(f.Actions, action)
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("navigate:" + url)
	if f.NavigateFunc != nil {
		f.NavigateFunc(f, url)
		return nil
	}
	f.URL = url
	return nil
}

func (f *Fake) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.URL, nil
}

func (f *Fake) PageSource(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Source, nil
}

func (f *Fake) Exists(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Elements[selector], nil
}

func (f *Fake) Click(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("click:" + selector)
	if f.ClickFunc != nil {
		return f.ClickFunc(f, selector)
	}
	if !f.Elements[selector] {
		return fmt.Errorf("click %q: element not found", selector)
	}
	return nil
}

func (f *Fake) SetValue(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("setvalue:" + selector)
	if !f.Elements[selector] {
		return fmt.Errorf("set value %q: element not found", selector)
	}
	return nil
}

func (f *Fake) SelectOption(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("select:" + selector + "=" + value)
	if f.SelectFunc != nil {
		return f.SelectFunc(f, selector, value)
	}
	if !f.Elements[selector] {
		return fmt.Errorf("select %q: element not found", selector)
	}
	return nil
}

func (f *Fake) Evaluate(ctx context.Context, script string, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("evaluate")
	if f.EvaluateFunc == nil {
		return fmt.Errorf("fake driver: no evaluate hook")
	}
	result, err := f.EvaluateFunc(f, script)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	serialized, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(serialized, out)
}

func (f *Fake) Cookies(ctx context.Context) ([]Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Cookie, len(f.Jar))
	copy(out, f.Jar)
	return out, nil
}

func (f *Fake) AddCookie(ctx context.Context, cookie Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AddCookieErr != nil {
		if err := f.AddCookieErr(cookie); err != nil {
			return err
		}
	}
	f.Jar = append(f.Jar, cookie)
	return nil
}

func (f *Fake) ClearCookies(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("clearcookies")
	f.Jar = nil
	return nil
}

func (f *Fake) Quit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.QuitCalled = true
	return nil
}
