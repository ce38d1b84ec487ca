package koubs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/codes"

	"koubs-backend/lib/browser"
	"koubs-backend/lib/sessionstore"
)

const maxLoginAttempts = 2

// Authenticator establishes a logged-in portal session on a browser
// driver, reusing a saved session when one is still valid and falling
// back to interactive credential + CAPTCHA login.
type Authenticator struct {
	drv      browser.Driver
	sessions sessionstore.Store

	// Prompt is invoked once per interactive attempt to ask the user to
	// complete the CAPTCHA. May be nil in headless/test setups.
	Prompt func(attempt int)

	defaultWait time.Duration
	captchaWait time.Duration
	settle      time.Duration
	pollEvery   time.Duration
}

func NewAuthenticator(drv browser.Driver, sessions sessionstore.Store) *Authenticator {
	return &Authenticator{
		drv:         drv,
		sessions:    sessions,
		defaultWait: time.Second * 15,
		captchaWait: time.Second * 180,
		settle:      time.Millisecond * 1500,
		pollEvery:   time.Second * 2,
	}
}

// Login is the public entry point. It returns nil once the driver is on
// the authenticated landing page; all faults surface as errors, never as
// panics.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (err error) {
	ctx, span := tracer.Start(ctx, "authenticator:login")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("login: unexpected fault: %v", r)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if a.sessions.HasValidSession(creds.Username) {
		slog.InfoContext(ctx, "found saved session, loading")
		ok, sessionErr := a.trySavedSession(ctx, creds.Username)
		if ok {
			slog.InfoContext(ctx, "logged in with saved session")
			return nil
		}
		if sessionErr != nil {
			slog.WarnContext(ctx, "saved session unusable", "err", sessionErr)
		} else {
			slog.InfoContext(ctx, "saved session expired on the portal side, logging in again")
		}
		if clearErr := a.sessions.Clear(creds.Username); clearErr != nil {
			slog.WarnContext(ctx, "failed to clear stale session", "err", clearErr)
		}
		if navErr := a.drv.Navigate(ctx, LoginURL); navErr != nil {
			slog.WarnContext(ctx, "failed to return to login page", "err", navErr)
		}
		sleep(ctx, a.settle)
	} else {
		// expired or partial artifacts may still be on disk
		if clearErr := a.sessions.Clear(creds.Username); clearErr != nil {
			slog.WarnContext(ctx, "failed to clear invalid session artifacts", "err", clearErr)
		}
	}

	err = a.interactiveLogin(ctx, creds)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "interactive login failed")
	}
	return err
}

func (a *Authenticator) trySavedSession(ctx context.Context, username string) (bool, error) {
	err := a.drv.Navigate(ctx, OriginURL)
	if err != nil {
		return false, err
	}
	err = a.sessions.Load(ctx, username, a.drv)
	if err != nil {
		return false, err
	}
	err = a.drv.Navigate(ctx, MainPageURL)
	if err != nil {
		return false, err
	}
	sleep(ctx, a.settle)
	return a.isLoggedIn(ctx, username), nil
}

type loginDecision int

const (
	decisionUnknown loginDecision = iota
	decisionPositive
	decisionNegative
)

// loginStatus classifies the current page from its URL and content.
// A positive signal wins over a simultaneous negative one.
func (a *Authenticator) loginStatus(ctx context.Context, username string) loginDecision {
	url, err := a.drv.CurrentURL(ctx)
	if err != nil {
		return decisionNegative
	}
	source, err := a.drv.PageSource(ctx)
	if err != nil {
		source = ""
	}

	positive := strings.Contains(url, "AnaGiris.cfm") ||
		strings.Contains(source, "Çıkış") ||
		(username != "" && strings.Contains(source, username)) ||
		strings.Contains(source, "DersIslemleri") ||
		strings.Contains(source, "Ders İşlemleri") ||
		strings.Contains(source, "OgrenciBilgileri")
	if positive {
		return decisionPositive
	}

	negative := strings.Contains(strings.ToLower(url), "login.cfm") ||
		strings.Contains(strings.ToLower(source), "oturum açma") ||
		strings.Contains(source, "reCAPTCHA") ||
		(strings.Contains(source, "OgrNo") && strings.Contains(source, "Sifre"))
	if negative {
		return decisionNegative
	}
	return decisionUnknown
}

// isLoggedIn resolves an ambiguous page with a DOM probe for menu
// elements that only exist when authenticated, then fails closed.
func (a *Authenticator) isLoggedIn(ctx context.Context, username string) bool {
	switch a.loginStatus(ctx, username) {
	case decisionPositive:
		return true
	case decisionNegative:
		return false
	}
	if found, _ := a.drv.Exists(ctx, "#DersIslemleri"); found {
		return true
	}
	found, _ := a.drv.Exists(ctx, "#OgrenciBilgileri")
	return found
}

func (a *Authenticator) interactiveLogin(ctx context.Context, creds Credentials) error {
	attempt := 0
	policy := retryPolicy{maxAttempts: maxLoginAttempts, interval: a.settle}

	err := policy.run(ctx, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			// reset to a clean login page before retrying
			if err := a.drv.ClearCookies(ctx); err != nil {
				slog.WarnContext(ctx, "failed to clear cookies", "err", err)
			}
			if err := a.drv.Navigate(ctx, LoginURL); err != nil {
				slog.WarnContext(ctx, "failed to reload login page", "err", err)
			}
			sleep(ctx, a.settle)
		}

		err := a.loginAttempt(ctx, creds, attempt)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err != nil {
			slog.WarnContext(ctx, "login attempt failed", "attempt", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}
	return nil
}

func (a *Authenticator) loginAttempt(ctx context.Context, creds Credentials, attempt int) error {
	url, err := a.drv.CurrentURL(ctx)
	if err != nil || !strings.Contains(url, "index.cfm") {
		err = a.drv.Navigate(ctx, LoginURL)
		if err != nil {
			return fmt.Errorf("open login page: %w", err)
		}
		sleep(ctx, a.settle)
	}

	err = waitUntil(ctx, a.defaultWait, a.pollEvery, func(ctx context.Context) bool {
		found, _ := a.drv.Exists(ctx, "#OgrNo")
		return found
	})
	if err != nil {
		return ErrLoginFormGone
	}
	err = a.drv.SetValue(ctx, "#OgrNo", creds.Username)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFormGone, err)
	}
	err = a.drv.SetValue(ctx, "#Sifre", creds.Password)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFormGone, err)
	}

	if a.Prompt != nil {
		a.Prompt(attempt)
	}

	err = waitUntil(ctx, a.captchaWait, a.pollEvery, func(ctx context.Context) bool {
		return a.isLoggedIn(ctx, creds.Username)
	})
	if err != nil {
		return ErrLoginTimeout
	}

	// let the page stabilize, then confirm
	sleep(ctx, a.settle)
	if !a.isLoggedIn(ctx, creds.Username) {
		return ErrLoginFailed
	}

	a.persistSession(ctx, creds.Username)

	url, err = a.drv.CurrentURL(ctx)
	if err != nil || !strings.Contains(url, "AnaGiris.cfm") {
		err = a.drv.Navigate(ctx, MainPageURL)
		if err != nil {
			return fmt.Errorf("open landing page: %w", err)
		}
		sleep(ctx, a.settle/2)
	}
	return nil
}

// persistSession saves the fresh cookies. Persistence failures are
// reported and tolerated, the run can proceed without a reusable session.
func (a *Authenticator) persistSession(ctx context.Context, username string) {
	cookies, err := a.drv.Cookies(ctx)
	if err != nil {
		slog.WarnContext(ctx, "failed to read cookies, session not saved", "err", err)
		return
	}
	err = a.sessions.Save(username, cookies)
	if err != nil {
		slog.WarnContext(ctx, "failed to save session", "err", err)
		return
	}
	slog.InfoContext(ctx, "session saved")
}

// IsAuthenticated re-runs the login status heuristic, exposed for
// callers that want to bail out early before collecting.
func (a *Authenticator) IsAuthenticated(ctx context.Context, username string) bool {
	return a.isLoggedIn(ctx, username)
}
