package koubs

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"koubs-backend/lib/browser"
	"koubs-backend/lib/sessionstore"
	"koubs-backend/lib/telemetry"
)

const testUser = "200101001"

func fastAuthenticator(drv browser.Driver, sessions sessionstore.Store) *Authenticator {
	a := NewAuthenticator(drv, sessions)
	a.defaultWait = time.Millisecond * 100
	a.captchaWait = time.Millisecond * 200
	a.settle = time.Millisecond
	a.pollEvery = time.Millisecond * 10
	return a
}

// loggedInPortal flips the fake to the authenticated landing page once
// cookies are present, mimicking a portal that honors the saved session.
func loggedInPortal(f *browser.Fake, url string) {
	f.URL = url
	if url == MainPageURL && len(f.Jar) > 0 {
		f.Source = `<html><a id="Cikis">Çıkış</a><div id="DersIslemleri"></div></html>`
	} else {
		f.Source = `<html><form><input id="OgrNo"><input id="Sifre"></form>reCAPTCHA</html>`
	}
}

func TestLoginWithSavedSession(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:koubs")
	defer cleanup()

	sessions := sessionstore.NewStore(t.TempDir())
	err := sessions.Save(testUser, []browser.Cookie{
		{Name: "CFID", Value: "1", Domain: "ogr.kocaeli.edu.tr"},
	})
	require.NoError(t, err)

	drv := browser.NewFake()
	drv.NavigateFunc = loggedInPortal

	auth := fastAuthenticator(drv, sessions)
	prompted := false
	auth.Prompt = func(int) { prompted = true }

	err = auth.Login(context.Background(), Credentials{Username: testUser, Password: "secret"})
	require.NoError(t, err)
	require.False(t, prompted, "saved session login must not require user interaction")
	require.Len(t, drv.Jar, 1)
	require.Contains(t, drv.Actions, "navigate:"+OriginURL)
	require.Contains(t, drv.Actions, "navigate:"+MainPageURL)
}

func TestExpiredSessionSkipsLoadAndClears(t *testing.T) {
	dir := t.TempDir()
	past := time.Now().Add(-sessionstore.SessionTTL * 2)
	expired := sessionstore.NewStore(dir).WithClock(func() time.Time { return past })
	err := expired.Save(testUser, []browser.Cookie{
		{Name: "CFID", Value: "1", Domain: "ogr.kocaeli.edu.tr"},
	})
	require.NoError(t, err)

	drv := browser.NewFake()
	drv.NavigateFunc = func(f *browser.Fake, url string) {
		f.URL = url
		f.Source = `<html><input id="OgrNo"><input id="Sifre"></html>`
	}
	drv.Elements["#OgrNo"] = true
	drv.Elements["#Sifre"] = true

	auth := fastAuthenticator(drv, sessionstore.NewStore(dir))
	err = auth.Login(context.Background(), Credentials{Username: testUser, Password: "secret"})
	require.ErrorIs(t, err, ErrLoginFailed)

	// the stale artifacts were cleared before interactive login started
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Empty(t, entries)

	// the expired cookie blob was never injected
	require.NotContains(t, drv.Actions, "navigate:"+OriginURL)
	require.Empty(t, drv.Jar)
}

func TestInteractiveLoginSuccess(t *testing.T) {
	dir := t.TempDir()
	sessions := sessionstore.NewStore(dir)

	drv := browser.NewFake()
	drv.URL = LoginURL
	drv.Source = `<html><input id="OgrNo"><input id="Sifre">reCAPTCHA</html>`
	drv.Elements["#OgrNo"] = true
	drv.Elements["#Sifre"] = true

	auth := fastAuthenticator(drv, sessions)
	attempts := 0
	auth.Prompt = func(attempt int) {
		attempts++
		// the user solves the CAPTCHA, portal redirects to the landing page
		drv.Jar = []browser.Cookie{{Name: "CFID", Value: "9", Domain: "ogr.kocaeli.edu.tr"}}
		drv.URL = MainPageURL
		drv.Source = `<html>Çıkış</html>`
	}

	err := auth.Login(context.Background(), Credentials{Username: testUser, Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.True(t, sessions.HasValidSession(testUser))
}

func TestInteractiveLoginExhaustsAttempts(t *testing.T) {
	dir := t.TempDir()
	sessions := sessionstore.NewStore(dir)

	drv := browser.NewFake()
	drv.URL = LoginURL
	drv.Source = `<html><input id="OgrNo"><input id="Sifre">reCAPTCHA</html>`
	drv.Elements["#OgrNo"] = true
	drv.Elements["#Sifre"] = true

	auth := fastAuthenticator(drv, sessions)
	attempts := 0
	auth.Prompt = func(int) { attempts++ }

	err := auth.Login(context.Background(), Credentials{Username: testUser, Password: "wrong"})
	require.ErrorIs(t, err, ErrLoginFailed)
	require.Equal(t, maxLoginAttempts, attempts)

	// no session artifact may be written on failure
	require.False(t, sessions.HasValidSession(testUser))
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	require.Empty(t, entries)

	// cookies are cleared between attempts
	require.Contains(t, drv.Actions, "clearcookies")
}

func TestLoginFormMissing(t *testing.T) {
	drv := browser.NewFake()
	drv.URL = LoginURL
	drv.Source = `<html>bakım çalışması</html>`

	auth := fastAuthenticator(drv, sessionstore.NewStore(t.TempDir()))
	err := auth.Login(context.Background(), Credentials{Username: testUser, Password: "secret"})
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestLoginStatusHeuristic(t *testing.T) {
	cases := []struct {
		name     string
		url      string
		source   string
		expected loginDecision
	}{
		{"landing page url", MainPageURL, "", decisionPositive},
		{"logout affordance", "https://ogr.kocaeli.edu.tr/x", "Çıkış Yap", decisionPositive},
		{"own identifier", "https://ogr.kocaeli.edu.tr/x", "hoşgeldin 200101001", decisionPositive},
		{"menu marker", "https://ogr.kocaeli.edu.tr/x", "OgrenciBilgileri", decisionPositive},
		{"login page url", "https://ogr.kocaeli.edu.tr/login.cfm", "", decisionNegative},
		{"captcha marker", "https://ogr.kocaeli.edu.tr/x", "reCAPTCHA", decisionNegative},
		{"login form fields", "https://ogr.kocaeli.edu.tr/x", "OgrNo Sifre", decisionNegative},
		{"open session prompt", "https://ogr.kocaeli.edu.tr/x", "Oturum Açma", decisionNegative},
		{"ambiguous", "https://ogr.kocaeli.edu.tr/x", "bekleyiniz", decisionUnknown},
		// an explicit positive overrides a simultaneous negative
		{"positive wins", "https://ogr.kocaeli.edu.tr/x", "Çıkış reCAPTCHA", decisionPositive},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			drv := browser.NewFake()
			drv.URL = c.url
			drv.Source = c.source
			auth := fastAuthenticator(drv, sessionstore.NewStore(t.TempDir()))
			require.Equal(t, c.expected, auth.loginStatus(context.Background(), testUser))
		})
	}
}

func TestUnknownStatusResolvedByDomProbe(t *testing.T) {
	drv := browser.NewFake()
	drv.URL = "https://ogr.kocaeli.edu.tr/x"
	drv.Source = "bekleyiniz"
	auth := fastAuthenticator(drv, sessionstore.NewStore(t.TempDir()))

	// no probe hit: fail closed
	require.False(t, auth.isLoggedIn(context.Background(), testUser))

	drv.Elements["#DersIslemleri"] = true
	require.True(t, auth.isLoggedIn(context.Background(), testUser))
}
