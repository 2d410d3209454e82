package testutil

import (
	"context"
	"testing"

	"github.com/shopqa/authcache/internal/browser"
	"github.com/shopqa/authcache/internal/errors"
)

func login(t *testing.T, site *FakeSite, page browser.Page, username, password string) {
	t.Helper()
	sel := site.Site.Selectors
	for _, err := range []error{
		page.Goto(site.Site.LoginURL()),
		page.Fill(sel.Username, username),
		page.Fill(sel.Password, password),
		page.Click(sel.Submit),
	} {
		if err != nil {
			t.Fatalf("login step failed: %v", err)
		}
	}
}

func TestFakeDriver_LoginAndRestore(t *testing.T) {
	cfg := TestConfig(t)
	site := NewFakeSite(cfg.Site, Directory(t, cfg))
	driver := NewFakeDriver(site)

	bctx, err := driver.NewContext(context.Background(), browser.ContextOptions{})
	if err != nil {
		t.Fatal(err)
	}
	page, _ := bctx.NewPage()
	login(t, site, page, "standard_user", "secret_sauce")

	if err := page.WaitForURL(cfg.Site.AuthenticatedURLPattern, cfg.Login.NavigationTimeout()); err != nil {
		t.Fatalf("WaitForURL() failed: %v", err)
	}
	if site.LoginCount("standard_user") != 1 {
		t.Errorf("LoginCount = %d, want 1", site.LoginCount("standard_user"))
	}

	state, err := bctx.SerializeState()
	if err != nil {
		t.Fatal(err)
	}
	_ = bctx.Close()

	restored, err := driver.NewContext(context.Background(), browser.ContextOptions{RestoreFrom: state})
	if err != nil {
		t.Fatal(err)
	}
	defer restored.Close()
	page, _ = restored.NewPage()
	_ = page.Goto(cfg.Site.AuthenticatedURL())
	if visible, _ := page.IsVisible(cfg.Site.Selectors.AuthenticatedMarker); !visible {
		t.Error("restored context should be authenticated")
	}

	site.Expire("standard_user")
	_ = page.Goto(cfg.Site.AuthenticatedURL())
	if page.URL() != cfg.Site.LoginURL() {
		t.Errorf("expired session URL = %q, want redirect to login", page.URL())
	}
	if err := page.WaitForURL(cfg.Site.AuthenticatedURLPattern, 0); !errors.Is(err, browser.ErrTimeout) {
		t.Errorf("WaitForURL() error = %v, want ErrTimeout", err)
	}
	if driver.Restored() != 1 || driver.OpenContexts() != 1 {
		t.Errorf("Restored = %d, OpenContexts = %d", driver.Restored(), driver.OpenContexts())
	}
}

func TestFakeDriver_Rejections(t *testing.T) {
	cfg := TestConfig(t)
	site := NewFakeSite(cfg.Site, Directory(t, cfg))
	driver := NewFakeDriver(site)

	tests := []struct {
		name     string
		username string
		password string
		message  string
	}{
		{"locked out", "locked_out_user", "secret_sauce", LockedOutMessage},
		{"bad password", "standard_user", "nope", BadPasswordMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bctx, _ := driver.NewContext(context.Background(), browser.ContextOptions{})
			defer bctx.Close()
			page, _ := bctx.NewPage()
			login(t, site, page, tt.username, tt.password)

			if visible, _ := page.IsVisible(cfg.Site.Selectors.Error); !visible {
				t.Error("error indicator should be visible")
			}
			if text, _ := page.TextContent(cfg.Site.Selectors.Error); text != tt.message {
				t.Errorf("TextContent() = %q, want %q", text, tt.message)
			}
		})
	}
	if site.TotalLogins() != 0 {
		t.Errorf("TotalLogins = %d, want 0", site.TotalLogins())
	}
}

func TestFakeSite_FailNext(t *testing.T) {
	cfg := TestConfig(t)
	site := NewFakeSite(cfg.Site, Directory(t, cfg))
	site.FailNext(browser.ErrNetwork)

	if _, _, err := site.submit("standard_user", "secret_sauce"); !errors.Is(err, browser.ErrNetwork) {
		t.Fatalf("first submit error = %v, want ErrNetwork", err)
	}
	if tok, _, err := site.submit("standard_user", "secret_sauce"); err != nil || tok == "" {
		t.Fatalf("second submit = %q, %v", tok, err)
	}
}

func TestFakeDriver_InvalidState(t *testing.T) {
	driver := NewFakeDriver(NewFakeSite(TestConfig(t).Site, nil))
	if _, err := driver.NewContext(context.Background(), browser.ContextOptions{RestoreFrom: []byte("{")}); err == nil {
		t.Error("NewContext() should reject corrupt state")
	}
}
