package mock

import (
	"context"

	"github.com/pmind-ai/pmind"
)

// Interface compliance checks.
var (
	_ pmind.IdentityProvider = (*IdentityProvider)(nil)
	_ pmind.ThemeStore       = (*ThemeStore)(nil)
)

// IdentityProvider is a test double for pmind.IdentityProvider.
// SignInFn and SignOutFn panic when nil. OnAuthStateChangeFn is nil-safe:
// the callback is invoked once with nil and the unsubscribe is a no-op.
type IdentityProvider struct {
	SignInFn            func(ctx context.Context) (pmind.Identity, error)
	SignOutFn           func(ctx context.Context) error
	OnAuthStateChangeFn func(fn func(*pmind.Identity)) func()
}

// SignIn delegates to SignInFn.
func (p *IdentityProvider) SignIn(ctx context.Context) (pmind.Identity, error) {
	return p.SignInFn(ctx)
}

// SignOut delegates to SignOutFn.
func (p *IdentityProvider) SignOut(ctx context.Context) error {
	return p.SignOutFn(ctx)
}

// OnAuthStateChange delegates to OnAuthStateChangeFn.
func (p *IdentityProvider) OnAuthStateChange(fn func(*pmind.Identity)) func() {
	if p.OnAuthStateChangeFn == nil {
		fn(nil)
		return func() {}
	}
	return p.OnAuthStateChangeFn(fn)
}

// ThemeStore is a test double for pmind.ThemeStore.
// LoadThemeFn and SaveThemeFn are nil-safe: nothing is stored and saves
// succeed.
type ThemeStore struct {
	LoadThemeFn func() (pmind.ThemeName, bool, error)
	SaveThemeFn func(pmind.ThemeName) error
}

// LoadTheme delegates to LoadThemeFn.
func (s *ThemeStore) LoadTheme() (pmind.ThemeName, bool, error) {
	if s.LoadThemeFn == nil {
		return "", false, nil
	}
	return s.LoadThemeFn()
}

// SaveTheme delegates to SaveThemeFn.
func (s *ThemeStore) SaveTheme(name pmind.ThemeName) error {
	if s.SaveThemeFn == nil {
		return nil
	}
	return s.SaveThemeFn(name)
}
