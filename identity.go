package pmind

import "context"

// Identity is the signed-in user as reported by the identity provider.
type Identity struct {
	UID         string
	DisplayName string
	PhotoURL    string
	Email       string
	Anonymous   bool
}

// Name returns a display name suitable for greetings.
func (i Identity) Name() string {
	switch {
	case i.DisplayName != "":
		return i.DisplayName
	case i.Email != "":
		return i.Email
	case i.Anonymous:
		return "Guest"
	}
	return "there"
}

// IdentityProvider is the external authentication collaborator.
//
// OnAuthStateChange registers fn and invokes it immediately with the current
// identity (nil when signed out), then again after every change. The
// returned function removes the registration.
type IdentityProvider interface {
	SignIn(ctx context.Context) (Identity, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn func(*Identity)) (unsubscribe func())
}
