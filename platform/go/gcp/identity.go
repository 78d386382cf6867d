package gcp

import (
	"context"
	"fmt"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// IdentityProvisioner creates or finds identity-provider accounts for platform users.
type IdentityProvisioner struct {
	client *firebaseauth.Client
}

func NewIdentityProvisioner(client *firebaseauth.Client) *IdentityProvisioner {
	if client == nil {
		panic("firebase auth client is required")
	}
	return &IdentityProvisioner{client: client}
}

// EnsureIdentity returns the Firebase uid for email, creating a passwordless account when none exists.
func (p *IdentityProvisioner) EnsureIdentity(ctx context.Context, email, displayName string) (string, error) {
	existing, err := p.client.GetUserByEmail(ctx, email)
	if err == nil {
		return existing.UID, nil
	}
	if !firebaseauth.IsUserNotFound(err) {
		return "", fmt.Errorf("lookup firebase user: %w", err)
	}

	params := (&firebaseauth.UserToCreate{}).Email(email).EmailVerified(false)
	if displayName != "" {
		params = params.DisplayName(displayName)
	}
	created, err := p.client.CreateUser(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create firebase user: %w", err)
	}
	return created.UID, nil
}
