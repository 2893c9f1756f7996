package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/stagepass/stagepass/pkg/authz"
)

// FakeProvider is an in-memory Provider for tests and local development.
// Tokens are opaque strings registered up front; no cryptography involved.
type FakeProvider struct {
	mu      sync.Mutex
	tokens  map[string]authz.TokenClaims
	users   map[string]*UserInfo // keyed by lowercase email
	claims  map[string]authz.Role
	revoked map[string]int

	// Unavailable makes every admin call fail with
	// authz.ErrProviderUnavailable, simulating an admin SDK outage.
	Unavailable bool
}

// NewFakeProvider creates an empty fake provider.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		tokens:  make(map[string]authz.TokenClaims),
		users:   make(map[string]*UserInfo),
		claims:  make(map[string]authz.Role),
		revoked: make(map[string]int),
	}
}

// RegisterToken associates a raw bearer token with claims.
func (p *FakeProvider) RegisterToken(rawToken string, claims authz.TokenClaims) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens[rawToken] = claims
}

// AddUser registers an existing principal.
func (p *FakeProvider) AddUser(user *UserInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[strings.ToLower(user.Email)] = user
}

// RoleClaims returns the role last written for userID, if any.
func (p *FakeProvider) RoleClaims(userID string) (authz.Role, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	role, ok := p.claims[userID]
	return role, ok
}

// Revocations returns how many times tokens were revoked for userID.
func (p *FakeProvider) Revocations(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.revoked[userID]
}

func (p *FakeProvider) VerifyToken(ctx context.Context, rawToken string) (authz.TokenClaims, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	claims, ok := p.tokens[rawToken]
	if !ok {
		return authz.TokenClaims{}, authz.ErrInvalidToken
	}
	return claims, nil
}

func (p *FakeProvider) GetUserByEmail(ctx context.Context, email string) (*UserInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Unavailable {
		return nil, authz.ErrProviderUnavailable
	}
	user, ok := p.users[strings.ToLower(email)]
	if !ok {
		return nil, authz.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (p *FakeProvider) CreateUser(ctx context.Context, email string) (*UserInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Unavailable {
		return nil, authz.ErrProviderUnavailable
	}
	user := &UserInfo{ID: uuid.NewString(), Email: email}
	p.users[strings.ToLower(email)] = user
	return user, nil
}

func (p *FakeProvider) SetRoleClaims(ctx context.Context, userID string, role authz.Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Unavailable {
		return authz.ErrProviderUnavailable
	}
	p.claims[userID] = role
	return nil
}

func (p *FakeProvider) ClearClaims(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Unavailable {
		return authz.ErrProviderUnavailable
	}
	delete(p.claims, userID)
	return nil
}

func (p *FakeProvider) RevokeRefreshTokens(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Unavailable {
		return authz.ErrProviderUnavailable
	}
	p.revoked[userID]++
	return nil
}

func (p *FakeProvider) Healthy(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Unavailable {
		return authz.ErrProviderUnavailable
	}
	return nil
}
