package memory

import (
	"context"
	"sync"

	"github.com/xraph/affiliate/account"
)

var _ account.Store = (*Accounts)(nil)

type user struct {
	affiliateID string
	attrs       map[string]string
}

// Accounts is an in-memory account.Store. Users are created implicitly on
// the first SetAttribute.
type Accounts struct {
	mu      sync.RWMutex
	users   map[string]*user
	byAffID map[string]string
}

func NewAccounts() *Accounts {
	return &Accounts{
		users:   make(map[string]*user),
		byAffID: make(map[string]string),
	}
}

// AddUser creates userRef, registering affiliateID when non-empty. An
// existing user keeps its attributes.
func (a *Accounts) AddUser(userRef, affiliateID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u := a.ensure(userRef)
	if u.affiliateID != "" {
		delete(a.byAffID, u.affiliateID)
	}
	u.affiliateID = affiliateID
	if affiliateID != "" {
		a.byAffID[affiliateID] = userRef
	}
}

// DeleteUser removes userRef and its attributes.
func (a *Accounts) DeleteUser(userRef string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if u, ok := a.users[userRef]; ok {
		delete(a.byAffID, u.affiliateID)
		delete(a.users, userRef)
	}
}

func (a *Accounts) FindAffiliateID(_ context.Context, userRef string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if u, ok := a.users[userRef]; ok && u.affiliateID != "" {
		return u.affiliateID, nil
	}
	return "", account.ErrNotFound
}

func (a *Accounts) FindUserByAffiliateID(_ context.Context, affiliateID string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if ref, ok := a.byAffID[affiliateID]; ok {
		return ref, nil
	}
	return "", account.ErrNotFound
}

func (a *Accounts) GetAttribute(_ context.Context, userRef, key string) (string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if u, ok := a.users[userRef]; ok {
		if v, ok := u.attrs[key]; ok {
			return v, nil
		}
	}
	return "", account.ErrNotFound
}

func (a *Accounts) SetAttribute(_ context.Context, userRef, key, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ensure(userRef).attrs[key] = value
	return nil
}

func (a *Accounts) DeleteAttribute(_ context.Context, userRef, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if u, ok := a.users[userRef]; ok {
		delete(u.attrs, key)
	}
	return nil
}

// ensure must be called with a.mu held for writing.
func (a *Accounts) ensure(userRef string) *user {
	u, ok := a.users[userRef]
	if !ok {
		u = &user{attrs: make(map[string]string)}
		a.users[userRef] = u
	}
	return u
}
