package principal

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("principal: not found")

// Directory looks up principal records. Lookups return ErrNotFound for
// unknown ids.
type Directory interface {
	Tenant(ctx context.Context, id string) (*Tenant, error)
	Admin(ctx context.Context, id string) (*Admin, error)
	AdminByEmail(ctx context.Context, email string) (*Admin, error)
	User(ctx context.Context, id string) (*User, error)
	UserByEmail(ctx context.Context, applicationID, email string) (*User, error)
	Application(ctx context.Context, id string) (*Application, error)
}

// Registrar writes principal records. Used for bootstrap and account state changes.
type Registrar interface {
	PutTenant(ctx context.Context, t *Tenant) error
	PutAdmin(ctx context.Context, a *Admin) error
	PutUser(ctx context.Context, u *User) error
	PutApplication(ctx context.Context, app *Application) error
	SetUserActive(ctx context.Context, id string, active bool) error
}

var (
	_ Directory = (*MemoryDirectory)(nil)
	_ Registrar = (*MemoryDirectory)(nil)
)

// MemoryDirectory keeps principals in process memory. Records are copied
// on the way in and out.
type MemoryDirectory struct {
	mu      sync.RWMutex
	tenants map[string]Tenant
	admins  map[string]Admin
	users   map[string]User
	apps    map[string]Application
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		tenants: make(map[string]Tenant),
		admins:  make(map[string]Admin),
		users:   make(map[string]User),
		apps:    make(map[string]Application),
	}
}

func (d *MemoryDirectory) Tenant(_ context.Context, id string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (d *MemoryDirectory) Admin(_ context.Context, id string) (*Admin, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.admins[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (d *MemoryDirectory) AdminByEmail(_ context.Context, email string) (*Admin, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, a := range d.admins {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (d *MemoryDirectory) User(_ context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (d *MemoryDirectory) UserByEmail(_ context.Context, applicationID, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if u.ApplicationID == applicationID && strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (d *MemoryDirectory) Application(_ context.Context, id string) (*Application, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	app, ok := d.apps[id]
	if !ok {
		return nil, ErrNotFound
	}
	app.AllowedOrigins = append([]string(nil), app.AllowedOrigins...)
	return &app, nil
}

func (d *MemoryDirectory) PutTenant(_ context.Context, t *Tenant) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.ID] = *t
	return nil
}

func (d *MemoryDirectory) PutAdmin(_ context.Context, a *Admin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.admins[a.ID] = *a
	return nil
}

func (d *MemoryDirectory) PutUser(_ context.Context, u *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = *copyUser(*u)
	return nil
}

func (d *MemoryDirectory) PutApplication(_ context.Context, app *Application) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *app
	cp.AllowedOrigins = append([]string(nil), app.AllowedOrigins...)
	d.apps[app.ID] = cp
	return nil
}

func (d *MemoryDirectory) SetUserActive(_ context.Context, id string, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	d.users[id] = u
	return nil
}

func copyUser(u User) *User {
	roles := NewRoleSet(u.Roles.Slice()...)
	u.Roles = roles
	return &u
}
