package identity

import "context"

type Repository interface {
	CheckAuth(ctx context.Context) (*AuthStatus, error)
	Login(ctx context.Context, c Credentials) (*Doctor, error)
	Register(ctx context.Context, r Registration) error
	Logout(ctx context.Context) error
}
