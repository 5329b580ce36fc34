package identity

import (
	"context"
	"errors"

	"github.com/ehr/desk/internal/platform/apiclient"
)

type authRepoHTTP struct {
	api *apiclient.Client
}

func NewHTTPRepo(api *apiclient.Client) Repository {
	return &authRepoHTTP{api: api}
}

func (r *authRepoHTTP) CheckAuth(ctx context.Context) (*AuthStatus, error) {
	var st AuthStatus
	err := r.api.Get(ctx, "auth.check", "check-auth", nil, &st)
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return &AuthStatus{Authenticated: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *authRepoHTTP) Login(ctx context.Context, c Credentials) (*Doctor, error) {
	var resp struct {
		Message string  `json:"message"`
		Doctor  *Doctor `json:"doctor"`
	}
	if err := r.api.Post(ctx, "auth.login", "login", c, &resp); err != nil {
		return nil, err
	}
	if resp.Doctor == nil {
		return &Doctor{}, nil
	}
	return resp.Doctor, nil
}

func (r *authRepoHTTP) Register(ctx context.Context, reg Registration) error {
	return r.api.Post(ctx, "auth.register", "register", reg, nil)
}

func (r *authRepoHTTP) Logout(ctx context.Context) error {
	return r.api.Post(ctx, "auth.logout", "logout", nil, nil)
}
