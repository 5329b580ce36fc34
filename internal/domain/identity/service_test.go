package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/desk/internal/platform/apiclient"
	"github.com/ehr/desk/internal/platform/validation"
)

// -- Mock Repository --

type mockRepo struct {
	status      *AuthStatus
	checkErr    error
	loginErr    error
	registerErr error
	logoutErr   error

	loginCalls    int
	registerCalls int
	logoutCalls   int
	lastReg       Registration
}

func (m *mockRepo) CheckAuth(_ context.Context) (*AuthStatus, error) {
	if m.checkErr != nil {
		return nil, m.checkErr
	}
	if m.status == nil {
		return &AuthStatus{}, nil
	}
	return m.status, nil
}

func (m *mockRepo) Login(_ context.Context, c Credentials) (*Doctor, error) {
	m.loginCalls++
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	return &Doctor{ID: 1, Name: "Dr. " + c.DoctorNumber}, nil
}

func (m *mockRepo) Register(_ context.Context, r Registration) error {
	m.registerCalls++
	m.lastReg = r
	return m.registerErr
}

func (m *mockRepo) Logout(_ context.Context) error {
	m.logoutCalls++
	return m.logoutErr
}

type mockSession struct {
	cleared int
	err     error
}

func (m *mockSession) Clear() error {
	m.cleared++
	return m.err
}

func newTestService(repo *mockRepo, session SessionStore) *Service {
	return NewService(repo, validation.New(), session, zerolog.Nop())
}

// -- Probe --

func TestService_Probe(t *testing.T) {
	tests := []struct {
		name string
		repo *mockRepo
		want bool
	}{
		{"authenticated", &mockRepo{status: &AuthStatus{Authenticated: true, DoctorID: 4}}, true},
		{"not authenticated", &mockRepo{status: &AuthStatus{}}, false},
		{"network failure", &mockRepo{checkErr: &apiclient.TransportError{Endpoint: "auth.check", Op: "send", Err: errors.New("refused")}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := newTestService(tt.repo, nil).Probe(context.Background()); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// -- Login --

func TestService_Login_RequiresFields(t *testing.T) {
	repo := &mockRepo{}
	_, err := newTestService(repo, nil).Login(context.Background(), Credentials{DoctorNumber: "D1"})
	var verrs validation.Errors
	if !errors.As(err, &verrs) || !verrs.Has("password") {
		t.Fatalf("expected password validation error, got %v", err)
	}
	if repo.loginCalls != 0 {
		t.Error("expected no call to the API")
	}
}

func TestService_Login_HidesServerDetail(t *testing.T) {
	repo := &mockRepo{loginErr: &apiclient.APIError{Endpoint: "auth.login", Status: 401, Message: "Invalid credentials"}}
	_, err := newTestService(repo, nil).Login(context.Background(), Credentials{DoctorNumber: "D1", Password: "x"})
	if !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
}

func TestService_Login_Success(t *testing.T) {
	d, err := newTestService(&mockRepo{}, nil).Login(context.Background(), Credentials{DoctorNumber: "D1", Password: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID != 1 {
		t.Errorf("expected doctor 1, got %d", d.ID)
	}
}

// -- Register --

func TestService_Register_RejectsBadEmail(t *testing.T) {
	repo := &mockRepo{}
	err := newTestService(repo, nil).Register(context.Background(), Registration{
		Name: "A", Email: "not-an-email", DoctorNumber: "D1", Password: "secret123",
	})
	var verrs validation.Errors
	if !errors.As(err, &verrs) || !verrs.Has("email") {
		t.Fatalf("expected email validation error, got %v", err)
	}
	if repo.registerCalls != 0 {
		t.Error("expected no call to the API")
	}
}

func TestService_Register_PassesServerError(t *testing.T) {
	repo := &mockRepo{registerErr: &apiclient.APIError{Endpoint: "auth.register", Status: 400, Message: "Doctor number already exists."}}
	err := newTestService(repo, nil).Register(context.Background(), Registration{
		Name: "A", Email: "a@clinic.org", DoctorNumber: "D1", Password: "secret123",
	})
	if got := apiclient.ServerMessage(err, ""); got != "Doctor number already exists." {
		t.Errorf("expected server message, got %q", got)
	}
}

// -- Logout --

func TestService_Logout_ClearsSession(t *testing.T) {
	repo := &mockRepo{}
	sess := &mockSession{}
	if err := newTestService(repo, sess).Logout(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.logoutCalls != 1 || sess.cleared != 1 {
		t.Errorf("expected one logout and one clear, got %d/%d", repo.logoutCalls, sess.cleared)
	}
}

func TestService_Logout_ExpiredSessionIsFine(t *testing.T) {
	repo := &mockRepo{logoutErr: &apiclient.APIError{Status: 401}}
	sess := &mockSession{}
	if err := newTestService(repo, sess).Logout(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.cleared != 1 {
		t.Error("expected session cleared")
	}
}

func TestService_Logout_NetworkFailureStillClears(t *testing.T) {
	repo := &mockRepo{logoutErr: &apiclient.TransportError{Endpoint: "auth.logout", Op: "send", Err: errors.New("refused")}}
	sess := &mockSession{}
	if err := newTestService(repo, sess).Logout(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if sess.cleared != 1 {
		t.Error("expected session cleared even when the API is unreachable")
	}
}

// -- Form --

func TestForm_Toggle(t *testing.T) {
	f := Form{Message: "old"}
	f.Toggle()
	if f.Mode != ModeRegister || f.Message != "" {
		t.Errorf("expected register mode and cleared message, got %+v", f)
	}
	f.Toggle()
	if f.Mode != ModeLogin {
		t.Errorf("expected login mode, got %s", f.Mode)
	}
}

func TestForm_SubmitLogin(t *testing.T) {
	svc := newTestService(&mockRepo{}, nil)
	f := Form{Mode: ModeLogin, DoctorNumber: "D1", Password: "x"}
	if !f.Submit(context.Background(), svc) {
		t.Fatal("expected authenticated")
	}
	if f.Password != "" || f.Busy {
		t.Errorf("expected password cleared and not busy, got %+v", f)
	}
}

func TestForm_SubmitLoginFailure(t *testing.T) {
	svc := newTestService(&mockRepo{loginErr: &apiclient.APIError{Status: 401, Message: "Invalid credentials"}}, nil)
	f := Form{Mode: ModeLogin, DoctorNumber: "D1", Password: "x"}
	if f.Submit(context.Background(), svc) {
		t.Fatal("expected not authenticated")
	}
	if f.Message != MsgLoginFailed {
		t.Errorf("expected %q, got %q", MsgLoginFailed, f.Message)
	}
}

func TestForm_SubmitRegisterSuccessResetsToLogin(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(repo, nil)
	f := Form{Mode: ModeRegister, Name: "Ana", Email: "ana@clinic.org", DoctorNumber: "D7", Password: "secret123"}
	if f.Submit(context.Background(), svc) {
		t.Fatal("registration must not authenticate")
	}
	want := Form{Mode: ModeLogin, Message: MsgRegistered}
	if f != want {
		t.Errorf("expected %+v, got %+v", want, f)
	}
	if repo.lastReg.Email != "ana@clinic.org" {
		t.Errorf("expected registration posted, got %+v", repo.lastReg)
	}
}

func TestForm_SubmitRegisterFailureKeepsInputs(t *testing.T) {
	svc := newTestService(&mockRepo{registerErr: &apiclient.APIError{Status: 400, Message: "Email already exists."}}, nil)
	f := Form{Mode: ModeRegister, Name: "Ana", Email: "ana@clinic.org", DoctorNumber: "D7", Password: "secret123"}
	f.Submit(context.Background(), svc)
	if f.Message != "Email already exists." {
		t.Errorf("expected server message, got %q", f.Message)
	}
	if f.Mode != ModeRegister || f.Email != "ana@clinic.org" {
		t.Errorf("expected inputs kept, got %+v", f)
	}
}
