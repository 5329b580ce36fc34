// Package session keeps the API session cookie across CLI invocations. Jar is
// an http.CookieJar that mirrors every cookie it accepts into a JSON file
// readable only by the current user.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CookieName is the session cookie the API sets on login.
const CookieName = "ehr_session"

type storedCookie struct {
	URL      string    `json:"url"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
}

type Jar struct {
	mu    sync.Mutex
	path  string
	inner *cookiejar.Jar
	saved map[string]storedCookie
	log   zerolog.Logger
	now   func() time.Time
}

// Open loads path if it exists. A missing file is an empty jar; a corrupt one
// is logged and discarded.
func Open(path string, log zerolog.Logger) (*Jar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	j := &Jar{
		path:  path,
		inner: inner,
		saved: make(map[string]storedCookie),
		log:   log,
		now:   time.Now,
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return j, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}

	var stored []storedCookie
	if err := json.Unmarshal(raw, &stored); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("discarding unreadable session file")
		return j, nil
	}
	for _, sc := range stored {
		if !sc.Expires.IsZero() && sc.Expires.Before(j.now()) {
			continue
		}
		u, err := url.Parse(sc.URL)
		if err != nil {
			continue
		}
		j.inner.SetCookies(u, []*http.Cookie{sc.cookie()})
		j.saved[key(u, sc.Name)] = sc
	}
	return j, nil
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	inner := j.inner
	j.mu.Unlock()
	return inner.Cookies(u)
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)
	origin := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}
	for _, c := range cookies {
		k := key(u, c.Name)
		if c.MaxAge < 0 || c.Value == "" || (!c.Expires.IsZero() && c.Expires.Before(j.now())) {
			delete(j.saved, k)
			continue
		}
		sc := storedCookie{
			URL:      origin.String(),
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Expires:  c.Expires,
			HttpOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.MaxAge > 0 {
			sc.Expires = j.now().Add(time.Duration(c.MaxAge) * time.Second)
		}
		j.saved[k] = sc
	}
	if err := j.persist(); err != nil {
		j.log.Error().Err(err).Str("path", j.path).Msg("failed to persist session")
	}
}

// Has reports whether a cookie named name would be sent to u.
func (j *Jar) Has(u *url.URL, name string) bool {
	for _, c := range j.Cookies(u) {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Clear forgets every cookie and removes the file.
func (j *Jar) Clear() error {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner = inner
	j.saved = make(map[string]storedCookie)
	if err := os.Remove(j.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// persist writes the jar through a temp file so a crash never leaves a
// half-written session behind. Callers hold j.mu.
func (j *Jar) persist() error {
	stored := make([]storedCookie, 0, len(j.saved))
	for _, sc := range j.saved {
		stored = append(stored, sc)
	}
	sort.Slice(stored, func(a, b int) bool {
		if stored[a].URL != stored[b].URL {
			return stored[a].URL < stored[b].URL
		}
		return stored[a].Name < stored[b].Name
	})

	raw, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(j.path), ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), j.path)
}

func (sc storedCookie) cookie() *http.Cookie {
	return &http.Cookie{
		Name:     sc.Name,
		Value:    sc.Value,
		Path:     sc.Path,
		Expires:  sc.Expires,
		HttpOnly: sc.HttpOnly,
		Secure:   sc.Secure,
	}
}

func key(u *url.URL, name string) string {
	return u.Scheme + "://" + u.Host + "|" + name
}
