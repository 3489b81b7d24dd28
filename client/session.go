// Package client is the SDK used by field devices and internal tools to
// call the maintenance API. Its Session type attaches the current
// access token to every request and transparently recovers from access
// token expiry: when requests come back 401, all concurrent callers are
// collapsed onto a single refresh call and resumed with the new token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when the session cannot be recovered:
// there is no refresh token, or the refresh call itself was rejected.
// The session's credentials are purged before this error is returned;
// the caller must log in again.
var ErrSessionExpired = errors.New("session expired; login required")

// Session coordinates authenticated requests against the API.
//
// Refresh is single-flight: no matter how many requests observe a 401
// concurrently, at most one call to /auth/refresh is ever in flight.
// Every waiter receives the outcome of that one call: the new access
// token is stored before any waiter retries, and a failed refresh
// rejects every waiter and purges the stored credentials so there are
// no further silent retries. Each original request is retried at most
// once: a retry that still receives 401 is returned as-is.
type Session struct {
	// HTTPClient is used for all requests. Defaults to
	// http.DefaultClient when nil was passed to NewSession.
	HTTPClient *http.Client

	// OnSessionExpired, when set, is invoked once per failed refresh
	// after credentials are purged. Typical use: flip the device UI to
	// its logged-out state.
	OnSessionExpired func()

	baseURL string

	mu      sync.Mutex
	access  string
	refresh string

	sf singleflight.Group
}

// NewSession returns a Session for the API at baseURL (no trailing
// slash). httpClient may be nil.
func NewSession(baseURL string, httpClient *http.Client) *Session {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Session{HTTPClient: httpClient, baseURL: baseURL}
}

// SetTokens installs a token pair obtained out of band (for example
// from persisted device state).
func (s *Session) SetTokens(access, refresh string) {
	s.mu.Lock()
	s.access = access
	s.refresh = refresh
	s.mu.Unlock()
}

// Tokens returns the current token pair.
func (s *Session) Tokens() (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, s.refresh
}

// User is the public user record returned by the auth endpoints.
type User struct {
	ID             uint64  `json:"id"`
	Email          string  `json:"email"`
	Role           string  `json:"role"`
	AssignedPlant  *string `json:"assignedPlant"`
	ApprovalStatus string  `json:"approvalStatus"`
	IsActive       bool    `json:"isActive"`
}

type loginResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type apiError struct {
	Error string `json:"error"`
}

// Login authenticates with email and password and stores the returned
// token pair on the session.
func (s *Session) Login(ctx context.Context, email, password string) (*User, error) {
	return s.obtainTokens(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// QRLogin authenticates with a device QR token and stores the returned
// token pair on the session.
func (s *Session) QRLogin(ctx context.Context, qrToken string) (*User, error) {
	return s.obtainTokens(ctx, "/qr-login", map[string]string{
		"qrToken": qrToken,
	})
}

func (s *Session) obtainTokens(ctx context.Context, path string, body map[string]string) (*User, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	s.SetTokens(out.AccessToken, out.RefreshToken)
	return &out.User, nil
}

// Logout invalidates the refresh token server side and purges the
// session's credentials. Safe to call repeatedly.
func (s *Session) Logout(ctx context.Context) error {
	access, refresh := s.Tokens()
	s.SetTokens("", "")
	if refresh == "" {
		return nil
	}
	payload, err := json.Marshal(map[string]string{"refreshToken": refresh})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/logout", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// Do sends an authenticated request. On 401 it refreshes the access
// token (collapsed with any concurrent refresh) and retries the
// original request exactly once with the new token. For the retry to
// re-send a request body, the request must carry GetBody, which
// http.NewRequest sets automatically for common body types.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	return s.do(req, false)
}

func (s *Session) do(req *http.Request, retried bool) (*http.Response, error) {
	access, _ := s.Tokens()
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || retried {
		// A retried request that still gets 401 fails immediately:
		// retry depth is bounded to exactly one hop.
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if _, err := s.refreshAccess(req.Context()); err != nil {
		return nil, err
	}
	retry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	return s.do(retry, true)
}

// refreshAccess performs the single-flight refresh. Concurrent callers
// observing a 401 all wait on the same underlying call; the new token
// is stored before any of them resume.
func (s *Session) refreshAccess(ctx context.Context) (string, error) {
	v, err, _ := s.sf.Do("refresh", func() (interface{}, error) {
		_, refresh := s.Tokens()
		if refresh == "" {
			return nil, ErrSessionExpired
		}
		access, err := s.callRefresh(ctx, refresh)
		if err != nil {
			// Purge credentials so no caller silently retries again.
			s.SetTokens("", "")
			if s.OnSessionExpired != nil {
				s.OnSessionExpired()
			}
			return nil, err
		}
		s.mu.Lock()
		s.access = access
		s.mu.Unlock()
		return access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) callRefresh(ctx context.Context, refresh string) (string, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refresh})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/refresh", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", ErrSessionExpired
	}
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", ErrSessionExpired
	}
	return out.AccessToken, nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("replay request body: %w", err)
		}
		retry.Body = body
	}
	return retry, nil
}

func decodeError(resp *http.Response) error {
	var e apiError
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("%s (status %d)", e.Error, resp.StatusCode)
	}
	return fmt.Errorf("request failed with status %d", resp.StatusCode)
}
