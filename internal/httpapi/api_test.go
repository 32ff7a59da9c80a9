package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"aedile.org/internal/audit"
	"aedile.org/internal/authz"
	"aedile.org/internal/ids"
	"aedile.org/internal/session"
)

// --- in-memory persistence for the full-stack tests ---

type stubAuthzStore struct {
	mu        sync.Mutex
	perms     []authz.CatalogPermission
	roles     map[string]authz.Role
	userRoles map[string][]string
}

func newStubAuthzStore() *stubAuthzStore {
	s := &stubAuthzStore{
		roles:     make(map[string]authz.Role),
		userRoles: make(map[string][]string),
	}
	now := time.Now().UTC()
	for i, entry := range authz.BuiltinCatalog {
		s.perms = append(s.perms, authz.CatalogPermission{
			ID:          fmt.Sprintf("perm-%d", i),
			Resource:    entry.Resource,
			Action:      entry.Action,
			Scope:       entry.Scope,
			Description: entry.Description,
			CreatedAt:   now,
		})
	}
	return s
}

func (s *stubAuthzStore) permIDByCode(code string) string {
	for _, p := range s.perms {
		if p.Triple().Code() == code {
			return p.ID
		}
	}
	return ""
}

// seedRole installs a role and assigns it, bypassing the service layer.
func (s *stubAuthzStore) seedRole(code string, userIDs []string, permCodes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role := authz.Role{ID: ids.New(), Code: code, Name: code}
	for _, pc := range permCodes {
		for _, p := range s.perms {
			if p.Triple().Code() == pc {
				role.Permissions = append(role.Permissions, p)
			}
		}
	}
	s.roles[role.ID] = role
	for _, uid := range userIDs {
		s.userRoles[uid] = append(s.userRoles[uid], role.ID)
	}
}

func (s *stubAuthzStore) ListRoles(context.Context) ([]authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authz.Role
	for _, role := range s.roles {
		out = append(out, role)
	}
	return out, nil
}

func (s *stubAuthzStore) ListPermissions(context.Context) ([]authz.CatalogPermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]authz.CatalogPermission(nil), s.perms...), nil
}

func (s *stubAuthzStore) CreateRole(_ context.Context, role authz.Role, permissionIDs []string) (authz.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Code == role.Code {
			return authz.Role{}, authz.ErrConflict
		}
	}
	for _, id := range permissionIDs {
		for _, p := range s.perms {
			if p.ID == id {
				role.Permissions = append(role.Permissions, p)
			}
		}
	}
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt
	s.roles[role.ID] = role
	return role, nil
}

func (s *stubAuthzStore) AssignRole(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return authz.ErrNotFound
	}
	for _, held := range s.userRoles[userID] {
		if held == roleID {
			return nil
		}
	}
	s.userRoles[userID] = append(s.userRoles[userID], roleID)
	return nil
}

func (s *stubAuthzStore) PermissionsForUser(_ context.Context, userID string) ([]authz.CatalogPermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []authz.CatalogPermission
	for _, roleID := range s.userRoles[userID] {
		out = append(out, s.roles[roleID].Permissions...)
	}
	return out, nil
}

type stubSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[string]*session.Session)}
}

func (s *stubSessionStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *stubSessionStore) Find(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrTokenInvalid
	}
	cp := *sess
	return &cp, nil
}

func (s *stubSessionStore) Rotate(_ context.Context, parentID string, child *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.sessions[parentID]
	if !ok || parent.State != session.StateActive {
		return session.ErrTokenInvalid
	}
	parent.State = session.StateRotated
	parent.RotatedToID = child.ID
	cp := *child
	s.sessions[child.ID] = &cp
	return nil
}

func (s *stubSessionStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.State.Terminal() {
		return nil
	}
	sess.State = session.StateRevoked
	return nil
}

type stubCredentials struct {
	users map[string]*session.UserCredential
}

func (c *stubCredentials) FindByEmail(_ context.Context, email string) (*session.UserCredential, error) {
	user, ok := c.users[email]
	if !ok {
		return nil, session.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

type stubSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *stubSink) Append(_ context.Context, event *audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

// --- harness ---

const (
	adminID       = "01J8ZDADMIN000000000000000"
	residentID    = "01J8ZDRESIDENT000000000000"
	adminEmail    = "admin@example.com"
	residentEmail = "resident@example.com"
	testPassword  = "orchard-gate-42"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

type fixture struct {
	*apiClient
	store *stubAuthzStore
	sink  *stubSink
}

func newTestAPI(t *testing.T, cfg Config) *fixture {
	t.Helper()

	hash, err := session.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	authzStore := newStubAuthzStore()
	authzStore.seedRole("ADMIN", []string{adminID},
		"ROLES:CREATE:ALL", "ROLES:READ:ALL", "USERS:UPDATE:ALL")
	authzStore.seedRole("RESIDENT", []string{residentID},
		"READINGS:READ:OWN", "APARTMENTS:READ:OWN")

	roleSvc, err := authz.NewService(authzStore)
	if err != nil {
		t.Fatalf("authz.NewService: %v", err)
	}

	creds := &stubCredentials{users: map[string]*session.UserCredential{
		adminEmail:    {ID: adminID, Email: adminEmail, PasswordHash: hash, Active: true, Verified: true},
		residentEmail: {ID: residentID, Email: residentEmail, PasswordHash: hash, Active: true, Verified: true},
	}}

	sink := &stubSink{}
	recorder := audit.NewRecorder(sink)

	manager, err := session.NewManager(newStubSessionStore(), creds, roleSvc, recorder, []byte("test-secret"))
	if err != nil {
		t.Fatalf("session.NewManager: %v", err)
	}

	if cfg.Version == "" {
		cfg.Version = "test"
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 1000
		cfg.RatePerSec = 1000
		cfg.AuthRateBurst = 1000
		cfg.AuthRatePerSec = 1000
	}
	api := New(manager, roleSvc, recorder, ReadyProbe{}, cfg)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &fixture{
		apiClient: &apiClient{baseURL: srv.URL, client: srv.Client(), t: t},
		store:     authzStore,
		sink:      sink,
	}
}

func (c *apiClient) do(method, path string, body any, cookies []*http.Cookie, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) login(email, password string) (*http.Response, map[string]*http.Cookie) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil, nil)
	cookies := make(map[string]*http.Cookie)
	for _, cookie := range resp.Cookies() {
		cookies[cookie.Name] = cookie
	}
	return resp, cookies
}

func (c *apiClient) mustLogin(email string) map[string]*http.Cookie {
	c.t.Helper()
	resp, cookies := c.login(email, testPassword)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	if cookies[accessCookieName] == nil || cookies[refreshCookieName] == nil {
		c.t.Fatalf("login did not set both session cookies: %v", cookies)
	}
	return cookies
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type errorEnvelope struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id"`
}
