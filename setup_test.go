package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devConfig() config {
	return config{
		store:      storeMemory,
		board:      boardMemory,
		identity:   identityDev,
		sessionTTL: time.Hour,
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config)
		isValid bool
	}{
		{name: "in-memory development setup", mutate: func(*config) {}, isValid: true},
		{name: "mysql without DSN", mutate: func(c *config) { c.store = storeMySQL; c.sqlCredentials = "u:p" }},
		{name: "mysql without credentials", mutate: func(c *config) { c.store = storeMySQL; c.sqlDSN = "trade" }},
		{name: "mysql complete", mutate: func(c *config) { c.store = storeMySQL; c.sqlDSN = "trade"; c.sqlCredentials = "u:p" }, isValid: true},
		{name: "mongo without URI", mutate: func(c *config) { c.store = storeMongo }},
		{name: "unknown store", mutate: func(c *config) { c.store = "datastore" }},
		{name: "redis without address", mutate: func(c *config) { c.board = boardRedis }},
		{name: "unknown board", mutate: func(c *config) { c.board = "memcache" }},
		{name: "oidc without issuer", mutate: func(c *config) { c.identity = identityOIDC; c.sessionSecret = "s" }},
		{name: "oidc without session secret", mutate: func(c *config) {
			c.identity = identityOIDC
			c.oidcIssuer = "https://idp.example"
			c.oidcClientID = "trade-board"
			c.oidcRedirect = "https://trade.example/auth/callback"
		}},
		{name: "unknown identity", mutate: func(c *config) { c.identity = "appengine" }},
		{name: "identity provider not chosen", mutate: func(c *config) { c.identity = "" }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := devConfig()
			test.mutate(&cfg)
			if test.isValid {
				assert.NoError(t, cfg.validate())
			} else {
				assert.Error(t, cfg.validate())
			}
		})
	}
}

func TestBuildDependenciesNeedsIdentityProvider(t *testing.T) {
	cfg := devConfig()
	cfg.identity = ""
	deps, err := buildDependencies(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, deps)
}

type client struct {
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.MaxAge < 0 {
			delete(c.cookies, ck.Name)
			continue
		}
		c.cookies[ck.Name] = ck
	}
	return rec
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest("GET", target, nil))
}

func (c *client) post(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func TestEndToEndWithDevIdentity(t *testing.T) {
	deps, err := buildDependencies(context.Background(), devConfig())
	require.NoError(t, err)
	defer deps.close()
	c := &client{handler: newRouter(deps), cookies: map[string]*http.Cookie{}}

	rec := c.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please log in")

	rec = c.get("/login")
	assert.JSONEq(t, `{"url":"/_ah/login?continue=%2Ftrade"}`, rec.Body.String())

	rec = c.get("/messages")
	assert.JSONEq(t, `{"error":"User is not logged in."}`, rec.Body.String())

	rec = c.post("/_ah/login", url.Values{"email": {"alice@example.com"}, "continue": {"/"}})
	require.Equal(t, http.StatusFound, rec.Code)

	rec = c.get("/user")
	assert.JSONEq(t, `{"user":"alice@example.com"}`, rec.Body.String())

	rec = c.get("/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/register", rec.Header().Get("Location"))

	rec = c.post("/register", url.Values{"firstname": {"Alice"}})
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = c.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="product_name"`)

	rec = c.post("/", url.Values{"product_name": {"Pocket watch"}})
	assert.Equal(t, "Thanks for signing up, Alice!\n", rec.Body.String())

	rec = c.post("/add", url.Values{"text": {"hi"}})
	assert.JSONEq(t, `{"OK":true}`, rec.Body.String())

	rec = c.get("/messages")
	var listed struct {
		Messages []struct {
			Email string `json:"email"`
			Text  string `json:"text"`
			Time  string `json:"time"`
		} `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed.Messages, 1)
	assert.Equal(t, "alice@example.com", listed.Messages[0].Email)
	assert.Equal(t, "hi", listed.Messages[0].Text)

	rec = c.get("/__metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trade_board_http_requests_total")

	rec = c.get("/_ah/logout?continue=/")
	assert.Equal(t, http.StatusFound, rec.Code)
	rec = c.get("/user")
	assert.JSONEq(t, `{"error":"User is not logged in."}`, rec.Body.String())
}
