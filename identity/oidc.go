package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	coreoidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	oidcLoginPath    = "/auth/login"
	oidcCallbackPath = "/auth/callback"
	oidcLogoutPath   = "/auth/logout"
	stateCookie      = "oidc_state"
)

var (
	ErrStateMismatch = errors.New("oauth state mismatch")
	//ErrMissingEmail is returned for ID tokens without an email claim. The email is the name shown on the board
	ErrMissingEmail = errors.New("id token carries no email")
)

//OIDCConfig describes the relying party registration at the provider.
type OIDCConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	//MaxAttempts bounds provider discovery retries at startup.
	MaxAttempts int
}

//OIDCGateway logs users in with the authorization code flow against an
//OpenID Connect provider and keeps the verified subject and email in a
//session cookie.
type OIDCGateway struct {
	sessions *Sessions
	oauth    oauth2.Config
	verify   func(ctx context.Context, rawIDToken string) (Identity, error)
}

//NewOIDCGateway discovers the provider, retrying with backoff until
//MaxAttempts is used up or ctx is done.
func NewOIDCGateway(ctx context.Context, cfg OIDCConfig, sessions *Sessions) (*OIDCGateway, error) {
	provider, err := discoverProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	verifier := provider.Verifier(&coreoidc.Config{ClientID: cfg.ClientID})
	if strings.HasPrefix(cfg.RedirectURL, "https://") {
		sessions.Secure = true
	}
	return &OIDCGateway{
		sessions: sessions,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{coreoidc.ScopeOpenID, "email"},
		},
		verify: func(ctx context.Context, raw string) (Identity, error) {
			return verifyIDToken(ctx, verifier, raw)
		},
	}, nil
}

func discoverProvider(ctx context.Context, cfg OIDCConfig) (*coreoidc.Provider, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		provider, err := coreoidc.NewProvider(ctx, cfg.Issuer)
		if err == nil {
			log.WithField("issuer", cfg.Issuer).WithField("attempt", attempt).Info("oidc provider initialized")
			return provider, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		sleep := time.Duration(math.Min(float64(30*time.Second), float64(time.Second)*math.Pow(2, float64(attempt-1))))
		log.WithError(err).WithField("attempt", attempt).WithField("next_sleep", sleep.String()).Error("oidc provider init failed")
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, fmt.Errorf("oidc provider init canceled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("oidc provider init failed after %d attempts: %w", maxAttempts, lastErr)
}

func verifyIDToken(ctx context.Context, verifier *coreoidc.IDTokenVerifier, raw string) (Identity, error) {
	token, err := verifier.Verify(ctx, raw)
	if err != nil {
		return Identity{}, err
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&claims); err != nil {
		return Identity{}, err
	}
	if strings.TrimSpace(claims.Email) == "" {
		return Identity{}, ErrMissingEmail
	}
	return Identity{UserID: token.Subject, Email: claims.Email}, nil
}

func (g *OIDCGateway) CurrentIdentity(r *http.Request) (Identity, bool) {
	return g.sessions.Read(r)
}

func (g *OIDCGateway) LoginURL(returnPath string) string {
	return withContinue(oidcLoginPath, returnPath)
}

func (g *OIDCGateway) LogoutURL(returnPath string) string {
	return withContinue(oidcLogoutPath, returnPath)
}

func (g *OIDCGateway) RegisterHandlers(router *mux.Router) {
	router.Handle(oidcLoginPath, handlers.MethodHandler{"GET": http.HandlerFunc(g.login)})
	router.Handle(oidcCallbackPath, handlers.MethodHandler{"GET": http.HandlerFunc(g.callback)})
	router.Handle(oidcLogoutPath, handlers.MethodHandler{"GET": http.HandlerFunc(g.logout)})
}

func (g *OIDCGateway) login(writer http.ResponseWriter, request *http.Request) {
	state, err := randomState()
	if err != nil {
		log.WithError(err).Error("could not generate oauth state")
		http.Error(writer, "could not start login", http.StatusInternalServerError)
		return
	}
	returnPath := SafeReturnPath(request.URL.Query().Get(continueParam))
	http.SetCookie(writer, &http.Cookie{
		Name:     stateCookie,
		Value:    state + "|" + url.QueryEscape(returnPath),
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   g.sessions.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(writer, request, g.oauth.AuthCodeURL(state), http.StatusFound)
}

//checkState compares the state echoed by the provider with the one set at
//login and returns the path to go back to.
func checkState(request *http.Request) (string, error) {
	c, err := request.Cookie(stateCookie)
	if err != nil {
		return "", ErrStateMismatch
	}
	state, escaped, ok := strings.Cut(c.Value, "|")
	if !ok || state == "" || state != request.URL.Query().Get("state") {
		return "", ErrStateMismatch
	}
	returnPath, err := url.QueryUnescape(escaped)
	if err != nil {
		return "/", nil
	}
	return SafeReturnPath(returnPath), nil
}

func (g *OIDCGateway) callback(writer http.ResponseWriter, request *http.Request) {
	returnPath, err := checkState(request)
	if err != nil {
		log.WithError(err).Warn("rejecting oidc callback")
		http.Error(writer, "invalid login state", http.StatusBadRequest)
		return
	}
	http.SetCookie(writer, &http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1})

	if providerErr := request.URL.Query().Get("error"); providerErr != "" {
		log.WithField("error", providerErr).Info("provider declined login")
		http.Redirect(writer, request, returnPath, http.StatusFound)
		return
	}

	token, err := g.oauth.Exchange(request.Context(), request.URL.Query().Get("code"))
	if err != nil {
		log.WithError(err).Error("could not exchange authorization code")
		http.Error(writer, "login failed", http.StatusUnauthorized)
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		log.Error("token response carried no id_token")
		http.Error(writer, "login failed", http.StatusUnauthorized)
		return
	}
	id, err := g.verify(request.Context(), rawIDToken)
	if err != nil {
		log.WithError(err).Error("id token verification failed")
		http.Error(writer, "login failed", http.StatusUnauthorized)
		return
	}
	if err := g.sessions.Issue(writer, id); err != nil {
		log.WithError(err).WithField("UserID", id.UserID).Error("could not issue session")
		http.Error(writer, "login failed", http.StatusInternalServerError)
		return
	}
	log.WithField("UserID", id.UserID).Info("user logged in")
	http.Redirect(writer, request, returnPath, http.StatusFound)
}

func (g *OIDCGateway) logout(writer http.ResponseWriter, request *http.Request) {
	g.sessions.Clear(writer)
	http.Redirect(writer, request, SafeReturnPath(request.URL.Query().Get(continueParam)), http.StatusFound)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
