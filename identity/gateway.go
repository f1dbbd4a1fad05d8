package identity

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

//Identity is the caller as reported by the provider. UserID is opaque and
//stable for a provider account.
type Identity struct {
	UserID string
	Email  string
}

//Gateway is the capability handlers use to learn the caller's identity.
type Gateway interface {
	//CurrentIdentity reports the caller, or false when nobody is logged in.
	CurrentIdentity(r *http.Request) (Identity, bool)
	LoginURL(returnPath string) string
	LogoutURL(returnPath string) string
	//RegisterHandlers mounts the login, logout and callback endpoints.
	RegisterHandlers(router *mux.Router)
}

const continueParam = "continue"

//SafeReturnPath only lets local absolute paths through, so login and logout
//cannot be used to bounce a user to another site.
func SafeReturnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}

func withContinue(endpoint, returnPath string) string {
	return endpoint + "?" + url.Values{continueParam: {SafeReturnPath(returnPath)}}.Encode()
}

//ErrNotLoggedIn is what JSON endpoints answer when nobody is logged in.
var ErrNotLoggedIn = errors.New("User is not logged in.")
