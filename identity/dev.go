package identity

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	devLoginPath  = "/_ah/login"
	devLogoutPath = "/_ah/logout"
)

var devLoginPage = template.Must(template.New("devlogin").Parse(`<!DOCTYPE html>
<html>
<head><title>Development login</title></head>
<body>
<h3>Not a real login</h3>
<p>Any email address is accepted and no password is asked for.</p>
<form method="post" action="{{.Action}}">
<label>Email <input type="text" name="email" value="test@example.com"></label>
<input type="hidden" name="continue" value="{{.Continue}}">
<input type="submit" value="Log in">
</form>
</body>
</html>
`))

//DevGateway is a stand-in provider for local development: whoever submits an
//email address is logged in as that address.
type DevGateway struct {
	sessions *Sessions
}

func NewDevGateway(sessions *Sessions) *DevGateway {
	return &DevGateway{sessions: sessions}
}

//DevUserID derives a stable user ID from an email address.
func DevUserID(email string) string {
	return uuid.NewMD5(uuid.UUID{}, []byte(email)).String()
}

func (g *DevGateway) CurrentIdentity(r *http.Request) (Identity, bool) {
	return g.sessions.Read(r)
}

func (g *DevGateway) LoginURL(returnPath string) string {
	return withContinue(devLoginPath, returnPath)
}

func (g *DevGateway) LogoutURL(returnPath string) string {
	return withContinue(devLogoutPath, returnPath)
}

func (g *DevGateway) RegisterHandlers(router *mux.Router) {
	log.Warn("development identity gateway in use: logins are not authenticated")
	router.Handle(devLoginPath, handlers.MethodHandler{
		"GET":  http.HandlerFunc(g.loginForm),
		"POST": http.HandlerFunc(g.login),
	})
	router.Handle(devLogoutPath, handlers.MethodHandler{
		"GET": http.HandlerFunc(g.logout),
	})
}

func (g *DevGateway) loginForm(writer http.ResponseWriter, request *http.Request) {
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := devLoginPage.Execute(writer, struct{ Action, Continue string }{
		Action:   devLoginPath,
		Continue: SafeReturnPath(request.URL.Query().Get(continueParam)),
	})
	if err != nil {
		log.WithError(err).Error("could not render development login page")
	}
}

func (g *DevGateway) login(writer http.ResponseWriter, request *http.Request) {
	email := strings.ToLower(strings.TrimSpace(request.FormValue("email")))
	returnPath := SafeReturnPath(request.FormValue(continueParam))
	if email == "" {
		http.Redirect(writer, request, g.LoginURL(returnPath), http.StatusFound)
		return
	}
	id := Identity{UserID: DevUserID(email), Email: email}
	if err := g.sessions.Issue(writer, id); err != nil {
		log.WithError(err).WithField("UserID", id.UserID).Error("could not issue session")
		http.Error(writer, "could not log in", http.StatusInternalServerError)
		return
	}
	log.WithField("UserID", id.UserID).Infof("development login for %s", email)
	http.Redirect(writer, request, returnPath, http.StatusFound)
}

func (g *DevGateway) logout(writer http.ResponseWriter, request *http.Request) {
	g.sessions.Clear(writer)
	http.Redirect(writer, request, SafeReturnPath(request.URL.Query().Get(continueParam)), http.StatusFound)
}
