package users

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/scott-ace-newton/trade-board/identity"
	"github.com/scott-ace-newton/trade-board/metrics"
	"github.com/scott-ace-newton/trade-board/notification"
	"github.com/scott-ace-newton/trade-board/persistence"
	"github.com/scott-ace-newton/trade-board/response"
	log "github.com/sirupsen/logrus"
)

const (
	//TradeReturnPath is where the JSON login and logout URLs send the user back to
	TradeReturnPath = "/trade"
	maxPictureBytes = 1 << 20
	internalError   = "internal server error"
)

var errPictureTooLarge = errors.New("picture exceeds size limit")

type UsersHandler struct {
	store       persistence.Clienter
	gateway     identity.Gateway
	queueClient notification.QueueClient
}

func NewUsersHandler(store persistence.Clienter, gateway identity.Gateway, queueClient notification.QueueClient) UsersHandler {
	return UsersHandler{
		store:       store,
		gateway:     gateway,
		queueClient: queueClient,
	}
}

func (h *UsersHandler) RegisterHandlers(router *mux.Router) {
	log.Info("registering user handlers")
	signupHandler := handlers.MethodHandler{
		"GET":  http.HandlerFunc(h.SignupPage),
		"POST": http.HandlerFunc(h.SignUp),
	}
	mainHandler := handlers.MethodHandler{
		"GET":  http.HandlerFunc(h.MainPage),
		"POST": http.HandlerFunc(h.PostProduct),
	}
	currentUserHandler := handlers.MethodHandler{
		"GET": http.HandlerFunc(h.CurrentUser),
	}
	loginURLHandler := handlers.MethodHandler{
		"GET": http.HandlerFunc(h.LoginURL),
	}
	logoutURLHandler := handlers.MethodHandler{
		"GET": http.HandlerFunc(h.LogoutURL),
	}
	healthHandler := handlers.MethodHandler{
		"GET": http.HandlerFunc(h.IsHealthy),
	}

	router.Handle("/register", signupHandler)
	router.Handle("/", mainHandler)
	router.Handle("/U", currentUserHandler)
	router.Handle("/user", currentUserHandler)
	router.Handle("/login", loginURLHandler)
	router.Handle("/logout", logoutURLHandler)
	router.Handle("/__health", healthHandler)
}

func (h *UsersHandler) LoginURL(writer http.ResponseWriter, request *http.Request) {
	response.JSON(writer, http.StatusOK, map[string]interface{}{"url": h.gateway.LoginURL(TradeReturnPath)})
}

func (h *UsersHandler) LogoutURL(writer http.ResponseWriter, request *http.Request) {
	response.JSON(writer, http.StatusOK, map[string]interface{}{"url": h.gateway.LogoutURL(TradeReturnPath)})
}

func (h *UsersHandler) CurrentUser(writer http.ResponseWriter, request *http.Request) {
	id, ok := h.gateway.CurrentIdentity(request)
	if !ok {
		response.NotLoggedIn(writer)
		return
	}
	response.JSON(writer, http.StatusOK, map[string]interface{}{"user": id.Email})
}

func (h *UsersHandler) SignupPage(writer http.ResponseWriter, request *http.Request) {
	render(writer, "signup.html", struct{ LoginURL string }{h.gateway.LoginURL("/")})
}

//SignUp stores the profile fields for the logged in user. Product fields of an existing record are kept
func (h *UsersHandler) SignUp(writer http.ResponseWriter, request *http.Request) {
	id, ok := h.gateway.CurrentIdentity(request)
	if !ok {
		//the signup page is only reachable after logging in
		log.Error("signup submitted without a logged in user")
		http.Error(writer, internalError, http.StatusInternalServerError)
		return
	}

	record, found := h.loadRecord(request, id.UserID)
	if !found {
		http.Error(writer, internalError, http.StatusInternalServerError)
		return
	}

	profile := persistence.UserRecord{
		FirstName: request.FormValue("firstname"),
		LastName:  request.FormValue("lastname"),
		Username:  request.FormValue("username"),
		Email:     request.FormValue("email"),
		Gender:    request.FormValue("gender"),
		Location:  request.FormValue("location"),
	}
	if profile.Email == "" {
		profile.Email = id.Email
	}
	record = record.WithProfile(profile)

	if h.store.PutRecord(request.Context(), record) != persistence.UPSERTED {
		http.Error(writer, internalError, http.StatusInternalServerError)
		return
	}
	metrics.RecordSignup()
	h.queueClient.AddMessageToQueue(request.Context(), notification.Event{
		Type:   notification.UserSignedUpEvent,
		UserID: id.UserID,
		Email:  record.Email,
		Time:   time.Now(),
	})
	http.Redirect(writer, request, "/", http.StatusFound)
}

//loadRecord returns the stored record, or an empty one keyed by userID when none exists yet.
//found is false only on a backend error
func (h *UsersHandler) loadRecord(request *http.Request, userID string) (persistence.UserRecord, bool) {
	record, status := h.store.GetRecord(request.Context(), userID)
	switch status {
	case persistence.OK:
	case persistence.NOT_FOUND:
		record = persistence.UserRecord{}
	default:
		return persistence.UserRecord{}, false
	}
	record.UserID = userID
	return record, true
}

func (h *UsersHandler) MainPage(writer http.ResponseWriter, request *http.Request) {
	id, ok := h.gateway.CurrentIdentity(request)
	if !ok {
		render(writer, "login.html", struct{ LoginURL string }{h.gateway.LoginURL("/")})
		return
	}

	record, status := h.store.GetRecord(request.Context(), id.UserID)
	switch status {
	case persistence.OK:
		render(writer, "product.html", struct {
			persistence.UserRecord
			LogoutURL string
		}{record, h.gateway.LogoutURL("/")})
	case persistence.NOT_FOUND:
		log.WithField("UserID", id.UserID).Debug("first visit, sending to signup")
		http.Redirect(writer, request, "/register", http.StatusFound)
	default:
		http.Error(writer, internalError, http.StatusInternalServerError)
	}
}

//PostProduct overwrites the product fields of the logged in user's record
func (h *UsersHandler) PostProduct(writer http.ResponseWriter, request *http.Request) {
	id, ok := h.gateway.CurrentIdentity(request)
	if !ok {
		log.Error("product posted without a logged in user")
		http.Error(writer, internalError, http.StatusInternalServerError)
		return
	}

	picture, err := readPicture(writer, request)
	if err != nil {
		log.WithError(err).WithField("UserID", id.UserID).Warn("could not read product picture")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, errPictureTooLarge) {
			http.Error(writer, "product picture is too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(writer, "could not read product form", http.StatusBadRequest)
		return
	}

	record, found := h.loadRecord(request, id.UserID)
	if !found {
		http.Error(writer, internalError, http.StatusInternalServerError)
		return
	}
	record = record.WithProduct(
		request.FormValue("product_name"),
		request.FormValue("product_description"),
		request.FormValue("trade_request"),
		picture)

	if h.store.PutRecord(request.Context(), record) != persistence.UPSERTED {
		http.Error(writer, internalError, http.StatusInternalServerError)
		return
	}
	metrics.RecordProductPost()
	h.queueClient.AddMessageToQueue(request.Context(), notification.Event{
		Type:   notification.ProductPostedEvent,
		UserID: id.UserID,
		Email:  id.Email,
		Text:   record.ProductName,
		Time:   time.Now(),
	})
	render(writer, "thanks.html", record)
}

//readPicture returns the uploaded product picture, or nil when the form carries none
func readPicture(writer http.ResponseWriter, request *http.Request) ([]byte, error) {
	if !strings.HasPrefix(request.Header.Get("Content-Type"), "multipart/form-data") {
		return nil, nil
	}
	request.Body = http.MaxBytesReader(writer, request.Body, maxPictureBytes+64<<10)
	if err := request.ParseMultipartForm(maxPictureBytes); err != nil {
		return nil, err
	}
	file, _, err := request.FormFile("product_picture")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()
	picture, err := io.ReadAll(io.LimitReader(file, maxPictureBytes+1))
	if err != nil {
		return nil, err
	}
	if len(picture) > maxPictureBytes {
		return nil, errPictureTooLarge
	}
	if len(picture) == 0 {
		return nil, nil
	}
	return picture, nil
}

func (h *UsersHandler) IsHealthy(writer http.ResponseWriter, request *http.Request) {
	if h.store.ActiveConnection(request.Context()) && h.queueClient.QueueIsWritable(request.Context()) {
		response.JSON(writer, http.StatusOK, map[string]interface{}{"message": "app is healthy"})
		return
	}
	response.JSON(writer, http.StatusServiceUnavailable, map[string]interface{}{"message": "app is unhealthy"})
}
