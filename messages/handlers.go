package messages

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/scott-ace-newton/trade-board/board"
	"github.com/scott-ace-newton/trade-board/identity"
	"github.com/scott-ace-newton/trade-board/metrics"
	"github.com/scott-ace-newton/trade-board/notification"
	"github.com/scott-ace-newton/trade-board/response"
	log "github.com/sirupsen/logrus"
)

type MessagesHandler struct {
	board       board.Board
	gateway     identity.Gateway
	queueClient notification.QueueClient
}

func NewMessagesHandler(b board.Board, gateway identity.Gateway, queueClient notification.QueueClient) MessagesHandler {
	return MessagesHandler{
		board:       b,
		gateway:     gateway,
		queueClient: queueClient,
	}
}

func (h *MessagesHandler) RegisterHandlers(router *mux.Router) {
	log.Info("registering message board handlers")
	addMessageHandler := handlers.MethodHandler{
		"GET":  http.HandlerFunc(h.AddMessage),
		"POST": http.HandlerFunc(h.AddMessage),
	}
	listMessagesHandler := handlers.MethodHandler{
		"GET": http.HandlerFunc(h.ListMessages),
	}

	router.Handle("/add", addMessageHandler)
	router.Handle("/messages", listMessagesHandler)
}

//AddMessage appends the "text" parameter to the board on behalf of the logged in user
func (h *MessagesHandler) AddMessage(writer http.ResponseWriter, request *http.Request) {
	id, ok := h.gateway.CurrentIdentity(request)
	if !ok {
		response.NotLoggedIn(writer)
		return
	}

	text := request.FormValue("text")
	if err := board.Validate(text); err != nil {
		metrics.RecordRejectedMessage(rejectReason(err))
		response.JSON(writer, http.StatusOK, map[string]interface{}{"error": err.Error()})
		return
	}

	msg := board.NewMessage(id.Email, text)
	if err := h.board.Append(request.Context(), msg); err != nil {
		log.WithError(err).WithField("UserID", id.UserID).Error("could not add message to board")
		response.JSON(writer, http.StatusInternalServerError, map[string]interface{}{"error": "Could not add message."})
		return
	}
	metrics.RecordMessage()
	h.queueClient.AddMessageToQueue(request.Context(), notification.Event{
		Type:   notification.MessagePostedEvent,
		UserID: id.UserID,
		Email:  id.Email,
		Text:   text,
		Time:   time.Now(),
	})
	response.JSON(writer, http.StatusOK, map[string]interface{}{"OK": true})
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, board.ErrTooLong):
		return "too_long"
	case errors.Is(err, board.ErrEmpty):
		return "empty"
	default:
		return "invalid"
	}
}

func (h *MessagesHandler) ListMessages(writer http.ResponseWriter, request *http.Request) {
	if _, ok := h.gateway.CurrentIdentity(request); !ok {
		response.NotLoggedIn(writer)
		return
	}

	msgs, err := h.board.List(request.Context())
	if err != nil {
		log.WithError(err).Error("could not list board messages")
		response.JSON(writer, http.StatusInternalServerError, map[string]interface{}{"error": "Could not load messages."})
		return
	}
	response.JSON(writer, http.StatusOK, map[string]interface{}{"messages": board.Views(msgs)})
}
