package response

import (
	"encoding/json"
	"net/http"

	"github.com/scott-ace-newton/trade-board/identity"
	log "github.com/sirupsen/logrus"
)

//JSON writes props as the response body with the provided status code
func JSON(writer http.ResponseWriter, status int, props map[string]interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(props); err != nil {
		log.WithError(err).Error("could not encode response")
	}
}

//NotLoggedIn is the answer of every JSON endpoint when nobody is logged in. It is not an HTTP error
func NotLoggedIn(writer http.ResponseWriter) {
	JSON(writer, http.StatusOK, map[string]interface{}{"error": identity.ErrNotLoggedIn.Error()})
}
