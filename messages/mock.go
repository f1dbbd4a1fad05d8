package messages

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/scott-ace-newton/trade-board/board"
	"github.com/scott-ace-newton/trade-board/identity"
)

//mockGateway reports the same caller for every request, or nobody when id is nil
type mockGateway struct {
	id *identity.Identity
}

func (mg *mockGateway) CurrentIdentity(*http.Request) (identity.Identity, bool) {
	if mg.id == nil {
		return identity.Identity{}, false
	}
	return *mg.id, true
}

func (mg *mockGateway) LoginURL(returnPath string) string {
	return "/_fake/login?continue=" + returnPath
}

func (mg *mockGateway) LogoutURL(returnPath string) string {
	return "/_fake/logout?continue=" + returnPath
}

func (mg *mockGateway) RegisterHandlers(*mux.Router) {}

//brokenBoard fails every operation, like an unreachable cache
type brokenBoard struct{}

func (brokenBoard) Append(context.Context, board.Message) error {
	return errors.New("cache unreachable")
}

func (brokenBoard) List(context.Context) ([]board.Message, error) {
	return nil, errors.New("cache unreachable")
}

func (brokenBoard) Close() error { return nil }
