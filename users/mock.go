package users

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/scott-ace-newton/trade-board/identity"
	"github.com/scott-ace-newton/trade-board/notification"
	p "github.com/scott-ace-newton/trade-board/persistence"
)

type mockSqlClient struct {
	expectedStatus p.Status
	expectedRecord p.UserRecord
}

func (mc *mockSqlClient) GetRecord(context.Context, string) (p.UserRecord, p.Status) {
	return mc.expectedRecord, mc.expectedStatus
}

func (mc *mockSqlClient) PutRecord(context.Context, p.UserRecord) p.Status {
	return mc.expectedStatus
}

func (mc *mockSqlClient) ActiveConnection(context.Context) bool {
	return mc.expectedStatus != p.BACKEND_ERROR
}

func (mc *mockSqlClient) Close() error {
	return nil
}

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

//mockQueueClient remembers the context its health check was called with
type mockQueueClient struct {
	writable bool
	checked  context.Context
}

func (mq *mockQueueClient) AddMessageToQueue(context.Context, notification.Event) {}

func (mq *mockQueueClient) QueueIsWritable(ctx context.Context) bool {
	mq.checked = ctx
	return mq.writable
}

func (mq *mockQueueClient) Close() error {
	return nil
}
