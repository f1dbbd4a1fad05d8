package users

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/scott-ace-newton/trade-board/identity"
	"github.com/scott-ace-newton/trade-board/notification"
	"github.com/scott-ace-newton/trade-board/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = &identity.Identity{UserID: "u1", Email: "alice@example.com"}

func newRouter(store persistence.Clienter, gateway identity.Gateway) *mux.Router {
	return newRouterWithQueue(store, gateway, notification.NewLogQueueClient())
}

func newRouterWithQueue(store persistence.Clienter, gateway identity.Gateway, queueClient notification.QueueClient) *mux.Router {
	r := mux.NewRouter()
	handler := NewUsersHandler(store, gateway, queueClient)
	handler.RegisterHandlers(r)
	return r
}

func serve(r *mux.Router, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, url string, body io.Reader) *http.Request {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		panic(err)
	}
	return req
}

func newFormRequest(method, target string, form url.Values) *http.Request {
	req := newRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestJSONIdentityHandlers(t *testing.T) {
	assert := assert.New(t)
	tests := []struct {
		name       string
		identity   *identity.Identity
		reqUrl     string
		statusCode int
		body       string
	}{
		{
			name:       "Login URL for anonymous caller",
			reqUrl:     "/login",
			statusCode: http.StatusOK,
			body:       `{"url":"/_fake/login?continue=/trade"}` + "\n",
		},
		{
			name:       "Login URL regardless of login state",
			identity:   alice,
			reqUrl:     "/login",
			statusCode: http.StatusOK,
			body:       `{"url":"/_fake/login?continue=/trade"}` + "\n",
		},
		{
			name:       "Logout URL",
			identity:   alice,
			reqUrl:     "/logout",
			statusCode: http.StatusOK,
			body:       `{"url":"/_fake/logout?continue=/trade"}` + "\n",
		},
		{
			name:       "Current user when logged in",
			identity:   alice,
			reqUrl:     "/user",
			statusCode: http.StatusOK,
			body:       `{"user":"alice@example.com"}` + "\n",
		},
		{
			name:       "Current user on short path",
			identity:   alice,
			reqUrl:     "/U",
			statusCode: http.StatusOK,
			body:       `{"user":"alice@example.com"}` + "\n",
		},
		{
			name:       "Current user when not logged in",
			reqUrl:     "/user",
			statusCode: http.StatusOK,
			body:       `{"error":"User is not logged in."}` + "\n",
		},
	}

	for _, test := range tests {
		r := newRouter(persistence.NewMemoryClient(), &mockGateway{test.identity})
		rec := serve(r, newRequest("GET", test.reqUrl, nil))
		assert.Equal(test.statusCode, rec.Code, fmt.Sprintf("%s: Wrong response code, was %d, should be %d", test.name, rec.Code, test.statusCode))
		assert.Equal(test.body, rec.Body.String(), fmt.Sprintf("%s: Wrong body", test.name))
		assert.Equal("application/json", rec.Header().Get("Content-Type"), fmt.Sprintf("%s: Wrong content type", test.name))
	}
}

func TestFirstVisitSignupFlow(t *testing.T) {
	store := persistence.NewMemoryClient()
	r := newRouter(store, &mockGateway{alice})

	rec := serve(r, newRequest("GET", "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/register", rec.Header().Get("Location"))

	rec = serve(r, newRequest("GET", "/register", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="firstname"`)
	assert.Contains(t, rec.Body.String(), `href="/_fake/login?continue=/"`)

	rec = serve(r, newFormRequest("POST", "/register", url.Values{"firstname": {"Alice"}, "lastname": {"Liddell"}}))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	record, status := store.GetRecord(context.Background(), "u1")
	require.Equal(t, persistence.OK, status)
	assert.Equal(t, "Alice", record.FirstName)
	assert.Equal(t, "Liddell", record.LastName)
	assert.Equal(t, "alice@example.com", record.Email, "email falls back to the logged in address")

	rec = serve(r, newRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="product_name"`)
	assert.Contains(t, rec.Body.String(), `href="/_fake/logout?continue=/"`)
	assert.Contains(t, rec.Body.String(), "Welcome back, Alice!")
}

func TestPostProductKeepsProfile(t *testing.T) {
	store := persistence.NewMemoryClient()
	r := newRouter(store, &mockGateway{alice})

	serve(r, newFormRequest("POST", "/register", url.Values{"firstname": {"Alice"}, "location": {"Oxford"}}))

	rec := serve(r, newFormRequest("POST", "/", url.Values{
		"product_name":        {"Pocket watch"},
		"product_description": {"Slightly late"},
		"trade_request":       {"A hat"},
	}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Thanks for signing up, Alice!\n", rec.Body.String())

	rec = serve(r, newFormRequest("POST", "/", url.Values{"product_name": {"Teapot"}}))
	assert.Equal(t, http.StatusOK, rec.Code)

	record, _ := store.GetRecord(context.Background(), "u1")
	assert.Equal(t, "Alice", record.FirstName)
	assert.Equal(t, "Oxford", record.Location)
	assert.Equal(t, "Teapot", record.ProductName)
	assert.Equal(t, "", record.ProductDescription, "product fields are overwritten as a whole")
	assert.Equal(t, "", record.TradeRequest)
}

func TestSignupKeepsProduct(t *testing.T) {
	store := persistence.NewMemoryClient()
	store.PutRecord(context.Background(), persistence.UserRecord{UserID: "u1", FirstName: "Al", ProductName: "Teapot"})
	r := newRouter(store, &mockGateway{alice})

	rec := serve(r, newFormRequest("POST", "/register", url.Values{"firstname": {"Alice"}}))
	assert.Equal(t, http.StatusFound, rec.Code)

	record, _ := store.GetRecord(context.Background(), "u1")
	assert.Equal(t, "Alice", record.FirstName)
	assert.Equal(t, "Teapot", record.ProductName)
}

func TestPostProductEscapesFirstName(t *testing.T) {
	store := persistence.NewMemoryClient()
	store.PutRecord(context.Background(), persistence.UserRecord{UserID: "u1", FirstName: "<b>Alice</b>"})
	r := newRouter(store, &mockGateway{alice})

	rec := serve(r, newFormRequest("POST", "/", url.Values{"product_name": {"Teapot"}}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<b>")
}

func TestPostProductWithPicture(t *testing.T) {
	store := persistence.NewMemoryClient()
	r := newRouter(store, &mockGateway{alice})

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("product_name", "Pocket watch"))
	part, err := mw.CreateFormFile("product_picture", "watch.png")
	require.NoError(t, err)
	part.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	require.NoError(t, mw.Close())

	req := newRequest("POST", "/", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(r, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	record, status := store.GetRecord(context.Background(), "u1")
	require.Equal(t, persistence.OK, status)
	assert.Equal(t, "Pocket watch", record.ProductName)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, record.ProductPicture)
}

func TestPostProductPictureTooLarge(t *testing.T) {
	r := newRouter(persistence.NewMemoryClient(), &mockGateway{alice})

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("product_picture", "huge.png")
	require.NoError(t, err)
	part.Write(bytes.Repeat([]byte{1}, maxPictureBytes+1))
	require.NoError(t, mw.Close())

	req := newRequest("POST", "/", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := serve(r, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMainPageNotLoggedIn(t *testing.T) {
	r := newRouter(persistence.NewMemoryClient(), &mockGateway{})

	rec := serve(r, newRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please log in to use our site!")
	assert.Contains(t, rec.Body.String(), `href="/_fake/login?continue=/"`)
}

func TestPostsWithoutIdentityAreServerErrors(t *testing.T) {
	assert := assert.New(t)
	for _, path := range []string{"/", "/register"} {
		r := newRouter(persistence.NewMemoryClient(), &mockGateway{})
		rec := serve(r, newFormRequest("POST", path, url.Values{"firstname": {"Alice"}}))
		assert.Equal(http.StatusInternalServerError, rec.Code, fmt.Sprintf("POST %s: Wrong response code", path))
	}
}

func TestBackendErrors(t *testing.T) {
	assert := assert.New(t)
	tests := []struct {
		name       string
		req        *http.Request
		statusCode int
	}{
		{name: "Main page", req: newRequest("GET", "/", nil), statusCode: http.StatusInternalServerError},
		{name: "Signup", req: newFormRequest("POST", "/register", url.Values{"firstname": {"Alice"}}), statusCode: http.StatusInternalServerError},
		{name: "Product", req: newFormRequest("POST", "/", url.Values{"product_name": {"Teapot"}}), statusCode: http.StatusInternalServerError},
		{name: "Health", req: newRequest("GET", "/__health", nil), statusCode: http.StatusServiceUnavailable},
	}

	for _, test := range tests {
		r := newRouter(&mockSqlClient{expectedStatus: persistence.BACKEND_ERROR}, &mockGateway{alice})
		rec := serve(r, test.req)
		assert.Equal(test.statusCode, rec.Code, fmt.Sprintf("%s: Wrong response code, was %d, should be %d", test.name, rec.Code, test.statusCode))
	}
}

func TestHealthy(t *testing.T) {
	r := newRouter(&mockSqlClient{expectedStatus: persistence.OK}, &mockGateway{})
	rec := serve(r, newRequest("GET", "/__health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"message":"app is healthy"}`+"\n", rec.Body.String())
}

type healthKey struct{}

func TestHealthChecksQueueWithRequestContext(t *testing.T) {
	tests := []struct {
		name       string
		writable   bool
		statusCode int
	}{
		{name: "queue writable", writable: true, statusCode: http.StatusOK},
		{name: "queue unreachable", writable: false, statusCode: http.StatusServiceUnavailable},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			queue := &mockQueueClient{writable: test.writable}
			r := newRouterWithQueue(&mockSqlClient{expectedStatus: persistence.OK}, &mockGateway{}, queue)
			req := newRequest("GET", "/__health", nil)
			req = req.WithContext(context.WithValue(req.Context(), healthKey{}, "health-check"))

			rec := serve(r, req)
			assert.Equal(t, test.statusCode, rec.Code)
			require.NotNil(t, queue.checked)
			assert.Equal(t, "health-check", queue.checked.Value(healthKey{}))
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	r := newRouter(persistence.NewMemoryClient(), &mockGateway{alice})
	rec := serve(r, newRequest("DELETE", "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
