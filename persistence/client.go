package persistence

import "context"

//Status abstracts business logic layer from the backing store errors
//Status must be exported for handler tests
type Status int

const (
	OK Status = iota
	NOT_FOUND
	UPSERTED
	BACKEND_ERROR
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NOT_FOUND:
		return "NOT_FOUND"
	case UPSERTED:
		return "UPSERTED"
	default:
		return "BACKEND_ERROR"
	}
}

//Clienter provides an interface of record store functions. Useful for mocking
type Clienter interface {
	GetRecord(ctx context.Context, userID string) (UserRecord, Status)
	PutRecord(ctx context.Context, record UserRecord) Status
	ActiveConnection(ctx context.Context) bool
	Close() error
}
