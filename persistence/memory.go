package persistence

import (
	"context"
	"sync"
)

//MemoryClient keeps records in process memory. Used for local development and tests
type MemoryClient struct {
	mu      sync.RWMutex
	records map[string]UserRecord
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{records: make(map[string]UserRecord)}
}

func (c *MemoryClient) GetRecord(_ context.Context, userID string) (UserRecord, Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ur, ok := c.records[userID]
	if !ok {
		return UserRecord{}, NOT_FOUND
	}
	ur.ProductPicture = cloneBytes(ur.ProductPicture)
	return ur, OK
}

func (c *MemoryClient) PutRecord(_ context.Context, record UserRecord) Status {
	if record.UserID == "" {
		return BACKEND_ERROR
	}
	record.ProductPicture = cloneBytes(record.ProductPicture)
	c.mu.Lock()
	c.records[record.UserID] = record
	c.mu.Unlock()
	return UPSERTED
}

func (c *MemoryClient) ActiveConnection(context.Context) bool { return true }

func (c *MemoryClient) Close() error { return nil }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
