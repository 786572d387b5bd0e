// Package blob stores activity files. S3Store is the production backend;
// Memory serves tests and deployments without a bucket.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("blob not found")

// DefaultURLTTL is how long a presigned download link stays valid.
const DefaultURLTTL = 7 * 24 * time.Hour

type Store interface {
	// Put uploads body under key and returns a time-limited download URL.
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// ActivityKey is the object key of an activity export.
func ActivityKey(userID, readingID uuid.UUID, fileType string) string {
	return fmt.Sprintf("users/%s/activities/%s/%s_file.%s", userID, readingID, fileType, fileType)
}

// ContentType maps an export format to its MIME type.
func ContentType(fileType string) string {
	switch fileType {
	case "gpx":
		return "application/gpx+xml"
	case "tcx":
		return "application/vnd.garmin.tcx+xml"
	default:
		return "application/octet-stream"
	}
}

type object struct {
	data        []byte
	contentType string
}

// Memory keeps objects in process. URLs use the mem:// scheme.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

func (m *Memory) Put(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = object{data: data, contentType: contentType}
	m.mu.Unlock()
	return m.url(key, DefaultURLTTL), nil
}

func (m *Memory) URL(_ context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return m.url(key, ttl), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Get returns a copy of a stored object.
func (m *Memory) Get(key string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(o.data), o.contentType, true
}

func (m *Memory) url(key string, ttl time.Duration) string {
	return "mem://" + key + "?expires=" + url.QueryEscape(time.Now().Add(ttl).UTC().Format(time.RFC3339))
}
