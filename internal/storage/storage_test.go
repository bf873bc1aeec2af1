package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/resolveit/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObjects struct {
	objects  map[string][]byte
	metadata map[string]map[string]string
	types    map[string]string
}

func newMemoryObjects() *memoryObjects {
	return &memoryObjects{
		objects:  map[string][]byte{},
		metadata: map[string]map[string]string{},
		types:    map[string]string{},
	}
}

func (m *memoryObjects) EnsureBucket(ctx context.Context) error { return nil }

func (m *memoryObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.metadata[key] = metadata
	m.types[key] = contentType
	return nil
}

func (m *memoryObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.objects[key])), nil
}

func (m *memoryObjects) Bucket() string { return "archive" }

func TestStoragePutBytes(t *testing.T) {
	backend := newMemoryObjects()
	s := NewStorage(backend)
	ctx := context.Background()

	require.NoError(t, s.PutBytes(ctx, "mail/a.json", []byte(`{"to":"x"}`), "application/json", map[string]string{"action": "update_status"}))
	assert.Equal(t, "application/json", backend.types["mail/a.json"])
	assert.Equal(t, "update_status", backend.metadata["mail/a.json"]["action"])

	rc, err := s.Get(ctx, "mail/a.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"to":"x"}`, string(data))

	assert.Equal(t, "archive", s.Bucket())
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	s, err := Open(context.Background(), config.Config{Storage: config.StorageConfig{Backend: "none"}})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(context.Background(), config.Config{Storage: config.StorageConfig{Backend: "ftp"}})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.Config{Storage: config.StorageConfig{Backend: "minio"}})
	assert.Error(t, err, "missing minio credentials")
}
