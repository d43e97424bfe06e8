// Copyright (c) 2024 Netskope, Inc. All rights reserved.

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errNotImplemented = errors.New("not implemented")

// memoryS3 keeps objects in memory and fails the first failPuts uploads.
type memoryS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failPuts int
	puts     int
}

func newMemoryS3() *memoryS3 {
	return &memoryS3{objects: map[string][]byte{}}
}

func (m *memoryS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.puts <= m.failPuts {
		return nil, errors.New("SlowDown")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *memoryS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (m *memoryS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errNotImplemented
}

func (m *memoryS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errNotImplemented
}

func (m *memoryS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errNotImplemented
}

func (m *memoryS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return nil, errNotImplemented
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{uri: "s3://imports/2024/rows.csv", wantBucket: "imports", wantKey: "2024/rows.csv"},
		{uri: "s3://imports/rows.csv", wantBucket: "imports", wantKey: "rows.csv"},
		{uri: "s3://imports/", wantErr: true},
		{uri: "s3://imports", wantErr: true},
		{uri: "/tmp/rows.csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, key, err := ParseURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestClient_UploadAndOpen(t *testing.T) {
	api := newMemoryS3()
	c := NewClientFromAPI(api, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, c.Upload(ctx, "reports", "run-1.csv", bytes.NewReader([]byte("field_name\n"))))

	rc, err := c.Open(ctx, "reports", "run-1.csv")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "field_name\n", string(data))
}

func TestClient_OpenMissing(t *testing.T) {
	c := NewClientFromAPI(newMemoryS3(), zaptest.NewLogger(t))
	_, err := c.Open(context.Background(), "reports", "absent.csv")
	assert.ErrorContains(t, err, "s3://reports/absent.csv")
}

func TestClient_UploadWithRetry(t *testing.T) {
	api := newMemoryS3()
	api.failPuts = 2
	c := NewClientFromAPI(api, zaptest.NewLogger(t))
	c.retryDelay = 0

	require.NoError(t, c.UploadWithRetry(context.Background(), "reports", "r.csv", []byte("x")))
	assert.Equal(t, 3, api.puts)
	assert.Equal(t, []byte("x"), api.objects["reports/r.csv"])
}

func TestClient_UploadWithRetryGivesUp(t *testing.T) {
	api := newMemoryS3()
	api.failPuts = maxS3Retries
	c := NewClientFromAPI(api, zaptest.NewLogger(t))
	c.retryDelay = 0

	err := c.UploadWithRetry(context.Background(), "reports", "r.csv", []byte("x"))
	assert.ErrorContains(t, err, "upload failed after 5 attempts")
	assert.Equal(t, maxS3Retries, api.puts)
}
