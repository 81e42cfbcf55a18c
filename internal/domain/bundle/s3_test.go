package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockS3 is an S3API whose operations can be overridden per test. By default
// it behaves like an in-memory bucket.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string

	PutObjectFunc     func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2Func func(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.PutObjectFunc != nil {
		return m.PutObjectFunc(ctx, in, opts...)
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Key)] = data
	m.meta[aws.ToString(in.Key)] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if m.ListObjectsV2Func != nil {
		return m.ListObjectsV2Func(ctx, in, opts...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func snapshotAt(id, typ string, at time.Time) *Snapshot {
	return &Snapshot{
		ID:            id,
		BundleType:    typ,
		Payload:       json.RawMessage(`{"resourceType":"Bundle"}`),
		ResourceCount: 2,
		QueryContext:  "subjectId=" + id,
		CreatedAt:     at,
	}
}

func TestS3Repository_CreateWritesKeyedObject(t *testing.T) {
	m := newMockS3()
	repo := NewS3Repository(m, "archive", "/bundles/")
	at := time.Date(2024, 6, 1, 10, 0, 0, 5, time.UTC)

	require.NoError(t, repo.Create(context.Background(), snapshotAt("abc", "subject-everything", at)))

	key := "bundles/subject-everything/20240601T100000.000000005Z_abc.json"
	require.Contains(t, m.objects, key)
	assert.Equal(t, "2", m.meta[key]["resource-count"])

	var stored Snapshot
	require.NoError(t, json.Unmarshal(m.objects[key], &stored))
	assert.Equal(t, "subjectId=abc", stored.QueryContext)
	assert.JSONEq(t, `{"resourceType":"Bundle"}`, string(stored.Payload))
}

func TestS3Repository_ListNewestFirst(t *testing.T) {
	m := newMockS3()
	repo := NewS3Repository(m, "archive", "bundles")
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, snapshotAt("s1", "subject-everything", base)))
	require.NoError(t, repo.Create(ctx, snapshotAt("s2", "other", base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, snapshotAt("s3", "subject-everything", base.Add(2*time.Minute))))

	items, total, err := repo.List(ctx, "", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "s3", items[0].ID)
	assert.Equal(t, "s2", items[1].ID)

	items, total, err = repo.List(ctx, "subject-everything", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"s3", "s1"}, []string{items[0].ID, items[1].ID})

	items, _, err = repo.List(ctx, "", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestS3Repository_ErrorsSurface(t *testing.T) {
	m := newMockS3()
	boom := errors.New("access denied")
	m.PutObjectFunc = func(context.Context, *s3.PutObjectInput, ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return nil, boom
	}
	m.ListObjectsV2Func = func(context.Context, *s3.ListObjectsV2Input, ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
		return nil, boom
	}
	repo := NewS3Repository(m, "archive", "")

	err := repo.Create(context.Background(), snapshotAt("x", "t", time.Now()))
	assert.ErrorIs(t, err, boom)

	_, _, err = repo.List(context.Background(), "", 10, 0)
	assert.ErrorIs(t, err, boom)
}

func TestS3Repository_WithArchiver(t *testing.T) {
	repo := NewS3Repository(newMockS3(), "archive", "bundles")
	a := NewArchiver(repo)

	id, err := a.Archive(context.Background(), ArchiveRequest{
		BundleType:    BundleTypeSubjectEverything,
		Payload:       json.RawMessage(`{"resourceType":"Bundle","total":0}`),
		ResourceCount: 0,
		QueryContext:  "subjectId=p9",
	})
	require.NoError(t, err)

	items, total, err := a.List(context.Background(), BundleTypeSubjectEverything, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, id, items[0].ID)
}
