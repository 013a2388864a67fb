package s3archive

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/staffhub/backend/tests"
)

type object struct {
	body     string
	modified time.Time
}

// fakeS3 is an in-memory bucket. List pages hold two objects.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]object
	now     time.Time
}

func newFakeS3(now time.Time) *fakeS3 {
	return &fakeS3{objects: make(map[string]object), now: now}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = object{body: string(body), modified: f.now}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for i, k := range keys {
		if i == 2 {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(keys[i-1])
			break
		}
		mod := f.objects[k].modified
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), LastModified: &mod})
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestArchiver_ArchiveFiles(t *testing.T) {
	now := time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)
	src := testutil.WriteExport(t, map[string]string{"STUDENT.DAT": "students", "STAFF.DAT": "staff"})
	client := newFakeS3(now)
	logger := testutil.NewLogger()

	a := New(client, "bucket", "/cases-archive/", src, logger)
	a.now = func() time.Time { return now }

	require.NoError(t, a.ArchiveFiles(context.Background(), []string{"STUDENT.DAT", "MISSING.DAT", "STAFF.DAT"}))
	assert.Equal(t, []string{
		"cases-archive/2026-10-15T02-00-00-000Z/STAFF.DAT",
		"cases-archive/2026-10-15T02-00-00-000Z/STUDENT.DAT",
	}, client.keys())
	assert.Equal(t, "staff", client.objects["cases-archive/2026-10-15T02-00-00-000Z/STAFF.DAT"].body)
	assert.Len(t, logger.Messages("error"), 1)
	assert.Contains(t, logger.Messages("info"), "archived 2 of 3 CASES files to s3://bucket/cases-archive/2026-10-15T02-00-00-000Z")
}

func TestArchiver_CleanupOldArchives(t *testing.T) {
	now := time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)
	client := newFakeS3(now)
	put := func(key string, age time.Duration) {
		client.objects[key] = object{modified: now.Add(-age)}
	}
	day := 24 * time.Hour
	put("cases-archive/old/STUDENT.DAT", 40*day)
	put("cases-archive/old/STAFF.DAT", 40*day)
	put("cases-archive/old/PARENT.DAT", 40*day)
	put("cases-archive/mixed/STUDENT.DAT", 40*day)
	put("cases-archive/mixed/STAFF.DAT", 1*day)
	put("cases-archive/recent/STUDENT.DAT", 2*day)
	put("cases-archive/stray.txt", 90*day)
	put("elsewhere/old/STUDENT.DAT", 90*day)

	a := New(client, "bucket", "cases-archive", "", testutil.NewLogger())
	a.now = func() time.Time { return now }

	assert.Equal(t, 1, a.CleanupOldArchives(context.Background(), 30))
	assert.Equal(t, []string{
		"cases-archive/mixed/STAFF.DAT",
		"cases-archive/mixed/STUDENT.DAT",
		"cases-archive/recent/STUDENT.DAT",
		"cases-archive/stray.txt",
		"elsewhere/old/STUDENT.DAT",
	}, client.keys())
}
