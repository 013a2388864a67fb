package s3archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/staffhub/backend/core"
	"github.com/staffhub/backend/storage/casesfs"
)

// maxDeleteBatch is the DeleteObjects limit.
const maxDeleteBatch = 1000

// API is the subset of *s3.Client used by Archiver.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Archiver uploads processed export files to <bucket>/<prefix>/<timestamp>/<file>.
type Archiver struct {
	client    API
	bucket    string
	prefix    string
	sourceDir string
	logger    core.Logger
	now       func() time.Time
}

func New(client API, bucket, prefix, sourceDir string, logger core.Logger) *Archiver {
	return &Archiver{
		client:    client,
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		sourceDir: sourceDir,
		logger:    logger,
		now:       time.Now,
	}
}

func NewFromConfig(cfg aws.Config, bucket, prefix, sourceDir string, logger core.Logger) *Archiver {
	return New(s3.NewFromConfig(cfg), bucket, prefix, sourceDir, logger)
}

func (a *Archiver) key(parts ...string) string {
	if a.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{a.prefix}, parts...)...)
}

// ArchiveFiles uploads filenames under a new timestamp. Per-file failures are logged.
func (a *Archiver) ArchiveFiles(ctx context.Context, filenames []string) error {
	stamp := casesfs.ArchiveStamp(a.now())
	var archived int
	for _, name := range filenames {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := a.upload(ctx, a.key(stamp, name), filepath.Join(a.sourceDir, name)); err != nil {
			a.logger.Error(fmt.Sprintf("archiving %s: %v", name, err), err)
			continue
		}
		archived++
	}
	a.logger.Info(fmt.Sprintf("archived %d of %d CASES files to s3://%s/%s", archived, len(filenames), a.bucket, a.key(stamp)))
	return nil
}

func (a *Archiver) upload(ctx context.Context, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	return errors.Wrap(err, "uploading to s3")
}

// CleanupOldArchives deletes archives whose newest object is older than daysToKeep days.
// Failures are logged; it returns the number of archives removed.
func (a *Archiver) CleanupOldArchives(ctx context.Context, daysToKeep int) int {
	archives, err := a.list(ctx)
	if err != nil {
		a.logger.Warn(fmt.Sprintf("listing archives: %v", err), err)
		return 0
	}

	cutoff := a.now().AddDate(0, 0, -daysToKeep)
	var removed int
	for stamp, arc := range archives {
		if arc.modified.After(cutoff) {
			continue
		}
		if err = a.delete(ctx, arc.keys); err != nil {
			a.logger.Warn(fmt.Sprintf("removing archive %s: %v", stamp, err), err)
			continue
		}
		removed++
	}
	if removed > 0 {
		a.logger.Info(fmt.Sprintf("removed %d old CASES archives", removed))
	}
	return removed
}

type archive struct {
	keys     []string
	modified time.Time // newest object
}

func (a *Archiver) list(ctx context.Context) (map[string]*archive, error) {
	root := a.key() + "/"
	if a.prefix == "" {
		root = ""
	}

	archives := make(map[string]*archive)
	pages := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(root),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			stamp, _, found := strings.Cut(strings.TrimPrefix(key, root), "/")
			if !found {
				continue // not inside an archive
			}
			arc, ok := archives[stamp]
			if !ok {
				arc = new(archive)
				archives[stamp] = arc
			}
			arc.keys = append(arc.keys, key)
			if mod := aws.ToTime(obj.LastModified); mod.After(arc.modified) {
				arc.modified = mod
			}
		}
	}
	return archives, nil
}

func (a *Archiver) delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += maxDeleteBatch {
		end := start + maxDeleteBatch
		if end > len(keys) {
			end = len(keys)
		}
		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, k := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
		}
		out, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			return errors.Errorf("%d objects not deleted: %s", len(out.Errors), aws.ToString(out.Errors[0].Message))
		}
	}
	return nil
}
