package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GCSStore is a Store over one Google Cloud Storage bucket. Credentials come
// from the environment (Application Default Credentials).
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSStore opens the named bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs: bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs: new client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket)}, nil
}

func (g *GCSStore) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return filterNames(names, prefix, suffix), nil
}

// Versions tags each object with its generation, which changes on every write.
func (g *GCSStore) Versions(ctx context.Context, prefix, suffix string) (map[string]string, error) {
	it := g.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	tags := map[string]string{}
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("versions %q: %w", prefix, err)
		}
		tags[attrs.Name] = strconv.FormatInt(attrs.Generation, 10)
	}
	return filterTags(tags, prefix, suffix), nil
}

func (g *GCSStore) Get(ctx context.Context, path string) ([]byte, error) {
	r, err := g.bucket.Object(path).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, classifyGCS(err))
	}
	defer r.Close() //nolint:errcheck
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("get %s: read body: %w", path, err)
	}
	return data, nil
}

func (g *GCSStore) Put(ctx context.Context, path string, data []byte, overwrite bool) error {
	obj := g.bucket.Object(path)
	if !overwrite {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("put %s: %w", path, classifyGCS(err))
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("put %s: %w", path, classifyGCS(err))
	}
	return nil
}

func (g *GCSStore) Delete(ctx context.Context, path string) error {
	if err := g.bucket.Object(path).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", path, classifyGCS(err))
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

func classifyGCS(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return errors.Join(ErrNotFound, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
		return errors.Join(ErrExists, err)
	}
	return err
}
