package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureConfig selects an Azure storage container.
type AzureConfig struct {
	ContainerName    string
	ConnectionString string
	Logger           *slog.Logger
}

// AzureStore is a Store over one Azure blob container.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore connects to the container. A default Azure credential
// (managed identity, CLI login, ...) is tried first against the account
// named in the connection string and verified with a service properties
// probe; on any failure the connection string itself is used.
func NewAzureStore(ctx context.Context, cfg AzureConfig) (*AzureStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ContainerName == "" || cfg.ConnectionString == "" {
		return nil, errors.New("azure storage: container name and connection string are required")
	}

	client, err := identityClient(ctx, cfg.ConnectionString)
	if err != nil {
		logger.Warn("blob client via default credential unavailable, using connection string", "error", err)
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("azure storage: client from connection string: %w", err)
		}
	}
	return &AzureStore{client: client, container: cfg.ContainerName}, nil
}

func identityClient(ctx context.Context, connectionString string) (*azblob.Client, error) {
	account, ok := accountName(connectionString)
	if !ok {
		return nil, errors.New("no AccountName in connection string")
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("default credential: %w", err)
	}
	client, err := azblob.NewClient(fmt.Sprintf("https://%s.blob.core.windows.net/", account), cred, nil)
	if err != nil {
		return nil, err
	}
	if _, err := client.ServiceClient().GetProperties(ctx, nil); err != nil {
		return nil, fmt.Errorf("service properties probe: %w", err)
	}
	return client, nil
}

func accountName(connectionString string) (string, bool) {
	for _, part := range strings.Split(connectionString, ";") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(part), "AccountName="); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func (a *AzureStore) List(ctx context.Context, prefix, suffix string) ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}
	pager := a.client.NewListBlobsFlatPager(a.container, opts)

	var names []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, classifyAzure(err))
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return filterNames(names, prefix, suffix), nil
}

// Versions tags each blob with its ETag.
func (a *AzureStore) Versions(ctx context.Context, prefix, suffix string) (map[string]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = to.Ptr(prefix)
	}
	pager := a.client.NewListBlobsFlatPager(a.container, opts)

	tags := map[string]string{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("versions %q: %w", prefix, classifyAzure(err))
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			var etag string
			if item.Properties != nil && item.Properties.ETag != nil {
				etag = string(*item.Properties.ETag)
			}
			tags[*item.Name] = etag
		}
	}
	return filterTags(tags, prefix, suffix), nil
}

func (a *AzureStore) Get(ctx context.Context, path string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, classifyAzure(err))
	}
	defer resp.Body.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("get %s: read body: %w", path, err)
	}
	return buf.Bytes(), nil
}

func (a *AzureStore) Put(ctx context.Context, path string, data []byte, overwrite bool) error {
	opts := &azblob.UploadBufferOptions{}
	if !overwrite {
		opts.AccessConditions = &blob.AccessConditions{
			ModifiedAccessConditions: &blob.ModifiedAccessConditions{
				IfNoneMatch: to.Ptr(azcore.ETagAny),
			},
		}
	}
	if _, err := a.client.UploadBuffer(ctx, a.container, path, data, opts); err != nil {
		return fmt.Errorf("put %s: %w", path, classifyAzure(err))
	}
	return nil
}

func (a *AzureStore) Delete(ctx context.Context, path string) error {
	if _, err := a.client.DeleteBlob(ctx, a.container, path, nil); err != nil {
		return fmt.Errorf("delete %s: %w", path, classifyAzure(err))
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (a *AzureStore) Close() error { return nil }

func classifyAzure(err error) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return errors.Join(ErrNotFound, err)
	case bloberror.HasCode(err, bloberror.BlobAlreadyExists, bloberror.ConditionNotMet):
		return errors.Join(ErrExists, err)
	}
	return err
}
