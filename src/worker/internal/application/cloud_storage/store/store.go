package store

import (
	"context"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/shared/lib/cerr"
	"google.golang.org/api/option"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate . FileStore
type FileStore interface {
	GetFile(ctx context.Context, fileURL string) ([]byte, error)
	WriteFile(ctx context.Context, fileURL string, fileContent []byte) error
}

var _ FileStore = GoogleFileStore{}

type GoogleFileStore struct {
	client      *storage.Client
	storageHost string
}

func NewGoogleFileStore(storageHost string, opts ...option.ClientOption) (GoogleFileStore, error) {
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return GoogleFileStore{}, cerr.Wrap(err).Error("Failed to create cloud storage client")
	}

	return GoogleFileStore{
		client:      client,
		storageHost: strings.TrimSuffix(storageHost, "/"),
	}, nil
}

// splitURL turns {host}/{bucket}/{object...} into its bucket and object.
func (g GoogleFileStore) splitURL(fileURL string) (string, string, error) {
	errctx := cerr.Field("file_url", fileURL)

	if !strings.HasPrefix(fileURL, g.storageHost+"/") {
		return "", "", errctx.Error("File URL is not on the configured storage host")
	}

	rest, err := url.PathUnescape(strings.TrimPrefix(fileURL, g.storageHost+"/"))
	if err != nil {
		return "", "", errctx.Wrap(err).Error("Failed to unescape file URL")
	}

	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", errctx.Error("File URL has no bucket or object name")
	}

	return bucket, object, nil
}

func (g GoogleFileStore) GetFile(ctx context.Context, fileURL string) ([]byte, error) {
	bucket, object, err := g.splitURL(fileURL)
	if err != nil {
		return nil, err
	}

	reader, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, cerr.Field("file_url", fileURL).Wrap(err).Error("Failed to open cloud object")
	}
	defer reader.Close()

	contents, err := io.ReadAll(reader)
	if err != nil {
		return nil, cerr.Field("file_url", fileURL).Wrap(err).Error("Failed to read cloud object")
	}

	return contents, nil
}

func (g GoogleFileStore) WriteFile(ctx context.Context, fileURL string, fileContent []byte) error {
	bucket, object, err := g.splitURL(fileURL)
	if err != nil {
		return err
	}

	writer := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := writer.Write(fileContent); err != nil {
		_ = writer.Close()
		return cerr.Field("file_url", fileURL).Wrap(err).Error("Failed to write cloud object")
	}

	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "Failed to finish writing cloud object")
	}

	return nil
}
