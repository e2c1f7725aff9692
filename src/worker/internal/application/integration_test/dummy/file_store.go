package dummy

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jasonlryan/demucs/src/worker/internal/application/cloud_storage/store"
)

var NetworkFailure = errors.New("Network failure")

var _ store.FileStore = &FileStore{}

type FileStore struct {
	Unavailable bool

	lock  sync.Mutex
	files map[string][]byte
}

func NewDummyFileStore() *FileStore {
	return &FileStore{
		files: map[string][]byte{},
	}
}

func (f *FileStore) GetFile(_ context.Context, fileURL string) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.Unavailable {
		return nil, NetworkFailure
	}

	contents, ok := f.files[fileURL]
	if !ok {
		return nil, errors.Newf("No file stored at %s", fileURL)
	}

	return contents, nil
}

func (f *FileStore) WriteFile(_ context.Context, fileURL string, fileContent []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.Unavailable {
		return NetworkFailure
	}

	f.files[fileURL] = fileContent
	return nil
}

func (f *FileStore) URLs() []string {
	f.lock.Lock()
	defer f.lock.Unlock()

	urls := []string{}
	for url := range f.files {
		urls = append(urls, url)
	}
	return urls
}
