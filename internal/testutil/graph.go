package testutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"spmirror/internal/core"
)

// FakeGraphClient is a scripted core.GraphClient: pages and content are
// staged up front; Delta replays a drive's staged pages on every call
// and Download returns an item's staged content, removing nothing. This
// mirrors the teacher's MockFilesystemManager — an in-memory double the
// service layer can exercise without any real I/O.
type FakeGraphClient struct {
	mu sync.Mutex

	Site  core.Site
	Drive core.DriveInfo

	Pages   map[string][]core.Page // keyed by driveID
	Content map[string][]byte      // keyed by itemID

	ConnectionErr error
}

// NewFakeGraphClient builds an empty FakeGraphClient.
func NewFakeGraphClient() *FakeGraphClient {
	return &FakeGraphClient{
		Pages:   make(map[string][]core.Page),
		Content: make(map[string][]byte),
	}
}

func (f *FakeGraphClient) ResolveSite(ctx context.Context, hostname, sitePath string) (core.Site, error) {
	return f.Site, nil
}

func (f *FakeGraphClient) ListDrives(ctx context.Context, siteID, libraryName string) ([]core.DriveInfo, error) {
	return []core.DriveInfo{f.Drive}, nil
}

func (f *FakeGraphClient) Delta(ctx context.Context, driveID, link string) func(yield func(core.Page, error) bool) {
	return func(yield func(core.Page, error) bool) {
		f.mu.Lock()
		pages := append([]core.Page(nil), f.Pages[driveID]...)
		f.mu.Unlock()

		for _, p := range pages {
			if ctx.Err() != nil {
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

func (f *FakeGraphClient) Download(ctx context.Context, driveID, itemID string) (io.ReadCloser, error) {
	f.mu.Lock()
	content, ok := f.Content[itemID]
	f.mu.Unlock()
	if !ok {
		return nil, core.NotFoundError("Download", fmt.Errorf("no content staged for item %s", itemID))
	}
	return io.NopCloser(strings.NewReader(string(content))), nil
}

func (f *FakeGraphClient) TestConnection(ctx context.Context) error {
	return f.ConnectionErr
}

var _ core.GraphClient = (*FakeGraphClient)(nil)
