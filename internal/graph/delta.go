package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"spmirror/internal/core"
)

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

// Delta returns a pull-driven iterator over delta pages for driveID,
// resuming from link. An empty link starts a full enumeration via the
// drive's root /delta endpoint. Each page is fully fetched and decoded
// before being yielded, so the caller never observes a partially
// materialized page. A 410 Gone response — Graph's signal that the
// delta cursor expired — is surfaced as a core.NotFoundError wrapping
// the expired link, so the orchestrator can fall back to a full sync.
func (c *Client) Delta(ctx context.Context, driveID, link string) func(yield func(core.Page, error) bool) {
	return func(yield func(core.Page, error) bool) {
		next := link
		if next == "" {
			next = fmt.Sprintf("%s/drives/%s/root/delta", baseURL, driveID)
		}

		for next != "" {
			page, err := c.fetchDeltaPage(ctx, next)
			if err != nil {
				yield(core.Page{}, err)
				return
			}
			if !yield(page, nil) {
				return
			}
			next = page.NextLink
		}
	}
}

func (c *Client) fetchDeltaPage(ctx context.Context, url string) (core.Page, error) {
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		return core.Page{}, core.NotFoundError("fetchDeltaPage", fmt.Errorf("delta cursor expired: %s", url))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return core.Page{}, core.RateLimitedError("fetchDeltaPage", fmt.Errorf("%s: 429", url))
	}
	if resp.StatusCode >= 400 {
		return core.Page{}, core.TransientNetworkError("fetchDeltaPage", fmt.Errorf("%s: status %d", url, resp.StatusCode))
	}

	var raw deltaResponse
	if err := decodeJSON(resp.Body, &raw); err != nil {
		return core.Page{}, core.TransientNetworkError("fetchDeltaPage", fmt.Errorf("decoding delta page: %w", err))
	}

	page := core.Page{
		NextLink:  raw.NextLink,
		DeltaLink: raw.DeltaLink,
	}
	for _, item := range raw.Value {
		page.Entries = append(page.Entries, toChangeEntry(item))
	}
	return page, nil
}

func toChangeEntry(item driveItemResponse) core.ChangeEntry {
	if item.Deleted != nil {
		return core.ChangeEntry{ItemID: item.ID, Deleted: true}
	}

	kind := core.ItemFile
	if item.Folder != nil {
		kind = core.ItemFolder
	}

	path := ""
	if item.ParentReference != nil {
		path = strings.TrimPrefix(item.ParentReference.Path, "/drive/root:")
		path = path + "/" + item.Name
	} else {
		path = "/" + item.Name
	}

	di := &core.DriveItem{
		ItemID:           item.ID,
		Kind:             kind,
		Name:             item.Name,
		Path:             path,
		Size:             item.Size,
		WebURL:           item.WebURL,
		CreatedBy:        item.CreatedBy.displayName(),
		LastModifiedBy:   item.LastModifiedBy.displayName(),
		RemoteCreatedAt:  item.CreatedDateTime,
		RemoteModifiedAt: item.LastModifiedDateTime,
	}
	if item.File != nil && item.File.Hashes != nil {
		di.SHA256Hash = item.File.Hashes.SHA256Hash
		di.QuickXorHash = item.File.Hashes.QuickXorHash
	}

	return core.ChangeEntry{ItemID: item.ID, Item: di}
}
