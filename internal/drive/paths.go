package drive

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

const (
	// RootID addresses the account's root directory.
	RootID = "0"

	listPageSize = 500
	maxListPages = 20
)

// ResolvePath resolves a remote path such as /media/tv/Show (2024) to its
// directory id, optionally creating missing segments. Resolutions are
// cached; a miss that cannot be created returns ErrNotFound with a
// short-lived negative cache entry so repeated probes stay cheap.
func (c *Client) ResolvePath(ctx context.Context, path string, createMissing bool) (string, error) {
	path = normalizePath(path)
	if path == "/" {
		return RootID, nil
	}

	if id, ok := c.pathIDs.get(path); ok {
		if id == "" {
			if createMissing {
				c.pathIDs.delete(path)
			} else {
				return "", fmt.Errorf("%w: %s", ErrNotFound, path)
			}
		} else {
			return id, nil
		}
	}

	key := "dirid:" + path
	if createMissing {
		key = "mkdirp:" + path
	}
	return c.flight.do(key, func() (string, error) {
		return c.resolvePathLocked(ctx, path, createMissing)
	})
}

func (c *Client) resolvePathLocked(ctx context.Context, path string, createMissing bool) (string, error) {
	id, err := c.directoryID(ctx, path)
	if err != nil {
		return "", err
	}
	if id != "" {
		c.pathIDs.setTTL(path, id, resolvedPathTTL)
		return id, nil
	}
	if !createMissing {
		c.pathIDs.setTTL(path, "", negativePathTTL)
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	// One creator at a time per path, so two concurrent callers cannot
	// create duplicate sibling directories.
	lock := c.mkdirLock(path)
	lock.Lock()
	defer lock.Unlock()

	parentID := RootID
	walked := ""
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		walked += "/" + segment
		if cached, ok := c.pathIDs.get(walked); ok && cached != "" {
			parentID = cached
			continue
		}
		segmentID, err := c.directoryID(ctx, walked)
		if err != nil {
			return "", err
		}
		if segmentID == "" {
			segmentID, err = c.makeDirectory(ctx, segment, parentID)
			if err != nil {
				return "", fmt.Errorf("drive: create directory %s: %w", walked, err)
			}
			if segmentID == "" {
				// The duplicate fallback: another creator won the race.
				segmentID, err = c.directoryID(ctx, walked)
				if err != nil {
					return "", err
				}
				if segmentID == "" {
					return "", fmt.Errorf("drive: create directory %s: %w", walked, ErrNotFound)
				}
			}
		}
		c.pathIDs.setTTL(walked, segmentID, resolvedPathTTL)
		parentID = segmentID
	}
	return parentID, nil
}

// directoryID asks the remote for a path's directory id. An id of zero
// means the path does not exist; the empty string signals that to callers.
func (c *Client) directoryID(ctx context.Context, path string) (string, error) {
	query := url.Values{"path": {path}}
	var resp getIDResponse
	if err := c.getJSON(ctx, endpointDirGetID, "/files/getid", query, &resp); err != nil {
		return "", err
	}
	id := strings.TrimSpace(resp.ID.String())
	if id == "" || id == "0" {
		return "", nil
	}
	return id, nil
}

func (c *Client) makeDirectory(ctx context.Context, name, parentID string) (string, error) {
	form := url.Values{
		"pid":   {parentID},
		"cname": {name},
	}
	var resp makeDirResponse
	err := c.postForm(ctx, endpointMakeDir, "/files/add", form, &resp)
	if err != nil {
		// A concurrent creator may have won; fall back to a fresh lookup.
		if IsDuplicate(err) {
			return "", nil
		}
		return "", err
	}
	id := strings.TrimSpace(resp.CategoryID.String())
	if id == "" || id == "0" {
		return "", &APIError{Endpoint: string(endpointMakeDir), Message: "missing directory id in response"}
	}
	return id, nil
}

func (c *Client) mkdirLock(path string) *sync.Mutex {
	c.mkdirMu.Lock()
	defer c.mkdirMu.Unlock()
	lock, ok := c.mkdirLocks[path]
	if !ok {
		lock = new(sync.Mutex)
		c.mkdirLocks[path] = lock
	}
	return lock
}

// ListDirectory lists the files and directories at a remote path.
func (c *Client) ListDirectory(ctx context.Context, path string) ([]Entry, error) {
	id, err := c.ResolvePath(ctx, path, false)
	if err != nil {
		return nil, err
	}
	return c.listFilesByID(ctx, id)
}

// ListDirectories lists only the subdirectories at a remote path.
func (c *Client) ListDirectories(ctx context.Context, path string) ([]Entry, error) {
	entries, err := c.ListDirectory(ctx, path)
	if err != nil {
		return nil, err
	}
	dirs := entries[:0:0]
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry)
		}
	}
	return dirs, nil
}

func (c *Client) listFilesByID(ctx context.Context, id string) ([]Entry, error) {
	if cached, ok := c.listings.get(id); ok {
		return cached, nil
	}

	var all []Entry
	for page := 0; page < maxListPages; page++ {
		query := url.Values{
			"aid":      {"1"},
			"cid":      {id},
			"show_dir": {"1"},
			"limit":    {strconv.Itoa(listPageSize)},
			"offset":   {strconv.Itoa(page * listPageSize)},
		}
		var resp listFilesResponse
		if err := c.getJSON(ctx, endpointListFiles, "/files", query, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)
		if len(all) >= resp.Count || len(resp.Data) == 0 {
			break
		}
	}

	c.listings.set(id, all)
	return all, nil
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
