package drive

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"cloudsub/internal/logging"
	"cloudsub/internal/medianame"
)

var (
	shareLinkRe    = regexp.MustCompile(`(?i)115(?:cdn)?\.com/s/([0-9a-z]+)`)
	receiveCodeRe  = regexp.MustCompile(`(?i)password=([0-9a-z]{4})`)
	inlineAccessRe = regexp.MustCompile(`访问码[:：]\s*([0-9a-zA-Z]{4})`)
)

// ParseShareLink extracts the share code and receive code from a share URL.
// Accepted forms include https://115.com/s/<code>?password=<pwd> and links
// with the access code appended as trailing text.
func ParseShareLink(rawURL string) (shareCode, receiveCode string, err error) {
	rawURL = strings.TrimSpace(rawURL)
	m := shareLinkRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidShareLink, rawURL)
	}
	shareCode = m[1]
	if pm := receiveCodeRe.FindStringSubmatch(rawURL); pm != nil {
		receiveCode = pm[1]
	} else if pm := inlineAccessRe.FindStringSubmatch(rawURL); pm != nil {
		receiveCode = pm[1]
	}
	return shareCode, receiveCode, nil
}

// ShareStatus is the result of a pre-flight share check.
type ShareStatus struct {
	Valid  bool
	Status string
	Title  string
}

// CheckShare verifies a share is still alive before any listing work is
// spent on it.
func (c *Client) CheckShare(ctx context.Context, shareURL string) (ShareStatus, error) {
	shareCode, receiveCode, err := ParseShareLink(shareURL)
	if err != nil {
		return ShareStatus{}, err
	}

	resp, err := c.shareSnap(ctx, shareCode, receiveCode, RootID, 0, 1)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return ShareStatus{Valid: false, Status: apiErr.Message}, nil
		}
		return ShareStatus{}, err
	}

	if state, convErr := resp.Data.ShareInfo.ShareState.Int64(); convErr == nil && state == 0 {
		return ShareStatus{Valid: false, Status: "share disabled", Title: resp.Data.ShareInfo.ShareTitle}, nil
	}
	return ShareStatus{Valid: true, Status: "ok", Title: resp.Data.ShareInfo.ShareTitle}, nil
}

// ShareNode is one node of a share's file tree.
type ShareNode struct {
	ID       string
	Name     string
	Size     int64
	IsDir    bool
	Children []*ShareNode
}

// ListShareOptions controls share tree traversal.
type ListShareOptions struct {
	RootID string
	// MaxDepth bounds recursion; zero uses the client default.
	MaxDepth int
	// SeasonHint prunes subdirectories that unambiguously belong to a
	// different season, cutting request volume on multi-season shares.
	SeasonHint int
}

// ListShareTree recursively lists a share's contents up to the configured
// depth and returns the resulting forest.
func (c *Client) ListShareTree(ctx context.Context, shareCode, receiveCode string, opts ListShareOptions) ([]*ShareNode, error) {
	rootID := opts.RootID
	if rootID == "" {
		rootID = RootID
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = c.maxShareDepth
	}
	return c.listShareLevel(ctx, shareCode, receiveCode, rootID, maxDepth, opts.SeasonHint)
}

func (c *Client) listShareLevel(ctx context.Context, shareCode, receiveCode, dirID string, depth, seasonHint int) ([]*ShareNode, error) {
	if depth <= 0 {
		return nil, nil
	}

	entries, err := c.listSharePages(ctx, shareCode, receiveCode, dirID)
	if err != nil {
		return nil, err
	}

	nodes := make([]*ShareNode, 0, len(entries))
	for _, entry := range entries {
		node := &ShareNode{
			ID:    entry.ID(),
			Name:  entry.Name,
			Size:  entry.SizeBytes(),
			IsDir: entry.IsDir(),
		}
		if node.IsDir {
			if c.pruneSeasons && seasonHint > 0 {
				if season, ok := medianame.Season(node.Name); ok && season != seasonHint {
					c.logger.Debug("pruning share subtree",
						logging.String("dir", node.Name),
						logging.Int(logging.FieldSeason, seasonHint),
					)
					continue
				}
			}
			children, err := c.listShareLevel(ctx, shareCode, receiveCode, node.ID, depth-1, seasonHint)
			if err != nil {
				return nil, err
			}
			node.Children = children
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (c *Client) listSharePages(ctx context.Context, shareCode, receiveCode, dirID string) ([]Entry, error) {
	var all []Entry
	for page := 0; page < maxListPages; page++ {
		resp, err := c.shareSnap(ctx, shareCode, receiveCode, dirID, page*listPageSize, listPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Data.List...)
		if len(all) >= resp.Data.Count || len(resp.Data.List) == 0 {
			break
		}
	}
	return all, nil
}

func (c *Client) shareSnap(ctx context.Context, shareCode, receiveCode, dirID string, offset, limit int) (*shareSnapResponse, error) {
	query := url.Values{
		"share_code":   {shareCode},
		"receive_code": {receiveCode},
		"cid":          {dirID},
		"offset":       {strconv.Itoa(offset)},
		"limit":        {strconv.Itoa(limit)},
	}
	var resp shareSnapResponse
	if err := c.getJSON(ctx, endpointShareList, "/share/snap", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
