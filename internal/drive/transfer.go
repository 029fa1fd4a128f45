package drive

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloudsub/internal/logging"
)

// WholeShare is the file id meaning "receive the entire share".
const WholeShare = "0"

// Transfer receives a single file (or the whole share, with WholeShare)
// from a share into the destination path, creating it if needed. The
// remote's "already exists" rejection counts as success.
func (c *Client) Transfer(ctx context.Context, shareCode, receiveCode, fileID, destPath string) error {
	destID, err := c.ResolvePath(ctx, destPath, true)
	if err != nil {
		return fmt.Errorf("drive: resolve destination %s: %w", destPath, err)
	}
	err = c.receive(ctx, shareCode, receiveCode, fileID, destID)
	if err != nil && IsDuplicate(err) {
		c.logger.Debug("duplicate receive treated as success",
			logging.String("file_id", fileID),
		)
		return nil
	}
	return err
}

// TransferBatch receives the given file ids in chunks and reports which ids
// succeeded and which failed. A chunk rejected as duplicate succeeds whole;
// a chunk that fails for any other non-risk reason is retried one file at a
// time so a single bad id cannot sink its chunk-mates.
func (c *Client) TransferBatch(ctx context.Context, shareCode, receiveCode string, fileIDs []string, destPath string) (succeeded, failed []string, err error) {
	if len(fileIDs) == 0 {
		return nil, nil, nil
	}
	destID, err := c.ResolvePath(ctx, destPath, true)
	if err != nil {
		return nil, nil, fmt.Errorf("drive: resolve destination %s: %w", destPath, err)
	}

	for start := 0; start < len(fileIDs); start += c.batchSize {
		end := start + c.batchSize
		if end > len(fileIDs) {
			end = len(fileIDs)
		}
		chunk := fileIDs[start:end]

		chunkErr := c.receive(ctx, shareCode, receiveCode, strings.Join(chunk, ","), destID)
		if chunkErr == nil || IsDuplicate(chunkErr) {
			succeeded = append(succeeded, chunk...)
			continue
		}
		if ctx.Err() != nil {
			return succeeded, failed, ctx.Err()
		}

		c.logger.Warn("batch receive failed, retrying files individually",
			logging.Int("chunk_size", len(chunk)),
			logging.Error(chunkErr),
		)
		for _, fileID := range chunk {
			singleErr := c.receive(ctx, shareCode, receiveCode, fileID, destID)
			switch {
			case singleErr == nil || IsDuplicate(singleErr):
				succeeded = append(succeeded, fileID)
			default:
				if ctx.Err() != nil {
					return succeeded, failed, ctx.Err()
				}
				failed = append(failed, fileID)
				c.logger.Warn("receive failed",
					logging.String("file_id", fileID),
					logging.Error(singleErr),
				)
			}
		}
	}
	return succeeded, failed, nil
}

func (c *Client) receive(ctx context.Context, shareCode, receiveCode, fileIDs, destID string) error {
	c.receiveMu.Lock()
	defer c.receiveMu.Unlock()

	form := url.Values{
		"share_code":   {shareCode},
		"receive_code": {receiveCode},
		"file_id":      {fileIDs},
		"cid":          {destID},
		"is_check":     {"0"},
	}
	var resp receiveResponse
	return c.postForm(ctx, endpointShareReceive, "/share/receive", form, &resp)
}
