package client

import (
	"context"
	"fmt"

	modguard "github.com/heibot/modguard"
	"github.com/heibot/modguard/visibility"
)

// RenderInput identifies stored content and who is looking at it.
type RenderInput struct {
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
	AuthorID    string `json:"author_id"`
	ViewerID    string `json:"viewer_id"`
	Admin       bool   `json:"admin"`

	// QueueItemID links the content to its review item, if it was flagged.
	QueueItemID string `json:"queue_item_id,omitempty"`
}

// Render returns what the viewer should see for the content, taking its
// review state and the author's shadow ban into account.
func (c *Client) Render(ctx context.Context, in RenderInput) (visibility.RenderResult, error) {
	var item *modguard.QueueItem
	if in.QueueItemID != "" {
		got, err := c.store.GetQueueItem(ctx, in.QueueItemID)
		if err != nil {
			return visibility.RenderResult{}, fmt.Errorf("get queue item: %w", err)
		}
		item = got
	}

	shadowed := false
	if in.AuthorID != "" {
		status, err := c.store.GetUserStatus(ctx, in.AuthorID)
		switch {
		case err == nil:
			shadowed = status.IsShadowBanned
		case !modguard.IsNotFound(err):
			return visibility.RenderResult{}, fmt.Errorf("get author status: %w", err)
		}
	}

	return c.renderer.Render(visibility.RenderContext{
		ContentType: in.ContentType,
		AuthorID:    in.AuthorID,
		ViewerID:    in.ViewerID,
		Admin:       in.Admin,
	}, in.Text, visibility.StateOf(shadowed, item)), nil
}
