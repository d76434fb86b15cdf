package slackapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
)

type ClientConfig struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Client covers the non-paginated Web API calls: user and usergroup
// lookups for mention resolution, and posting escalation messages.
type Client struct {
	api *slack.Client
}

func NewClient(cfg ClientConfig) *Client {
	var opts []slack.Option
	if cfg.BaseURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, slack.OptionHTTPClient(cfg.HTTPClient))
	}
	return &Client{api: slack.New(cfg.Token, opts...)}
}

// LookupUser returns the user's real name, falling back to the handle and
// then the ID itself.
func (c *Client) LookupUser(ctx context.Context, userID string) (string, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("users.info %s: %w", userID, err)
	}
	switch {
	case user.RealName != "":
		return user.RealName, nil
	case user.Name != "":
		return user.Name, nil
	default:
		return userID, nil
	}
}

// ListUserGroups returns group ID to handle for the workspace.
func (c *Client) ListUserGroups(ctx context.Context) (map[string]string, error) {
	groups, err := c.api.GetUserGroupsContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("usergroups.list: %w", err)
	}
	out := make(map[string]string, len(groups))
	for _, g := range groups {
		out[g.ID] = g.Handle
	}
	return out, nil
}

// PostBlocks posts a Block Kit message with plain-text fallback for notifications.
func (c *Client) PostBlocks(ctx context.Context, channelID string, blocks []slack.Block, fallback string) error {
	_, _, err := c.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(fallback, false),
	)
	if err != nil {
		return fmt.Errorf("chat.postMessage %s: %w", channelID, err)
	}
	return nil
}
