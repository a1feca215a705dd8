package platform

import (
	"context"
	"net/http"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// LineClient is the LINE Messaging API implementation of Client.
// Webhook signature verification is delegated to the SDK.
type LineClient struct {
	bot *linebot.Client
}

// Ensure LineClient implements the interface
var _ Client = (*LineClient)(nil)

// NewLineClient creates a LINE client from channel credentials
func NewLineClient(channelSecret, channelToken string) (*LineClient, error) {
	bot, err := linebot.New(channelSecret, channelToken)
	if err != nil {
		return nil, err
	}
	return &LineClient{bot: bot}, nil
}

// Reply answers the triggering message
func (c *LineClient) Reply(ctx context.Context, replyToken string, text string) error {
	_, err := c.bot.ReplyMessage(replyToken, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	return err
}

// Push sends a message to a user outside the reply flow
func (c *LineClient) Push(ctx context.Context, userID string, text string) error {
	_, err := c.bot.PushMessage(userID, linebot.NewTextMessage(text)).WithContext(ctx).Do()
	return err
}

// ParseRequest verifies the webhook signature and decodes the events
func (c *LineClient) ParseRequest(r *http.Request) ([]*linebot.Event, error) {
	return c.bot.ParseRequest(r)
}
