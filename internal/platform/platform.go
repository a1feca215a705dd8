// Package platform abstracts the messaging platform the bot talks
// through. Services depend on Client; the LINE adapter lives alongside.
package platform

import "context"

// Client sends text to identified users on the messaging platform
type Client interface {
	// Reply answers the message that carried replyToken
	Reply(ctx context.Context, replyToken string, text string) error
	// Push sends an unsolicited message to a user
	Push(ctx context.Context, userID string, text string) error
}
