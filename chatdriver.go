package elonbot

import (
	"context"

	"github.com/slack-go/slack"
)

// messagePoster is implemented by any value that has the PostMessageContext method.
//
// slack.Client implements this interface
type messagePoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (respChannel string, respTimestamp string, err error)
}

// conversationOpener is implemented by any value that has the OpenConversationContext method. It
// is used to find the direct message channel of a user.
//
// slack.Client implements this interface
type conversationOpener interface {
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (channel *slack.Channel, noOp bool, alreadyOpen bool, err error)
}

// chatDriver encompasses the messagePoster and conversationOpener interfaces and is implemented by any value that
// has all methods of those interfaces
type chatDriver interface {
	messagePoster
	conversationOpener
}
