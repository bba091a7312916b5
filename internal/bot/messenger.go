// Package bot implements the command/callback dispatcher: a per-user
// session state machine routing inbound messages and button presses to
// file registry operations.
package bot

import "context"

// Button is one inline keyboard button carrying a callback payload.
type Button struct {
	Text string
	Data string
}

// SendOptions carries the presentation options a handler may attach to
// an outbound message.
type SendOptions struct {
	Markdown bool
	Buttons  [][]Button
}

// Messenger is the outbound contract the dispatcher needs from the
// messaging platform. Calls are fire-and-forget from the dispatcher's
// perspective; failures are returned so callers can log them, but the
// dispatcher never retries and never assumes the far side committed.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) error

	SendDocument(ctx context.Context, chatID int64, fileHandle, caption string) error
	SendPhoto(ctx context.Context, chatID int64, fileHandle, caption string) error
	SendVideo(ctx context.Context, chatID int64, fileHandle, caption string) error
	SendAudio(ctx context.Context, chatID int64, fileHandle, caption string) error
	SendVoice(ctx context.Context, chatID int64, fileHandle, caption string) error
	SendAnimation(ctx context.Context, chatID int64, fileHandle, caption string) error

	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts *SendOptions) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	// AnswerCallback acknowledges a button press so the client stops
	// showing its pending indicator.
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
