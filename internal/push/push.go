// Package push delivers notifications to member devices.
package push

import (
	"context"
	"log/slog"
)

// Platform identifies a device family.
type Platform string

const (
	IOS     Platform = "ios"
	Android Platform = "android"
)

// PlatformOf maps a member's registered push type to a platform. Anything
// other than "ios" is treated as Android.
func PlatformOf(pushType string) Platform {
	if pushType == string(IOS) {
		return IOS
	}
	return Android
}

// Message is a platform-neutral notification.
type Message struct {
	Token    string
	Title    string
	Body     string
	Data     map[string]string
	ThreadID string
	Badge    int
}

// Sender delivers a message. Delivery failures are logged by the sender and
// never reported to the caller.
type Sender interface {
	Send(ctx context.Context, msg Message, platform Platform)
}

// LogSender records messages in the log instead of delivering them.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs msg.
func (s LogSender) Send(_ context.Context, msg Message, platform Platform) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("push message",
		"platform", platform,
		"title", msg.Title,
		"body", msg.Body,
		"badge", msg.Badge,
		"thread_id", msg.ThreadID,
	)
}
