package push

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"
)

type messenger interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMSender delivers messages through Firebase Cloud Messaging. iOS and
// Android devices are served by separate Firebase projects.
type FCMSender struct {
	clients map[Platform]messenger
	logger  *slog.Logger
	sent    *prometheus.CounterVec
}

// NewFCMSender initialises one Firebase app per platform from service account
// JSON. A platform without credentials is skipped with a warning at send time.
func NewFCMSender(ctx context.Context, iosCredentials, androidCredentials string, logger *slog.Logger, reg prometheus.Registerer) (*FCMSender, error) {
	s := newFCMSender(logger, reg)
	for platform, creds := range map[Platform]string{IOS: iosCredentials, Android: androidCredentials} {
		if creds == "" {
			continue
		}
		app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON([]byte(creds)))
		if err != nil {
			return nil, fmt.Errorf("init firebase %s app: %w", platform, err)
		}
		client, err := app.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("init firebase %s messaging: %w", platform, err)
		}
		s.clients[platform] = client
	}
	return s, nil
}

func newFCMSender(logger *slog.Logger, reg prometheus.Registerer) *FCMSender {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FCMSender{
		clients: make(map[Platform]messenger, 2),
		logger:  logger.With("component", "fcm"),
		sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ratekl",
			Subsystem: "push",
			Name:      "messages_total",
			Help:      "Push messages by platform and outcome",
		}, []string{"platform", "result"}),
	}
	if reg != nil {
		if err := reg.Register(s.sent); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					s.sent = existing
				}
			}
		}
	}
	return s
}

// Send delivers msg to the platform's Firebase project.
func (s *FCMSender) Send(ctx context.Context, msg Message, platform Platform) {
	client, ok := s.clients[platform]
	if !ok {
		s.logger.Warn("push platform not configured", "platform", platform)
		s.sent.WithLabelValues(string(platform), "skipped").Inc()
		return
	}
	id, err := client.Send(ctx, BuildMessage(msg, platform))
	if err != nil {
		s.logger.Error("error sending push notification", "platform", platform, "error", err)
		s.sent.WithLabelValues(string(platform), "error").Inc()
		return
	}
	s.sent.WithLabelValues(string(platform), "ok").Inc()
	s.logger.Debug("push notification sent", "platform", platform, "message_id", id)
}

// BuildMessage converts msg into an FCM message. iOS carries the badge and
// thread in the APNs payload; Android carries the count in the notification
// and the thread in data.
func BuildMessage(msg Message, platform Platform) *messaging.Message {
	out := &messaging.Message{
		Token: msg.Token,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	}
	badge := msg.Badge
	if platform == IOS {
		aps := &messaging.Aps{Badge: &badge}
		if msg.ThreadID != "" {
			aps.ThreadID = msg.ThreadID
		}
		out.APNS = &messaging.APNSConfig{Payload: &messaging.APNSPayload{Aps: aps}}
		return out
	}
	android := &messaging.AndroidConfig{
		Notification: &messaging.AndroidNotification{NotificationCount: &badge},
	}
	if msg.ThreadID != "" {
		android.Data = map[string]string{"threadId": msg.ThreadID}
	}
	out.Android = android
	return out
}
