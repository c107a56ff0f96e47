package ingest

import (
	"context"
	"time"
	"unicode"

	"smsrelay/internal/constants"

	"github.com/sirupsen/logrus"
)

// messagingPackages are the applications whose notifications are treated as
// message carriers even without an explicit message category.
var messagingPackages = map[string]bool{
	"com.google.android.apps.messaging": true,
	"com.android.mms":                   true,
	"com.samsung.android.messaging":     true,
}

// NotificationEvent is one notification observed in the system shade.
type NotificationEvent struct {
	AppPackage     string `json:"appPackage"`
	Category       string `json:"category"`
	Title          string `json:"title"`
	Text           string `json:"text"`
	BigText        string `json:"bigText"`
	PostedAtMillis int64  `json:"postedAtMillis"`
}

// NotificationSource extracts candidate messages from the notification shade.
// The notification title is the candidate sender; when it looks like a display
// name rather than a phone number, a best-effort lookup against recently
// stored messages with the same body may recover the real address.
type NotificationSource struct {
	pipeline *Pipeline
	store    MessageStore
	logger   *logrus.Logger
	now      func() time.Time
}

func NewNotificationSource(pipeline *Pipeline, store MessageStore, logger *logrus.Logger) *NotificationSource {
	return &NotificationSource{
		pipeline: pipeline,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
}

// OnNotification processes one posted notification.
func (s *NotificationSource) OnNotification(ctx context.Context, evt NotificationEvent) {
	if !s.isMessageNotification(evt) {
		return
	}

	body := evt.Text
	if evt.BigText != "" {
		body = evt.BigText
	}
	if body == "" || evt.Title == "" {
		return
	}

	sender := evt.Title
	if !looksLikePhoneNumber(sender) {
		if resolved := s.resolveSender(ctx, body); resolved != "" {
			sender = resolved
		}
	}

	s.pipeline.OnCandidateMessage(ctx, "notification", sender, body, evt.PostedAtMillis)
}

func (s *NotificationSource) isMessageNotification(evt NotificationEvent) bool {
	return messagingPackages[evt.AppPackage] || evt.Category == "msg"
}

// resolveSender cross-references recently stored messages: a row with the
// same body stored within the resolution window yields its address. Returns
// empty on no match; the caller falls back to the display name.
func (s *NotificationSource) resolveSender(ctx context.Context, body string) string {
	if s.store == nil {
		return ""
	}
	messages, err := s.store.Recent(ctx, constants.ObserverQueryLimit)
	if err != nil {
		s.logger.WithError(err).Debug("Sender resolution query failed")
		return ""
	}

	cutoff := s.now().UnixMilli() - constants.SenderResolutionWindowMs
	for _, msg := range messages {
		if msg.Body == body && msg.ReceivedAtMillis >= cutoff {
			return msg.Address
		}
	}
	return ""
}

// looksLikePhoneNumber reports whether the string is phone-number-shaped:
// enough digits, and nothing but digits, separators, and a leading plus.
func looksLikePhoneNumber(s string) bool {
	digits := 0
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= constants.MinPhoneNumberDigits
}
