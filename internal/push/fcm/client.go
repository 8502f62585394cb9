// Package fcm delivers push messages through the Firebase Cloud Messaging
// HTTP v1 API and maps provider errors onto push failure kinds.
package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	fcmapi "google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/example/lounge-reconciler/internal/push"
)

// Client sends messages for one Firebase project.
type Client struct {
	service *fcmapi.Service
	parent  string
}

// New builds a client for projectID. Credentials come from opts or
// Application Default Credentials.
func New(ctx context.Context, projectID string, opts ...option.ClientOption) (*Client, error) {
	if projectID == "" {
		return nil, errors.New("fcm: project id is required")
	}
	service, err := fcmapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("fcm: new service: %w", err)
	}
	return &Client{service: service, parent: "projects/" + projectID}, nil
}

// Send implements push.Client.
func (c *Client) Send(ctx context.Context, msg push.Message) error {
	if strings.TrimSpace(msg.Token) == "" {
		return push.Fail(push.KindTokenInvalid, errors.New("empty token"))
	}
	payload, err := buildMessage(msg)
	if err != nil {
		return push.Fail(push.KindMalformed, err)
	}
	_, err = c.service.Projects.Messages.Send(c.parent, &fcmapi.SendMessageRequest{Message: payload}).Context(ctx).Do()
	if err != nil {
		return classify(err)
	}
	return nil
}

func buildMessage(msg push.Message) (*fcmapi.Message, error) {
	hints := msg.Hints
	out := &fcmapi.Message{
		Token:        msg.Token,
		Notification: &fcmapi.Notification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	}

	android := &fcmapi.AndroidConfig{
		Priority: "NORMAL",
		Notification: &fcmapi.AndroidNotification{
			Sound:      hints.Sound,
			ChannelId:  hints.AndroidChannel,
			Icon:       hints.Icon,
			Visibility: strings.ToUpper(hints.Visibility),
		},
	}
	if hints.Priority == push.PriorityHigh {
		android.Priority = "HIGH"
		android.Notification.NotificationPriority = "PRIORITY_MAX"
	}
	if hints.TTL > 0 {
		android.Ttl = fmt.Sprintf("%ds", int64(hints.TTL.Seconds()))
	}
	out.Android = android

	aps := map[string]any{}
	if hints.Sound != "" {
		aps["sound"] = hints.Sound
	}
	if hints.APNSCategory != "" {
		aps["category"] = hints.APNSCategory
	}
	if hints.InterruptionLevel != "" {
		aps["interruption-level"] = hints.InterruptionLevel
	}
	body, err := json.Marshal(map[string]any{"aps": aps})
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"apns-priority": "5"}
	if hints.Priority == push.PriorityHigh {
		headers["apns-priority"] = "10"
	}
	out.Apns = &fcmapi.ApnsConfig{Headers: headers, Payload: googleapi.RawMessage(body)}
	return out, nil
}

// classify maps FCM v1 errors: only the UNREGISTERED error code means the
// token is gone. A bare 404 usually names a wrong project and must not purge
// tokens. Other 4xx request errors are malformed, everything else may
// succeed later.
func classify(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return push.Fail(push.KindTransient, err)
	}
	switch code := fcmErrorCode(apiErr); {
	case code == "UNREGISTERED":
		return push.Fail(push.KindTokenInvalid, err)
	case code == "INVALID_ARGUMENT" || apiErr.Code == http.StatusBadRequest:
		return push.Fail(push.KindMalformed, err)
	}
	return push.Fail(push.KindTransient, err)
}

func fcmErrorCode(apiErr *googleapi.Error) string {
	for _, detail := range apiErr.Details {
		fields, ok := detail.(map[string]any)
		if !ok {
			continue
		}
		if code, ok := fields["errorCode"].(string); ok && code != "" {
			return code
		}
	}
	return ""
}
