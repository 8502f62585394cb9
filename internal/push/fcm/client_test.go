package fcm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/example/lounge-reconciler/internal/push"
)

func TestBuildMessageCarriesHints(t *testing.T) {
	t.Parallel()

	msg, err := buildMessage(push.Message{
		Token: "tok",
		Title: "Escort VIP Client",
		Body:  "body",
		Data:  map[string]string{"notificationType": "escort_reminder"},
		Hints: push.Hints{
			Priority:          push.PriorityHigh,
			Sound:             "bell_ring",
			AndroidChannel:    "alarm",
			Visibility:        "public",
			APNSCategory:      "alarm",
			InterruptionLevel: "time-sensitive",
			TTL:               10 * time.Minute,
		},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if msg.Android.Priority != "HIGH" || msg.Android.Notification.ChannelId != "alarm" || msg.Android.Ttl != "600s" {
		t.Fatalf("unexpected android config %+v", msg.Android)
	}
	if msg.Android.Notification.Visibility != "PUBLIC" {
		t.Fatalf("unexpected visibility %q", msg.Android.Notification.Visibility)
	}
	if msg.Apns.Headers["apns-priority"] != "10" {
		t.Fatalf("expected immediate apns priority, got %v", msg.Apns.Headers)
	}
	var payload struct {
		APS map[string]string `json:"aps"`
	}
	if err := json.Unmarshal(msg.Apns.Payload, &payload); err != nil {
		t.Fatalf("decode apns payload: %v", err)
	}
	if payload.APS["sound"] != "bell_ring" || payload.APS["category"] != "alarm" || payload.APS["interruption-level"] != "time-sensitive" {
		t.Fatalf("unexpected aps %v", payload.APS)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	unregistered := &googleapi.Error{Code: http.StatusNotFound, Details: []any{
		map[string]any{"@type": "type.googleapis.com/google.firebase.fcm.v1.FcmError", "errorCode": "UNREGISTERED"},
	}}
	cases := []struct {
		name string
		err  error
		want push.FailureKind
	}{
		{name: "unregistered", err: unregistered, want: push.KindTokenInvalid},
		{name: "not found without error code", err: &googleapi.Error{Code: http.StatusNotFound, Message: "Requested entity was not found."}, want: push.KindTransient},
		{name: "bad request", err: &googleapi.Error{Code: http.StatusBadRequest}, want: push.KindMalformed},
		{name: "quota", err: &googleapi.Error{Code: http.StatusTooManyRequests}, want: push.KindTransient},
		{name: "unavailable", err: &googleapi.Error{Code: http.StatusServiceUnavailable}, want: push.KindTransient},
		{name: "network", err: errors.New("connection reset"), want: push.KindTransient},
	}
	for _, tc := range cases {
		if got := push.KindOf(classify(tc.err)); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestSendAgainstFakeEndpoint(t *testing.T) {
	t.Parallel()

	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Message struct {
				Token string `json:"token"`
			} `json:"message"`
		}
		_ = json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		if req.Message.Token == "dead" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND","details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`)
			return
		}
		_, _ = io.WriteString(w, `{"name":"projects/lounge/messages/1"}`)
	}))
	t.Cleanup(server.Close)

	client, err := New(context.Background(), "lounge",
		option.WithEndpoint(server.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if err := client.Send(context.Background(), push.Message{Token: "live", Title: "t", Body: "b"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/v1/projects/lounge/messages:send" {
		t.Fatalf("unexpected request path %q", gotPath)
	}

	err = client.Send(context.Background(), push.Message{Token: "dead", Title: "t", Body: "b"})
	if !errors.Is(err, push.ErrTokenInvalid) {
		t.Fatalf("expected token invalid, got %v", err)
	}
}
