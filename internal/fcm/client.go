package fcm

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// Client sends push notifications through Firebase Cloud Messaging.
type Client struct {
	msgClient *messaging.Client
	logger    *zap.Logger
}

func NewClient(ctx context.Context, app *firebase.App, logger *zap.Logger) (*Client, error) {
	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return &Client{msgClient: msgClient, logger: logger}, nil
}

// Message builds the push for one notification. The banner is shown even
// when the app is in the foreground on iOS.
func Message(token, title, body string, data map[string]string) *messaging.Message {
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
}

// Send delivers one push. An empty token is a no-op.
func (c *Client) Send(ctx context.Context, token, title, body string, data map[string]string) error {
	if token == "" {
		return nil
	}
	if _, err := c.msgClient.Send(ctx, Message(token, title, body, data)); err != nil {
		if messaging.IsUnregistered(err) {
			c.logger.Info("fcm token no longer registered", zap.String("token", token))
		} else {
			c.logger.Error("failed to send FCM message", zap.String("token", token), zap.Error(err))
		}
		return err
	}
	return nil
}
