package push

import (
	"context"
	"fmt"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"
)

type APNSProvider struct {
	client *apns2.Client
	topic  string
}

func NewAPNSProvider(keyFile, keyID, teamID, topic string, production bool) (*APNSProvider, error) {
	authKey, err := token.AuthKeyFromFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load auth key: %w", err)
	}

	tokenProvider := &token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	}

	client := apns2.NewTokenClient(tokenProvider)
	if production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSProvider{
		client: client,
		topic:  topic,
	}, nil
}

func (a *APNSProvider) Name() string {
	return "apns"
}

func (a *APNSProvider) SendNotification(ctx context.Context, request *NotificationRequest) (*NotificationResponse, error) {
	response, err := a.client.PushWithContext(ctx, a.buildNotification(request, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("apns: failed to push: %w", err)
	}

	if !response.Sent() {
		return nil, fmt.Errorf("apns: rejected with status %d: %s", response.StatusCode, response.Reason)
	}

	return &NotificationResponse{
		MessageID: response.ApnsID,
		Success:   true,
		Token:     request.Token,
	}, nil
}

func (a *APNSProvider) buildNotification(request *NotificationRequest, now time.Time) *apns2.Notification {
	aps := map[string]interface{}{
		"alert": map[string]interface{}{
			"title": request.Title,
			"body":  request.Body,
		},
	}
	if request.Sound != "" {
		aps["sound"] = request.Sound
	}

	payload := map[string]interface{}{"aps": aps}
	for key, value := range request.Data {
		payload[key] = value
	}

	notification := &apns2.Notification{
		DeviceToken: request.Token,
		Topic:       a.topic,
		Payload:     payload,
		PushType:    apns2.PushTypeAlert,
		Priority:    apns2.PriorityLow,
		CollapseID:  request.CollapseKey,
	}

	if request.Priority == "high" {
		notification.Priority = apns2.PriorityHigh
	}

	if request.TTL > 0 {
		notification.Expiration = now.Add(time.Duration(request.TTL) * time.Second)
	}

	return notification
}
