package gateway

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/campuspush/fanout-engine/internal/domain"
)

// messagingClient is the slice of *messaging.Client the gateway needs.
type messagingClient interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

var _ Gateway = (*FCMGateway)(nil)

// FCMGateway delivers batches through Firebase Cloud Messaging. One instance
// wraps the single long-lived messaging client of the process.
type FCMGateway struct {
	client messagingClient
}

// NewFCMGateway initializes the Firebase app and its messaging client. An
// empty credentialsFile falls back to application default credentials.
func NewFCMGateway(ctx context.Context, credentialsFile string) (*FCMGateway, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize messaging client: %w", err)
	}

	return &FCMGateway{client: client}, nil
}

// NewFCMGatewayWithClient injects a prebuilt messaging client (tests).
func NewFCMGatewayWithClient(client messagingClient) (*FCMGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("messaging client is required")
	}
	return &FCMGateway{client: client}, nil
}

func (g *FCMGateway) SendBatch(ctx context.Context, tokens []string, payload domain.Payload) (*BatchResult, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("gateway is not initialized")
	}
	if len(tokens) == 0 {
		return &BatchResult{}, nil
	}
	if len(tokens) > ProviderBatchLimit {
		return nil, fmt.Errorf("%w: batch of %d exceeds provider limit %d", domain.ErrValidation, len(tokens), ProviderBatchLimit)
	}
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	message := &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title:    payload.Title,
			Body:     payload.Body,
			ImageURL: payload.ImageURL,
		},
		Data: payload.Data,
	}

	response, err := g.client.SendEachForMulticast(ctx, message)
	if err != nil {
		return nil, wrapTransport("multicast send failed", err)
	}
	if response == nil || len(response.Responses) != len(tokens) {
		return nil, &TransportError{Message: "provider returned incomplete batch response"}
	}

	result := &BatchResult{
		Results:      make([]TokenResult, 0, len(tokens)),
		SuccessCount: response.SuccessCount,
		FailureCount: response.FailureCount,
	}
	for i, resp := range response.Responses {
		tokenResult := TokenResult{
			Token:   tokens[i],
			Success: resp.Success,
		}
		if !resp.Success {
			tokenResult.Reason = classifySendError(resp.Error)
			tokenResult.Err = resp.Error
		}
		result.Results = append(result.Results, tokenResult)
	}

	return result, nil
}
