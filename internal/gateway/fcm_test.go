package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"firebase.google.com/go/v4/messaging"

	"github.com/campuspush/fanout-engine/internal/domain"
)

type fakeMessagingClient struct {
	sendFn func(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

func (f *fakeMessagingClient) SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	return f.sendFn(ctx, message)
}

func testPayload() domain.Payload {
	return domain.Payload{
		Title: "New notice",
		Body:  "A notice was posted.",
		Data:  map[string]string{"noticeId": "42"},
	}
}

func TestFCMGatewaySendBatchPartialFailure(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("token no longer valid")
	client := &fakeMessagingClient{
		sendFn: func(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
			if len(message.Tokens) != 3 {
				t.Fatalf("tokens = %d, want 3", len(message.Tokens))
			}
			if message.Notification == nil || message.Notification.Title != "New notice" {
				t.Fatalf("notification title not propagated")
			}
			if message.Data["noticeId"] != "42" {
				t.Fatalf("data map not propagated")
			}
			return &messaging.BatchResponse{
				SuccessCount: 2,
				FailureCount: 1,
				Responses: []*messaging.SendResponse{
					{Success: true, MessageID: "m1"},
					{Success: false, Error: sendErr},
					{Success: true, MessageID: "m3"},
				},
			}, nil
		},
	}

	gw, err := NewFCMGatewayWithClient(client)
	if err != nil {
		t.Fatalf("NewFCMGatewayWithClient() error = %v", err)
	}

	result, err := gw.SendBatch(context.Background(), []string{"t1", "t2", "t3"}, testPayload())
	if err != nil {
		t.Fatalf("SendBatch() error = %v", err)
	}

	if result.SuccessCount != 2 || result.FailureCount != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", result.SuccessCount, result.FailureCount)
	}
	if len(result.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(result.Results))
	}
	if !result.Results[0].Success || result.Results[0].Token != "t1" {
		t.Fatalf("result 0 = %+v, want success for t1", result.Results[0])
	}
	if result.Results[1].Success {
		t.Fatal("result 1 should have failed")
	}
	if result.Results[1].Reason != ReasonUnknown {
		t.Fatalf("reason = %s, want unknown for an unclassified error", result.Results[1].Reason)
	}
	if !errors.Is(result.Results[1].Err, sendErr) {
		t.Fatalf("result err = %v, want wrapped send error", result.Results[1].Err)
	}
}

func TestFCMGatewaySendBatchTransportFailure(t *testing.T) {
	t.Parallel()

	client := &fakeMessagingClient{
		sendFn: func(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
			return nil, fmt.Errorf("connection reset")
		},
	}

	gw, err := NewFCMGatewayWithClient(client)
	if err != nil {
		t.Fatalf("NewFCMGatewayWithClient() error = %v", err)
	}

	_, err = gw.SendBatch(context.Background(), []string{"t1"}, testPayload())
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !IsTransport(err) {
		t.Fatalf("IsTransport(%v) = false, want true", err)
	}
}

func TestFCMGatewaySendBatchRejectsOversizedBatch(t *testing.T) {
	t.Parallel()

	gw, err := NewFCMGatewayWithClient(&fakeMessagingClient{
		sendFn: func(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
			t.Fatal("send should not be reached")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("NewFCMGatewayWithClient() error = %v", err)
	}

	tokens := make([]string, ProviderBatchLimit+1)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}

	_, err = gw.SendBatch(context.Background(), tokens, testPayload())
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestFCMGatewaySendBatchEmptyTokens(t *testing.T) {
	t.Parallel()

	gw, err := NewFCMGatewayWithClient(&fakeMessagingClient{
		sendFn: func(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
			t.Fatal("send should not be reached")
			return nil, nil
		},
	})
	if err != nil {
		t.Fatalf("NewFCMGatewayWithClient() error = %v", err)
	}

	result, err := gw.SendBatch(context.Background(), nil, testPayload())
	if err != nil {
		t.Fatalf("SendBatch() error = %v", err)
	}
	if len(result.Results) != 0 {
		t.Fatalf("results = %d, want 0", len(result.Results))
	}
}

func TestReasonCodePermanent(t *testing.T) {
	t.Parallel()

	permanent := []ReasonCode{ReasonUnregistered, ReasonInvalidToken, ReasonThirdPartyAuthErr}
	for _, reason := range permanent {
		if !reason.Permanent() {
			t.Errorf("%s.Permanent() = false, want true", reason)
		}
	}

	transient := []ReasonCode{ReasonUnavailable, ReasonInternal, ReasonQuotaExceeded, ReasonUnknown}
	for _, reason := range transient {
		if reason.Permanent() {
			t.Errorf("%s.Permanent() = true, want false", reason)
		}
	}
}

func TestIsTransport(t *testing.T) {
	t.Parallel()

	if !IsTransport(context.DeadlineExceeded) {
		t.Fatal("deadline exceeded should be a transport failure")
	}
	if !IsTransport(&TransportError{Message: "down"}) {
		t.Fatal("TransportError should be a transport failure")
	}
	if IsTransport(nil) {
		t.Fatal("nil should not be a transport failure")
	}
	if IsTransport(errors.New("some token error")) {
		t.Fatal("plain error should not be a transport failure")
	}
}
