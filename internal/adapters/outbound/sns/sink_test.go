package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/testutil"
)

// mockSNSClient implements SNSPublisher for testing.
type mockSNSClient struct {
	publishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       []*sns.PublishInput
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls = append(m.calls, params)
	if m.publishFunc != nil {
		return m.publishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{
		MessageId: aws.String("test-message-id"),
	}, nil
}

const (
	testTopicARN     = "arn:aws:sns:us-east-1:123456789:redstone-updates"
	testFIFOTopicARN = "arn:aws:sns:us-east-1:123456789:redstone-updates.fifo"
)

func testRequests() []entity.UpdateRequest {
	return []entity.UpdateRequest{
		entity.NewUpdateRequest("BTC", []byte{0x01, 0x02}),
		entity.NewUpdateRequest("ETH", []byte{0x03}),
	}
}

func newTestSink(t *testing.T, client SNSPublisher, topic string) *Sink {
	t.Helper()
	sink, err := NewSink(client, Config{
		TopicARN:       topic,
		DataServiceID:  "redstone-primary-prod",
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Logger:         testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	return sink
}

func TestNewSink_RequiresClient(t *testing.T) {
	_, err := NewSink(nil, Config{TopicARN: testTopicARN})
	if err == nil || err.Error() != "sns client is required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewSink_RequiresTopicARN(t *testing.T) {
	_, err := NewSink(&mockSNSClient{}, Config{})
	if err == nil || err.Error() != "topic ARN is required" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewSink_AppliesDefaults(t *testing.T) {
	sink, err := NewSink(&mockSNSClient{}, Config{TopicARN: testTopicARN})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", sink.config.MaxRetries)
	}
	if sink.config.InitialBackoff != 100*time.Millisecond {
		t.Errorf("expected InitialBackoff=100ms, got %v", sink.config.InitialBackoff)
	}
	if sink.config.MaxBackoff != 5*time.Second {
		t.Errorf("expected MaxBackoff=5s, got %v", sink.config.MaxBackoff)
	}
	if sink.config.BackoffFactor != 2.0 {
		t.Errorf("expected BackoffFactor=2.0, got %v", sink.config.BackoffFactor)
	}
}

func TestWrite_Success(t *testing.T) {
	client := &mockSNSClient{}
	sink := newTestSink(t, client, testTopicARN)

	if err := sink.Write(context.Background(), testRequests()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(client.calls))
	}

	call := client.calls[0]
	if *call.TopicArn != testTopicARN {
		t.Errorf("unexpected topic ARN: %s", *call.TopicArn)
	}
	if call.MessageGroupId != nil {
		t.Errorf("standard topics must not get a MessageGroupId, got %s", *call.MessageGroupId)
	}

	var decoded []entity.UpdateRequest
	if err := json.Unmarshal([]byte(*call.Message), &decoded); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Description != "Update RedStone Core price for BTC" {
		t.Errorf("unexpected message: %s", *call.Message)
	}

	if got := aws.ToString(call.MessageAttributes["feedCount"].StringValue); got != "2" {
		t.Errorf("feedCount = %q, want 2", got)
	}
	if got := aws.ToString(call.MessageAttributes["dataServiceId"].StringValue); got != "redstone-primary-prod" {
		t.Errorf("dataServiceId = %q", got)
	}
}

func TestWrite_FIFOTopic(t *testing.T) {
	client := &mockSNSClient{}
	sink := newTestSink(t, client, testFIFOTopicARN)

	for range 2 {
		if err := sink.Write(context.Background(), testRequests()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	first, second := client.calls[0], client.calls[1]
	if aws.ToString(first.MessageGroupId) != "redstone-primary-prod" {
		t.Errorf("MessageGroupId = %q", aws.ToString(first.MessageGroupId))
	}
	if first.MessageDeduplicationId == nil || aws.ToString(first.MessageDeduplicationId) != aws.ToString(second.MessageDeduplicationId) {
		t.Error("identical batches must share a deduplication id")
	}
}

func TestWrite_EmptyBatch(t *testing.T) {
	client := &mockSNSClient{}
	sink := newTestSink(t, client, testTopicARN)

	if err := sink.Write(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := *client.calls[0].Message; got != "[]" {
		t.Errorf("Message = %q, want []", got)
	}
}

func TestWrite_RetryOnThrottling(t *testing.T) {
	attempts := 0
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			attempts++
			if attempts < 3 {
				return nil, &types.ThrottledException{Message: aws.String("throttled")}
			}
			return &sns.PublishOutput{MessageId: aws.String("msg")}, nil
		},
	}
	sink := newTestSink(t, client, testTopicARN)

	if err := sink.Write(context.Background(), testRequests()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestWrite_RetriesExhausted(t *testing.T) {
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, &types.ThrottledException{Message: aws.String("throttled")}
		},
	}
	sink := newTestSink(t, client, testTopicARN)

	err := sink.Write(context.Background(), testRequests())
	var throttled *types.ThrottledException
	if !errors.As(err, &throttled) {
		t.Errorf("expected wrapped ThrottledException, got %v", err)
	}
	if len(client.calls) != 4 {
		t.Errorf("expected 4 attempts (1 + 3 retries), got %d", len(client.calls))
	}
}

func TestWrite_NonRetryable(t *testing.T) {
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, &types.InvalidParameterException{Message: aws.String("bad")}
		},
	}
	sink := newTestSink(t, client, testTopicARN)

	if err := sink.Write(context.Background(), testRequests()); err == nil {
		t.Fatal("expected error")
	}
	if len(client.calls) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(client.calls))
	}
}

func TestWrite_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &mockSNSClient{
		publishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			cancel()
			return nil, &types.ThrottledException{Message: aws.String("throttled")}
		},
	}
	sink := newTestSink(t, client, testTopicARN)

	err := sink.Write(ctx, testRequests())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWrite_AfterClose(t *testing.T) {
	client := &mockSNSClient{}
	sink := newTestSink(t, client, testTopicARN)

	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := sink.Write(context.Background(), testRequests()); err == nil {
		t.Error("expected error after close")
	}
	if len(client.calls) != 0 {
		t.Errorf("expected no publish after close, got %d", len(client.calls))
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: false},
		{name: "throttled", err: &types.ThrottledException{Message: aws.String("throttled")}, want: true},
		{name: "internal", err: &types.InternalErrorException{Message: aws.String("internal")}, want: true},
		{name: "invalid parameter", err: &types.InvalidParameterException{Message: aws.String("bad")}, want: false},
		{name: "not found", err: &types.NotFoundException{Message: aws.String("missing")}, want: false},
		{name: "authorization", err: &types.AuthorizationErrorException{Message: aws.String("denied")}, want: false},
		{name: "kms throttled", err: &types.KMSThrottlingException{Message: aws.String("slow down")}, want: true},
		{name: "generic client fault", err: &smithy.GenericAPIError{Code: "ValidationError", Fault: smithy.FaultClient}, want: false},
		{name: "generic server fault", err: &smithy.GenericAPIError{Code: "ServiceUnavailable", Fault: smithy.FaultServer}, want: true},
		{name: "unknown", err: errors.New("connection reset"), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError() = %v, want %v", got, tt.want)
			}
		})
	}
}
