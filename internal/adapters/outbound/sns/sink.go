// Package sns implements the UpdateRequestSink interface using AWS SNS.
//
// A batch of update requests is published as a single JSON array message, so a
// downstream signer or relayer subscribed to the topic receives the same document the
// CLI prints to stdout.
//
// Message Attributes:
//   - feedCount: number of update requests in the message
//   - dataServiceId: the RedStone data service the payloads were built from
//
// FIFO topics (ARN ending in ".fifo") get the data service id as message group and the
// keccak256 of the message body as deduplication id.
//
// For testing, use the memory.Sink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/retry"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

// maxMessageBytes is the SNS message size limit.
const maxMessageBytes = 256 * 1024

// Compile-time check that Sink implements outbound.UpdateRequestSink.
var _ outbound.UpdateRequestSink = (*Sink)(nil)

// SNSPublisher defines the subset of SNS client methods used by Sink.
// This interface allows for easy mocking in tests.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config holds configuration for the SNS sink.
type Config struct {
	// TopicARN is the topic update requests are published to.
	TopicARN string

	// DataServiceID is attached to every message as an attribute.
	DataServiceID string

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each retry.
	BackoffFactor float64

	// Logger is the structured logger for the sink.
	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// Sink publishes update request batches to AWS SNS.
type Sink struct {
	client    SNSPublisher
	config    Config
	logger    *slog.Logger
	closeOnce sync.Once
	closed    bool
	mu        sync.RWMutex
}

// NewSink creates a new SNS sink.
func NewSink(client SNSPublisher, config Config) (*Sink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.TopicARN == "" {
		return nil, errors.New("topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Sink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-sink"),
	}, nil
}

// Write publishes requests as one JSON array message.
func (s *Sink) Write(ctx context.Context, requests []entity.UpdateRequest) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errors.New("sink is closed")
	}
	s.mu.RUnlock()

	if requests == nil {
		requests = []entity.UpdateRequest{}
	}
	body, err := json.Marshal(requests)
	if err != nil {
		return fmt.Errorf("failed to marshal update requests: %w", err)
	}
	if len(body) > maxMessageBytes {
		return fmt.Errorf("message of %d bytes exceeds the SNS limit of %d bytes", len(body), maxMessageBytes)
	}

	attributes := map[string]types.MessageAttributeValue{
		"feedCount": {
			DataType:    aws.String("Number"),
			StringValue: aws.String(strconv.Itoa(len(requests))),
		},
	}
	if s.config.DataServiceID != "" {
		attributes["dataServiceId"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.config.DataServiceID),
		}
	}

	input := &sns.PublishInput{
		TopicArn:          aws.String(s.config.TopicARN),
		Message:           aws.String(string(body)),
		MessageAttributes: attributes,
	}
	if strings.HasSuffix(s.config.TopicARN, ".fifo") {
		group := s.config.DataServiceID
		if group == "" {
			group = "redstone"
		}
		input.MessageGroupId = aws.String(group)
		input.MessageDeduplicationId = aws.String(crypto.Keccak256Hash(body).Hex())
	}

	return s.publishWithRetry(ctx, input, len(requests))
}

// publishWithRetry attempts to publish with exponential backoff on transient failures.
func (s *Sink) publishWithRetry(ctx context.Context, input *sns.PublishInput, feedCount int) error {
	policy := retry.Policy{
		MaxRetries:     s.config.MaxRetries,
		InitialBackoff: s.config.InitialBackoff,
		MaxBackoff:     s.config.MaxBackoff,
		Multiplier:     s.config.BackoffFactor,
	}
	notify := func(attempt int, err error, wait time.Duration) {
		s.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.MaxRetries,
			"backoff", wait,
			"error", err,
			"feedCount", feedCount,
		)
	}

	err := retry.Do(ctx, policy, notify, func(ctx context.Context) error {
		out, err := s.client.Publish(ctx, input)
		if err != nil {
			if !isRetryableError(err) {
				return retry.Permanent(err)
			}
			return err
		}
		s.logger.Info("published update requests",
			"feedCount", feedCount,
			"messageId", aws.ToString(out.MessageId),
		)
		return nil
	})
	if err != nil {
		s.logger.Error("request failed", "error", err, "feedCount", feedCount)
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

// isRetryableError determines if an error should trigger a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var throttleErr *types.ThrottledException
	if errors.As(err, &throttleErr) {
		return true
	}
	var kmsThrottleErr *types.KMSThrottlingException
	if errors.As(err, &kmsThrottleErr) {
		return true
	}

	// Client faults (invalid parameters, missing topic, denied access) fail the same way
	// on every attempt.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorFault() != smithy.FaultClient
	}

	// Unknown errors (network issues, etc.) are retried.
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.logger.Info("SNS sink closed")
	})
	return nil
}
