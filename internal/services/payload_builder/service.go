// Package payload_builder turns RedStone feed ids into ready-to-send RedStone Core price
// update transactions.
//
// A batch is built from a single provider round-trip. For every feed the call data is
// updatePrice(earliestPackageTimestamp / 1000) immediately followed by the RedStone
// payload carrying that feed's signed packages.
package payload_builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/blockchain"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/inbound"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/archon-research/stl/redstone-calldata/internal/services/payload_builder"

	statusSuccess = "success"
	statusError   = "error"
)

// ErrNoDataPackages is returned when the provider answered without any package for a
// requested feed.
var ErrNoDataPackages = errors.New("no data packages for feed")

// Compile-time check that Service implements inbound.PayloadBuilder.
var _ inbound.PayloadBuilder = (*Service)(nil)

// ServiceConfig holds configuration for the payload builder.
type ServiceConfig struct {
	// DataServiceID selects the RedStone node pool.
	DataServiceID string

	// UniqueSignersCount is the number of distinct signers required per feed.
	UniqueSignersCount int

	// HistoricalTimestamp, when non-zero, builds payloads from the packages captured at
	// this time (ms since epoch) instead of the latest ones.
	HistoricalTimestamp uint64

	// Logger is the structured logger for the service.
	Logger *slog.Logger

	// Metrics records batch outcomes (optional).
	Metrics outbound.MetricsRecorder
}

// ServiceConfigDefaults returns a config with default values.
func ServiceConfigDefaults() ServiceConfig {
	return ServiceConfig{
		DataServiceID:      "redstone-primary-prod",
		UniqueSignersCount: 3,
		Logger:             slog.Default(),
	}
}

// Service builds price update transactions for RedStone Core oracles.
type Service struct {
	config     ServiceConfig
	provider   outbound.SignedPackageProvider
	serializer outbound.PayloadSerializer
	encoder    outbound.CallEncoder
	logger     *slog.Logger
}

// NewService creates a new payload builder.
func NewService(
	config ServiceConfig,
	provider outbound.SignedPackageProvider,
	serializer outbound.PayloadSerializer,
	encoder outbound.CallEncoder,
) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if serializer == nil {
		return nil, fmt.Errorf("serializer cannot be nil")
	}
	if encoder == nil {
		return nil, fmt.Errorf("encoder cannot be nil")
	}

	defaults := ServiceConfigDefaults()
	if config.DataServiceID == "" {
		config.DataServiceID = defaults.DataServiceID
	}
	if config.UniqueSignersCount == 0 {
		config.UniqueSignersCount = defaults.UniqueSignersCount
	}
	if config.UniqueSignersCount < 0 {
		return nil, fmt.Errorf("unique signers count must be positive, got %d", config.UniqueSignersCount)
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Service{
		config:     config,
		provider:   provider,
		serializer: serializer,
		encoder:    encoder,
		logger:     config.Logger.With("component", "payload-builder", "provider", provider.Name()),
	}, nil
}

// BuildPayloads returns one update request per feed id, in input order. Any failure
// aborts the batch and no request is returned.
func (s *Service) BuildPayloads(ctx context.Context, feedIDs []entity.FeedID) ([]entity.UpdateRequest, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "payload_builder.BuildPayloads", len(feedIDs))
	defer span.End()

	requests, err := s.buildPayloads(ctx, feedIDs)
	s.recordBatch(ctx, len(feedIDs), start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "building payloads failed")
		s.logger.Error("building payloads failed", "feeds", len(feedIDs), "error", err)
		return nil, err
	}

	s.logger.Info("built payloads", "feeds", len(requests), "duration", time.Since(start))
	return requests, nil
}

func (s *Service) buildPayloads(ctx context.Context, feedIDs []entity.FeedID) ([]entity.UpdateRequest, error) {
	feeds := make([]string, len(feedIDs))
	for i, id := range feedIDs {
		feed, err := id.Text()
		if err != nil {
			return nil, fmt.Errorf("feed id %d: %w", i, err)
		}
		feeds[i] = feed
	}
	if len(feeds) == 0 {
		return []entity.UpdateRequest{}, nil
	}

	signed, err := s.fetch(ctx, feeds)
	if err != nil {
		return nil, err
	}

	requests := make([]entity.UpdateRequest, 0, len(feeds))
	for _, feed := range feeds {
		req, err := s.buildFeed(ctx, feed, signed)
		if err != nil {
			return nil, fmt.Errorf("building payload for %s: %w", feed, err)
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// BuildPayloadsIsolated shares one provider round-trip across the batch but reports
// per-feed failures in the returned results. A provider failure is returned as err.
func (s *Service) BuildPayloadsIsolated(ctx context.Context, feedIDs []entity.FeedID) ([]entity.FeedResult, error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "payload_builder.BuildPayloadsIsolated", len(feedIDs))
	defer span.End()

	results := make([]entity.FeedResult, len(feedIDs))
	feeds := make([]string, len(feedIDs))
	var valid []string
	for i, id := range feedIDs {
		results[i].FeedID = id
		feed, err := id.Text()
		if err != nil {
			results[i].Err = err
			continue
		}
		feeds[i] = feed
		valid = append(valid, feed)
	}

	if len(valid) == 0 {
		s.recordBatch(ctx, len(feedIDs), start, nil)
		return results, nil
	}

	signed, err := s.fetch(ctx, valid)
	if err != nil {
		s.recordBatch(ctx, len(feedIDs), start, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetching signed packages failed")
		return nil, err
	}

	failed := 0
	for i, feed := range feeds {
		if results[i].Err != nil {
			failed++
			continue
		}
		req, err := s.buildFeed(ctx, feed, signed)
		if err != nil {
			results[i].Err = fmt.Errorf("building payload for %s: %w", feed, err)
			failed++
			s.logger.Warn("feed failed", "feed", feed, "error", err)
			continue
		}
		results[i].Request = &req
	}

	span.SetAttributes(attribute.Int("feeds.failed", failed))
	s.recordBatch(ctx, len(feedIDs), start, nil)
	s.logger.Info("built payloads", "feeds", len(feedIDs), "failed", failed, "duration", time.Since(start))
	return results, nil
}

// fetch performs the single provider round-trip for a batch.
func (s *Service) fetch(ctx context.Context, feeds []string) (*entity.SignedPackages, error) {
	s.logger.Debug("fetching signed packages",
		"dataServiceId", s.config.DataServiceID,
		"uniqueSigners", s.config.UniqueSignersCount,
		"feeds", feeds,
	)

	signed, err := s.provider.FetchSignedPackages(ctx, outbound.PackageRequest{
		DataServiceID:       s.config.DataServiceID,
		DataPackageIDs:      feeds,
		UniqueSignersCount:  s.config.UniqueSignersCount,
		HistoricalTimestamp: s.config.HistoricalTimestamp,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching signed packages: %w", err)
	}
	if signed == nil {
		return nil, fmt.Errorf("fetching signed packages: provider %s returned no result", s.provider.Name())
	}
	return signed, nil
}

// buildFeed assembles updatePrice(ts) || payload for one feed.
func (s *Service) buildFeed(ctx context.Context, feed string, signed *entity.SignedPackages) (entity.UpdateRequest, error) {
	packages := signed.ForFeed(feed)
	timestampMs, ok := entity.EarliestTimestamp(packages)
	if !ok {
		return entity.UpdateRequest{}, ErrNoDataPackages
	}

	call, err := s.encoder.EncodeUpdatePrice(timestampMs / 1000)
	if err != nil {
		return entity.UpdateRequest{}, fmt.Errorf("encoding updatePrice: %w", err)
	}
	payload, err := s.serializer.Serialize(packages, signed.UnsignedMetadata)
	if err != nil {
		return entity.UpdateRequest{}, fmt.Errorf("serializing payload: %w", err)
	}

	data := blockchain.Concat(call, payload)
	if s.config.Metrics != nil {
		s.config.Metrics.RecordPayloadSize(ctx, feed, len(data))
	}
	s.logger.Debug("built payload",
		"feed", feed,
		"packages", len(packages),
		"timestampMs", timestampMs,
		"bytes", len(data),
	)
	return entity.NewUpdateRequest(feed, data), nil
}

func (s *Service) startSpan(ctx context.Context, name string, feedCount int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("redstone.data_service_id", s.config.DataServiceID),
			attribute.Int("redstone.unique_signers", s.config.UniqueSignersCount),
			attribute.Int("feeds.count", feedCount),
		),
	)
}

func (s *Service) recordBatch(ctx context.Context, feedCount int, start time.Time, err error) {
	if s.config.Metrics == nil {
		return
	}
	status := statusSuccess
	if err != nil {
		status = statusError
	}
	s.config.Metrics.RecordBatch(ctx, feedCount, time.Since(start), status)
}
