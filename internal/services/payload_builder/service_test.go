package payload_builder

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/blockchain"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/redstone"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
	"github.com/archon-research/stl/redstone-calldata/internal/testutil"
)

const testMetadata = "0.8.0#redstone-calldata"

func newEncoder(t *testing.T) *blockchain.CallEncoder {
	t.Helper()
	encoder, err := blockchain.NewCallEncoder()
	if err != nil {
		t.Fatalf("NewCallEncoder() error = %v", err)
	}
	return encoder
}

func newTestService(t *testing.T, provider outbound.SignedPackageProvider, metrics outbound.MetricsRecorder) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		Logger:  testutil.DiscardLogger(),
		Metrics: metrics,
	}, provider, redstone.Serializer{}, newEncoder(t))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

// decodeData splits call data into the updatePrice timestamp and the payload.
func decodeData(t *testing.T, data []byte) (uint64, *redstone.Payload) {
	t.Helper()
	call, payload, err := redstone.SplitCallData(data)
	if err != nil {
		t.Fatalf("SplitCallData() error = %v", err)
	}
	if len(call) != blockchain.UpdatePriceCallLength {
		t.Fatalf("call prefix length = %d, want %d", len(call), blockchain.UpdatePriceCallLength)
	}
	ts, err := newEncoder(t).DecodeUpdatePrice(call)
	if err != nil {
		t.Fatalf("DecodeUpdatePrice() error = %v", err)
	}
	return ts, payload
}

func TestNewService(t *testing.T) {
	provider := testutil.StaticProvider(nil, "")
	encoder := newEncoder(t)

	tests := []struct {
		name       string
		config     ServiceConfig
		provider   outbound.SignedPackageProvider
		serializer outbound.PayloadSerializer
		encoder    outbound.CallEncoder
		wantErr    bool
	}{
		{
			name:       "valid with defaults",
			provider:   provider,
			serializer: redstone.Serializer{},
			encoder:    encoder,
		},
		{
			name:       "nil provider",
			serializer: redstone.Serializer{},
			encoder:    encoder,
			wantErr:    true,
		},
		{
			name:     "nil serializer",
			provider: provider,
			encoder:  encoder,
			wantErr:  true,
		},
		{
			name:       "nil encoder",
			provider:   provider,
			serializer: redstone.Serializer{},
			wantErr:    true,
		},
		{
			name:       "negative signers",
			config:     ServiceConfig{UniqueSignersCount: -1},
			provider:   provider,
			serializer: redstone.Serializer{},
			encoder:    encoder,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.config, tt.provider, tt.serializer, tt.encoder)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewService() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if svc.config.DataServiceID != "redstone-primary-prod" {
				t.Errorf("DataServiceID = %q, want redstone-primary-prod", svc.config.DataServiceID)
			}
			if svc.config.UniqueSignersCount != 3 {
				t.Errorf("UniqueSignersCount = %d, want 3", svc.config.UniqueSignersCount)
			}
		})
	}
}

func TestBuildPayloads_BTCExample(t *testing.T) {
	keys := testutil.GenerateSigners(t, 3)
	value := big.NewInt(3701250000000)
	packages := []entity.SignedDataPackage{
		testutil.SignedPackage(t, keys[0], "BTC", 1700000001000, value),
		testutil.SignedPackage(t, keys[1], "BTC", 1700000000000, value),
		testutil.SignedPackage(t, keys[2], "BTC", 1700000001000, value),
	}
	provider := testutil.StaticProvider(packages, testMetadata)
	svc := newTestService(t, provider, nil)

	got, err := svc.BuildPayloads(context.Background(), []entity.FeedID{entity.MustFeedIDFromString("BTC")})
	if err != nil {
		t.Fatalf("BuildPayloads() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 request, got %d", len(got))
	}
	if got[0].Description != "Update RedStone Core price for BTC" {
		t.Errorf("Description = %q", got[0].Description)
	}

	ts, payload := decodeData(t, got[0].Data)
	if ts != 1700000000 {
		t.Errorf("updatePrice timestamp = %d, want 1700000000", ts)
	}

	wantPayload, err := redstone.EncodePayload(packages, testMetadata)
	if err != nil {
		t.Fatalf("EncodePayload() error = %v", err)
	}
	if !bytes.Equal(got[0].Data[blockchain.UpdatePriceCallLength:], wantPayload) {
		t.Error("payload does not match the provider's packages")
	}
	if len(payload.Packages) != 3 || payload.UnsignedMetadata != testMetadata {
		t.Errorf("unexpected payload: %d packages, metadata %q", len(payload.Packages), payload.UnsignedMetadata)
	}

	req := provider.Requests[0]
	if req.DataServiceID != "redstone-primary-prod" || req.UniqueSignersCount != 3 {
		t.Errorf("unexpected provider request: %+v", req)
	}
	if len(req.DataPackageIDs) != 1 || req.DataPackageIDs[0] != "BTC" {
		t.Errorf("DataPackageIDs = %v, want [BTC]", req.DataPackageIDs)
	}
}

func TestBuildPayloads_TimestampIsEarliestTruncated(t *testing.T) {
	key := testutil.GenerateSigners(t, 1)[0]
	value := big.NewInt(1)

	tests := []struct {
		name       string
		timestamps []uint64
		want       uint64
	}{
		{name: "earliest first", timestamps: []uint64{1700000000000, 1700000001000}, want: 1700000000},
		{name: "earliest last", timestamps: []uint64{1700000001000, 1700000000000}, want: 1700000000},
		{name: "truncates milliseconds", timestamps: []uint64{1700000000999}, want: 1700000000},
		{name: "earliest in the middle", timestamps: []uint64{1700000005000, 1700000002500, 1700000009000}, want: 1700000002},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var packages []entity.SignedDataPackage
			for _, ts := range tt.timestamps {
				packages = append(packages, testutil.SignedPackage(t, key, "ETH", ts, value))
			}
			svc := newTestService(t, testutil.StaticProvider(packages, testMetadata), nil)

			got, err := svc.BuildPayloads(context.Background(), []entity.FeedID{entity.MustFeedIDFromString("ETH")})
			if err != nil {
				t.Fatalf("BuildPayloads() error = %v", err)
			}
			if ts, _ := decodeData(t, got[0].Data); ts != tt.want {
				t.Errorf("updatePrice timestamp = %d, want %d", ts, tt.want)
			}
		})
	}
}

func TestBuildPayloads_OrderAndPartition(t *testing.T) {
	keys := testutil.GenerateSigners(t, 2)
	packages := []entity.SignedDataPackage{
		testutil.SignedPackage(t, keys[0], "BTC", 1700000000000, big.NewInt(1)),
		testutil.SignedPackage(t, keys[0], "ETH", 1700000100000, big.NewInt(2)),
		testutil.SignedPackage(t, keys[1], "BTC", 1700000000500, big.NewInt(1)),
		testutil.SignedPackage(t, keys[1], "ETH", 1700000100000, big.NewInt(2)),
	}
	svc := newTestService(t, testutil.StaticProvider(packages, testMetadata), nil)

	ids := []entity.FeedID{entity.MustFeedIDFromString("ETH"), entity.MustFeedIDFromString("BTC")}
	got, err := svc.BuildPayloads(context.Background(), ids)
	if err != nil {
		t.Fatalf("BuildPayloads() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(got))
	}

	wants := []struct {
		feed string
		ts   uint64
	}{
		{feed: "ETH", ts: 1700000100},
		{feed: "BTC", ts: 1700000000},
	}
	for i, want := range wants {
		if got[i].Description != "Update RedStone Core price for "+want.feed {
			t.Errorf("request %d: Description = %q", i, got[i].Description)
		}
		ts, payload := decodeData(t, got[i].Data)
		if ts != want.ts {
			t.Errorf("request %d: timestamp = %d, want %d", i, ts, want.ts)
		}
		if len(payload.Packages) != 2 {
			t.Fatalf("request %d: expected 2 packages, got %d", i, len(payload.Packages))
		}
		for _, p := range payload.Packages {
			if p.DataPackageID != want.feed {
				t.Errorf("request %d: payload carries a %s package", i, p.DataPackageID)
			}
		}
	}
}

func TestBuildPayloads_EmptyInput(t *testing.T) {
	provider := testutil.StaticProvider(nil, "")
	svc := newTestService(t, provider, nil)

	got, err := svc.BuildPayloads(context.Background(), nil)
	if err != nil {
		t.Fatalf("BuildPayloads() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected an empty, non-nil list, got %v", got)
	}
	if provider.CallCount() != 0 {
		t.Errorf("expected no provider call, got %d", provider.CallCount())
	}
}

func TestBuildPayloads_InvalidFeedID(t *testing.T) {
	provider := testutil.StaticProvider(nil, "")
	svc := newTestService(t, provider, nil)

	var invalidUTF8 entity.FeedID
	invalidUTF8[0] = 0xff

	tests := []struct {
		name string
		id   entity.FeedID
	}{
		{name: "all zero", id: entity.FeedID{}},
		{name: "invalid utf8", id: invalidUTF8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []entity.FeedID{entity.MustFeedIDFromString("BTC"), tt.id}
			got, err := svc.BuildPayloads(context.Background(), ids)
			if !errors.Is(err, entity.ErrInvalidFeedID) {
				t.Errorf("expected ErrInvalidFeedID, got %v", err)
			}
			if got != nil {
				t.Errorf("expected no output, got %v", got)
			}
		})
	}
	if provider.CallCount() != 0 {
		t.Errorf("invalid ids must fail before the provider is called, got %d calls", provider.CallCount())
	}
}

func TestBuildPayloads_ProviderError(t *testing.T) {
	providerErr := errors.New("gateway unavailable")
	provider := &testutil.MockPackageProvider{
		FetchFn: func(context.Context, outbound.PackageRequest) (*entity.SignedPackages, error) {
			return nil, providerErr
		},
	}
	metrics := &testutil.MockMetricsRecorder{}
	svc := newTestService(t, provider, metrics)

	got, err := svc.BuildPayloads(context.Background(), []entity.FeedID{entity.MustFeedIDFromString("BTC")})
	if !errors.Is(err, providerErr) {
		t.Errorf("expected provider error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no output, got %v", got)
	}
	if len(metrics.Batches) != 1 || metrics.Batches[0].Status != "error" {
		t.Errorf("expected one error batch record, got %+v", metrics.Batches)
	}
}

func TestBuildPayloads_NilProviderResult(t *testing.T) {
	provider := &testutil.MockPackageProvider{
		FetchFn: func(context.Context, outbound.PackageRequest) (*entity.SignedPackages, error) {
			return nil, nil
		},
	}
	svc := newTestService(t, provider, nil)

	if _, err := svc.BuildPayloads(context.Background(), []entity.FeedID{entity.MustFeedIDFromString("BTC")}); err == nil {
		t.Error("expected error for nil provider result")
	}
}

func TestBuildPayloads_NoPackagesForFeed(t *testing.T) {
	key := testutil.GenerateSigners(t, 1)[0]
	packages := []entity.SignedDataPackage{testutil.SignedPackage(t, key, "BTC", 1700000000000, big.NewInt(1))}
	svc := newTestService(t, testutil.StaticProvider(packages, testMetadata), nil)

	ids := []entity.FeedID{entity.MustFeedIDFromString("BTC"), entity.MustFeedIDFromString("ETH")}
	got, err := svc.BuildPayloads(context.Background(), ids)
	if !errors.Is(err, ErrNoDataPackages) {
		t.Errorf("expected ErrNoDataPackages, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no partial output, got %d requests", len(got))
	}
}

func TestBuildPayloads_TimestampOverflow(t *testing.T) {
	pkg := entity.SignedDataPackage{
		DataPackageID:         "BTC",
		TimestampMilliseconds: 1 << 60,
		DataPoints:            []entity.DataPoint{{DataFeedID: entity.MustFeedIDFromString("BTC"), Value: make([]byte, 32)}},
		Signature:             make([]byte, entity.SignatureLength),
	}
	svc := newTestService(t, testutil.StaticProvider([]entity.SignedDataPackage{pkg}, ""), nil)

	if _, err := svc.BuildPayloads(context.Background(), []entity.FeedID{entity.MustFeedIDFromString("BTC")}); err == nil {
		t.Error("expected error for a timestamp beyond uint48")
	}
}

func TestBuildPayloads_Historical(t *testing.T) {
	key := testutil.GenerateSigners(t, 1)[0]
	packages := []entity.SignedDataPackage{testutil.SignedPackage(t, key, "BTC", 1690000000000, big.NewInt(1))}
	provider := testutil.StaticProvider(packages, testMetadata)

	svc, err := NewService(ServiceConfig{
		DataServiceID:       "redstone-main-demo",
		UniqueSignersCount:  1,
		HistoricalTimestamp: 1690000000000,
		Logger:              testutil.DiscardLogger(),
	}, provider, redstone.Serializer{}, newEncoder(t))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	if _, err := svc.BuildPayloads(context.Background(), []entity.FeedID{entity.MustFeedIDFromString("BTC")}); err != nil {
		t.Fatalf("BuildPayloads() error = %v", err)
	}
	req := provider.Requests[0]
	if req.HistoricalTimestamp != 1690000000000 || req.DataServiceID != "redstone-main-demo" || req.UniqueSignersCount != 1 {
		t.Errorf("unexpected provider request: %+v", req)
	}
}

func TestBuildPayloads_RecordsMetrics(t *testing.T) {
	key := testutil.GenerateSigners(t, 1)[0]
	packages := []entity.SignedDataPackage{testutil.SignedPackage(t, key, "BTC", 1700000000000, big.NewInt(1))}
	metrics := &testutil.MockMetricsRecorder{}
	svc := newTestService(t, testutil.StaticProvider(packages, testMetadata), metrics)

	got, err := svc.BuildPayloads(context.Background(), []entity.FeedID{entity.MustFeedIDFromString("BTC")})
	if err != nil {
		t.Fatalf("BuildPayloads() error = %v", err)
	}
	if len(metrics.Batches) != 1 || metrics.Batches[0].Status != "success" || metrics.Batches[0].FeedCount != 1 {
		t.Errorf("unexpected batch records: %+v", metrics.Batches)
	}
	if metrics.PayloadSizes["BTC"] != len(got[0].Data) {
		t.Errorf("payload size = %d, want %d", metrics.PayloadSizes["BTC"], len(got[0].Data))
	}
}

func TestBuildPayloadsIsolated(t *testing.T) {
	key := testutil.GenerateSigners(t, 1)[0]
	packages := []entity.SignedDataPackage{testutil.SignedPackage(t, key, "BTC", 1700000000000, big.NewInt(1))}
	provider := testutil.StaticProvider(packages, testMetadata)
	svc := newTestService(t, provider, nil)

	ids := []entity.FeedID{
		entity.MustFeedIDFromString("ETH"),
		{},
		entity.MustFeedIDFromString("BTC"),
	}
	results, err := svc.BuildPayloadsIsolated(context.Background(), ids)
	if err != nil {
		t.Fatalf("BuildPayloadsIsolated() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if !errors.Is(results[0].Err, ErrNoDataPackages) || results[0].Request != nil {
		t.Errorf("ETH: expected ErrNoDataPackages, got %+v", results[0])
	}
	if !errors.Is(results[1].Err, entity.ErrInvalidFeedID) {
		t.Errorf("zero id: expected ErrInvalidFeedID, got %v", results[1].Err)
	}
	if results[2].Err != nil || results[2].Request == nil {
		t.Fatalf("BTC: unexpected result %+v", results[2])
	}
	if results[2].FeedID != ids[2] {
		t.Errorf("BTC: FeedID = %s", results[2].FeedID)
	}
	if ts, _ := decodeData(t, results[2].Request.Data); ts != 1700000000 {
		t.Errorf("BTC: timestamp = %d", ts)
	}

	if provider.CallCount() != 1 {
		t.Errorf("expected one shared provider call, got %d", provider.CallCount())
	}
	if ids := provider.Requests[0].DataPackageIDs; len(ids) != 2 || ids[0] != "ETH" || ids[1] != "BTC" {
		t.Errorf("DataPackageIDs = %v, want [ETH BTC]", ids)
	}
}

func TestBuildPayloadsIsolated_ProviderError(t *testing.T) {
	provider := &testutil.MockPackageProvider{
		FetchFn: func(context.Context, outbound.PackageRequest) (*entity.SignedPackages, error) {
			return nil, errors.New("boom")
		},
	}
	svc := newTestService(t, provider, nil)

	if _, err := svc.BuildPayloadsIsolated(context.Background(), []entity.FeedID{entity.MustFeedIDFromString("BTC")}); err == nil {
		t.Error("expected provider error")
	}
}
