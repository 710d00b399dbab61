// Package redstone fetches signed data packages from RedStone oracle gateways.
//
// All configured gateways are queried concurrently for the whole batch of feeds. The
// first gateway that answers with enough distinct signers for every requested feed
// wins; the remaining requests are cancelled.
package redstone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/httpclient"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/retry"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

const (
	tracerName = "github.com/archon-research/stl/redstone-calldata/internal/adapters/outbound/redstone"

	providerName = "redstone-gateway"
)

var (
	// ErrInsufficientSigners is returned when a feed has fewer valid packages from
	// distinct signers than requested.
	ErrInsufficientSigners = errors.New("insufficient unique signers")

	// ErrAllGatewaysFailed is returned when no gateway produced a usable response.
	ErrAllGatewaysFailed = errors.New("all redstone gateways failed")
)

// DefaultGatewayURLs are the public RedStone cache gateways.
var DefaultGatewayURLs = []string{
	"https://oracle-gateway-1.a.redstone.finance",
	"https://oracle-gateway-2.a.redstone.finance",
}

// Compile-time check that Client implements outbound.SignedPackageProvider.
var _ outbound.SignedPackageProvider = (*Client)(nil)

// ClientConfig holds configuration for the gateway client.
type ClientConfig struct {
	// GatewayURLs are queried concurrently; the first usable response wins.
	GatewayURLs []string

	// MetadataVersion and ClientName form the unsigned metadata "<version>#<client>".
	MetadataVersion string
	ClientName      string

	// DefaultDecimals scales numeric values that carry no decimals of their own.
	DefaultDecimals int32

	// Timeout bounds a single gateway request.
	Timeout time.Duration

	// RequestsPerSecond limits requests per gateway. Non-positive disables limiting.
	RequestsPerSecond float64

	// MaxRetries is the number of extra attempts per gateway on 429, 5xx and network
	// errors. Zero sends each request once.
	MaxRetries int

	// InitialBackoff and MaxBackoff bound the wait between retries.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// HTTPClient overrides the underlying HTTP client (optional).
	HTTPClient *http.Client

	// Logger is the structured logger for the client.
	Logger *slog.Logger
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		GatewayURLs:       DefaultGatewayURLs,
		MetadataVersion:   "0.8.0",
		ClientName:        "redstone-calldata",
		DefaultDecimals:   8,
		Timeout:           20 * time.Second,
		RequestsPerSecond: 10,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		Logger:            slog.Default(),
	}
}

// Client fetches signed data packages from RedStone gateways.
type Client struct {
	gateways []*gateway
	config   ClientConfig
	logger   *slog.Logger
}

type gateway struct {
	baseURL string
	http    *httpclient.Client
}

// NewClient creates a new gateway client.
func NewClient(config ClientConfig) (*Client, error) {
	defaults := ClientConfigDefaults()
	if len(config.GatewayURLs) == 0 {
		config.GatewayURLs = defaults.GatewayURLs
	}
	if config.MetadataVersion == "" {
		config.MetadataVersion = defaults.MetadataVersion
	}
	if config.ClientName == "" {
		config.ClientName = defaults.ClientName
	}
	if config.DefaultDecimals == 0 {
		config.DefaultDecimals = defaults.DefaultDecimals
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.DefaultDecimals < 0 {
		return nil, fmt.Errorf("default decimals must not be negative, got %d", config.DefaultDecimals)
	}
	if config.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", config.MaxRetries)
	}

	logger := config.Logger.With("component", "redstone-client")

	httpConfig := httpclient.Config{
		Timeout:           config.Timeout,
		RequestsPerSecond: config.RequestsPerSecond,
		Burst:             1,
		Retry: retry.Policy{
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
			Multiplier:     2,
		},
		UserAgent: config.ClientName,
	}

	gateways := make([]*gateway, 0, len(config.GatewayURLs))
	for _, raw := range config.GatewayURLs {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid gateway URL %q", raw)
		}
		gateways = append(gateways, &gateway{
			baseURL: strings.TrimRight(u.String(), "/"),
			http:    httpclient.NewClient(httpConfig, config.HTTPClient, logger.With("gateway", u.Host)),
		})
	}

	return &Client{
		gateways: gateways,
		config:   config,
		logger:   logger,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return providerName
}

// UnsignedMetadata returns the metadata string embedded in every payload.
func (c *Client) UnsignedMetadata() string {
	return c.config.MetadataVersion + "#" + c.config.ClientName
}

// FetchSignedPackages fetches packages for all requested feeds in one round-trip and
// keeps the first UniqueSignersCount packages from distinct signers per feed.
func (c *Client) FetchSignedPackages(ctx context.Context, req outbound.PackageRequest) (*entity.SignedPackages, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "redstone.fetchSignedPackages",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("redstone.data_service_id", req.DataServiceID),
			attribute.Int("redstone.feed_count", len(req.DataPackageIDs)),
			attribute.Int("redstone.unique_signers", req.UniqueSignersCount),
			attribute.Int64("redstone.historical_timestamp", int64(req.HistoricalTimestamp)),
		),
	)
	defer span.End()

	packages, err := c.fetchFromGateways(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetching signed packages failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("redstone.package_count", len(packages)))
	return &entity.SignedPackages{
		Packages:         packages,
		UnsignedMetadata: c.UnsignedMetadata(),
	}, nil
}

func validateRequest(req outbound.PackageRequest) error {
	if req.DataServiceID == "" {
		return errors.New("data service id is required")
	}
	if len(req.DataPackageIDs) == 0 {
		return errors.New("at least one data package id is required")
	}
	if req.UniqueSignersCount <= 0 {
		return fmt.Errorf("unique signers count must be positive, got %d", req.UniqueSignersCount)
	}
	return nil
}

type gatewayResult struct {
	gateway  string
	packages []entity.SignedDataPackage
	err      error
}

// fetchFromGateways queries every gateway concurrently and returns the first usable
// answer, cancelling the others.
func (c *Client) fetchFromGateways(ctx context.Context, req outbound.PackageRequest) ([]entity.SignedDataPackage, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan gatewayResult, len(c.gateways))
	for _, gw := range c.gateways {
		go func(gw *gateway) {
			packages, err := c.fetchFromGateway(ctx, gw, req)
			results <- gatewayResult{gateway: gw.baseURL, packages: packages, err: err}
		}(gw)
	}

	var errs []error
	for range c.gateways {
		res := <-results
		if res.err == nil {
			c.logger.Debug("fetched signed packages",
				"gateway", res.gateway,
				"dataServiceId", req.DataServiceID,
				"feeds", len(req.DataPackageIDs),
				"packages", len(res.packages),
			)
			return res.packages, nil
		}
		c.logger.Warn("gateway request failed", "gateway", res.gateway, "error", res.err)
		errs = append(errs, fmt.Errorf("%s: %w", res.gateway, res.err))
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("%w: %w", ErrAllGatewaysFailed, errors.Join(errs...))
}

func (c *Client) fetchFromGateway(ctx context.Context, gw *gateway, req outbound.PackageRequest) ([]entity.SignedDataPackage, error) {
	var resp dataPackagesResponse
	if err := gw.http.GetJSON(ctx, packagesURL(gw.baseURL, req), &resp); err != nil {
		return nil, err
	}
	return c.selectPackages(resp, req)
}

// packagesURL builds the latest or historical endpoint URL for req.
func packagesURL(baseURL string, req outbound.PackageRequest) string {
	service := url.PathEscape(req.DataServiceID)
	if req.HistoricalTimestamp > 0 {
		return fmt.Sprintf("%s/data-packages/historical/%s/%d", baseURL, service, req.HistoricalTimestamp)
	}
	return fmt.Sprintf("%s/data-packages/latest/%s", baseURL, service)
}

// selectPackages picks, per requested feed, the first UniqueSignersCount valid
// packages with distinct signers, preserving gateway order.
func (c *Client) selectPackages(resp dataPackagesResponse, req outbound.PackageRequest) ([]entity.SignedDataPackage, error) {
	var selected []entity.SignedDataPackage
	seenFeeds := make(map[string]bool, len(req.DataPackageIDs))

	for _, id := range req.DataPackageIDs {
		if seenFeeds[id] {
			continue
		}
		seenFeeds[id] = true

		signers := make(map[common.Address]bool, req.UniqueSignersCount)
		var picked []entity.SignedDataPackage
		for _, raw := range resp[id] {
			if len(picked) == req.UniqueSignersCount {
				break
			}
			if raw.IsSignatureValid != nil && !*raw.IsSignatureValid {
				continue
			}
			pkg, err := toSignedDataPackage(id, raw, c.config.DefaultDecimals)
			if err != nil {
				c.logger.Warn("skipping malformed data package",
					"dataPackageId", id,
					"signer", raw.SignerAddress,
					"error", err,
				)
				continue
			}
			if signers[pkg.SignerAddress] {
				continue
			}
			signers[pkg.SignerAddress] = true
			picked = append(picked, pkg)
		}

		if len(picked) < req.UniqueSignersCount {
			return nil, fmt.Errorf("%w for %s: need %d, got %d",
				ErrInsufficientSigners, id, req.UniqueSignersCount, len(picked))
		}
		selected = append(selected, picked...)
	}
	return selected, nil
}
