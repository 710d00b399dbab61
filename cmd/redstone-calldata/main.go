// Package main provides a CLI that builds RedStone Core price update transactions.
//
// Usage:
//
//	redstone-calldata [flags] '<json array of 0x-prefixed 32-byte feed ids>'
//	redstone-calldata [flags] -oracles 0xOracle1,0xOracle2 -rpc-url https://...
//
// The positional argument "-" reads the JSON array from stdin. The result is printed
// to stdout as an indented JSON array of {description, data} objects, or published to
// SNS with -sink sns. Logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/archon-research/stl/redstone-calldata/internal/adapters/outbound/redstone"
	snsadapter "github.com/archon-research/stl/redstone-calldata/internal/adapters/outbound/sns"
	"github.com/archon-research/stl/redstone-calldata/internal/adapters/outbound/stdout"
	"github.com/archon-research/stl/redstone-calldata/internal/adapters/outbound/telemetry"
	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/blockchain"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/blockchain/multicall"
	"github.com/archon-research/stl/redstone-calldata/internal/pkg/env"
	rsprotocol "github.com/archon-research/stl/redstone-calldata/internal/pkg/redstone"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/inbound"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
	"github.com/archon-research/stl/redstone-calldata/internal/services/payload_builder"
)

const (
	serviceName = "redstone-calldata"

	sinkStdout = "stdout"
	sinkSNS    = "sns"
)

// Build-time variables - can be set via ldflags, otherwise populated from Go's build info.
var (
	GitCommit string
	GitBranch string
	BuildTime string
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if GitCommit == "" {
					GitCommit = setting.Value
				}
			case "vcs.time":
				if BuildTime == "" {
					BuildTime = setting.Value
				}
			}
		}
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

type cliConfig struct {
	feedInput     string
	dataServiceID string
	uniqueSigners int
	gateways      []string
	historicalMs  uint64
	oracles       []common.Address
	rpcURL        string
	sink          string
	snsTopicARN   string
	otlpEndpoint  string
	environment   string
	verbose       bool
	isolated      bool
	showVersion   bool
}

func parseFlags(args []string) (cliConfig, error) {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	dataServiceID := fs.String("data-service-id", "", "RedStone data service id (default $REDSTONE_DATA_SERVICE_ID or redstone-primary-prod)")
	signers := fs.Int("signers", 0, "Required unique signers per feed (default $REDSTONE_UNIQUE_SIGNERS or 3)")
	gateways := fs.String("gateways", "", "Comma-separated RedStone gateway URLs (default $REDSTONE_GATEWAYS or the public gateways)")
	at := fs.Uint64("at", 0, "Build from historical packages captured at this time (ms since epoch)")
	oracles := fs.String("oracles", "", "Comma-separated RedStone Core oracle addresses to read feed ids from")
	rpcURL := fs.String("rpc-url", "", "Ethereum JSON-RPC endpoint used with -oracles (default $ETH_RPC_URL)")
	sink := fs.String("sink", sinkStdout, "Output sink: stdout or sns")
	snsTopicARN := fs.String("sns-topic-arn", "", "SNS topic ARN for -sink sns (default $SNS_TOPIC_ARN)")
	envFile := fs.String("env-file", "", "Load environment variables from this dotenv file")
	verbose := fs.Bool("verbose", false, "Enable verbose logging")
	isolated := fs.Bool("isolated", false, "Report per-feed failures instead of aborting the batch")
	showVersion := fs.Bool("version", false, "Show version information and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] '<json array of feed ids>' | -\n\nFlags:\n", serviceName)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}

	cfg := cliConfig{
		historicalMs: *at,
		sink:         *sink,
		verbose:      *verbose,
		isolated:     *isolated,
		showVersion:  *showVersion,
	}
	if cfg.showVersion {
		return cfg, nil
	}

	if *envFile != "" {
		if err := env.Load(*envFile, true); err != nil {
			return cliConfig{}, err
		}
	}

	switch fs.NArg() {
	case 0:
	case 1:
		cfg.feedInput = fs.Arg(0)
	default:
		return cliConfig{}, fmt.Errorf("expected one JSON array argument, got %d arguments", fs.NArg())
	}

	cfg.dataServiceID = *dataServiceID
	if cfg.dataServiceID == "" {
		cfg.dataServiceID = env.Get("REDSTONE_DATA_SERVICE_ID", payload_builder.ServiceConfigDefaults().DataServiceID)
	}

	cfg.uniqueSigners = *signers
	if cfg.uniqueSigners == 0 {
		n, err := env.GetInt("REDSTONE_UNIQUE_SIGNERS", payload_builder.ServiceConfigDefaults().UniqueSignersCount)
		if err != nil {
			return cliConfig{}, err
		}
		cfg.uniqueSigners = n
	}
	if cfg.uniqueSigners <= 0 {
		return cliConfig{}, fmt.Errorf("--signers must be positive, got %d", cfg.uniqueSigners)
	}

	cfg.gateways = env.SplitList(*gateways)
	if len(cfg.gateways) == 0 {
		cfg.gateways = env.GetList("REDSTONE_GATEWAYS", redstone.DefaultGatewayURLs)
	}

	oracleAddrs, err := parseAddresses(env.SplitList(*oracles))
	if err != nil {
		return cliConfig{}, err
	}
	cfg.oracles = oracleAddrs

	cfg.rpcURL = *rpcURL
	if cfg.rpcURL == "" {
		cfg.rpcURL = env.Get("ETH_RPC_URL", "")
	}
	if len(cfg.oracles) > 0 && cfg.rpcURL == "" {
		return cliConfig{}, fmt.Errorf("RPC URL not provided for --oracles (use --rpc-url flag or ETH_RPC_URL env var)")
	}

	if cfg.feedInput == "" && len(cfg.oracles) == 0 {
		return cliConfig{}, fmt.Errorf("feed ids required: pass a JSON array argument or --oracles")
	}

	switch cfg.sink {
	case sinkStdout:
	case sinkSNS:
		cfg.snsTopicARN = *snsTopicARN
		if cfg.snsTopicARN == "" {
			cfg.snsTopicARN = env.Get("SNS_TOPIC_ARN", "")
		}
		if cfg.snsTopicARN == "" {
			return cliConfig{}, fmt.Errorf("SNS topic ARN not provided (use --sns-topic-arn flag or SNS_TOPIC_ARN env var)")
		}
	default:
		return cliConfig{}, fmt.Errorf("unknown sink: %s (must be 'stdout' or 'sns')", cfg.sink)
	}

	cfg.otlpEndpoint = env.Get("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.environment = env.Get("ENVIRONMENT", "development")

	return cfg, nil
}

// parseFeedIDs decodes a JSON array of 0x-prefixed 32-byte hex strings.
func parseFeedIDs(input string) ([]entity.FeedID, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("feed ids must be a JSON array")
	}
	var ids []entity.FeedID
	if err := json.Unmarshal([]byte(trimmed), &ids); err != nil {
		return nil, fmt.Errorf("parsing feed ids: %w", err)
	}
	if ids == nil {
		ids = []entity.FeedID{}
	}
	return ids, nil
}

func parseAddresses(items []string) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(items))
	for _, item := range items {
		if !common.IsHexAddress(item) {
			return nil, fmt.Errorf("invalid oracle address: %q", item)
		}
		addrs = append(addrs, common.HexToAddress(item))
	}
	return addrs, nil
}

// readFeedInput returns the JSON argument, reading stdin when it is "-".
func readFeedInput(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading feed ids from stdin: %w", err)
	}
	return string(data), nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "%s\n", serviceName)
	fmt.Fprintf(w, "  Commit:     %s\n", GitCommit)
	fmt.Fprintf(w, "  Branch:     %s\n", GitBranch)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
}

func run(ctx context.Context, args []string, stdin io.Reader, out, errOut io.Writer) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if cfg.showVersion {
		printVersion(out)
		return nil
	}

	logLevel := env.ParseLogLevel(slog.LevelInfo)
	if cfg.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Debug("starting "+serviceName,
		"commit", GitCommit,
		"dataServiceId", cfg.dataServiceID,
		"uniqueSigners", cfg.uniqueSigners,
		"sink", cfg.sink,
	)

	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	feedIDs, err := collectFeedIDs(ctx, cfg, stdin, logger)
	if err != nil {
		return err
	}

	service, err := newService(cfg, logger)
	if err != nil {
		return err
	}

	sink, err := newSink(ctx, cfg, out, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Warn("closing sink failed", "error", err)
		}
	}()

	return buildAndWrite(ctx, service, sink, feedIDs, cfg.isolated, logger)
}

// buildAndWrite runs one batch and hands the result to sink. In isolated mode the
// successful feeds are written before the failures are reported.
func buildAndWrite(ctx context.Context, builder inbound.PayloadBuilder, sink outbound.UpdateRequestSink, feedIDs []entity.FeedID, isolated bool, logger *slog.Logger) error {
	if !isolated {
		requests, err := builder.BuildPayloads(ctx, feedIDs)
		if err != nil {
			return fmt.Errorf("building payloads: %w", err)
		}
		return sink.Write(ctx, requests)
	}

	results, err := builder.BuildPayloadsIsolated(ctx, feedIDs)
	if err != nil {
		return fmt.Errorf("building payloads: %w", err)
	}
	requests := make([]entity.UpdateRequest, 0, len(results))
	var failed []error
	for _, res := range results {
		if res.Err != nil {
			logger.Error("feed failed", "feedId", res.FeedID.Hex(), "error", res.Err)
			failed = append(failed, res.Err)
			continue
		}
		requests = append(requests, *res.Request)
	}
	if err := sink.Write(ctx, requests); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d feeds failed: %w", len(failed), len(results), errors.Join(failed...))
	}
	return nil
}

func initTelemetry(ctx context.Context, cfg cliConfig) (func(context.Context) error, error) {
	version := GitCommit
	if version == "" {
		version = "dev"
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.environment,
		OTLPEndpoint:   cfg.otlpEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracer: %w", err)
	}

	shutdownMetrics, err := telemetry.InitMetrics(ctx, telemetry.MetricConfig{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    cfg.environment,
		OTLPEndpoint:   cfg.otlpEndpoint,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("initializing metrics: %w", err), shutdownTracer(ctx))
	}

	return func(ctx context.Context) error {
		return errors.Join(shutdownMetrics(ctx), shutdownTracer(ctx))
	}, nil
}

// collectFeedIDs merges the JSON argument with the feed ids read from -oracles, in
// that order.
func collectFeedIDs(ctx context.Context, cfg cliConfig, stdin io.Reader, logger *slog.Logger) ([]entity.FeedID, error) {
	feedIDs := []entity.FeedID{}
	if cfg.feedInput != "" {
		input, err := readFeedInput(cfg.feedInput, stdin)
		if err != nil {
			return nil, err
		}
		ids, err := parseFeedIDs(input)
		if err != nil {
			return nil, err
		}
		feedIDs = append(feedIDs, ids...)
	}

	if len(cfg.oracles) > 0 {
		ids, err := resolveOracleFeedIDs(ctx, cfg.rpcURL, cfg.oracles)
		if err != nil {
			return nil, err
		}
		for i, id := range ids {
			logger.Debug("resolved oracle feed", "oracle", cfg.oracles[i].Hex(), "feed", id.String())
		}
		feedIDs = append(feedIDs, ids...)
	}
	return feedIDs, nil
}

func resolveOracleFeedIDs(ctx context.Context, rpcURL string, oracles []common.Address) ([]entity.FeedID, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	rpcClient, err := rpc.DialOptions(ctx, rpcURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("connecting to RPC: %w", err)
	}
	ethClient := ethclient.NewClient(rpcClient)
	defer ethClient.Close()

	multicaller, err := multicall.NewClient(ethClient, blockchain.Multicall3)
	if err != nil {
		return nil, fmt.Errorf("creating multicall client: %w", err)
	}
	resolver, err := blockchain.NewFeedIDResolver(multicaller)
	if err != nil {
		return nil, fmt.Errorf("creating feed id resolver: %w", err)
	}

	ids, err := resolver.ResolveFeedIDs(ctx, oracles)
	if err != nil {
		return nil, fmt.Errorf("resolving oracle feed ids: %w", err)
	}
	return ids, nil
}

func newService(cfg cliConfig, logger *slog.Logger) (*payload_builder.Service, error) {
	provider, err := redstone.NewClient(redstone.ClientConfig{
		GatewayURLs: cfg.gateways,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating redstone client: %w", err)
	}

	encoder, err := blockchain.NewCallEncoder()
	if err != nil {
		return nil, fmt.Errorf("creating call encoder: %w", err)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	service, err := payload_builder.NewService(payload_builder.ServiceConfig{
		DataServiceID:       cfg.dataServiceID,
		UniqueSignersCount:  cfg.uniqueSigners,
		HistoricalTimestamp: cfg.historicalMs,
		Logger:              logger,
		Metrics:             metrics,
	}, provider, rsprotocol.Serializer{}, encoder)
	if err != nil {
		return nil, fmt.Errorf("creating service: %w", err)
	}
	return service, nil
}

func newSink(ctx context.Context, cfg cliConfig, out io.Writer, logger *slog.Logger) (outbound.UpdateRequestSink, error) {
	if cfg.sink != sinkSNS {
		return stdout.NewSink(out), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(env.Get("AWS_REGION", "eu-west-1")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var snsOptFns []func(*awssns.Options)
	if endpoint := env.Get("AWS_ENDPOINT_URL", ""); endpoint != "" {
		snsOptFns = append(snsOptFns, func(o *awssns.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	sink, err := snsadapter.NewSink(awssns.NewFromConfig(awsCfg, snsOptFns...), snsadapter.Config{
		TopicARN:      cfg.snsTopicARN,
		DataServiceID: cfg.dataServiceID,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating SNS sink: %w", err)
	}
	return sink, nil
}
