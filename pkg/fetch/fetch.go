package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"custody/pkg/chunker"
	"custody/pkg/config"
	"custody/pkg/types"
	"custody/pkg/verifier"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	// Hard cap on inline sample size regardless of configuration.
	maxSampleCap = 8192

	// Upper bound for whole-object ingestion.
	maxIngestBytes = 10 * 1024 * 1024

	maxContentIDLen = 128

	retriesPerGateway = 2
)

// Fetcher retrieves content bytes from a list of HTTP gateways. It is the
// external "fetch bytes for this identifier" collaborator: the engine
// consumes the returned bytes for proof data and has no opinion on
// transport. Each gateway sits behind its own circuit breaker so a dead
// gateway stops being dialed after repeated failures.
type Fetcher struct {
	client        *http.Client
	gateways      []string
	breakers      map[string]*gobreaker.CircuitBreaker
	maxSampleSize int
	timeout       time.Duration
	logger        *zap.Logger
}

func NewFetcher(cfg config.FetchConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxSample := cfg.MaxSampleSize
	if maxSample <= 0 || maxSample > maxSampleCap {
		maxSample = maxSampleCap
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(cfg.Gateways))
	for _, gw := range cfg.Gateways {
		breakers[gw] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     gw,
			Interval: time.Minute,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}

	return &Fetcher{
		client:        &http.Client{Timeout: cfg.Timeout},
		gateways:      cfg.Gateways,
		breakers:      breakers,
		maxSampleSize: maxSample,
		timeout:       cfg.Timeout,
		logger:        logger,
	}
}

// FetchSample retrieves up to maxSize leading bytes of the identified
// content, trying each configured gateway in order.
func (f *Fetcher) FetchSample(ctx context.Context, contentID string, maxSize int) ([]byte, error) {
	if contentID == "" || len(contentID) > maxContentIDLen {
		return nil, &verifier.InvalidInputError{Field: "content_id", Reason: "invalid identifier"}
	}
	size := maxSize
	if size <= 0 || size > f.maxSampleSize {
		size = f.maxSampleSize
	}

	var lastErr error
	for _, gateway := range f.gateways {
		url := fmt.Sprintf("%s/%s?format=raw", gateway, contentID)
		data, err := f.fetchThroughBreaker(ctx, gateway, url, int64(size))
		if err == nil {
			return data, nil
		}
		lastErr = err
		f.logger.Warn("gateway fetch failed",
			zap.String("gateway", gateway),
			zap.Error(err))
	}

	if lastErr == nil {
		lastErr = errors.New("no gateways configured")
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, &verifier.TimeoutError{Timeout: f.timeout}
	}
	return nil, &verifier.NetworkError{Err: lastErr}
}

// FetchAll retrieves the whole object, bounded by maxIngestBytes.
func (f *Fetcher) FetchAll(ctx context.Context, contentID string) ([]byte, error) {
	if contentID == "" || len(contentID) > maxContentIDLen {
		return nil, &verifier.InvalidInputError{Field: "content_id", Reason: "invalid identifier"}
	}

	var lastErr error
	for _, gateway := range f.gateways {
		url := fmt.Sprintf("%s/%s", gateway, contentID)
		data, err := f.fetchThroughBreaker(ctx, gateway, url, maxIngestBytes)
		if err == nil {
			return data, nil
		}
		lastErr = err
		f.logger.Warn("gateway fetch failed",
			zap.String("gateway", gateway),
			zap.Error(err))
	}

	if lastErr == nil {
		lastErr = errors.New("no gateways configured")
	}
	if errors.Is(lastErr, context.DeadlineExceeded) {
		return nil, &verifier.TimeoutError{Timeout: f.timeout}
	}
	return nil, &verifier.NetworkError{Err: lastErr}
}

// IngestAndRegister fetches an object, chunks it, and registers its
// chunk-hash commitments with the engine so the content can be challenged
// later. Returns the number of chunks registered.
func (f *Fetcher) IngestAndRegister(ctx context.Context, v *verifier.StorageVerifier, contentID string, chunkSize uint32) (uint64, error) {
	data, err := f.FetchAll(ctx, contentID)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, &verifier.InvalidInputError{Field: "content", Reason: "object is empty"}
	}

	ck := chunker.New(chunkSize)
	leaves := ck.LeafHashes(data)
	if err := v.RegisterChunkHashes(types.FileID(contentID), ck.ChunkSize(), leaves); err != nil {
		return 0, err
	}

	f.logger.Info("ingested content",
		zap.String("content_id", contentID),
		zap.Int("chunks", len(leaves)),
		zap.Uint32("chunk_size", ck.ChunkSize()))
	return uint64(len(leaves)), nil
}

// fetchThroughBreaker runs one ranged GET behind the gateway's circuit
// breaker, retrying transient failures with exponential backoff.
func (f *Fetcher) fetchThroughBreaker(ctx context.Context, gateway, url string, limit int64) ([]byte, error) {
	breaker, ok := f.breakers[gateway]
	if !ok {
		return f.fetchWithRetry(ctx, url, limit)
	}

	result, err := breaker.Execute(func() (interface{}, error) {
		return f.fetchWithRetry(ctx, url, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, url string, limit int64) ([]byte, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retriesPerGateway), ctx)

	var data []byte
	op := func() error {
		var err error
		data, err = f.fetchOnce(ctx, url, limit)
		return err
	}
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=0-%d", limit-1))

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return nil, backoff.Permanent(fmt.Errorf("HTTP %d from %s", resp.StatusCode, url))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, backoff.Permanent(fmt.Errorf("response exceeds %d byte limit", limit))
	}
	return data, nil
}
