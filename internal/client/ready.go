package client

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// WaitReady polls baseURL/health until it answers 200 or timeout elapses
func WaitReady(ctx context.Context, baseURL string, timeout time.Duration, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = math.MaxInt32 // bounded by ctx
	retryClient.RetryWaitMin = 50 * time.Millisecond
	retryClient.RetryWaitMax = 500 * time.Millisecond
	retryClient.HTTPClient.Timeout = 2 * time.Second
	retryClient.Logger = leveledLogger{logger: orNop(logger).Sugar()}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := retryClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend at %s not ready: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend at %s not ready: status %d", baseURL, resp.StatusCode)
	}
	return nil
}

// leveledLogger routes retryablehttp logs to zap at debug level
type leveledLogger struct {
	logger *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.logger.Debugw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.logger.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.logger.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.logger.Debugw(msg, kv...) }

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
