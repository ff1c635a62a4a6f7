package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/pkg/metrics"
	"github.com/slotmarket/backend/pkg/queue"
	"github.com/slotmarket/backend/pkg/storage"
	"github.com/slotmarket/backend/pkg/utils"
)

// JobSource is the queue side the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// LogoStore records the re-hosted logo URL on the sponsor and returns the one it replaced.
type LogoStore interface {
	SetLogo(ctx context.Context, id uuid.UUID, url string) (*string, error)
}

// LogoProcessor processes logo import jobs: download from the source URL, upload to S3, update DB.
type LogoProcessor struct {
	sponsors LogoStore
	assets   storage.Assets
	queue    JobSource
	client   *http.Client
	metrics  *metrics.Metrics
	maxBytes int64
	backoff  time.Duration
	logger   *zap.Logger
}

// NewLogoProcessor creates a logo import processor. m may be nil.
func NewLogoProcessor(sponsors LogoStore, assets storage.Assets, q JobSource, m *metrics.Metrics, maxBytes int64, logger *zap.Logger) *LogoProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBytes <= 0 {
		maxBytes = storage.MaxLogoSize
	}
	return &LogoProcessor{
		sponsors: sponsors,
		assets:   assets,
		queue:    q,
		client:   newFetchClient(30*time.Second, utils.PublicAddr),
		metrics:  m,
		maxBytes: maxBytes,
		backoff:  queue.RetryBackoff,
		logger:   logger,
	}
}

// Process executes one logo import job.
func (p *LogoProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeLogoImport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.LogoImportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, payload.SourceURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", req.URL.Scheme)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return fmt.Errorf("unsupported content type %q", contentType)
	}
	var name string
	if u, err := url.Parse(payload.SourceURL); err == nil {
		name = u.Path
	}
	ext := storage.LogoExtension(contentType, name)
	if ext == "" {
		return fmt.Errorf("unsupported image type %q", contentType)
	}
	if resp.ContentLength > p.maxBytes {
		return fmt.Errorf("logo exceeds %d bytes: content length %d", p.maxBytes, resp.ContentLength)
	}
	// Content-Length may be absent or wrong; read one byte past the cap to detect overflow.
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > p.maxBytes {
		return fmt.Errorf("logo exceeds %d bytes", p.maxBytes)
	}

	key := storage.LogoKey(payload.SponsorID.String(), job.ID, ext)
	logoURL, err := p.assets.Upload(ctx, key, strings.SplitN(contentType, ";", 2)[0], bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	previous, err := p.sponsors.SetLogo(ctx, payload.SponsorID, logoURL)
	if err != nil {
		p.logger.Error("update sponsor logo failed", zap.Error(err), zap.String("sponsor_id", payload.SponsorID.String()))
		return fmt.Errorf("update db: %w", err)
	}
	if err := storage.RemoveReplacedLogo(ctx, p.assets, payload.SponsorID.String(), previous, logoURL); err != nil {
		p.logger.Warn("delete replaced logo failed", zap.Error(err), zap.String("sponsor_id", payload.SponsorID.String()))
	}

	p.logger.Info("logo import completed", zap.String("sponsor_id", payload.SponsorID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *LogoProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("logo worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		start := time.Now()
		err = p.Process(ctx, job)
		p.metrics.RecordJob(string(job.Type), time.Since(start), err == nil)
		if err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *LogoProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
