// Package agent is the Linux inventory agent. It collects the local
// machine's facts and reports them to the inventory service over HTTP or
// NATS, once or on an interval.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Publisher sends a snapshot over the message bus.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

// Service periodically collects a snapshot and reports it.
type Service struct {
	client    *http.Client
	config    Config
	collector *Collector
	publisher Publisher
	logger    zerolog.Logger
}

// NewService returns a Service for cfg. publisher may be nil, in which case
// snapshots are posted to the HTTP API.
func NewService(cfg Config, collector *Collector, publisher Publisher, logger zerolog.Logger) (*Service, error) {
	if collector == nil {
		return nil, errors.New("nil collector")
	}
	if publisher == nil && cfg.API == "" {
		return nil, errors.New("no api url or bus configured")
	}

	return &Service{
		client:    &http.Client{Timeout: 15 * time.Second},
		config:    cfg,
		collector: collector,
		publisher: publisher,
		logger:    logger,
	}, nil
}

// Run reports once and, when an interval is configured, keeps reporting
// until ctx is cancelled. A one-shot run returns the report error.
func (s *Service) Run(ctx context.Context) error {
	interval := s.config.Every()
	if interval <= 0 {
		return s.ReportOnce(ctx)
	}

	if err := s.ReportOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("initial report failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.ReportOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("report failed")
			}
		}
	}
}

// ReportOnce collects one snapshot, spools it when configured and sends it.
func (s *Service) ReportOnce(ctx context.Context) error {
	snap, err := s.collector.Collect(ctx, s.config.Patrimony)
	if err != nil {
		return fmt.Errorf("collect snapshot: %w", err)
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if s.config.SpoolDir != "" {
		if err := s.spool(snap.UUID, body); err != nil {
			s.logger.Warn().Err(err).Msg("spool snapshot")
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, s.config.Subject, json.RawMessage(body)); err != nil {
			return fmt.Errorf("publish snapshot: %w", err)
		}
		s.logger.Info().Str("hostname", snap.Hostname).Str("subject", s.config.Subject).Msg("snapshot published")
		return nil
	}

	return s.sendSnapshot(ctx, snap.Hostname, body)
}

func (s *Service) sendSnapshot(ctx context.Context, hostname string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := strings.TrimRight(s.config.API, "/") + "/api/upload"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("post snapshot: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post snapshot unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var reply struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &reply)

	s.logger.Info().
		Str("hostname", hostname).
		Int("status", resp.StatusCode).
		Str("message", reply.Message).
		Msg("snapshot posted")
	return nil
}

func (s *Service) spool(id string, body []byte) error {
	if err := os.MkdirAll(s.config.SpoolDir, 0o755); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "    "); err != nil {
		return fmt.Errorf("indent snapshot: %w", err)
	}

	path := filepath.Join(s.config.SpoolDir, "system_info_"+id+".json")
	if err := os.WriteFile(path, pretty.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write spool file: %w", err)
	}
	return nil
}
