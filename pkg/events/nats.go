package events

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var errConnNotInitialized = errors.New("events: NATS connection not initialized")

// NATSConfig configures the NATS publisher. When Stream is set, events go
// through JetStream and the stream is created on connect.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
	Stream        string `mapstructure:"stream"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
}

// NATS publishes events on "<prefix>.<entity>.<op>".
type NATS struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	cfg    NATSConfig
	logger *zap.Logger
}

// ConnectNATS dials cfg.URL (nats.DefaultURL when empty).
func ConnectNATS(cfg NATSConfig, logger *zap.Logger) (*NATS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.URL = cmp.Or(cfg.URL, nats.DefaultURL)
	cfg.SubjectPrefix = cmp.Or(cfg.SubjectPrefix, "pgcrud")

	nc, err := nats.Connect(cfg.URL, natsOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("events: connect to NATS: %w", err)
	}
	p := &NATS{nc: nc, cfg: cfg, logger: logger}

	if cfg.Stream != "" {
		if p.js, err = nc.JetStream(); err != nil {
			nc.Close()
			return nil, fmt.Errorf("events: create JetStream context: %w", err)
		}
		if err := p.ensureStream(); err != nil {
			nc.Close()
			return nil, fmt.Errorf("events: ensure stream: %w", err)
		}
	}
	return p, nil
}

// Subject is the subject e is published on.
func (p *NATS) Subject(e Event) string {
	return Subject(p.cfg.SubjectPrefix, e)
}

// Subject builds "<prefix>.<entity>.<op>".
func Subject(prefix string, e Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, e.Source.Entity, e.Op)
}

func (p *NATS) Publish(ctx context.Context, e Event) error {
	if p.nc == nil {
		return errConnNotInitialized
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}

	subject := p.Subject(e)
	if p.js != nil {
		_, err = p.js.Publish(subject, data, nats.Context(ctx))
	} else {
		err = p.nc.Publish(subject, data)
	}
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATS) Close() error {
	if p.nc == nil {
		return nil
	}
	err := p.nc.Drain()
	p.nc = nil
	return err
}

func (p *NATS) ensureStream() error {
	config := &nats.StreamConfig{
		Name:     p.cfg.Stream,
		Subjects: []string{p.cfg.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	_, err := p.js.StreamInfo(p.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("get stream info: %w", err)
	}
	if _, err := p.js.AddStream(config); err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	p.logger.Info("created stream", zap.String("stream", p.cfg.Stream))
	return nil
}

func natsOptions(c NATSConfig, logger *zap.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name("pgcrud"),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(10 * time.Second),
		nats.MaxPingsOutstanding(3),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
	}
	if c.Username != "" && c.Password != "" {
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	return opts
}
