package setaside

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/hyperengineering/setaside/internal/blob"
	"github.com/hyperengineering/setaside/internal/metadata"
)

// ClientOptions supplies the collaborators a Client cannot build from Config.
type ClientOptions struct {
	Opener   TabOpener
	Capturer Capturer
	Logger   log.Logger
}

// Client wires the configured stores to a Coordinator.
type Client struct {
	config      Config
	logger      log.Logger
	meta        MetadataStore
	blobs       BlobStore
	registry    *Registry
	coordinator *Coordinator

	mu     sync.Mutex
	closed bool
}

// HealthStatus reports whether the client's stores are usable.
type HealthStatus struct {
	Healthy     bool   `json:"healthy"`
	Ready       bool   `json:"ready"`
	MetadataOK  bool   `json:"metadata_ok"`
	BlobsOK     bool   `json:"blobs_ok"`
	Collections int    `json:"collections"`
	Subscribers int    `json:"subscribers"`
	Error       string `json:"error,omitempty"`
}

// New opens the stores selected by cfg. The coordinator is not hydrated until Start.
func New(cfg Config, opts ClientOptions) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	logger := log.With(opts.Logger, "profile", cfg.Profile)

	meta, err := openMetadata(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	blobs := openBlobs(cfg)

	registry := NewRegistry(logger)
	coordinator, err := NewCoordinator(Options{
		Metadata: meta,
		Blobs:    blobs,
		Registry: registry,
		Opener:   opts.Opener,
		Capturer: opts.Capturer,
		Logger:   logger,
	})
	if err != nil {
		closeStore(meta)
		closeStore(blobs)
		return nil, fmt.Errorf("client: %w", err)
	}

	return &Client{
		config:      cfg,
		logger:      logger,
		meta:        meta,
		blobs:       blobs,
		registry:    registry,
		coordinator: coordinator,
	}, nil
}

func openMetadata(cfg Config, logger log.Logger) (MetadataStore, error) {
	switch cfg.Metadata {
	case MetadataPostgres:
		return metadata.NewPostgres(cfg.MetadataDSN, Area, metadata.PostgresOptions{Logger: logger})
	case MetadataMemory:
		return metadata.NewMemory(Area), nil
	default:
		return metadata.OpenFile(cfg.SyncDir, Area, metadata.FileOptions{Logger: logger})
	}
}

func openBlobs(cfg Config) BlobStore {
	switch cfg.Blobs {
	case BlobsBolt:
		return blob.NewBolt(cfg.BlobPath)
	case BlobsMemory:
		return blob.NewMemory()
	default:
		return blob.NewSQLite(cfg.BlobPath)
	}
}

// Start hydrates the coordinator. Subscriber requests received before Start
// returns are answered once it has.
func (c *Client) Start(ctx context.Context) error {
	return c.coordinator.Init(ctx)
}

// Coordinator returns the client's coordinator.
func (c *Client) Coordinator() *Coordinator { return c.coordinator }

// Registry returns the subscriber registry.
func (c *Client) Registry() *Registry { return c.registry }

// Config returns the resolved configuration.
func (c *Client) Config() Config { return c.config }

// Logger returns the client's logger.
func (c *Client) Logger() log.Logger { return c.logger }

// HealthCheck returns the health status of the client.
func (c *Client) HealthCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:     true,
		MetadataOK:  true,
		BlobsOK:     true,
		Ready:       c.coordinator.Ready(),
		Subscribers: c.registry.Len(),
	}

	if _, err := c.meta.GetAll(ctx); err != nil {
		status.MetadataOK = false
		status.Healthy = false
		status.Error = err.Error()
	}
	// Attachments are best effort: a broken blob store degrades but is not unhealthy.
	if _, err := c.blobs.Keys(ctx); err != nil {
		status.BlobsOK = false
		if status.Error == "" {
			status.Error = err.Error()
		}
	}
	if status.Ready {
		status.Collections = len(c.coordinator.Collections())
	}
	return status
}

// Close stops the coordinator and closes both stores.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.coordinator.Close()
	err = errors.Join(err, closeStore(c.meta), closeStore(c.blobs))
	if err != nil {
		level.Warn(c.logger).Log("op", "close", "error", err)
	}
	return err
}

func closeStore(s any) error {
	if cl, ok := s.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
