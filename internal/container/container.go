package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/anime-shed/image-analyser-go/internal/config"
	"github.com/anime-shed/image-analyser-go/internal/factory"
	"github.com/anime-shed/image-analyser-go/internal/logger"
	"github.com/anime-shed/image-analyser-go/internal/observer"
	"github.com/anime-shed/image-analyser-go/internal/repository"
	"github.com/anime-shed/image-analyser-go/internal/service"
	"github.com/anime-shed/image-analyser-go/internal/storage"
	"github.com/anime-shed/image-analyser-go/internal/strategy"
	"github.com/anime-shed/image-analyser-go/internal/transport"
	"github.com/anime-shed/image-analyser-go/internal/vision"
	"github.com/anime-shed/image-analyser-go/pkg/validation"
)

// Components are the external collaborators of the analysis service
type Components struct {
	Uploader   storage.Uploader
	Annotator  vision.Annotator
	Repository repository.UploadHistoryRepository

	// closers are released by Container.Close in reverse order
	closers []io.Closer
}

// Container holds all application dependencies
type Container struct {
	config               *config.Config
	components           Components
	registry             *prometheus.Registry
	publisher            *observer.EventPublisher
	imageFetcher         storage.ImageFetcher
	imageAnalysisService service.ImageAnalysisService
	handler              http.Handler
}

// NewContainer connects to the vision API, object storage and the database
// described by cfg and wires the application around them.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	components, err := buildComponents(ctx, cfg, factory.NewComponentFactory())
	if err != nil {
		return nil, err
	}

	c, err := NewContainerWith(cfg, components)
	if err != nil {
		_ = closeAll(components.closers)
		return nil, err
	}
	return c, nil
}

func buildComponents(ctx context.Context, cfg *config.Config, f *factory.ComponentFactory) (Components, error) {
	var comps Components

	annotator, err := vision.NewClient(ctx, cfg.Vision)
	if err != nil {
		return comps, err
	}
	comps.Annotator = annotator
	comps.closers = append(comps.closers, annotator)

	uploader, err := f.StorageFactory.CreateUploader(ctx, cfg.Storage)
	if err != nil {
		_ = closeAll(comps.closers)
		return Components{}, fmt.Errorf("failed to create %s uploader: %w", cfg.Storage.Backend, err)
	}
	comps.Uploader = uploader
	if closer, ok := uploader.(io.Closer); ok {
		comps.closers = append(comps.closers, closer)
	}

	repo, db, err := f.RepositoryFactory.CreateRepository(ctx, cfg.Database)
	if err != nil {
		_ = closeAll(comps.closers)
		return Components{}, err
	}
	comps.Repository = repo
	comps.closers = append(comps.closers, db)

	return comps, nil
}

// NewContainerWith wires the application around already built collaborators
func NewContainerWith(cfg *config.Config, components Components) (*Container, error) {
	ordering, err := strategy.ForName(cfg.AnalysisOrder)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	metrics, err := observer.NewMetricsObserver(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	svc := service.NewImageAnalysisService(
		components.Uploader,
		components.Annotator,
		components.Repository,
		service.Options{
			Bucket:   cfg.Storage.Bucket,
			OwnerTag: cfg.OwnerTag,
			Ordering: ordering,
			Events:   publisher,
		},
	)

	fetcher := storage.NewHTTPImageFetcher(cfg.ImageFetchTimeout, cfg.MaxRequestBodySize,
		validation.NewURLValidator().ValidateImageURL)
	handler := transport.NewHandler(svc, fetcher, registry, cfg)

	logger.WithField("order", ordering.GetStrategyName()).
		WithField("storage_backend", cfg.Storage.Backend).
		Info("Container initialised")

	return &Container{
		config:               cfg,
		components:           components,
		registry:             registry,
		publisher:            publisher,
		imageFetcher:         fetcher,
		imageAnalysisService: svc,
		handler:              handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Service returns the analysis service
func (c *Container) Service() service.ImageAnalysisService {
	return c.imageAnalysisService
}

// Fetcher returns the image fetcher used for URL analysis
func (c *Container) Fetcher() storage.ImageFetcher {
	return c.imageFetcher
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Ping checks the history store
func (c *Container) Ping(ctx context.Context) error {
	return c.components.Repository.Ping(ctx)
}

// Close waits for pending observer notifications and releases every client
func (c *Container) Close() error {
	c.publisher.Wait()
	return closeAll(c.components.closers)
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
