package service

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-analyser-go/internal/logger"
	"github.com/anime-shed/image-analyser-go/internal/observer"
	"github.com/anime-shed/image-analyser-go/internal/repository"
	"github.com/anime-shed/image-analyser-go/internal/storage"
	"github.com/anime-shed/image-analyser-go/internal/strategy"
	"github.com/anime-shed/image-analyser-go/internal/vision"
	"github.com/anime-shed/image-analyser-go/pkg/models"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// ImageAnalysisService analyses images and keeps a history of the results
type ImageAnalysisService interface {
	// Analyse uploads the file, annotates it, records the result and returns
	// the serialized annotation response.
	Analyse(ctx context.Context, fileName string, content []byte) (string, error)

	// AnalyseDetailed runs the same steps as Analyse and also returns the
	// typed response and the stored record.
	AnalyseDetailed(ctx context.Context, fileName string, content []byte) (*AnalysisOutcome, error)

	History(ctx context.Context, limit, offset int) ([]*models.UploadHistory, error)
	GetHistory(ctx context.Context, id string) (*models.UploadHistory, error)
}

// AnalysisOutcome is everything produced by a successful analysis
type AnalysisOutcome struct {
	Record     *models.UploadHistory
	Response   *visionpb.BatchAnnotateImagesResponse
	Serialized string
}

// Options configures the analysis service
type Options struct {
	Bucket   string
	OwnerTag string
	Ordering strategy.OrderingStrategy
	Events   observer.Subject
}

type imageAnalysisService struct {
	uploader  storage.Uploader
	annotator vision.Annotator
	history   repository.UploadHistoryRepository

	bucket   string
	ownerTag string
	ordering strategy.OrderingStrategy
	events   observer.Subject
}

// NewImageAnalysisService creates a new image analysis service
func NewImageAnalysisService(
	uploader storage.Uploader,
	annotator vision.Annotator,
	history repository.UploadHistoryRepository,
	opts Options,
) ImageAnalysisService {
	if opts.Ordering == nil {
		opts.Ordering = strategy.NewAnalyseFirstStrategy()
	}
	if opts.Events == nil {
		opts.Events = observer.NewEventPublisher()
	}

	return &imageAnalysisService{
		uploader:  uploader,
		annotator: annotator,
		history:   history,
		bucket:    opts.Bucket,
		ownerTag:  opts.OwnerTag,
		ordering:  opts.Ordering,
		events:    opts.Events,
	}
}

func (s *imageAnalysisService) Analyse(ctx context.Context, fileName string, content []byte) (string, error) {
	outcome, err := s.AnalyseDetailed(ctx, fileName, content)
	if err != nil {
		return "", err
	}
	return outcome.Serialized, nil
}

// AnalyseDetailed runs the steps in the configured order. The first error
// is returned as is and no further step runs.
func (s *imageAnalysisService) AnalyseDetailed(ctx context.Context, fileName string, content []byte) (*AnalysisOutcome, error) {
	start := time.Now()
	log := logger.WithFields(logrus.Fields{
		"file_name": fileName,
		"order":     s.ordering.GetStrategyName(),
	})

	s.events.NotifyObservers(ctx, observer.AnalysisEvent{
		EventType: observer.AnalysisStarted,
		FileName:  fileName,
		Metadata:  map[string]interface{}{"size_bytes": len(content)},
	})

	outcome := &AnalysisOutcome{
		Record: &models.UploadHistory{
			Owner:    s.ownerTag,
			FileName: fileName,
		},
	}

	for _, step := range s.ordering.Steps() {
		stepStart := time.Now()

		var err error
		switch step {
		case strategy.StepAnnotate:
			err = s.annotate(ctx, log, content, outcome)
		case strategy.StepUpload:
			err = s.upload(ctx, log, content, outcome)
		case strategy.StepPersist:
			err = s.persist(ctx, log, outcome)
		default:
			err = fmt.Errorf("unknown analysis step: %s", step)
		}

		if err != nil {
			s.events.NotifyObservers(ctx, observer.AnalysisEvent{
				EventType:      observer.AnalysisFailed,
				FileName:       fileName,
				Step:           string(step),
				ProcessingTime: time.Since(start),
				ErrorMessage:   err.Error(),
			})
			return nil, err
		}

		s.events.NotifyObservers(ctx, observer.AnalysisEvent{
			EventType:      observer.StepCompleted,
			FileName:       fileName,
			Step:           string(step),
			ProcessingTime: time.Since(stepStart),
			Success:        true,
		})
	}

	s.events.NotifyObservers(ctx, observer.AnalysisEvent{
		EventType:      observer.AnalysisCompleted,
		FileName:       fileName,
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata:       map[string]interface{}{"location": outcome.Record.Location},
	})

	log.WithFields(logrus.Fields{
		"location":           outcome.Record.Location,
		"processing_time_ms": time.Since(start).Milliseconds(),
	}).Info("Image analysis completed successfully")

	return outcome, nil
}

func (s *imageAnalysisService) annotate(ctx context.Context, log *logrus.Entry, content []byte, outcome *AnalysisOutcome) error {
	log.Debug("Analysing file")

	resp, err := s.annotator.BatchAnnotateImages(ctx, vision.NewBatchRequest(content))
	if err != nil {
		return err
	}

	serialized, err := vision.Serialize(resp)
	if err != nil {
		return err
	}

	outcome.Response = resp
	outcome.Serialized = serialized
	outcome.Record.Result = serialized

	log.WithField("result_bytes", len(serialized)).Debug("Analysis completed")
	return nil
}

func (s *imageAnalysisService) upload(ctx context.Context, log *logrus.Entry, content []byte, outcome *AnalysisOutcome) error {
	log.WithField("bucket", s.bucket).Debug("Uploading file")

	location, err := s.uploader.Upload(ctx, outcome.Record.FileName, content, s.bucket)
	if err != nil {
		return err
	}
	outcome.Record.Location = location

	log.WithField("location", location).Debug("Upload completed")
	return nil
}

func (s *imageAnalysisService) persist(ctx context.Context, log *logrus.Entry, outcome *AnalysisOutcome) error {
	log.Debug("Saving upload history")

	if err := s.history.Save(ctx, outcome.Record); err != nil {
		return err
	}

	log.WithField("id", outcome.Record.ID).Debug("Save completed")
	return nil
}

// History returns the owner's records, newest first
func (s *imageAnalysisService) History(ctx context.Context, limit, offset int) ([]*models.UploadHistory, error) {
	limit, offset = ClampPage(limit, offset)
	return s.history.List(ctx, s.ownerTag, limit, offset)
}

// ClampPage applies the default and maximum page size used by History
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *imageAnalysisService) GetHistory(ctx context.Context, id string) (*models.UploadHistory, error) {
	return s.history.Get(ctx, id)
}
