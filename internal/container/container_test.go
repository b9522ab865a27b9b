package container

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/image-analyser-go/internal/config"
	"github.com/anime-shed/image-analyser-go/internal/repository"
	"github.com/anime-shed/image-analyser-go/pkg/models"
)

type fakeUploader struct{ calls []string }

func (f *fakeUploader) Upload(ctx context.Context, fileName string, content []byte, bucketName string) (string, error) {
	f.calls = append(f.calls, bucketName+"/"+fileName)
	return "gs://" + bucketName + "/" + fileName, nil
}

type fakeAnnotator struct{}

func (fakeAnnotator) BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error) {
	return &visionpb.BatchAnnotateImagesResponse{}, nil
}

type memoryRepository struct {
	mu      sync.Mutex
	records []*models.UploadHistory
}

func (r *memoryRepository) Save(ctx context.Context, record *models.UploadHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = "id-1"
	r.records = append(r.records, record)
	return nil
}

func (r *memoryRepository) List(ctx context.Context, owner string, limit, offset int) ([]*models.UploadHistory, error) {
	return r.records, nil
}

func (r *memoryRepository) Get(ctx context.Context, id string) (*models.UploadHistory, error) {
	return nil, repository.ErrHistoryNotFound
}

func (r *memoryRepository) Ping(ctx context.Context) error { return nil }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func testConfig() *config.Config {
	return &config.Config{
		Host:               "127.0.0.1",
		Port:               "8080",
		RequestTimeout:     5 * time.Second,
		ImageFetchTimeout:  5 * time.Second,
		AnalysisTimeout:    5 * time.Second,
		MaxRequestBodySize: 1 << 20,
		AnalysisOrder:      config.OrderAnalyseFirst,
		OwnerTag:           config.DefaultOwnerTag,
		Storage:            config.StorageConfig{Backend: config.StorageGCS, Bucket: "bucket"},
	}
}

func TestNewContainerWith_EndToEnd(t *testing.T) {
	uploader := &fakeUploader{}
	repo := &memoryRepository{}
	c, err := NewContainerWith(testConfig(), Components{
		Uploader:   uploader,
		Annotator:  fakeAnnotator{},
		Repository: repo,
	})
	require.NoError(t, err)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "cat.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte("seventeen bytes!!"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyse", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"bucket/cat.jpg"}, uploader.calls)
	require.Len(t, repo.records, 1)
	assert.Equal(t, models.UploadHistory{
		ID:       "id-1",
		Owner:    "test",
		FileName: "cat.jpg",
		Location: "gs://bucket/cat.jpg",
		Result:   "{}",
	}, *repo.records[0])

	require.NoError(t, c.Close())

	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `image_analyser_analyses_total{outcome="completed"} 1`)

	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewContainerWith_InvalidOrder(t *testing.T) {
	cfg := testConfig()
	cfg.AnalysisOrder = "sideways"

	_, err := NewContainerWith(cfg, Components{})
	assert.Error(t, err)
}

func TestClose_ReleasesInReverseOrder(t *testing.T) {
	c, err := NewContainerWith(testConfig(), Components{
		Uploader:   &fakeUploader{},
		Annotator:  fakeAnnotator{},
		Repository: &memoryRepository{},
	})
	require.NoError(t, err)

	var order []string
	closeErr := errors.New("already closed")
	c.components.closers = []io.Closer{
		closerFunc(func() error { order = append(order, "vision"); return nil }),
		closerFunc(func() error { order = append(order, "db"); return closeErr }),
	}

	err = c.Close()
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, []string{"db", "vision"}, order)
	assert.NoError(t, c.Ping(context.Background()))
}
