package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/anime-shed/image-analyser-go/internal/config"
	"github.com/anime-shed/image-analyser-go/internal/repository"
	"github.com/anime-shed/image-analyser-go/internal/service"
	"github.com/anime-shed/image-analyser-go/internal/vision"
	"github.com/anime-shed/image-analyser-go/pkg/models"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) Analyse(ctx context.Context, fileName string, content []byte) (string, error) {
	args := m.Called(ctx, fileName, content)
	return args.String(0), args.Error(1)
}

func (m *mockService) AnalyseDetailed(ctx context.Context, fileName string, content []byte) (*service.AnalysisOutcome, error) {
	args := m.Called(ctx, fileName, content)
	if outcome, ok := args.Get(0).(*service.AnalysisOutcome); ok {
		return outcome, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockService) History(ctx context.Context, limit, offset int) ([]*models.UploadHistory, error) {
	args := m.Called(ctx, limit, offset)
	if items, ok := args.Get(0).([]*models.UploadHistory); ok {
		return items, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockService) GetHistory(ctx context.Context, id string) (*models.UploadHistory, error) {
	args := m.Called(ctx, id)
	if record, ok := args.Get(0).(*models.UploadHistory); ok {
		return record, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	args := m.Called(ctx, imageURL)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(svc *mockService, fetcher *mockFetcher) http.Handler {
	cfg := &config.Config{
		RequestTimeout:     5 * time.Second,
		AnalysisTimeout:    2 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	return NewHandler(svc, fetcher, prometheus.NewRegistry(), cfg)
}

func outcomeFor(t *testing.T, fileName, text string) *service.AnalysisOutcome {
	resp := &visionpb.BatchAnnotateImagesResponse{
		Responses: []*visionpb.AnnotateImageResponse{{
			FullTextAnnotation: &visionpb.TextAnnotation{Text: text},
		}},
	}
	serialized, err := vision.Serialize(resp)
	require.NoError(t, err)

	return &service.AnalysisOutcome{
		Record: &models.UploadHistory{
			ID:       "c0ffee",
			Owner:    "test",
			FileName: fileName,
			Location: "gs://bucket/" + fileName,
			Result:   serialized,
		},
		Response:   resp,
		Serialized: serialized,
	}
}

func multipartBody(t *testing.T, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAnalyseUpload(t *testing.T) {
	content := []byte("fake image bytes")

	tests := []struct {
		name           string
		fileName       string
		content        []byte
		fields         map[string]string
		serviceErr     error
		expectedStatus int
		expectMatch    bool
	}{
		{
			name:           "success without expected text",
			fileName:       "cat.jpg",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "success with expected text",
			fileName:       "cat.jpg",
			fields:         map[string]string{"expected_text": "hello"},
			expectedStatus: http.StatusOK,
			expectMatch:    true,
		},
		{
			name:           "missing file",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "body over size limit",
			fileName:       "huge.jpg",
			content:        bytes.Repeat([]byte{0xff}, 2<<20),
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:           "vision unavailable",
			fileName:       "cat.jpg",
			serviceErr:     status.Error(codes.Unavailable, "backend down"),
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "vision rejects image",
			fileName:       "cat.jpg",
			serviceErr:     status.Error(codes.InvalidArgument, "bad image data"),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "storage failure",
			fileName:       "cat.jpg",
			serviceErr:     fmt.Errorf("bucket does not exist"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			if tt.content != nil {
				body, contentType := multipartBody(t, tt.fileName, tt.content, tt.fields)
				req := httptest.NewRequest(http.MethodPost, "/analyse", body)
				req.Header.Set("Content-Type", contentType)
				rec := httptest.NewRecorder()

				newTestHandler(svc, &mockFetcher{}).ServeHTTP(rec, req)

				assert.Equal(t, tt.expectedStatus, rec.Code)
				resp := decodeError(t, rec)
				assert.Equal(t, http.StatusText(tt.expectedStatus), resp.Error)
				assert.Equal(t, "request body exceeds 1048576 bytes", resp.Message)
				svc.AssertNotCalled(t, "AnalyseDetailed", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			if tt.fileName != "" {
				if tt.serviceErr != nil {
					svc.On("AnalyseDetailed", mock.Anything, tt.fileName, content).Return(nil, tt.serviceErr).Once()
				} else {
					svc.On("AnalyseDetailed", mock.Anything, tt.fileName, content).
						Return(outcomeFor(t, tt.fileName, "HELLO"), nil).Once()
				}
			}

			body, contentType := multipartBody(t, tt.fileName, content, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/analyse", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()

			newTestHandler(svc, &mockFetcher{}).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			svc.AssertExpectations(t)

			if tt.expectedStatus != http.StatusOK {
				assert.Equal(t, http.StatusText(tt.expectedStatus), decodeError(t, rec).Error)
				return
			}

			var resp models.AnalyseResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "c0ffee", resp.ID)
			assert.Equal(t, "gs://bucket/cat.jpg", resp.Location)
			assert.JSONEq(t, outcomeFor(t, "cat.jpg", "HELLO").Serialized, string(resp.Result))

			if tt.expectMatch {
				require.NotNil(t, resp.TextMatch)
				assert.Equal(t, 0, resp.TextMatch.Distance)
				assert.Equal(t, 1.0, resp.TextMatch.MatchScore)
			} else {
				assert.Nil(t, resp.TextMatch)
			}
		})
	}
}

func TestAnalyseUpload_AnalysisTimeout(t *testing.T) {
	content := []byte("fake image bytes")
	svc := &mockService{}
	svc.On("AnalyseDetailed", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		// 2s analysis timeout, not the 5s request timeout
		return ok && time.Until(deadline) <= 2*time.Second
	}), "cat.jpg", content).Return(outcomeFor(t, "cat.jpg", ""), nil).Once()

	body, contentType := multipartBody(t, "cat.jpg", content, nil)
	req := httptest.NewRequest(http.MethodPost, "/analyse", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	newTestHandler(svc, &mockFetcher{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestAnalyseURL(t *testing.T) {
	content := []byte("fetched image")

	tests := []struct {
		name           string
		body           string
		setup          func(svc *mockService, fetcher *mockFetcher)
		expectedStatus int
	}{
		{
			name: "file name from url path",
			body: `{"url":"https://example.com/images/dog.png"}`,
			setup: func(svc *mockService, fetcher *mockFetcher) {
				fetcher.On("FetchImage", mock.Anything, "https://example.com/images/dog.png").Return(content, nil).Once()
				svc.On("AnalyseDetailed", mock.Anything, "dog.png", content).Return(outcomeFor(t, "dog.png", ""), nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "explicit file name",
			body: `{"url":"https://example.com/","file_name":"front.jpg"}`,
			setup: func(svc *mockService, fetcher *mockFetcher) {
				fetcher.On("FetchImage", mock.Anything, "https://example.com/").Return(content, nil).Once()
				svc.On("AnalyseDetailed", mock.Anything, "front.jpg", content).Return(outcomeFor(t, "front.jpg", ""), nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "file name with path",
			body:           `{"url":"https://example.com/dog.png","file_name":"../dog.png"}`,
			setup:          func(*mockService, *mockFetcher) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing url",
			body:           `{}`,
			setup:          func(*mockService, *mockFetcher) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "scheme not allowed",
			body:           `{"url":"ftp://example.com/dog.png"}`,
			setup:          func(*mockService, *mockFetcher) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "fetch timeout",
			body: `{"url":"https://example.com/dog.png"}`,
			setup: func(svc *mockService, fetcher *mockFetcher) {
				fetcher.On("FetchImage", mock.Anything, "https://example.com/dog.png").
					Return(nil, fmt.Errorf("get: %w", context.DeadlineExceeded)).Once()
			},
			expectedStatus: http.StatusGatewayTimeout,
		},
		{
			name: "fetch failure",
			body: `{"url":"https://example.com/dog.png"}`,
			setup: func(svc *mockService, fetcher *mockFetcher) {
				fetcher.On("FetchImage", mock.Anything, "https://example.com/dog.png").
					Return(nil, fmt.Errorf("HTTP 404")).Once()
			},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			fetcher := &mockFetcher{}
			tt.setup(svc, fetcher)

			req := httptest.NewRequest(http.MethodPost, "/analyse/url", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			newTestHandler(svc, fetcher).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			svc.AssertExpectations(t)
			fetcher.AssertExpectations(t)
		})
	}
}

func TestListHistory(t *testing.T) {
	items := []*models.UploadHistory{{ID: "1", Owner: "test", FileName: "cat.jpg"}}

	svc := &mockService{}
	svc.On("History", mock.Anything, 500, 5).Return(items, nil).Once()

	rec := httptest.NewRecorder()
	newTestHandler(svc, &mockFetcher{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=500&offset=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 100, resp.Limit)
	assert.Equal(t, 5, resp.Offset)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "cat.jpg", resp.Items[0].FileName)
	svc.AssertExpectations(t)

	rec = httptest.NewRecorder()
	newTestHandler(&mockService{}, &mockFetcher{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history?limit=ten", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHistory(t *testing.T) {
	svc := &mockService{}
	svc.On("GetHistory", mock.Anything, "abc").Return(&models.UploadHistory{ID: "abc", FileName: "cat.jpg"}, nil).Once()
	svc.On("GetHistory", mock.Anything, "missing").Return(nil, fmt.Errorf("get: %w", repository.ErrHistoryNotFound)).Once()
	h := newTestHandler(svc, &mockFetcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var record models.UploadHistory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "abc", record.ID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/history/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeError(t, rec).Error)

	svc.AssertExpectations(t)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestHandler(&mockService{}, &mockFetcher{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"available"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
