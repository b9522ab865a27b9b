package vision

import (
	"context"
	"fmt"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/anime-shed/image-analyser-go/internal/config"
)

// Annotator is the subset of the vision ImageAnnotatorClient the service
// depends on. It is satisfied by *vision.ImageAnnotatorClient and by mocks.
type Annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
}

// Client is an Annotator that owns a connection
type Client interface {
	Annotator
	Close() error
}

var _ Client = (*vision.ImageAnnotatorClient)(nil)

// RequestedFeatures lists the detections requested for every image, in
// request order.
var RequestedFeatures = []visionpb.Feature_Type{
	visionpb.Feature_FACE_DETECTION,
	visionpb.Feature_LANDMARK_DETECTION,
	visionpb.Feature_LOGO_DETECTION,
	visionpb.Feature_LABEL_DETECTION,
	visionpb.Feature_TEXT_DETECTION,
	visionpb.Feature_DOCUMENT_TEXT_DETECTION,
}

// NewClient dials the Cloud Vision API. Without a credentials file the
// application default credentials are used.
func NewClient(ctx context.Context, cfg config.VisionConfig) (Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return client, nil
}

// NewBatchRequest builds a single-image batch request carrying the raw
// content and every feature in RequestedFeatures.
func NewBatchRequest(content []byte) *visionpb.BatchAnnotateImagesRequest {
	features := make([]*visionpb.Feature, 0, len(RequestedFeatures))
	for _, t := range RequestedFeatures {
		features = append(features, &visionpb.Feature{Type: t})
	}

	return &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: content},
				Features: features,
			},
		},
	}
}

// Serialize renders the response as protojson. The output is what gets
// persisted and returned to callers.
func Serialize(resp *visionpb.BatchAnnotateImagesResponse) (string, error) {
	b, err := protojson.MarshalOptions{UseProtoNames: true}.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("failed to serialize annotation response: %w", err)
	}
	return string(b), nil
}

// DetectedText returns the document text of the first image response,
// falling back to the first plain text annotation.
func DetectedText(resp *visionpb.BatchAnnotateImagesResponse) string {
	if len(resp.GetResponses()) == 0 {
		return ""
	}
	first := resp.GetResponses()[0]
	if text := first.GetFullTextAnnotation().GetText(); text != "" {
		return text
	}
	if anns := first.GetTextAnnotations(); len(anns) > 0 {
		return anns[0].GetDescription()
	}
	return ""
}
