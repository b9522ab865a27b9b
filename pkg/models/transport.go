package models

import "encoding/json"

// AnalyseURLRequest asks the service to fetch an image before analysing it
type AnalyseURLRequest struct {
	URL          string `json:"url" binding:"required,url"`
	FileName     string `json:"file_name,omitempty"`
	ExpectedText string `json:"expected_text,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AnalyseResponse is returned by both analyse endpoints. Result carries the
// serialized annotation response verbatim.
type AnalyseResponse struct {
	ID        string          `json:"id"`
	FileName  string          `json:"file_name"`
	Location  string          `json:"location"`
	Result    json.RawMessage `json:"result"`
	TextMatch *TextMatch      `json:"text_match,omitempty"`
}

// HistoryResponse wraps a page of upload history records
type HistoryResponse struct {
	Items  []*UploadHistory `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}
