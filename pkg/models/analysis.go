package models

import "time"

// UploadHistory links an uploaded file to its storage location and the
// serialized annotation response produced for it.
type UploadHistory struct {
	ID        string    `json:"id" db:"id"`
	Owner     string    `json:"owner" db:"owner_tag"`
	FileName  string    `json:"file_name" db:"file_name"`
	Location  string    `json:"location" db:"location"`
	Result    string    `json:"result" db:"result"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TextMatch compares text detected by the vision API against the text the
// caller expected to find in the image.
type TextMatch struct {
	ExpectedText string  `json:"expected_text"`
	DetectedText string  `json:"detected_text"`
	MatchScore   float64 `json:"match_score"`
	CER          float64 `json:"character_error_rate"`
	Distance     int     `json:"distance"`
}
