package types

import "time"

// Region mirrors imageprocessor.Region for storage and reports
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ComparisonRecord is one stored comparison run
type ComparisonRecord struct {
	ID            int64     `json:"id"`
	ComparisonID  string    `json:"comparison_id"`
	CandidateName string    `json:"candidate_name"`
	ReferenceSHA  string    `json:"reference_sha256"`
	Score         float64   `json:"score"`
	Threshold     float64   `json:"threshold"`
	Regions       []Region  `json:"regions"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Outputs       []string  `json:"outputs"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReferenceInfo holds the fingerprint of a reference image
type ReferenceInfo struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	SHA256      string    `json:"sha256"`
	AverageHash string    `json:"average_hash"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ExifSummary holds the EXIF tags that hint at editing
type ExifSummary struct {
	Software         string `json:"software,omitempty"`
	Make             string `json:"make,omitempty"`
	Model            string `json:"model,omitempty"`
	DateTime         string `json:"date_time,omitempty"`
	DateTimeOriginal string `json:"date_time_original,omitempty"`
	ModifyDate       string `json:"modify_date,omitempty"`
}

// Empty reports whether no tag was found
func (e ExifSummary) Empty() bool {
	return e == ExifSummary{}
}
