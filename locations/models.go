package locations

import "time"

const (
	LevelState    = "state"
	LevelDistrict = "district"
	LevelUnit     = "unit"
)

// Location is one node of the assessment hierarchy: state -> district -> assessment unit.
// NameFolded holds the lowercased, diacritic-stripped form used for matching.
type Location struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	ParentID   *uint64   `gorm:"index" json:"parent_id,omitempty"`
	Level      string    `gorm:"size:16;not null;index" json:"level"`
	Name       string    `gorm:"size:120;not null" json:"name"`
	NameFolded string    `gorm:"size:120;not null;index" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Location) TableName() string {
	return "gw_locations"
}

// AssessmentRecord is a single authoritative numeric groundwater fact.
// Exactly one record exists per (location, metric, year); status is derived, never stored.
type AssessmentRecord struct {
	ID             uint64    `gorm:"primaryKey" json:"id"`
	LocationID     uint64    `gorm:"not null;uniqueIndex:idx_location_metric_year" json:"location_id"`
	MetricName     string    `gorm:"size:64;not null;uniqueIndex:idx_location_metric_year" json:"metric_name"`
	AssessmentYear int       `gorm:"not null;uniqueIndex:idx_location_metric_year" json:"assessment_year"`
	Value          float64   `gorm:"not null" json:"value"`
	Unit           string    `gorm:"size:16;not null" json:"unit"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (AssessmentRecord) TableName() string {
	return "gw_assessment_records"
}

// Fact is a resolved lookup result handed to the answer pipeline.
// Aggregate marks values inherited from a parent level rather than the requested unit.
type Fact struct {
	LocationID   uint64  `json:"location_id"`
	LocationName string  `json:"location_name"`
	Level        string  `json:"level"`
	MetricName   string  `json:"metric_name"`
	Value        float64 `json:"value"`
	Unit         string  `json:"unit"`
	Year         int     `json:"year"`
	Status       string  `json:"status,omitempty"`
	Aggregate    bool    `json:"aggregate"`
}
