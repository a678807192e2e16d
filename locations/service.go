package locations

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Canonical metric names stored on assessment records.
const (
	MetricStageOfExtraction = "stage_of_extraction"
	MetricAnnualRecharge    = "annual_recharge"
	MetricRainfall          = "rainfall"
)

var (
	ErrNoRecord   = errors.New("locations: no assessment record found")
	ErrNoLocation = errors.New("locations: no known location mentioned")
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Service answers structured groundwater lookups. All operations are pure reads.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("locations: database connection is required")
	}
	return &Service{db: db}, nil
}

func NewServiceFromEnv() (*Service, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}
	return NewService(db)
}

func (s *Service) AutoMigrate() error {
	if s.db == nil {
		return errors.New("locations: database connection is not configured")
	}
	return s.db.AutoMigrate(&Location{}, &AssessmentRecord{})
}

// Lookup fetches the assessment record for a location and metric. A nil year
// selects the most recent assessment. When the requested location has no
// record the search widens to its parent district and then the state; facts
// produced that way carry Aggregate=true.
func (s *Service) Lookup(ctx context.Context, locationID uint64, metric string, year *int) (*Fact, error) {
	if s.db == nil {
		return nil, errors.New("locations: database connection is not configured")
	}
	metric = normalizeMetric(metric)

	current := locationID
	aggregate := false
	for {
		var loc Location
		if err := s.db.WithContext(ctx).Take(&loc, "id = ?", current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNoRecord
			}
			return nil, err
		}

		record, err := s.findRecord(ctx, current, metric, year)
		if err == nil {
			return buildFact(loc, *record, aggregate), nil
		}
		if !errors.Is(err, ErrNoRecord) {
			return nil, err
		}

		if loc.ParentID == nil {
			return nil, ErrNoRecord
		}
		current = *loc.ParentID
		aggregate = true
	}
}

func (s *Service) findRecord(ctx context.Context, locationID uint64, metric string, year *int) (*AssessmentRecord, error) {
	query := s.db.WithContext(ctx).
		Where("location_id = ? AND metric_name = ?", locationID, metric)
	if year != nil {
		query = query.Where("assessment_year = ?", *year)
	}

	var record AssessmentRecord
	if err := query.Order("assessment_year DESC").Take(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoRecord
		}
		return nil, err
	}
	return &record, nil
}

// AnswerQuestion resolves location mentions and a metric from a free-text
// question and returns one fact per candidate location. The second return
// value reports ambiguity: true when distinct locations matched the same
// mention, in which case the caller should disambiguate rather than guess.
func (s *Service) AnswerQuestion(ctx context.Context, question, hint string) ([]Fact, bool, error) {
	if s.db == nil {
		return nil, false, errors.New("locations: database connection is not configured")
	}
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return nil, false, ErrNoLocation
	}

	var known []Location
	if err := s.db.WithContext(ctx).Find(&known).Error; err != nil {
		return nil, false, err
	}

	mentions := MatchMentions(trimmed, known)
	if len(mentions) == 0 && strings.TrimSpace(hint) != "" {
		mentions = MatchMentions(hint, known)
	}
	if len(mentions) == 0 {
		return nil, false, ErrNoLocation
	}

	metric := DetectMetric(trimmed)
	year := detectYear(trimmed)

	facts := make([]Fact, 0, len(mentions))
	for _, mention := range mentions {
		fact, err := s.Lookup(ctx, mention.Location.ID, metric, year)
		if err != nil {
			if errors.Is(err, ErrNoRecord) {
				continue
			}
			return nil, false, err
		}
		facts = append(facts, *fact)
	}
	if len(facts) == 0 {
		return nil, false, ErrNoRecord
	}

	ambiguous := ambiguousMentions(mentions)
	return facts, ambiguous, nil
}

// SearchLocations backs the directory/autocomplete endpoint.
func (s *Service) SearchLocations(ctx context.Context, query string, limit int) ([]Location, error) {
	if s.db == nil {
		return nil, errors.New("locations: database connection is not configured")
	}
	folded := FoldName(query)
	if folded == "" {
		return nil, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	var result []Location
	err := s.db.WithContext(ctx).
		Where("name_folded LIKE ?", "%"+folded+"%").
		Order("level, name").
		Limit(limit).
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DetectMetric maps question keywords to a canonical metric, defaulting to
// stage of extraction since that is what nearly every groundwater question
// is really about.
func DetectMetric(question string) string {
	lower := strings.ToLower(question)
	switch {
	case strings.Contains(lower, "recharge"):
		return MetricAnnualRecharge
	case strings.Contains(lower, "rainfall"), strings.Contains(lower, "monsoon"):
		return MetricRainfall
	default:
		return MetricStageOfExtraction
	}
}

func normalizeMetric(metric string) string {
	lower := strings.ToLower(strings.TrimSpace(metric))
	switch lower {
	case "", "extraction", "stage", "stage of extraction", "stage_of_extraction_pct":
		return MetricStageOfExtraction
	case "recharge":
		return MetricAnnualRecharge
	default:
		return strings.ReplaceAll(lower, " ", "_")
	}
}

func detectYear(question string) *int {
	match := yearPattern.FindString(question)
	if match == "" {
		return nil
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &year
}

func ambiguousMentions(mentions []Mention) bool {
	names := make(map[string][]uint64)
	for _, m := range mentions {
		key := m.Location.NameFolded
		if key == "" {
			key = FoldName(m.Location.Name)
		}
		names[key] = append(names[key], m.Location.ID)
	}
	for _, ids := range names {
		if len(ids) > 1 {
			return true
		}
	}
	return false
}

func buildFact(loc Location, record AssessmentRecord, aggregate bool) *Fact {
	fact := &Fact{
		LocationID:   loc.ID,
		LocationName: loc.Name,
		Level:        loc.Level,
		MetricName:   record.MetricName,
		Value:        record.Value,
		Unit:         record.Unit,
		Year:         record.AssessmentYear,
		Aggregate:    aggregate,
	}
	if record.MetricName == MetricStageOfExtraction {
		fact.Status = ClassifyStage(record.Value)
	}
	return fact
}
