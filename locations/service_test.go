package locations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	service, err := NewService(db)
	require.NoError(t, err)
	require.NoError(t, service.AutoMigrate())
	return service
}

func seedHierarchy(t *testing.T, s *Service) {
	t.Helper()
	state := Location{ID: 1, Level: LevelState, Name: "Madhya Pradesh", NameFolded: FoldName("Madhya Pradesh")}
	stateID := state.ID
	district := Location{ID: 2, ParentID: &stateID, Level: LevelDistrict, Name: "Bhopal", NameFolded: FoldName("Bhopal")}
	districtID := district.ID
	unit := Location{ID: 3, ParentID: &districtID, Level: LevelUnit, Name: "Berasia", NameFolded: FoldName("Berasia")}
	require.NoError(t, s.db.Create(&state).Error)
	require.NoError(t, s.db.Create(&district).Error)
	require.NoError(t, s.db.Create(&unit).Error)

	records := []AssessmentRecord{
		{LocationID: 2, MetricName: MetricStageOfExtraction, AssessmentYear: 2023, Value: 72, Unit: "%"},
		{LocationID: 2, MetricName: MetricStageOfExtraction, AssessmentYear: 2020, Value: 68, Unit: "%"},
		{LocationID: 1, MetricName: MetricStageOfExtraction, AssessmentYear: 2023, Value: 65, Unit: "%"},
		{LocationID: 1, MetricName: MetricRainfall, AssessmentYear: 2023, Value: 940, Unit: "mm"},
	}
	require.NoError(t, s.db.Create(&records).Error)
}

func TestLookupLatestYear(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	fact, err := s.Lookup(context.Background(), 2, MetricStageOfExtraction, nil)
	require.NoError(t, err)
	assert.Equal(t, 2023, fact.Year)
	assert.Equal(t, 72.0, fact.Value)
	assert.Equal(t, StatusSemiCritical, fact.Status)
	assert.False(t, fact.Aggregate)
}

func TestLookupSpecificYear(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	year := 2020
	fact, err := s.Lookup(context.Background(), 2, MetricStageOfExtraction, &year)
	require.NoError(t, err)
	assert.Equal(t, 68.0, fact.Value)
	assert.Equal(t, StatusSafe, fact.Status)
}

func TestLookupFallsBackToParent(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	// Berasia has no records of its own, so the district figure is used.
	fact, err := s.Lookup(context.Background(), 3, MetricStageOfExtraction, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bhopal", fact.LocationName)
	assert.True(t, fact.Aggregate)
}

func TestLookupNoRecordAnywhere(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	_, err := s.Lookup(context.Background(), 3, "net_availability", nil)
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestAnswerQuestionStageOfExtraction(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	facts, ambiguous, err := s.AnswerQuestion(context.Background(), "What is the stage of extraction in Bhopal?", "")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.False(t, ambiguous)
	assert.Equal(t, 72.0, facts[0].Value)
	assert.Equal(t, StatusSemiCritical, facts[0].Status)
}

func TestAnswerQuestionRainfallMetric(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	facts, _, err := s.AnswerQuestion(context.Background(), "How much rainfall did Madhya Pradesh get?", "")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, MetricRainfall, facts[0].MetricName)
	assert.Equal(t, 940.0, facts[0].Value)
	assert.Empty(t, facts[0].Status)
}

func TestAnswerQuestionYearInText(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	facts, _, err := s.AnswerQuestion(context.Background(), "stage of extraction for Bhopal in 2020", "")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 2020, facts[0].Year)
}

func TestAnswerQuestionUsesHint(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	facts, _, err := s.AnswerQuestion(context.Background(), "and what about the extraction stage?", "tell me about Bhopal")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "Bhopal", facts[0].LocationName)
}

func TestAnswerQuestionNoLocation(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	_, _, err := s.AnswerQuestion(context.Background(), "how do borewells work?", "")
	assert.ErrorIs(t, err, ErrNoLocation)
}

func TestAnswerQuestionAmbiguousDistricts(t *testing.T) {
	s := newTestService(t)

	tg := Location{ID: 10, Level: LevelState, Name: "Telangana", NameFolded: FoldName("Telangana")}
	mh := Location{ID: 11, Level: LevelState, Name: "Maharashtra", NameFolded: FoldName("Maharashtra")}
	require.NoError(t, s.db.Create(&tg).Error)
	require.NoError(t, s.db.Create(&mh).Error)
	tgID, mhID := tg.ID, mh.ID
	d1 := Location{ID: 12, ParentID: &tgID, Level: LevelDistrict, Name: "Aurangabad", NameFolded: FoldName("Aurangabad")}
	d2 := Location{ID: 13, ParentID: &mhID, Level: LevelDistrict, Name: "Aurangabad", NameFolded: FoldName("Aurangabad")}
	require.NoError(t, s.db.Create(&d1).Error)
	require.NoError(t, s.db.Create(&d2).Error)

	records := []AssessmentRecord{
		{LocationID: 12, MetricName: MetricStageOfExtraction, AssessmentYear: 2023, Value: 95, Unit: "%"},
		{LocationID: 13, MetricName: MetricStageOfExtraction, AssessmentYear: 2023, Value: 55, Unit: "%"},
	}
	require.NoError(t, s.db.Create(&records).Error)

	facts, ambiguous, err := s.AnswerQuestion(context.Background(), "stage of extraction in Aurangabad", "")
	require.NoError(t, err)
	assert.True(t, ambiguous)
	assert.Len(t, facts, 2)
}

func TestSearchLocations(t *testing.T) {
	s := newTestService(t)
	seedHierarchy(t, s)

	found, err := s.SearchLocations(context.Background(), "bho", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Bhopal", found[0].Name)
}
