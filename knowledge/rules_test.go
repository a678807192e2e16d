package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggestCategory(t *testing.T) {
	cases := []struct {
		filename string
		title    string
		want     string
	}{
		{"aadhaar-card.pdf", "", CategoryIDProof},
		{"electricity invoice march.pdf", "", CategoryBill},
		{"", "Atal Bhujal Yojana guidelines", CategoryScheme},
		{"vaccination-record.pdf", "", CategoryHealth},
		{"degree certificate.pdf", "", CategoryEducation},
		{"land patta.pdf", "", CategoryLegal},
		{"kisan credit statement.pdf", "", CategoryFinancial},
		{"notes.txt", "random notes", CategoryOther},
		{"", "", CategoryOther},
	}
	for _, tc := range cases {
		category, _ := SuggestCategory(tc.filename, tc.title)
		assert.Equal(t, tc.want, category, "filename=%q title=%q", tc.filename, tc.title)
	}
}

func TestSuggestCategoryFirstMatchWins(t *testing.T) {
	// Mentions both an id proof and a bill; the id proof rule is evaluated first.
	category, tags := SuggestCategory("aadhaar and electricity bill.pdf", "")
	assert.Equal(t, CategoryIDProof, category)
	assert.Equal(t, []string{"identity"}, tags)
}

func TestValidCategory(t *testing.T) {
	assert.True(t, ValidCategory("scheme"))
	assert.True(t, ValidCategory(" Health "))
	assert.False(t, ValidCategory("unknown"))
	assert.False(t, ValidCategory(""))
}
