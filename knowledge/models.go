package knowledge

import (
	"time"

	"gorm.io/datatypes"
)

// Document categories mirror the citizen-document taxonomy of the upload UI.
const (
	CategoryIDProof   = "id_proof"
	CategoryBill      = "bill"
	CategoryScheme    = "scheme"
	CategoryHealth    = "health"
	CategoryEducation = "education"
	CategoryLegal     = "legal"
	CategoryFinancial = "financial"
	CategoryOther     = "other"
)

type Document struct {
	ID        uint64         `gorm:"primaryKey" json:"id"`
	OwnerID   uint64         `gorm:"not null;index:idx_owner_document" json:"owner_id"`
	Title     string         `gorm:"size:200;not null" json:"title"`
	Filename  *string        `gorm:"size:255" json:"filename,omitempty"`
	ObjectKey *string        `gorm:"size:255" json:"object_key,omitempty"`
	Category  string         `gorm:"size:32;not null;default:'other';index" json:"category"`
	Tags      datatypes.JSON `gorm:"type:json" json:"tags,omitempty"`
	Content   string         `gorm:"type:mediumtext;not null" json:"content"`
	// LocalOnly documents are never indexed for search; a hard invariant, not a preference.
	LocalOnly bool      `gorm:"not null;default:false;index" json:"local_only"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Document) TableName() string {
	return "gw_documents"
}

type Chunk struct {
	ID         uint64 `gorm:"primaryKey" json:"id"`
	DocumentID uint64 `gorm:"not null;index:idx_document_seq" json:"document_id"`
	OwnerID    uint64 `gorm:"not null;index" json:"owner_id"`
	Seq        int    `gorm:"not null;index:idx_document_seq" json:"seq"`
	Text       string `gorm:"type:text;not null" json:"text"`
	VectorID   string `gorm:"size:128;not null;uniqueIndex" json:"vector_id"`
	CharCount  int    `gorm:"not null;default:0" json:"char_count"`
	// NeedsReindex marks chunks stored without an embedding; they stay
	// lexical-search-only until a reindex pass succeeds.
	NeedsReindex bool           `gorm:"not null;default:false;index" json:"needs_reindex"`
	Category     string         `gorm:"size:32;not null;default:'other';index" json:"category"`
	Tags         datatypes.JSON `gorm:"type:json" json:"tags,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Chunk) TableName() string {
	return "gw_document_chunks"
}

// SearchResult is one ranked chunk returned by Search, with provenance.
type SearchResult struct {
	DocumentID uint64   `json:"document_id"`
	ChunkID    uint64   `json:"chunk_id"`
	Title      string   `json:"title"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags,omitempty"`
	Seq        int      `json:"seq"`
	Text       string   `json:"text"`
	Score      float64  `json:"score"`
	// Lexical marks keyword-only matches from chunks without embeddings.
	Lexical  bool      `json:"lexical"`
	Uploaded time.Time `json:"uploaded"`
}
