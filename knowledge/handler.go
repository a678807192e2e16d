package knowledge

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"ingres_back/storage"
)

type Module struct {
	service    *Service
	docStorage *storage.DocumentStorage
}

// RegisterRoutes wires the document knowledge base under /documents.
func RegisterRoutes(router *gin.Engine, docStorage *storage.DocumentStorage) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}

	service, err := NewServiceFromEnv(db)
	if err != nil {
		return nil, err
	}
	if err := service.AutoMigrate(); err != nil {
		return nil, err
	}

	module := &Module{service: service, docStorage: docStorage}

	group := router.Group("/documents")
	{
		group.POST("", module.upload)
		group.GET("", module.list)
		group.GET("/search", module.search)
		group.POST("/reindex", module.reindex)
		group.GET("/:id", module.get)
		group.GET("/:id/download", module.download)
		group.PATCH("/:id", module.update)
		group.POST("/:id/reingest", module.reingest)
		group.DELETE("/:id", module.remove)
	}
	return module, nil
}

// Service exposes the underlying knowledge service to other modules.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) upload(c *gin.Context) {
	ownerID, ok := parseOwnerID(c, c.PostForm("owner_id"))
	if !ok {
		return
	}

	input := DocumentInput{
		OwnerID:   ownerID,
		Title:     strings.TrimSpace(c.PostForm("title")),
		Category:  strings.TrimSpace(c.PostForm("category")),
		Tags:      splitTags(c.PostForm("tags")),
		LocalOnly: strings.EqualFold(strings.TrimSpace(c.PostForm("local_only")), "true"),
	}

	fileHeader, err := c.FormFile("file")
	if err == nil && fileHeader != nil {
		src, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
			return
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
			return
		}

		input.Filename = fileHeader.Filename
		content, err := ExtractText(fileHeader.Filename, data)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		input.Content = content

		if m.docStorage.Enabled() {
			objectKey, err := m.docStorage.Upload(c.Request.Context(), ownerID, fileHeader, data)
			if err != nil {
				// Losing the original blob is survivable; the extracted text is not.
				log.Printf("knowledge: store original upload: %v", err)
			} else {
				input.ObjectKey = objectKey
			}
		}
	} else {
		input.Content = c.PostForm("content")
	}

	result, err := m.service.Ingest(c.Request.Context(), input)
	if err != nil {
		if errors.Is(err, ErrEmptyContent) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "document has no extractable content"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (m *Module) list(c *gin.Context) {
	ownerID, ok := parseOwnerID(c, c.Query("owner_id"))
	if !ok {
		return
	}
	docs, err := m.service.ListDocuments(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

func (m *Module) get(c *gin.Context) {
	docID, ok := parseDocumentID(c)
	if !ok {
		return
	}
	doc, err := m.service.GetDocument(c.Request.Context(), docID)
	if err != nil {
		respondDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (m *Module) download(c *gin.Context) {
	docID, ok := parseDocumentID(c)
	if !ok {
		return
	}
	doc, err := m.service.GetDocument(c.Request.Context(), docID)
	if err != nil {
		respondDocumentError(c, err)
		return
	}
	if doc.ObjectKey == nil || !m.docStorage.Enabled() {
		c.JSON(http.StatusNotFound, gin.H{"error": "original file is not stored"})
		return
	}
	link, err := m.docStorage.PresignedURL(c.Request.Context(), *doc.ObjectKey, 15*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

func (m *Module) update(c *gin.Context) {
	docID, ok := parseDocumentID(c)
	if !ok {
		return
	}
	var changes DocumentUpdate
	if err := c.ShouldBindJSON(&changes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	doc, err := m.service.UpdateDocument(c.Request.Context(), docID, changes)
	if err != nil {
		if errors.Is(err, ErrEmptyContent) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "document has no extractable content"})
			return
		}
		respondDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (m *Module) reingest(c *gin.Context) {
	docID, ok := parseDocumentID(c)
	if !ok {
		return
	}
	result, err := m.service.Reingest(c.Request.Context(), docID)
	if err != nil {
		respondDocumentError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (m *Module) reindex(c *gin.Context) {
	count, err := m.service.ReindexPending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reindexed": count})
}

func (m *Module) remove(c *gin.Context) {
	docID, ok := parseDocumentID(c)
	if !ok {
		return
	}
	objectKey, err := m.service.DeleteDocument(c.Request.Context(), docID)
	if err != nil {
		respondDocumentError(c, err)
		return
	}
	if objectKey != "" && m.docStorage.Enabled() {
		if err := m.docStorage.Remove(c.Request.Context(), objectKey); err != nil {
			log.Printf("knowledge: remove stored file %s: %v", objectKey, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": docID})
}

func (m *Module) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q query parameter is required"})
		return
	}

	filters := SearchFilters{
		Category: strings.TrimSpace(c.Query("category")),
		Tags:     splitTags(c.Query("tags")),
	}
	if from, ok := parseDateParam(c, "from"); ok {
		filters.From = from
	} else {
		return
	}
	if to, ok := parseDateParam(c, "to"); ok {
		filters.To = to
	} else {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	results, err := m.service.Search(c.Request.Context(), query, filters, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func parseOwnerID(c *gin.Context, raw string) (uint64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return 0, false
	}
	ownerID, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil || ownerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id must be a positive integer"})
		return 0, false
	}
	return ownerID, true
}

func parseDocumentID(c *gin.Context) (uint64, bool) {
	docID, err := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if err != nil || docID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return 0, false
	}
	return docID, true
}

func parseDateParam(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be formatted as YYYY-MM-DD"})
		return nil, false
	}
	if name == "to" {
		end := parsed.Add(24*time.Hour - time.Nanosecond)
		return &end, true
	}
	return &parsed, true
}

func respondDocumentError(c *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
