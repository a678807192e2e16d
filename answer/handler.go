package answer

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ingres_back/cache"
)

type Module struct {
	composer *Composer
	store    *ConversationStore
	cache    *answerCache
}

// RegisterRoutes wires the question answering pipeline under /chat. A missing
// LLM key disables the renderer, not the endpoint: answers then come from the
// static template.
func RegisterRoutes(router *gin.Engine, structured StructuredSource, semantic SemanticSource, web WebSource) (*Module, error) {
	db, err := openDatabaseFromEnv()
	if err != nil {
		return nil, err
	}
	store, err := NewConversationStore(db)
	if err != nil {
		return nil, err
	}
	if err := store.AutoMigrate(); err != nil {
		return nil, err
	}

	var renderer Renderer
	if client, err := NewChatClientFromEnv(); err != nil {
		log.Printf("answer: renderer disabled: %v", err)
	} else {
		renderer = client
	}

	redisClient, err := cache.GetRedisClient()
	if err != nil {
		log.Printf("answer: cache disabled: %v", err)
	}

	module := &Module{
		composer: NewComposer(structured, semantic, web, renderer),
		store:    store,
		cache:    newAnswerCache(redisClient),
	}

	group := router.Group("/chat")
	{
		group.POST("", module.ask)
		group.GET("/:session", module.history)
		group.DELETE("/:session", module.clear)
	}
	return module, nil
}

type askRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Language  string `json:"language"`
}

func (m *Module) ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	question := strings.TrimSpace(req.Query)
	if question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx := c.Request.Context()
	conv, err := m.store.EnsureConversation(ctx, sessionID, question)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	history, err := m.store.History(ctx, sessionID, defaultHistoryLimit)
	if err != nil {
		log.Printf("answer: load history: %v", err)
		history = nil
	}

	if err := m.store.Append(ctx, conv.ID, RoleUser, question, nil); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	answer := m.cache.Get(ctx, sessionID, question)
	if answer == nil {
		answer = m.composer.Compose(ctx, ComposeRequest{
			Question: question,
			Language: req.Language,
			History:  history,
		})
		m.cache.Set(ctx, sessionID, question, answer)
	}

	if err := m.store.Append(ctx, conv.ID, RoleAssistant, answer.Text, answer.Sources); err != nil {
		log.Printf("answer: persist assistant message: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"answer":     answer.Text,
		"sources":    answer.Sources,
		"ambiguous":  answer.Ambiguous,
		"fallback":   answer.Fallback,
	})
}

func (m *Module) history(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	messages, err := m.store.History(c.Request.Context(), sessionID, defaultHistoryLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "messages": messages})
}

func (m *Module) clear(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session id is required"})
		return
	}
	if err := m.store.Clear(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": sessionID})
}
