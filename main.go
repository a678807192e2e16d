package main

import (
	"log"
	"os"

	"ingres_back/answer"
	"ingres_back/knowledge"
	"ingres_back/locations"
	"ingres_back/storage"
	"ingres_back/websearch"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func mustLoadEnv() {
	_ = godotenv.Load()
}

func main() {
	mustLoadEnv()

	r := gin.Default()
	r.Use(cors.Default())

	docStorage, err := storage.NewDocumentStorageFromEnv()
	if err != nil {
		log.Fatalf("init document storage: %v", err)
	}
	if docStorage == nil {
		log.Println("document storage disabled: MINIO_* environment variables not set")
	}

	locModule, err := locations.RegisterRoutes(r)
	if err != nil {
		log.Fatalf("register groundwater routes: %v", err)
	}

	knowledgeModule, err := knowledge.RegisterRoutes(r, docStorage)
	if err != nil {
		log.Fatalf("register document routes: %v", err)
	}

	webClient := websearch.NewClientFromEnv()
	if !webClient.Enabled() {
		log.Println("web fallback disabled: WEBSEARCH_API_KEY not set")
	}

	if _, err := answer.RegisterRoutes(r, locModule.Service(), knowledgeModule.Service(), webClient); err != nil {
		log.Fatalf("register chat routes: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Fatalf("start server: %v", err)
	}
}
