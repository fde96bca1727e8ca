// @title           Droply API
// @version         1.0
// @description     Per-user hierarchical file and folder metadata store with object storage.
// @host            localhost
// @schemes         http https
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gitpranav05/droply/internal/api"
	"github.com/gitpranav05/droply/internal/config"
	"github.com/gitpranav05/droply/internal/database"
	"github.com/gitpranav05/droply/internal/storage"
	"github.com/gitpranav05/droply/internal/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/gitpranav05/droply/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Cannot load configuration: %v", err)
	}

	dbpool, err := pgxpool.New(context.Background(), cfg.DB.Source)
	if err != nil {
		log.Fatalf("Cannot connect to the database: %v", err)
	}
	defer dbpool.Close()

	if err := dbpool.Ping(context.Background()); err != nil {
		log.Fatalf("Cannot ping the database: %v", err)
	}
	log.Println("Successfully connected to the database")

	localStorage, err := storage.NewLocalStorage(cfg.Storage.Path)
	if err != nil {
		log.Fatalf("Cannot initialize local storage: %v", err)
	}
	log.Printf("Objects will be stored in: %s", cfg.Storage.Path)

	wsHub := websocket.NewHub()
	go wsHub.Run()

	store := database.NewStore(dbpool)
	server := api.NewServer(cfg, store, localStorage, wsHub)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(api.MetricsMiddleware)

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("https://localhost/swagger/doc.json"),
	))

	r.Get("/ws", server.ServeWsHandler)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Droply API is running! Documentation available at /swagger/index.html"))
	})

	r.Get("/health", server.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(server.AuthMiddleware)
		r.Get("/nodes", server.ListNodesHandler)
		r.Post("/nodes/folder", server.CreateFolderHandler)
		r.Post("/nodes/file", server.UploadFileHandler)
		r.Get("/nodes/{nodeId}/download", server.DownloadFileHandler)
		r.Put("/nodes/{nodeId}/content", server.ReplaceContentHandler)
		r.Get("/nodes/{nodeId}/breadcrumbs", server.BreadcrumbsHandler)
		r.Patch("/nodes/{nodeId}", server.UpdateNodeHandler)
		r.Delete("/nodes/{nodeId}", server.TrashNodeHandler)
		r.Delete("/nodes/{nodeId}/permanent", server.PermanentDeleteHandler)
		r.Post("/nodes/{nodeId}/restore", server.RestoreNodeHandler)
		r.Post("/nodes/{nodeId}/star", server.StarNodeHandler)
		r.Delete("/nodes/{nodeId}/star", server.UnstarNodeHandler)
		r.Get("/starred", server.ListStarredHandler)
		r.Get("/trash", server.ListTrashHandler)
		r.Delete("/trash/purge", server.PurgeTrashHandler)
		r.Get("/events", server.GetEventsHandler)
	})

	log.Printf("Starting server on %s", cfg.AppHost)
	if err := http.ListenAndServe(cfg.AppHost, r); err != nil {
		log.Fatalf("Cannot start server: %v", err)
	}
}
