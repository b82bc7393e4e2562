package server

import (
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ilyshalit/mebel1/internal/api"
	"github.com/ilyshalit/mebel1/internal/files"
)

// New constructs the HTTP server with routes and middleware. webDir holds
// the browser client; pass "" to serve the API only.
func New(port string, handler api.Handler, store *files.Store, webDir string) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Route("/api", func(r chi.Router) {
		r.Post("/upload/room", handler.UploadRoom)
		r.Post("/upload/furniture", handler.UploadFurniture)
		r.Post("/generate", handler.Generate)
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", handler.ListCatalog)
			r.Post("/", handler.AddCatalogItem)
			r.Get("/{item_id}", handler.GetCatalogItem)
			r.Delete("/{item_id}", handler.DeleteCatalogItem)
		})
		r.Post("/analyze-room-replace", handler.AnalyzeRoomReplace)
		r.Post("/upsell", handler.RecommendUpsell)
		r.Get("/health", handler.Health)
	})

	mountDir(router, "/uploads", store.UploadsDir)
	mountDir(router, "/results", store.ResultsDir)
	mountDir(router, "/catalog", store.CatalogDir)

	router.Get("/", handler.Root)
	if webDir != "" {
		router.Get("/app", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(webDir, "index.html"))
		})
		mountDir(router, "/static", filepath.Join(webDir, "static"))
	}

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Generation blocks the connection for the provider's latency.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Println("server ready on", srv.Addr)
	return srv
}

func mountDir(router chi.Router, prefix, dir string) {
	fs := http.StripPrefix(prefix, http.FileServer(http.Dir(dir)))
	router.Get(prefix+"/*", fs.ServeHTTP)
}
