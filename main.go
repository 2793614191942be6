package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kiko-backend/audio"
	"kiko-backend/cache"
	"kiko-backend/config"
	"kiko-backend/db"
	"kiko-backend/handler"
	"kiko-backend/hub"
	"kiko-backend/mapping"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

func main() {
	// Running without a .env file is normal in deployed environments.
	envLoaded := godotenv.Load() == nil

	cfg := config.Load()
	log := config.InitLogger(cfg.LogLevel)
	if !envLoaded {
		log.Debug("no .env file, using process environment")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	conn, err := db.Open(cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
	if err != nil {
		log.WithError(err).Fatal("connecting to database")
	}
	if err := db.Migrate(conn); err != nil {
		log.WithError(err).Fatal("running migrations")
	}

	// Cache: Redis primary with an in-process fallback. If Redis is down at
	// startup the server still comes up, memory-only.
	var backend cache.Backend
	if redisBackend, err := cache.NewRedisBackendFromURL(ctx, cfg.RedisURL); err != nil {
		log.WithError(err).Warn("redis unavailable, starting with in-memory cache only")
		backend = cache.NewMemoryBackend()
	} else {
		backend = cache.NewFallback(redisBackend, log)
	}
	cacheMgr := cache.NewManager(backend)

	// Domain services
	resolver := audio.NewCDNResolver(cfg.StreamBaseURL, cfg.StreamURLTTL)
	audioSvc := audio.NewService(conn, cacheMgr, resolver, log)
	mappingStore := mapping.NewStore(conn, log).WithCache(cacheMgr)

	// Sync hub: one room per script. Mapping edits committed through the
	// store fan out to every connected client in that script's room.
	syncHub := hub.NewHub(log, cfg.HeartbeatInterval, cfg.HeartbeatMisses)
	go syncHub.Run(ctx)
	mappingStore.OnChange(func(ev mapping.ChangeEvent) {
		syncHub.BroadcastMappingUpdate(ev.ScriptID.String(), ev.SentenceID.String(), ev.StartTime, ev.EndTime, ev.MappingType, ev.Deactivated)
	})

	audioHandler := handler.NewAudioHandler(audioSvc, log)
	mappingHandler := handler.NewMappingHandler(mappingStore, log)

	r := mux.NewRouter()
	r.Use(handler.SecurityHeaders)
	r.Use(handler.RequestLogger(log))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/audio/stream/{scriptId}", audioHandler.GetStream).Methods("GET")
	api.HandleFunc("/audio/prepare/{scriptId}", audioHandler.Prepare).Methods("POST")
	api.HandleFunc("/audio/play", audioHandler.Play).Methods("POST")
	api.HandleFunc("/audio/progress", audioHandler.Progress).Methods("PUT")
	api.HandleFunc("/audio/seek", audioHandler.Seek).Methods("POST")
	api.HandleFunc("/audio/bookmarks", audioHandler.CreateBookmark).Methods("POST")
	api.HandleFunc("/audio/bookmarks/{id}", audioHandler.DeleteBookmark).Methods("DELETE")
	api.HandleFunc("/audio/loop", audioHandler.SetLoop).Methods("POST")
	api.HandleFunc("/audio/loop/{loopId}", audioHandler.CancelLoop).Methods("DELETE")
	api.HandleFunc("/audio/session/{sessionId}", audioHandler.EndSession).Methods("DELETE")

	api.HandleFunc("/sync/mappings/script/{scriptId}", mappingHandler.GetScriptMappings).Methods("GET")
	api.HandleFunc("/sync/mappings/sentence/{sentenceId}", mappingHandler.GetSentenceMapping).Methods("GET")
	api.HandleFunc("/sync/mappings/sentence/{sentenceId}", mappingHandler.UpsertMapping).Methods("PUT")
	api.HandleFunc("/sync/mappings/sentence/{sentenceId}", mappingHandler.DeactivateMapping).Methods("DELETE")
	api.HandleFunc("/sync/mappings/sentence/{sentenceId}/history", mappingHandler.EditHistory).Methods("GET")

	r.HandleFunc("/ws/sync/{scriptId}", func(w http.ResponseWriter, r *http.Request) {
		handler.ServeWS(syncHub, log, w, r)
	})

	server := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Port,
		Handler: r,
	}

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Info("shutting down")
		cancel()
		ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelTimeout()
		server.Shutdown(ctxTimeout)
	}()

	log.WithField("port", cfg.Port).Info("kiko backend listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.WithError(err).Fatal("server error")
	}
}
