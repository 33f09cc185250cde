// The upstream binary is a development stand-in for the remote
// directory/attendance service. It speaks the exact wire contract the
// gateway's directory client consumes: one base path answering a user
// listing, attendance submissions, and per-record history.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"asistencia/internal/config"
	"asistencia/internal/directory"
	"asistencia/internal/roster"
	"asistencia/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("upstream failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := ensureSchema(db); err != nil {
		return err
	}

	repo := roster.NewRepository(db.Client)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The production service multiplexes everything over one path; the
	// record query parameter selects history over the user listing.
	r.GET("/api/examen", func(c *gin.Context) {
		if recordQ := c.Query("record"); recordQ != "" {
			recordID, err := strconv.ParseInt(recordQ, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "record must be an integer"})
				return
			}
			rows, err := repo.ListAttendance(c.Request.Context(), recordID)
			if err != nil {
				log.Error("list attendance failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"data": rows})
			return
		}

		users, err := repo.ListUsers(c.Request.Context())
		if err != nil {
			log.Error("list users failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
			return
		}
		if users == nil {
			users = []directory.User{}
		}
		c.JSON(http.StatusOK, users)
	})

	r.POST("/api/examen", func(c *gin.Context) {
		var req struct {
			RecordUser int64 `json:"record_user" binding:"required"`
			JoinUser   int64 `json:"join_user" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		row, err := repo.InsertAttendance(c.Request.Context(), req.RecordUser)
		if errors.Is(err, roster.ErrUnknownRecord) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown record id"})
			return
		}
		if err != nil {
			log.Error("insert attendance failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "insert failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "attendance recorded at " + row.JoinDate,
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.UpstreamPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("upstream listening", zap.String("port", cfg.UpstreamPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func ensureSchema(db *store.DB) error {
	_, err := db.Client.Exec(`
		CREATE TABLE IF NOT EXISTS roster_users (
			record      BIGSERIAL PRIMARY KEY,
			national_id TEXT NOT NULL,
			lastnames   TEXT NOT NULL DEFAULT '',
			names       TEXT NOT NULL DEFAULT '',
			mail        TEXT NOT NULL DEFAULT '',
			phone       TEXT NOT NULL DEFAULT '',
			username    TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS attendance_events (
			id          UUID PRIMARY KEY,
			record_user BIGINT NOT NULL REFERENCES roster_users(record),
			join_user   BIGINT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS attendance_events_record_idx
			ON attendance_events (record_user, occurred_at);
	`)
	return err
}
