package main

import (
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"

	"lecture-notes-api/config"
	"lecture-notes-api/internal/helpers"
	"lecture-notes-api/internal/logging"
	"lecture-notes-api/internal/notes"
	"lecture-notes-api/internal/pipeline"
	"lecture-notes-api/internal/stager"
	"lecture-notes-api/internal/store"
	"lecture-notes-api/internal/transcription"
	"lecture-notes-api/internal/web"
)

func main() {
	helpers.LoadEnv()
	log := logging.New().WithField("service", "lecture-notes-api")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	// Set up mysql connection
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		log.WithError(err).Fatal("error opening database")
	}
	s := store.New(db)
	if err := s.GetDB().Ping(); err != nil {
		log.WithError(err).Fatal("error pinging database")
	}
	if err := s.EnsureSchema(); err != nil {
		log.WithError(err).Fatal("error ensuring schema")
	}
	log.Info("database ready")

	// Staged assets live on local disk unless an S3 bucket is configured
	var assets stager.Stager
	if cfg.Storage.S3Bucket != "" {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Storage.S3Region)})
		if err != nil {
			log.WithError(err).Fatal("error creating AWS session")
		}
		assets = stager.NewS3(sess, cfg.Storage.S3Bucket)
		log.WithField("bucket", cfg.Storage.S3Bucket).Info("staging uploads in S3")
	} else {
		local, err := stager.NewLocal(cfg.Storage.UploadDir)
		if err != nil {
			log.WithError(err).Fatal("error creating upload dir")
		}
		assets = local
		log.WithField("dir", cfg.Storage.UploadDir).Info("staging uploads on local disk")
	}

	stt := transcription.NewClient(cfg.AssemblyAI, cfg.Pipeline)
	synth := notes.NewSynthesizer(cfg.Gemini)
	coordinator := pipeline.NewCoordinator(s, stt, synth, assets, cfg.Pipeline.MaxConcurrentRuns)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(web.RequestLogger())
	r.Use(web.MaxBodySize(cfg.MaxUploadBytes + 1024*1024))
	r.Use(web.CORS())

	api := web.NewAPI(cfg, s, assets, coordinator)
	web.RegisterRoutes(r, api)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.WithField("addr", addr).Info("listening")
	if err := r.Run(addr); err != nil {
		log.WithError(err).Fatal("server terminated")
	}
}
