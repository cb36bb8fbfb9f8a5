package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"catalog-hand/config"
	"catalog-hand/dedupe"
	"catalog-hand/merge"
	"catalog-hand/models"
	"catalog-hand/services"
	"catalog-hand/storage"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var scanRunsCounter prometheus.Counter

func init() {
	scanRunsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_scan_runs_total",
			Help: "Total number of completed full duplicate scans.",
		},
	)
	prometheus.MustRegister(scanRunsCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to catalog database.")

	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.Author{}, &models.AuthorAlias{},
		&models.Container{}, &models.ContainerAlias{},
		&models.Publication{}, &models.PublicationAuthors{}, &models.PublicationCitations{},
		&models.Platform{}, &models.Sponsor{}, &models.Tag{},
		&models.PublicationPlatforms{}, &models.PublicationSponsors{}, &models.PublicationTags{},
		&models.Raw{}, &models.RawAuthors{},
		&models.AuditCommand{}, &models.AuditLog{},
	)

	store := storage.New(db, logging)

	var finder dedupe.Finder
	switch cfg.DedupeStrategy {
	case "index":
		finder = dedupe.NewIndexFinder(db)
	default:
		finder = dedupe.NewDirectFinder(db)
	}
	curation := services.NewCurationService(cfg, store, finder, logging)

	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	setupPublicationRoutes(router, db, logging)
	setupAuthorRoutes(router, db, logging)
	setupContainerRoutes(router, db, logging)
	setupMergeRoutes(router, curation, logging)
	setupDedupeRoutes(router, db, curation, logging)
	setupAuditRoutes(router, db, s3Client, cfg, logging)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled duplicate scan...")
		summary, err := curation.RunFullScan(context.Background(), cfg.ScanCreator)
		if err != nil {
			logging.Error("Scheduled scan failed", zap.Error(err))
			return
		}
		scanRunsCounter.Inc()
		logging.Info("Scheduled scan completed",
			zap.Int("merged", summary.Merged),
			zap.Int("blocked", summary.Blocked))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupPublicationRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/publications")

	rg.GET("/", func(c *gin.Context) {
		var pubs []models.Publication
		if err := db.Limit(500).Order("id").Find(&pubs).Error; err != nil {
			log.Error("Database query for publications failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, pubs)
	})

	rg.GET("/:id", func(c *gin.Context) {
		var pub models.Publication
		if err := db.First(&pub, c.Param("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "publication not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, pub)
	})

	// Body-gesteuerter Endpunkt für komplexe Abfragen
	rg.POST("/query", func(c *gin.Context) {
		type PublicationQuery struct {
			Status    string `json:"status"`
			DOI       string `json:"doi"`
			IsPrimary *bool  `json:"is_primary"`
			Limit     int    `json:"limit"`
		}

		var req PublicationQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.Publication{})
		if req.Status != "" {
			query = query.Where("status = ?", req.Status)
		}
		if req.DOI != "" {
			query = query.Where("doi = ?", req.DOI)
		}
		if req.IsPrimary != nil {
			query = query.Where("is_primary = ?", *req.IsPrimary)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var pubs []models.Publication
		if err := query.Order("created_at desc").Find(&pubs).Error; err != nil {
			log.Error("Database query for publications failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, pubs)
	})
}

func setupAuthorRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/authors")

	rg.GET("/", func(c *gin.Context) {
		var authors []models.Author
		if err := db.Limit(500).Order("id").Find(&authors).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, authors)
	})

	rg.GET("/:id/aliases", func(c *gin.Context) {
		var aliases []models.AuthorAlias
		if err := db.Where("author_id = ?", c.Param("id")).Order("id").Find(&aliases).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, aliases)
	})
}

func setupContainerRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/containers")

	rg.GET("/", func(c *gin.Context) {
		var containers []models.Container
		if err := db.Limit(500).Order("id").Find(&containers).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, containers)
	})

	rg.GET("/:id/aliases", func(c *gin.Context) {
		var aliases []models.ContainerAlias
		if err := db.Where("container_id = ?", c.Param("id")).Order("id").Find(&aliases).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, aliases)
	})
}

func setupMergeRoutes(router *gin.Engine, curation *services.CurationService, log *zap.Logger) {
	rg := router.Group("/merge")

	type MergeRequest struct {
		IDs     []uint `json:"ids" binding:"required"`
		Creator string `json:"creator" binding:"required"`
		Force   bool   `json:"force"`
	}

	rg.POST("/authors", func(c *gin.Context) {
		var req MergeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := curation.MergeAuthors(c.Request.Context(), req.IDs, req.Creator, req.Force); err != nil {
			log.Error("Author merge failed", zap.Uints("ids", req.IDs), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"merged": req.IDs})
	})

	rg.POST("/containers", func(c *gin.Context) {
		var req MergeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		conflict, err := curation.MergeContainers(c.Request.Context(), req.IDs, req.Creator, req.Force)
		if err != nil {
			log.Error("Container merge failed", zap.Uints("ids", req.IDs), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if conflict != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "validation failed", "issns": conflict.ISSNs})
			return
		}
		c.JSON(http.StatusOK, gin.H{"merged": req.IDs})
	})

	rg.POST("/publications", func(c *gin.Context) {
		var req MergeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		report, err := curation.MergePublications(c.Request.Context(), req.IDs, req.Creator, req.Force)
		if err != nil {
			log.Error("Publication merge failed", zap.Uints("ids", req.IDs), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if report != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "validation failed", "report": reportPayload(report)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"merged": req.IDs})
	})
}

// reportPayload macht den Validierungsbefund JSON-tauglich, Slot für
// Slot, damit der Kurator sieht, was genau blockiert.
func reportPayload(report *merge.ValidationReport) gin.H {
	payload := gin.H{}
	if len(report.CitationCounts) > 0 {
		counts := map[string][]uint{}
		for count, ids := range report.CitationCounts {
			counts[strconv.FormatInt(count, 10)] = ids
		}
		payload["citation_counts"] = counts
	}
	if len(report.SharedReferrers) > 0 {
		payload["shared_referrers"] = report.SharedReferrers
	}
	if report.ContainerConflict != nil {
		payload["container_conflict"] = gin.H{
			"issns": report.ContainerConflict.ISSNs,
		}
	}
	if report.ContainerClosure != nil {
		payload["container_closure"] = report.ContainerClosure
	}
	if len(report.OutsideAuthors) > 0 {
		payload["outside_authors"] = report.OutsideAuthors
	}
	return payload
}

func setupDedupeRoutes(router *gin.Engine, db *gorm.DB, curation *services.CurationService, log *zap.Logger) {
	rg := router.Group("/dedupe")

	rg.POST("/scan", func(c *gin.Context) {
		creator := c.DefaultQuery("creator", curation.Config.ScanCreator)
		go func() {
			summary, err := curation.RunFullScan(context.Background(), creator)
			if err != nil {
				log.Error("Async duplicate scan failed", zap.Error(err))
				return
			}
			scanRunsCounter.Inc()
			log.Info("Async duplicate scan completed",
				zap.Int("merged", summary.Merged),
				zap.Int("blocked", summary.Blocked))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Duplicate scan triggered."})
	})

	rg.GET("/mergesets/:kind", func(c *gin.Context) {
		var (
			set dedupe.MergeSet
			err error
		)
		switch c.Param("kind") {
		case "doi":
			set, err = dedupe.CreatePublicationMergesetByDOI(c.Request.Context(), db)
		case "title":
			set, err = dedupe.CreatePublicationMergesetByTitles(c.Request.Context(), db)
		case "issn":
			set, err = dedupe.CreateContainerMergesetByISSN(c.Request.Context(), db)
		case "name":
			set, err = dedupe.CreateAuthorMergesetByName(c.Request.Context(), db)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown mergeset kind"})
			return
		}
		if err != nil {
			log.Error("Mergeset query failed", zap.String("kind", c.Param("kind")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, set)
	})
}

func setupAuditRoutes(router *gin.Engine, db *gorm.DB, s3Client *s3.Client, cfg *config.Config, log *zap.Logger) {
	rg := router.Group("/audit")

	rg.GET("/commands", func(c *gin.Context) {
		var commands []models.AuditCommand
		query := db.Order("id desc").Limit(200)
		if action := c.Query("action"); action != "" {
			query = query.Where("action = ?", action)
		}
		if err := query.Find(&commands).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, commands)
	})

	rg.GET("/commands/:id/logs", func(c *gin.Context) {
		var logs []models.AuditLog
		if err := db.Where("audit_command_id = ?", c.Param("id")).Order("id").Find(&logs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, logs)
	})

	// Ledger einer einzelnen Zeile, älteste zuerst (Replay-Reihenfolge)
	rg.GET("/trail/:table/:id", func(c *gin.Context) {
		var logs []models.AuditLog
		err := db.Where("table_name = ? AND row_id = ?", c.Param("table"), c.Param("id")).
			Order("id").
			Find(&logs).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, logs)
	})

	// Offsite-Kopie des Ledgers
	rg.POST("/export", func(c *gin.Context) {
		var logs []models.AuditLog
		if err := db.Order("id").Find(&logs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		data, err := json.Marshal(logs)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "serialization error"})
			return
		}
		key := fmt.Sprintf("audit-export-%s.json", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
		link, err := storage.UploadFile(s3Client, cfg.S3Bucket, key, data, cfg)
		if err != nil {
			log.Error("Audit export upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"link": link, "entries": len(logs)})
	})
}
