package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"

	"popdesk/internal/caching"
	"popdesk/internal/config"
	"popdesk/internal/handlers"
	"popdesk/internal/jobs"
	"popdesk/internal/middleware"
	"popdesk/internal/repositories"
	"popdesk/internal/services"
	"popdesk/internal/sheets"
	"popdesk/internal/staging"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Spreadsheet.SheetID == "" {
		log.Fatal("SHEET_ID (or spreadsheet.sheet_id in the config file) is required")
	}
	if cfg.Spreadsheet.CredentialsFile == "" {
		log.Fatal("GOOGLE_APPLICATION_CREDENTIALS is required")
	}

	jwtSecret := cfg.Server.JWTSecret
	if jwtSecret == "" {
		jwtSecret = random.String(32) // Sessions will not survive a restart
		log.Printf("WARNING: JWT_SECRET not set, using a generated secret")
	}

	// Spreadsheet backend
	credentials, err := os.ReadFile(cfg.Spreadsheet.CredentialsFile)
	if err != nil {
		log.Fatalf("Failed to read service account credentials: %v", err)
	}
	store, err := sheets.NewClient(context.Background(), credentials)
	if err != nil {
		log.Fatalf("Failed to initialize spreadsheet client: %v", err)
	}

	clock := clockwork.NewRealClock()

	// Caches and staging
	cacheSvc := caching.NewRedisCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	snapshotCache := caching.NewSnapshotCache(store, cfg.CacheTTL(), clock)
	stage := staging.New(staging.DefaultTTL, clock)

	// Optional upload/export archive
	var archiveSvc services.ArchiveService
	if cfg.Minio.Endpoint != "" {
		archiveSvc, err = services.NewMinioArchive(cfg.Minio.Endpoint, cfg.Minio.AccessKey,
			cfg.Minio.SecretKey, cfg.Minio.UseSSL, cfg.Minio.Bucket)
		if err != nil {
			log.Printf("WARN: archive storage unavailable, continuing without it: %v", err)
			archiveSvc = nil
		} else if err := archiveSvc.EnsureBucketExists(context.Background()); err != nil {
			log.Printf("WARN: archive bucket check failed, continuing without it: %v", err)
			archiveSvc = nil
		}
	}

	// Outbound mail
	var mailer services.Mailer
	if cfg.SMTP.Host != "" {
		mailer = services.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username,
			cfg.SMTP.Password, cfg.SMTP.From)
	} else {
		log.Printf("WARNING: SMTP_HOST not set, password reset emails go to the log")
		mailer = services.NewLogMailer()
	}

	// Repositories and services
	userRepo := repositories.NewUserRepository(store, cfg.Spreadsheet.SheetID,
		cfg.Spreadsheet.UsersTab, repositories.DefaultUserCacheTTL, clock)
	userSvc := services.NewUserService(userRepo, clock)
	sessionSvc := services.NewSessionService(userSvc, cacheSvc, jwtSecret, cfg.SessionTTL())
	searchSvc := services.NewSearchService(snapshotCache, cfg.Spreadsheet.SheetID, cfg.Spreadsheet.Datasets)
	exportSvc := services.NewExportService(searchSvc, archiveSvc)
	uploadSvc := services.NewUploadService(store, snapshotCache, stage, archiveSvc,
		cfg.Spreadsheet.SheetID, cfg.Spreadsheet.Datasets, clock)

	// Handlers
	authHandlers := handlers.NewAuthHandlers(sessionSvc, userSvc, mailer, cfg.Server.BaseURL)
	searchHandlers := handlers.NewSearchHandlers(searchSvc, exportSvc)
	uploadHandlers := handlers.NewUploadHandlers(uploadSvc)
	userHandlers := handlers.NewUserHandlers(userSvc)
	healthHandlers := handlers.NewHealthHandlers(cacheSvc, stage)

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(mailer, cfg.SMTP.NotifyTo)

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)

	// Session and account middleware
	session := middleware.Session(jwtSecret)
	account := middleware.LoadAccount(userSvc)
	csrf := middleware.RequireCSRF(sessionSvc)
	anonCSRF := middleware.RequireAnonymousCSRF(sessionSvc)

	// Authentication routes
	auth := e.Group("/auth")
	auth.GET("/csrf", authHandlers.IssueCSRF)
	auth.POST("/login", authHandlers.Login, anonCSRF)
	auth.POST("/register", authHandlers.Register, anonCSRF)
	auth.POST("/forgot", authHandlers.Forgot, anonCSRF)
	auth.POST("/reset", authHandlers.Reset, anonCSRF)
	auth.POST("/logout", authHandlers.Logout, session, account, csrf)
	auth.GET("/me", authHandlers.Me, session, account)

	// Search and export routes (session required)
	api := e.Group("/api", session, account)
	api.GET("/pop/:code", searchHandlers.Lookup)
	api.GET("/pop/:code/export", searchHandlers.Export)

	// Upload routes (separate basic-auth gate for operators)
	uploads := e.Group("/api/uploads", middleware.UploadBasicAuth(cfg.UploadCredentials()))
	uploads.GET("", uploadHandlers.ListDatasets)
	uploads.POST("/:dataset/preview", uploadHandlers.Preview)
	uploads.POST("/:dataset/confirm", uploadHandlers.Confirm)

	// User administration (admins only)
	admin := e.Group("/api/users", session, account, csrf, middleware.RequireAdmin())
	admin.GET("", userHandlers.List)
	admin.POST("", userHandlers.Create)
	admin.PATCH("/:email", userHandlers.Update)
	admin.DELETE("/:email", userHandlers.Deactivate)

	// Optional per-generation export split
	if cfg.ExportRefresh.Enabled {
		refresher, err := jobs.NewExportRefresher(store, snapshotCache, jobs.ExportRefreshConfig{
			SheetID:     cfg.Spreadsheet.SheetID,
			SourceTab:   cfg.ExportRefresh.SourceTab,
			GroupColumn: cfg.ExportRefresh.GroupColumn,
			TabPrefix:   cfg.ExportRefresh.TabPrefix,
			Interval:    time.Duration(cfg.ExportRefresh.IntervalMinutes) * time.Minute,
		})
		if err != nil {
			log.Fatalf("Failed to set up export refresh job: %v", err)
		}
		refresher.Start()
		defer func() { _ = refresher.Stop() }()
	}

	log.Printf("popdesk v%s starting on %s", version, cfg.Server.ListenAddr)
	e.Logger.Fatal(e.Start(cfg.Server.ListenAddr))
}
