package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"civicreport/libs/mailer"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUploadBytes             = 32 << 20
	defaultReportRatePerMinute = 5
	reportRateBurst            = 3
	rateLimiterIdleTTL         = 10 * time.Minute
	rateLimiterCleanupInterval = time.Minute
	adminSessionDuration       = 8 * time.Hour
	backgroundTaskTimeout      = 15 * time.Second
	devCORSOriginLocalhost     = "http://localhost:5173"
	devCORSOriginLoopback      = "http://127.0.0.1:5173"
	trustedProxyLoopbackIPv4   = "127.0.0.1"
	trustedProxyLoopbackIPv6   = "::1"
)

var storeDrivers = []string{"file", "postgres", "mysql", "memory"}

type Config struct {
	Addr                     string
	Env                      string
	StoreDriver              string
	DatabaseURL              string
	MySQLDSN                 string
	DataRoot                 string
	PublicBaseURL            string
	AppSigningSecret         string
	AdminEmail               string
	AdminPasswordHash        string
	ResendAPIKey             string
	MailerFromAddresses      map[string]string
	ReportRateLimitPerMinute int
	DefaultLanguage          string
	GeocoderProvider         string
	NominatimUserAgent       string
}

type App struct {
	cfg *Config
	log *slog.Logger

	store      ReportStore
	storeMu    sync.Mutex
	closeStore func() error

	classifier Classifier
	geocoder   Geocoder
	validator  *reportValidator
	mailer     *mailer.Mailer
	metrics    *appMetrics
	hub        *reportHub

	rateLimiterMu sync.Mutex
	rateLimiters  map[string]*visitorLimiter

	now   func() time.Time
	newID func() string

	// test hooks
	notifyMunicipality func(ctx context.Context, report Report) error
	notifyCitizen      func(ctx context.Context, report Report, previous Status) error
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: api hash-password <password>")
			os.Exit(1)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[2]), bcrypt.DefaultCost)
		if err != nil {
			panic(err)
		}
		fmt.Println(string(hash))
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	store, closeStore, err := openReportStore(ctx, cfg, logger)
	if err != nil {
		panic(err)
	}
	defer closeStore()

	var mailProvider mailer.Provider
	if cfg.ResendAPIKey != "" {
		mailProvider = mailer.NewResendProvider(cfg.ResendAPIKey)
	} else {
		mailProvider = mailer.NewLogProvider(logger)
	}
	logger.Info("mailer initialized", "provider", mailProvider.Name())

	app := newApp(cfg, logger, store, mailer.New(mailProvider, cfg.MailerFromAddresses[mailProvider.Name()]))
	app.closeStore = closeStore

	logger.Info(
		"runtime configuration",
		"env", cfg.Env,
		"addr", cfg.Addr,
		"store_driver", cfg.StoreDriver,
		"default_language", cfg.DefaultLanguage,
		"geocoder", cfg.GeocoderProvider,
	)

	if len(os.Args) > 1 {
		if err := app.runCommand(ctx, os.Args[1], os.Args[2:]); err != nil {
			logger.Error("command failed", "command", os.Args[1], "err", err)
			// os.Exit skips deferred calls.
			closeStore()
			os.Exit(1)
		}
		return
	}

	if _, err := app.store.Load(ctx); err != nil {
		panic(err)
	}

	serveCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.startRateLimiterCleanup(serveCtx, rateLimiterCleanupInterval)
	go app.hub.run(serveCtx)

	r, err := app.router()
	if err != nil {
		panic(err)
	}

	app.log.Info("starting gin API", "addr", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		panic(err)
	}
}

// newApp wires the long-lived collaborators. The store subscription feeds
// both the live stream and the report gauges.
func newApp(cfg *Config, logger *slog.Logger, store ReportStore, mail *mailer.Mailer) *App {
	metrics := newAppMetrics()
	app := &App{
		cfg:          cfg,
		log:          logger,
		store:        store,
		closeStore:   func() error { return nil },
		classifier:   newMockClassifier(rand.NewSource(time.Now().UnixNano())),
		geocoder:     newGeocoder(cfg),
		validator:    newReportValidator(),
		mailer:       mail,
		metrics:      metrics,
		hub:          newReportHub(logger, metrics.streamClients),
		rateLimiters: make(map[string]*visitorLimiter),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	app.notifyMunicipality = app.sendNewReportEmail
	app.notifyCitizen = app.sendStatusChangeEmail

	store.Subscribe(func(reports []Report) {
		app.metrics.observeReports(reports)
		app.hub.publish(reportsUpdatedEvent(reports, app.now()))
	})
	return app
}

func (a *App) runCommand(ctx context.Context, command string, args []string) error {
	switch command {
	case "seed":
		reports, err := a.store.Load(ctx)
		if err != nil {
			return err
		}
		a.log.Info("report store ready", "count", len(reports))
		return nil
	case "backfill-municipalities":
		changed := 0
		_, err := a.mutateReports(ctx, func(reports []Report) ([]Report, error) {
			changed = backfillMunicipalities(reports)
			return reports, nil
		})
		if err != nil {
			return err
		}
		a.log.Info("municipality backfill completed", "count", changed)
		return nil
	case "export-analytics":
		window := "30d"
		out := "analytics.pdf"
		if len(args) > 0 {
			window = args[0]
		}
		if len(args) > 1 {
			out = args[1]
		}
		reports, err := a.store.Load(ctx)
		if err != nil {
			return err
		}
		analytics := computeAnalytics(reports, AnalyticsOptions{Window: window, Now: a.now()})
		pdf, err := buildAnalyticsPDF(analytics, a.now())
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, pdf, 0o644); err != nil {
			return err
		}
		a.log.Info("analytics export written", "window", analytics.Window, "file", out, "bytes", len(pdf))
		return nil
	case "send-municipality-digests":
		sent, err := a.sendMunicipalityDigests(ctx)
		if err != nil {
			return err
		}
		a.log.Info("send-municipality-digests completed", "sent", sent)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *App) router() (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(a.loggingMiddleware())
	r.Use(a.metrics.middleware())
	r.Use(a.corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", a.metrics.handler())

	api := r.Group("/api/v1")
	{
		api.GET("/reports", a.listReportsHandler)
		api.GET("/reports/:id", a.getReportHandler)
		api.POST("/reports", a.reportRateLimit(), a.createReportHandler)
		api.POST("/reports/:id/comments", a.reportRateLimit(), a.addCommentHandler)
		api.POST("/classify", a.reportRateLimit(), a.classifyHandler)
		api.GET("/map/markers", a.mapMarkersHandler)
		api.GET("/municipalities", a.municipalitiesHandler)
		api.GET("/municipalities/nearest", a.nearestMunicipalityHandler)
		api.GET("/municipalities/:id", a.municipalityHandler)
		api.GET("/categories", a.categoriesHandler)
		api.GET("/languages", a.languagesHandler)
		api.GET("/i18n/:lang", a.translationsHandler)

		api.POST("/admin/login", a.reportRateLimit(), a.adminLoginHandler)

		admin := api.Group("/admin")
		admin.Use(a.requireAdminSession())
		{
			admin.GET("/session", a.adminSessionHandler)
			admin.GET("/reports", a.adminListReportsHandler)
			admin.GET("/reports/stream", a.reportStreamHandler)
			admin.GET("/reports/:id", a.adminGetReportHandler)
			admin.PATCH("/reports/:id/status", a.requireRole(adminRole), a.updateStatusHandler)
			admin.POST("/reports/:id/comments", a.addCommentHandler)
			admin.GET("/stats", a.municipalityStatsHandler)
			admin.GET("/analytics", a.analyticsHandler)
			admin.GET("/analytics/predictive", a.predictiveAnalyticsHandler)
			admin.GET("/analytics/performance", a.performanceHandler)
			admin.GET("/analytics/trends", a.trendsHandler)
			admin.GET("/exports/reports.csv", a.exportCSVHandler)
			admin.GET("/exports/reports.geojson", a.exportGeoJSONHandler)
			admin.GET("/exports/analytics.pdf", a.exportAnalyticsPDFHandler)
		}
	}

	return r, nil
}

// openReportStore builds the document store for cfg.StoreDriver. SQL
// drivers are migrated before first use.
func openReportStore(ctx context.Context, cfg *Config, logger *slog.Logger) (ReportStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.StoreDriver {
	case "file":
		return newDocumentStore(newFileBackend(cfg.DataRoot), logger), noop, nil
	case "memory":
		return newDocumentStore(newMemoryBackend(), logger), noop, nil
	case "postgres", "mysql":
		dialect, err := dialectForDriver(cfg.StoreDriver)
		if err != nil {
			return nil, nil, err
		}
		dsn := cfg.DatabaseURL
		if cfg.StoreDriver == "mysql" {
			dsn = cfg.MySQLDSN
		}
		backend, err := openSQLBackend(ctx, dialect, dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := backend.migrate(ctx, logger); err != nil {
			_ = backend.Close()
			return nil, nil, err
		}
		return newDocumentStore(backend, logger), backend.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func loadConfig() (*Config, error) {
	driver := strings.ToLower(valueOrDefault("STORE_DRIVER", "file"))
	if !containsString(storeDrivers, driver) {
		return nil, fmt.Errorf("STORE_DRIVER must be one of %s", strings.Join(storeDrivers, ", "))
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		host := valueFromEnvKeys("PGHOST", "POSTGRES_HOST")
		if host == "" {
			host = "127.0.0.1"
		}
		port := valueFromEnvKeys("PGPORT", "POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		dbname := valueFromEnvKeys("PGDATABASE", "POSTGRES_DB")
		user := valueFromEnvKeys("PGUSER", "POSTGRES_USER")
		password := valueFromEnvKeys("PGPASSWORD", "POSTGRES_PASSWORD")
		sslmode := valueFromEnvKeys("PGSSLMODE", "POSTGRES_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
		if dbname != "" && user != "" {
			databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
		}
	}
	if driver == "postgres" && databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or PG*/POSTGRES_* variables must be configured")
	}

	mysqlDSN := strings.TrimSpace(os.Getenv("MYSQL_DSN"))
	if driver == "mysql" && mysqlDSN == "" {
		return nil, fmt.Errorf("MYSQL_DSN must be configured for the mysql store")
	}

	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(secret) < 16 {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least 16 characters")
	}

	publicBase := strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}

	cfg := &Config{
		Addr:                     valueOrDefault("GIN_ADDR", ":8080"),
		Env:                      env,
		StoreDriver:              driver,
		DatabaseURL:              databaseURL,
		MySQLDSN:                 mysqlDSN,
		DataRoot:                 valueOrDefault("DATA_ROOT", "./data"),
		PublicBaseURL:            publicBase,
		AppSigningSecret:         secret,
		AdminEmail:               strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		AdminPasswordHash:        strings.TrimSpace(os.Getenv("ADMIN_PASSWORD_HASH")),
		ResendAPIKey:             strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		ReportRateLimitPerMinute: defaultReportRatePerMinute,
		DefaultLanguage:          strings.ToLower(valueOrDefault("DEFAULT_LANGUAGE", fallbackLanguage)),
		GeocoderProvider:         strings.ToLower(valueOrDefault("GEOCODER_PROVIDER", "offline")),
		NominatimUserAgent:       valueOrDefault("NOMINATIM_USER_AGENT", "civicreport/1.0"),
		MailerFromAddresses: map[string]string{
			"resend": valueOrDefault("MAILER_FROM_ADDRESS_RESEND", "noreply@civicreport.in"),
			"log":    valueOrDefault("MAILER_FROM_ADDRESS_LOG", "noreply@civicreport.local"),
		},
	}

	if cfg.AdminPasswordHash == "" {
		if password := strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")); password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hash ADMIN_PASSWORD: %w", err)
			}
			cfg.AdminPasswordHash = string(hash)
		}
	}

	if raw := strings.TrimSpace(os.Getenv("REPORT_RATE_LIMIT_PER_MINUTE")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("REPORT_RATE_LIMIT_PER_MINUTE must be a whole number")
		}
		if parsed < 1 {
			return nil, fmt.Errorf("REPORT_RATE_LIMIT_PER_MINUTE must be >= 1")
		}
		cfg.ReportRateLimitPerMinute = parsed
	}

	if !containsString(geocoderProviders, cfg.GeocoderProvider) {
		return nil, fmt.Errorf("GEOCODER_PROVIDER must be one of %s", strings.Join(geocoderProviders, ", "))
	}

	if !isSupportedLanguage(cfg.DefaultLanguage) {
		return nil, fmt.Errorf("DEFAULT_LANGUAGE %q is not supported", cfg.DefaultLanguage)
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

func containsString(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept-Language")
			c.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func writeAPIError(c *gin.Context, err error) {
	var vErr *validationError
	if errors.As(err, &vErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation_failed", "message": "Please correct the highlighted fields", "fields": vErr.Fields})
		return
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
