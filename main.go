// main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"sypbackend/internal/catalog"
	"sypbackend/internal/cleanup"
	"sypbackend/internal/config"
	"sypbackend/internal/data"
	"sypbackend/internal/gallery"
	"sypbackend/internal/logger"
	"sypbackend/internal/middleware"
	"sypbackend/internal/payment"
	"sypbackend/internal/security"
	"sypbackend/internal/webhook"
)

type App struct {
	addr          string
	mux           *http.ServeMux
	connections   sync.WaitGroup
	totalRequests int64
}

func init() {
	loc, err := time.LoadLocation("America/Chicago")
	if err == nil {
		time.Local = loc // This affects the standard log package
	}
}

func main() {
	// Step 1: Setup configuration first
	config.LoadEnv()
	config.ConfigurePaths()

	// Step 2: Setup logging
	loggerConfig := config.LoggerConfig()
	if err := logger.SetupLogger(loggerConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Only NOW is logging safe to use!
	logger.LogInfo("Environment and paths loaded. Logger ready.")

	// Step 3: Load Stripe, site and secret configuration
	if err := config.LoadStripeConfig(); err != nil {
		logger.LogFatal("Failed to load Stripe config: %v", err)
	}
	config.LoadCORSConfig()
	config.LoadSiteConfig()
	if err := config.LoadSecretsConfig(); err != nil {
		logger.LogFatal("Failed to load secrets config: %v", err)
	}

	// Step 4: Open the database and ensure the schema
	dbPath := filepath.Join(config.DataDirectory(), "syp.db")
	if err := data.InitDB(dbPath); err != nil {
		logger.LogFatal("Failed to open database: %v", err)
	}
	defer data.CloseDB()
	if err := data.CreateTables(); err != nil {
		logger.LogFatal("Failed to create tables: %v", err)
	}

	// Step 5: Build the catalog, with an optional price override file
	catalogService := catalog.NewService()
	overridePath := filepath.Join(config.DataDirectory(), "catalog.json")
	if _, err := os.Stat(overridePath); err == nil {
		if err := catalogService.LoadFromFile(overridePath); err != nil {
			logger.LogFatal("Failed to load catalog overrides: %v", err)
		}
		logger.LogInfo("Catalog overrides loaded from %s", overridePath)
	}
	payment.SetCatalogService(catalogService)
	webhook.SetReconciler(&webhook.Reconciler{Catalog: catalogService})

	// Step 5b: log .env setting
	config.LogCurrentEnvironment()

	// Step 6: Setup app
	app := &App{
		addr: serverAddress(),
		mux:  routes(),
	}

	// Step 7: Start background tasks
	cleanup.StartCleanupRoutine()

	// Step 8: Run server
	app.Run()
}

// serverAddress builds the server address from environment variables
func serverAddress() string {
	host := os.Getenv("SERVER_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "5051"
	}
	return host + ":" + port
}

// routes sets up all API routes
func routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/create-checkout-session", payment.CreateCheckoutSessionHandler)
	apiMux.HandleFunc("/stripe-webhook", webhook.StripeWebhookHandler)
	apiMux.HandleFunc("/order-status", webhook.OrderStatusHandler)
	apiMux.HandleFunc("/get-session", webhook.GetSessionHandler)
	apiMux.HandleFunc("/verify-code", gallery.VerifyCodeHandler)
	apiMux.HandleFunc("/gallery", gallery.GalleryHandler)
	apiMux.HandleFunc("/admin/student-meta", gallery.AdminSetStudentMetaHandler)

	apiHandler := middleware.APIMiddleware(http.StripPrefix("/api", apiMux).ServeHTTP)
	mux.Handle("/api/", security.AddCORSHeaders(apiHandler))

	return mux
}

// Run starts the HTTP server

func (a *App) Run() {
	server := &http.Server{
		Addr:         a.addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for shutdown signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in a separate goroutine
	go func() {
		logger.LogInfo("Starting server on %s", a.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogFatal("Server failed: %v", err)
		}
	}()

	// Wait for a shutdown signal
	<-stop
	logger.LogInfo("Shutdown signal received")

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the server gracefully
	if err := server.Shutdown(ctx); err != nil {
		logger.LogError("Server shutdown error: %v", err)
	} else {
		logger.LogInfo("Server shut down gracefully")
	}

	// Wait for active connections to finish
	logger.LogInfo("Waiting for active connections to finish...")
	a.connections.Wait()
	logger.LogInfo("All connections closed. Total requests handled: %d", atomic.LoadInt64(&a.totalRequests))
}

// Handler assembles all middleware around the main mux
func (a *App) Handler() http.Handler {
	var handler http.Handler = a.mux

	handler = a.trackConnections(handler)
	handler = logRequests(handler)
	handler = withTimeout(handler, 15*time.Second)

	return handler
}

// Middleware: timeout handler
func withTimeout(h http.Handler, timeout time.Duration) http.Handler {
	return http.TimeoutHandler(h, timeout, "Request timed out")
}

// Middleware: log requests
func logRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		h.ServeHTTP(w, r)

		duration := time.Since(start)
		logger.LogInfo("%s %s took %v", r.Method, r.URL.Path, duration)
	})
}

// Middleware: track active connections and total requests
func (a *App) trackConnections(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.connections.Add(1)
		atomic.AddInt64(&a.totalRequests, 1)
		defer a.connections.Done()

		h.ServeHTTP(w, r)
	})
}
