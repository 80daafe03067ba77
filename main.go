package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"tampa-backend/internal/labels"
	"tampa-backend/internal/platform/auth"
	"tampa-backend/internal/platform/db"
	"tampa-backend/internal/platform/realtime"
	"tampa-backend/internal/printers"
	"tampa-backend/internal/printqueue"
)

func main() {
	// 設定読み込み（引数で別パスを指定可）
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := db.LoadConfig(path)
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)
	if mode != "dev" && mode != "release" {
		fmt.Println("config mode must be dev or release")
		return
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("[ERROR] auth.jwt_secret is required")
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	// WebSocket の ?access_token= をログに残さない
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{Formatter: auth.AccessLogFormatter}), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	secret := []byte(cfg.Auth.JWTSecret)
	authSvc := auth.NewService(conn, secret, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)

	// /api/v1
	api := r.Group("/api/v1")
	staff := api.Group("", auth.RequireAuth(secret))
	admin := staff.Group("", auth.RequireRole(auth.RoleAdmin))

	auth.RegisterRoutes(api, admin, authSvc)
	labels.RegisterRoutes(staff, labels.NewService())

	prober := printers.NewProber()
	printerReg := printers.NewRegistry(printers.DepsFromConfig(conn, cfg.Printers))
	printers.RegisterRoutes(staff, admin, printers.NewHandler(
		printerReg,
		printers.NewDiscoverer(prober, cfg.Printers.Discovery),
		prober,
		time.Duration(cfg.Printers.ProbeTimeoutMS)*time.Millisecond,
	))

	printqueue.RegisterRoutes(staff, printqueue.NewHandler(printqueue.NewRegistry(), printerReg, realtime.NewHub()))

	r.NoRoute(func(c *gin.Context) { c.Status(http.StatusNotFound) })

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if cfg.Certificate.Cert != "" && cfg.Certificate.Key != "" {
			// TLS設定（dev / release でディレクトリを分ける）
			certFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", mode, cfg.Certificate.Key)
			log.Printf("[INFO] listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Printf("[WARN] no certificate configured; listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
