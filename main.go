package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"library-circulation/docs"
	"library-circulation/internal/catalog"
	"library-circulation/internal/circulation"
	"library-circulation/internal/notify"
	"library-circulation/internal/platform/auth"
	"library-circulation/internal/platform/config"
	"library-circulation/internal/platform/db"
	"library-circulation/internal/platform/logger"
)

// @title                      Library Circulation API
// @version                    1.0
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "[ERROR]", err)
		os.Exit(1)
	}
}

// stores は driver ごとの永続化の組
type stores struct {
	ledger  circulation.Store
	catalog catalog.Store
	close   func() error
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	timeout := cfg.Policy.ReservationTimeout

	if cfg.DB.Driver == config.DriverMemory {
		// 開発用。再起動で消える
		mem := circulation.NewMemoryStore(timeout)
		log.Warn("using in-memory store; data is not persisted")
		return &stores{ledger: mem, catalog: catalog.NewMemoryStore(mem), close: func() error { return nil }}, nil
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}
	if cfg.DB.AutoMigrate {
		if err := db.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
		log.Info("schema migrated")
	}
	log.Info("connected to DB", zap.String("dbname", cfg.DB.DBName))
	return &stores{
		ledger:  circulation.NewMySQLStore(conn, timeout),
		catalog: catalog.NewMySQLStore(conn),
		close:   conn.Close,
	}, nil
}

func run() error {
	path := config.DefaultPath
	if v := os.Getenv("LIBRARY_CONFIG"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Mode, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	log.Info("starting", zap.String("mode", cfg.Mode), zap.String("driver", cfg.DB.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	policy, err := circulation.NewPolicy(cfg.Policy.MaxActiveItems, cfg.Policy.MaxLoanDays, cfg.Policy.DailyPenaltyRate, cfg.Policy.ReservationTimeout)
	if err != nil {
		return err
	}

	// 通知はアウトボックス経由。貸出・返却のコミット後に Wake で即配信
	dispatcher := notify.NewDispatcher(st.ledger, notify.NewLogSink(log.Named("notify")),
		notify.WithInterval(cfg.Notify.Interval),
		notify.WithBatchSize(cfg.Notify.BatchSize),
		notify.WithMaxAttempts(cfg.Notify.MaxAttempts),
		notify.WithWorkers(cfg.Notify.Workers),
		notify.WithLogger(log.Named("dispatcher")),
	)
	loans := circulation.NewService(st.ledger, policy,
		circulation.WithLogger(log.Named("circulation")),
		circulation.WithWakeup(dispatcher.Wake),
	)
	copies := catalog.NewService(st.catalog, log.Named("catalog"))

	if cfg.Mode == config.ModeRelease {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.Gin(log), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == config.ModeDev {
		// CORS（開発中のみ必要）
		origins := cfg.Server.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Location", "Content-Disposition"},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowCredentials: true,
		}))
		docs.SwaggerInfo.Host = "localhost" + cfg.Server.Addr
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	// /api/v1
	api := r.Group("/api/v1", auth.RequireAuth([]byte(cfg.Auth.JWTSecret)))
	circulation.RegisterRoutes(api, loans)
	catalog.RegisterRoutes(api, copies)

	// 運用: アウトボックスを今すぐ流す
	ops := api.Group("/ops", auth.RequireRole(auth.RoleAdmin))
	ops.POST("/notify/dispatch", func(c *gin.Context) {
		n, err := dispatcher.DispatchOnce(c.Request.Context())
		if err != nil {
			circulation.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"delivered": n})
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := dispatcher.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if cfg.Reminders.Enabled {
		g.Go(func() error {
			if err := loans.RunReminders(gctx, cfg.Reminders.Interval, cfg.Reminders.WindowDays); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		cert, key := cfg.Server.Certificate.Cert, cfg.Server.Certificate.Key
		var err error
		if cert != "" && key != "" {
			// TLS設定（dev と release で置き場所を分ける）
			certFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cert)
			keyFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, key)
			log.Info("listening", zap.String("addr", "https://0.0.0.0"+cfg.Server.Addr))
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Info("listening", zap.String("addr", "http://0.0.0.0"+cfg.Server.Addr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		// Graceful shutdown
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
