package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/physiocore/clinicsync/internal/common/config"
	"github.com/physiocore/clinicsync/internal/migrate"
	"github.com/physiocore/clinicsync/internal/phone"
	"github.com/physiocore/clinicsync/internal/remote"
	"github.com/physiocore/clinicsync/internal/service"
	"github.com/physiocore/clinicsync/internal/store"
	syncpkg "github.com/physiocore/clinicsync/internal/sync"
	"github.com/physiocore/clinicsync/internal/tenant"
	"github.com/physiocore/clinicsync/pkg/logger"
	"github.com/physiocore/clinicsync/pkg/metrics"
	"github.com/physiocore/clinicsync/pkg/version"
)

var (
	configPath string
	listenAddr string
	tenantID   string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of clinicsync",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("clinicsync version %s\n", version.Get())
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Run pending data migrations and exit",
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(ctx context.Context, a *app) error {
				a.migrator.Run(ctx)
				return nil
			})
		},
	}

	pushCmd = &cobra.Command{
		Use:   "push [collection]",
		Short: "Upload local collections to the remote store",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(ctx context.Context, a *app) error {
				sess := tenant.NewSession(tenantID, "cli")
				return a.svc.SyncPush(ctx, sess, collectionArg(args))
			})
		},
	}

	pullCmd = &cobra.Command{
		Use:   "pull [collection]",
		Short: "Download remote collections into the local store",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(ctx context.Context, a *app) error {
				sess := tenant.NewSession(tenantID, "cli")
				return a.svc.SyncPull(ctx, sess, collectionArg(args))
			})
		},
	}

	resolveCmd = &cobra.Command{
		Use:   "resolve <code>",
		Short: "Resolve a clinic code or booking slug to a tenant id",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			withApp(func(ctx context.Context, a *app) error {
				sess, err := a.svc.ResolveTenant(ctx, args[0], "cli")
				if err != nil {
					return err
				}
				fmt.Println(sess.Tenant())
				return nil
			})
		},
	}

	rootCmd = &cobra.Command{
		Use:   "clinicsync",
		Short: "Clinic record sync service",
		Long:  `clinicsync keeps a clinic's local records partitioned by tenant and mirrored to the remote document store`,
		Run: func(cmd *cobra.Command, args []string) {
			serve()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "configs/clinicsync.yaml", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "default", "tenant id for sync commands")
	rootCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "ops endpoint listen address")
	rootCmd.AddCommand(versionCmd, migrateCmd, pushCmd, pullCmd, resolveCmd)
}

func collectionArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// app bundles the wired components of one process.
type app struct {
	logger   *zap.Logger
	local    store.Store
	remote   *remote.Client
	mirror   *syncpkg.Mirror
	metrics  *metrics.Metrics
	svc      *service.Service
	migrator *migrate.Engine
}

func buildApp(cfg *config.Config) (*app, error) {
	zlog, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	local, err := store.NewStore(zlog, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local store: %w", err)
	}

	m := metrics.New(cfg.Metrics)

	// An empty remote address means local-only operation: sync commands
	// report the remote as unavailable and the mirror queue is never built.
	var (
		rc     *remote.Client
		mirror *syncpkg.Mirror
		engine *syncpkg.Engine
		phones *phone.Index
	)
	if cfg.Remote.Addr != "" {
		rc, err = remote.NewClient(zlog, cfg.Remote)
		if err != nil {
			zlog.Warn("remote store unreachable, continuing local-only", zap.Error(err))
		} else {
			mirror = syncpkg.NewMirror(zlog, m, cfg.Sync.MirrorQueueSize)
			engine = syncpkg.NewEngine(zlog, local, rc, m, cfg.Sync.BatchSize)
			phones = phone.NewIndex(zlog, rc, cfg.Tenant.CountryCode, cfg.Sync.PhoneIndexCAS)
		}
	}

	resolver := tenant.NewResolver(zlog, local, rc, mirror)
	svc := service.New(zlog, local, engine, mirror, resolver, phones)
	migrator := migrate.NewEngine(zlog, local, rc, m, cfg.Tenant.DefaultTenant, cfg.Tenant.SchemaVersion)

	return &app{
		logger:   zlog,
		local:    local,
		remote:   rc,
		mirror:   mirror,
		metrics:  m,
		svc:      svc,
		migrator: migrator,
	}, nil
}

func (a *app) close() {
	if a.mirror != nil {
		a.mirror.Close()
	}
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logger.Warn("failed to close remote client", zap.Error(err))
		}
	}
	if err := a.local.Close(); err != nil {
		a.logger.Warn("failed to close local store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// withApp loads config, wires the app, runs fn and tears everything down.
func withApp(fn func(ctx context.Context, a *app) error) {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	a, err := buildApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fn(ctx, a); err != nil {
		a.logger.Error("command failed", zap.Error(err))
		a.close()
		os.Exit(1)
	}
}

func serve() {
	withApp(func(ctx context.Context, a *app) error {
		// Migrations run on every boot; completed steps are flag-gated.
		a.migrator.Run(ctx)

		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())

		router.GET("/healthz", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Get()})
		})
		router.GET("/metrics", gin.WrapH(a.metrics.Handler()))
		router.GET("/api/resolve/:code", func(c *gin.Context) {
			sess, err := a.svc.ResolveTenant(c.Request.Context(), c.Param("code"), "ops")
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"tenant": sess.Tenant()})
		})
		router.POST("/api/tenants/:tenant/push", func(c *gin.Context) {
			sess := tenant.NewSession(c.Param("tenant"), "ops")
			if err := a.svc.SyncPush(c.Request.Context(), sess, c.Query("collection")); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "pushed"})
		})
		router.POST("/api/tenants/:tenant/pull", func(c *gin.Context) {
			sess := tenant.NewSession(c.Param("tenant"), "ops")
			if err := a.svc.SyncPull(c.Request.Context(), sess, c.Query("collection")); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "pulled"})
		})

		srv := &http.Server{Addr: listenAddr, Handler: router}
		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("ops endpoint listening", zap.String("addr", listenAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}
