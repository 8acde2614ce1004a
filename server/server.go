package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/domainstack/api"
	"github.com/customeros/domainstack/config"
	"github.com/customeros/domainstack/internal/cron"
	"github.com/customeros/domainstack/internal/logger"
	"github.com/customeros/domainstack/internal/repository"
	"github.com/customeros/domainstack/internal/tracing"
	"github.com/customeros/domainstack/services"
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(ctx context.Context, cfg *config.Config, log logger.Logger, db *gorm.DB) (*Server, error) {
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, log)
	if err != nil {
		return nil, err
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)

	svcs, err := services.InitServices(ctx, cfg, log, repos)
	if err != nil {
		closer.Close()
		return nil, err
	}

	cronManager := cron.NewCronManager(cfg.CronConfig, log, kubernetesClient(log), cron.Jobs{
		Propagation:  svcs.PropagationService,
		Nameservers:  svcs.NameserverService,
		DNSRecords:   svcs.DNSRecordService,
		Provisioning: svcs.ProvisioningService,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          log,
		router:       router,
		services:     svcs,
		repositories: repos,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:              ":" + cfg.AppConfig.APIPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster, which puts the cron manager in local mode.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Infof("Not running in kubernetes: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Could not create kubernetes client: %v", err)
		return nil
	}
	return client
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		s.log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	api.RegisterRoutes(s.router, s.services.ProvisioningService, s.services.PropagationService, s.config.AppConfig.APIKey)

	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}
	if err := s.cronManager.Start(podName, os.Getenv("POD_NAMESPACE")); err != nil {
		return err
	}

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("Starting HTTP server on port %s", s.config.AppConfig.APIPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("Domainstack is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	s.log.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	} else {
		s.log.Info("HTTP server shut down successfully")
	}

	s.cronManager.Stop()

	if err := s.services.Close(); err != nil {
		s.log.Errorf("Failed to close services: %v", err)
	}
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	return nil
}
