package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jumpserver/mappingtree/common/logger"
	"github.com/jumpserver/mappingtree/common/util"
	"github.com/jumpserver/mappingtree/common/version"
	"github.com/jumpserver/mappingtree/server/app"
	"github.com/jumpserver/mappingtree/server/services/taskrunner"
)

func main() {
	fmt.Printf("mappingtree-server %s\n", version.VersionToString())
	fmt.Printf("Starting with args: %v\n", util.FilterOSArgs(os.Args, app.LogSafeFlags))

	config, err := app.ConfigFromFlags()
	if err != nil {
		log.Fatalf("Error parsing flags: %s", err)
	}

	logRegistry, err := logger.NewLogRegistry(config.LogLevels)
	if err != nil {
		log.Fatalf("Error setting up logging: %s", err)
	}
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)

	server, cleanup, err := app.NewServer(context.Background(), config, logFactory)
	if err != nil {
		log.Fatalf("Error creating server: %s", err)
	}
	defer cleanup()

	server.Start()
	defer server.Shutdown()

	if config.MetricsAddress != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", taskrunner.MetricsHandler())
		metricsServer := &http.Server{Addr: config.MetricsAddress, Handler: metricsMux}
		metricsService := util.NewStatefulService(context.Background(), logFactory("metrics"), func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server stopped: %s", err)
			}
		})
		metricsService.Start()
		defer func() {
			_ = metricsServer.Close()
			metricsService.Stop()
		}()
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Print("mappingtree-server shutdown complete")
}
