package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/courier/internal/env"
	"github.com/luma/courier/messenger"
)

var (
	// The host to serve the status endpoints on
	host string

	// The port to listen for http requests on
	httpPort string
)

func init() {
	flags := StartCmd.PersistentFlags()

	flags.StringVar(&httpPort, "http-port", "7362", "The port to listen to HTTP requests on")
	flags.StringVarP(&host, "host", "a", "0.0.0.0", "The host to serve the status endpoints on")
}

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Log into the messenger service and stay online",
	Long: `Log into the messenger service and stay online

Usage
	courier start

The session and roster are exposed over HTTP on /status while the
client is running.
`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger()
		if err != nil {
			return err
		}

		conf, err := env.LoadConfig(ctx)
		if err != nil {
			return err
		}

		client := messenger.NewClient(messenger.Options{
			Addr:      conf.Server,
			LoginName: conf.LoginName,
			Password:  conf.Password,
			Log:       log.Named("messenger"),
		})

		// Drain the stream for the life of the client; a stalled consumer
		// stalls the handlers.
		events := make(chan struct{})

		go func() {
			defer close(events)

			for event := range client.Events() {
				log.Info("Event", zap.Any("event", event))
			}
		}()

		router := setupRouter(conf.DebugHTTP, log)

		// Ping test
		router.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		router.GET("/status", func(c *gin.Context) {
			c.Data(http.StatusOK, "application/json", []byte(client.Snapshot()))
		})

		s := &http.Server{
			Addr:    net.JoinHostPort(host, httpPort),
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		if err := client.Login(ctx); err != nil {
			return err
		}

		log.Info("Online",
			zap.String("server", conf.Server),
			zap.String("loginName", conf.LoginName),
			zap.String("host", host),
			zap.String("httpPort", httpPort))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(ctx); err != nil {
			log.Error("Http server forced to shutdown", zap.Error(err))
		}

		if err := client.Close(ctx); err != nil && !errors.Is(err, messenger.ErrClosed) {
			log.Error("Client forced to shutdown", zap.Error(err))
		}

		<-events

		log.Info("Exiting")
		return nil
	},
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - Logs to stdout.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.Ginzap(log, time.RFC3339, true))

	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}
