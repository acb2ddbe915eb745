package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arundel/herald/internal/env"
	"github.com/arundel/herald/internal/mockfw"
)

var (
	// The host to listen on
	mockHost string

	// The port to serve the mock API on
	mockPort int

	// The software version the mock reports
	mockVersion string
)

func init() {
	flags := mockCmd.PersistentFlags()

	flags.StringVarP(&mockHost, "host", "a", "127.0.0.1", "The host to listen on")
	flags.IntVarP(&mockPort, "port", "p", 8443, "The port to serve the mock API on")
	flags.StringVar(&mockVersion, "fw-version", "10.1.3", "The software version the mock reports")
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Run an in-memory mock firewall",
	Long: `Run an in-memory mock firewall exposing the User-ID API surface
over plain HTTP.

Useful for developing against Herald without a device:

	herald mock &
	herald --firewall http://127.0.0.1:8443 --api-key ` + mockfw.APIKey + ` login jdoe 10.0.1.1

`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer signalStop()

		log, err := env.MakeLogger(flagDebug)
		if err != nil {
			return err
		}

		router := mockfw.NewRouter(mockfw.Options{
			Version: mockVersion,
			Store:   mockfw.NewStore(),
			Log:     log.Named("mockfw"),
		})

		addr := net.JoinHostPort(mockHost, strconv.Itoa(mockPort))

		listener, err := reuseport.Listen("tcp", addr)
		if err != nil {
			return err
		}

		s := &http.Server{Handler: router}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Mock firewall errored", zap.Error(err))
			}
		}()

		log.Info("Mock firewall listening",
			zap.String("addr", addr),
			zap.String("version", mockVersion),
			zap.String("apiKey", mockfw.APIKey))

		// Listen for the interrupt signal.
		<-ctx.Done()

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Mock firewall forced to shutdown", zap.Error(err))
		}

		log.Info("Exiting")
		return nil
	},
}
