package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/automarket/internal/mockapi"
)

func init() {
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Run a local mock of the marketing backend",
		Long: "Serve the backend API locally with a seeded catalogue. Log in with " +
			mockapi.DemoEmail + " / " + mockapi.DemoPassword + ".",
		Run: runMockServer,
	}
	cmd.Flags().String("addr", "", "Listen address (default: $MOCK_ADDR)")
	cmd.Flags().Int("products", 50, "Seeded catalogue size")
	cmd.Flags().String("token-field", "token", "Login token field: token, access, access_token, key or data.token")
	cmd.Flags().Bool("envelope", false, "Wrap the product list in {\"results\": [...]}")
	cmd.Flags().Duration("delay", 40*time.Millisecond, "Pause between streamed tokens")

	RootCmd.AddCommand(cmd)
}

func runMockServer(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.MockAddr
	}
	opts := mockapi.Options{}
	opts.Products, _ = cmd.Flags().GetInt("products")
	opts.TokenField, _ = cmd.Flags().GetString("token-field")
	opts.Envelope, _ = cmd.Flags().GetBool("envelope")
	opts.TokenDelay, _ = cmd.Flags().GetDuration("delay")

	srv := &http.Server{
		Addr:              addr,
		Handler:           mockapi.New(opts, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Int("products", opts.Products).Msg("mock backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			exitErr("mock-server", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("mock backend shutdown")
	}
	logger.Info().Msg("mock backend stopped")
}
