package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mvetter/stewardflow/internal/devserver"
)

func newDevserverCmd(app *app) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run a local mock workflow backend",
		Long:  "devserver serves the onboarding API and event stream with scripted phase progression, so the rest of sw can be exercised without a real backend.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr := listen
			if addr == "" {
				addr = app.listenAddr
			}

			server := &http.Server{
				Addr:    addr,
				Handler: devserver.New(devserver.WithLogger(app.logger)).Handler(),
			}

			go func() {
				<-cmd.Context().Done()
				_ = server.Close()
			}()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "devserver listening on %s\n", addr)
			err := server.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}
