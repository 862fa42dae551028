package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/suggest/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/suggest/internal/adapters/driving/watch"
	"github.com/custodia-labs/suggest/internal/core/domain"
	"github.com/custodia-labs/suggest/internal/core/ports/driving"
	"github.com/custodia-labs/suggest/internal/logger"
)

var (
	serveAddr  string
	serveWatch string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the REST API until interrupted. The maintenance scheduler runs in
the background when it is enabled in the settings.

With --watch, .txt files and annotation sidecars below the directory are
imported into --project as they change.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from settings)")
	serveCmd.Flags().StringVar(&serveWatch, "watch", "", "directory to import documents from as they change")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings := domain.DefaultAppSettings()
	if settingsService != nil {
		if s, err := settingsService.Get(); err == nil {
			settings = *s
		}
	}
	addr := serveAddr
	if addr == "" {
		addr = settings.HTTP.Addr
	}

	server, err := httpapi.NewServer(&httpapi.Ports{
		Suggestions:    suggestionService,
		Recommendation: recommendationService,
		Sync:           syncService,
		Evaluation:     evaluationService,
		Corpus:         corpusService,
		Scheduler:      scheduler,
		Splitter:       settings.Evaluation,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if scheduler != nil && settings.Scheduler.Enabled {
		g.Go(func() error {
			err := scheduler.Start(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if serveWatch != "" {
		if err := startWatcher(ctx, g, cmd); err != nil {
			return err
		}
	}

	cmd.Printf("Serving on %s\n", addr)
	g.Go(func() error {
		return server.Run(ctx, addr)
	})

	err = g.Wait()
	if scheduler != nil {
		scheduler.Stop()
	}
	if recommendationService != nil {
		recommendationService.Shutdown()
	}
	return err
}

func startWatcher(ctx context.Context, g *errgroup.Group, cmd *cobra.Command) error {
	if flagProject == "" {
		return errors.New("--project is required with --watch")
	}
	opts := driving.ImportOptions{ProjectID: flagProject, User: flagOwner}
	if opts.User == "" {
		opts.User = flagUser
	}

	w := watch.New(corpusService, recommendationService, serveWatch, opts)
	changes, err := w.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watching %s: %w", serveWatch, err)
	}

	cmd.Printf("Watching %s\n", serveWatch)
	g.Go(func() error {
		for change := range changes {
			logger.Infow("Document changed", "type", string(change.Type), "path", change.Path)
		}
		return nil
	})
	return nil
}
