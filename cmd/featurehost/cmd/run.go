package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/spf13/cobra"

	features "github.com/GoCodeAlone/busfeatures"
)

// NewRunCommand creates the run command
func NewRunCommand(opts *Options) *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Set up the features and run their startup tasks until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, shutdownTimeout, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for stopping startup tasks")
	return cmd
}

func run(ctx context.Context, opts *Options, shutdownTimeout time.Duration, logOut io.Writer) error {
	h, err := newHost(opts, logOut)
	if err != nil {
		return err
	}
	if err := h.setup(ctx); err != nil {
		return err
	}

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, features.WatermillLogger(h.logger))
	defer func() {
		if err := pubSub.Close(); err != nil {
			h.logger.Warn("Failed to close session transport", "error", err)
		}
	}()
	session := features.NewSession(pubSub)

	if err := h.activator.StartFeatures(ctx, session); err != nil {
		return err
	}
	h.logger.Info("Feature host started", "features", h.activator.Plan().Names(), "tasks", h.activator.Tasks().Len())

	<-ctx.Done()
	h.logger.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := h.activator.StopFeatures(stopCtx, session); err != nil {
		var aggregate *features.AggregateStopFailure
		if errors.As(err, &aggregate) {
			for _, f := range aggregate.Failures {
				h.logger.Warn("Startup task did not stop cleanly", "feature", f.Feature, "task", f.Name, "phase", f.Phase, "error", f.Err)
			}
		} else {
			h.logger.Warn("Startup task did not stop cleanly", "error", err)
		}
		h.logger.Warn("Shutdown completed with warnings")
		return nil
	}
	h.logger.Info("Shutdown completed")
	return nil
}
