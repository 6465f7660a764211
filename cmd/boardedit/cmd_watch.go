package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boardedit/internal/logging"
	"boardedit/internal/watch"

	"github.com/spf13/cobra"
)

// runWatch prints a fresh summary whenever the file settles after a change,
// until interrupted.
func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	m, err := newManager()
	if err != nil {
		return err
	}
	show := func(ctx context.Context, path string) {
		ro, err := m.OpenReadOnly(ctx, path)
		if err != nil {
			fmt.Fprintln(out, renderError(err))
			return
		}
		fmt.Fprintln(out, renderSummary(path, ro.Document.Project()))
	}

	w, err := watch.New(func(ctx context.Context, path string, exists bool) {
		stamp := mutedStyle.Render(time.Now().Format("15:04:05"))
		if !exists {
			fmt.Fprintln(out, stamp, warnStyle.Render(path+" was removed"))
			return
		}
		fmt.Fprintln(out, stamp, "changed")
		show(ctx, path)
	}, debounce, args[0])
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	defer w.Stop()

	show(ctx, args[0])
	logging.Watch("watching %s, press Ctrl-C to stop", args[0])
	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	st := w.Stats()
	logging.Get(logging.CategoryWatch).Zap().Sugar().Infow("watch finished",
		"delivered", st.Delivered, "errors", st.Errors)
	return nil
}
