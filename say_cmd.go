package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var sayCmd = &cobra.Command{
	Use:     "say TEXT...",
	Short:   "Speak a phrase through the configured voice and device",
	Long:    paragraph(fmt.Sprintf("\n%s a phrase with the same lead-in clips and audio path the daemon uses. Handy for checking a voice or backend.", keyword("Speak"))),
	Example: paragraph("tickspeak say up to 3150\ntickspeak say --engine tone --backend mock starting price checkpoint: 3100"),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Alert.ShutdownTimeout)
			defer cancel()
			_ = a.Close(shutdownCtx)
		}()

		text := strings.Join(args, " ")
		if err := a.coord.SpeakSync(ctx, text); err != nil {
			return fmt.Errorf("unable to speak %q: %w", text, err)
		}
		return nil
	},
}
