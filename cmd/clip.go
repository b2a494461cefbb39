package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobclip/jobclip-cli/internal/model"
)

var clipURL string

var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Clip a single job posting URL into the configured sinks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if cfg.Pipeline.RequestTimeoutSecs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.Pipeline.RequestTimeoutSecs)*time.Second)
			defer cancel()
		}

		env, err := initClipper(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Process(ctx, clipURL)
		if err != nil {
			return eris.Wrap(err, "clip")
		}

		zap.L().Info("clip complete",
			zap.String("url", result.URL),
			zap.String("status", string(result.Status)),
			zap.String("title", result.Title),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return eris.Wrap(err, "encode result")
		}
		if result.Status == model.StatusFailed {
			return eris.New("all sinks failed")
		}
		return nil
	},
}

func init() {
	clipCmd.Flags().StringVar(&clipURL, "url", "", "job posting URL (required)")
	_ = clipCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(clipCmd)
}
