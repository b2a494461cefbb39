package main

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jobclip/jobclip-cli/internal/model"
)

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch [urls...]",
	Short: "Clip many job posting URLs with bounded concurrency",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		urls := append([]string(nil), args...)
		if batchFile != "" {
			fromFile, err := readURLFile(batchFile)
			if err != nil {
				return err
			}
			urls = append(urls, fromFile...)
		}
		if len(urls) == 0 {
			return eris.New("no URLs given: pass them as arguments or via --file")
		}

		env, err := initClipper(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		results := env.Pipeline.ProcessMany(ctx, urls)

		var ok, partial, failed int
		enc := json.NewEncoder(os.Stdout)
		for _, res := range results {
			switch res.Status {
			case model.StatusOK:
				ok++
			case model.StatusPartial:
				partial++
			default:
				failed++
			}
			if err := enc.Encode(res); err != nil {
				return eris.Wrap(err, "encode result")
			}
		}

		zap.L().Info("batch complete",
			zap.Int("total", len(results)),
			zap.Int("ok", ok),
			zap.Int("partial", partial),
			zap.Int("failed", failed),
		)

		if failed == len(results) {
			return eris.New("every clip failed")
		}
		return nil
	},
}

// readURLFile loads URLs from a file, one per line. Blank lines and
// #-comments are skipped.
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return urls, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one URL per line")
	rootCmd.AddCommand(batchCmd)
}
