package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vjranagit/ftdc/internal/config"
	"github.com/vjranagit/ftdc/pkg/ftdc"
)

var extractFlags struct {
	output string
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract an FTDC file's samples to CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractFlags.output, "output", "o", "", "output CSV path (default: stdout)")
}

func runExtract(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	if extractFlags.output != "" {
		outFile, err := os.Create(extractFlags.output)
		if err != nil {
			return fmt.Errorf("create %s: %w", extractFlags.output, err)
		}
		defer outFile.Close()
		out = outFile
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	chunks := ftdc.NewChunkIterator(ctx, f)
	samples := ftdc.NewSampleIterator(chunks, cfg.Decode.ToOptions())

	w := csv.NewWriter(out)
	defer w.Flush()

	var header []string
	var wroteHeader bool

	for samples.Next() {
		s := samples.Sample()
		if !wroteHeader {
			header = append(header, "timestamp")
			for _, p := range s.Points {
				header = append(header, p.Path)
			}
			if err := w.Write(header); err != nil {
				return fmt.Errorf("write csv header: %w", err)
			}
			wroteHeader = true
		}

		row := make([]string, 0, len(s.Points)+1)
		row = append(row, s.Timestamp.Format("2006-01-02T15:04:05.000Z"))
		for _, p := range s.Points {
			row = append(row, fmt.Sprintf("%v", p.Value))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := samples.Err(); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	w.Flush()
	return w.Error()
}
