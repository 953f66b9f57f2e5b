package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vjranagit/ftdc/internal/config"
	"github.com/vjranagit/ftdc/pkg/ftdc"
)

var dumpFlags struct {
	limit   int
	summary bool
}

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print decoded samples from an FTDC file to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().IntVar(&dumpFlags.limit, "limit", 0, "stop after this many samples (0 means no limit)")
	dumpCmd.Flags().BoolVar(&dumpFlags.summary, "summary", false, "print only the sample count, time range, and metric names")
}

func runDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reading %s (%s)\n", args[0], humanize.Bytes(uint64(info.Size())))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if dumpFlags.summary {
		return runDumpSummary(cmd, f, cfg)
	}

	ctx := context.Background()
	chunks := ftdc.NewChunkIterator(ctx, f)
	samples := ftdc.NewSampleIterator(chunks, cfg.Decode.ToOptions())

	count := 0
	for samples.Next() {
		s := samples.Sample()
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", s.Timestamp.Format("2006-01-02T15:04:05Z"))
		for _, p := range s.Points {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %v\n", p.Path, p.Value)
		}
		count++
		if dumpFlags.limit > 0 && count >= dumpFlags.limit {
			break
		}
	}
	if err := samples.Err(); err != nil {
		return fmt.Errorf("decode failed after %d samples: %w", count, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s samples\n", humanize.Comma(int64(count)))
	return nil
}

// runDumpSummary scans the whole file without printing individual
// samples, reporting the total sample count, the timestamp range, and
// the metric names seen in the last chunk decoded.
func runDumpSummary(cmd *cobra.Command, f *os.File, cfg *config.Config) error {
	ctx := context.Background()
	chunks := ftdc.NewChunkIterator(ctx, f)
	samples := ftdc.NewSampleIterator(chunks, cfg.Decode.ToOptions())

	var count int
	var first, last string
	for samples.Next() {
		s := samples.Sample()
		if count == 0 {
			first = s.Timestamp.Format("2006-01-02T15:04:05Z")
		}
		last = s.Timestamp.Format("2006-01-02T15:04:05Z")
		count++
	}
	if err := samples.Err(); err != nil {
		return fmt.Errorf("decode failed after %d samples: %w", count, err)
	}

	names, err := samples.MetricNames()
	if err != nil {
		return fmt.Errorf("metric names: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s samples", humanize.Comma(int64(count)))
	if count > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), " from %s to %s", first, last)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintf(cmd.OutOrStdout(), "%d metrics:\n", len(names))
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
	return nil
}
