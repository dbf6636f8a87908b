package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/illenko/usagewatch/internal/analyzer"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Sample every configured source once",
	RunE:  runCollect,
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	samples, err := a.collector.CollectAll(cmd.Context(), a.sources(), a.clock.Now())

	out := cmd.OutOrStdout()
	for _, s := range samples {
		fmt.Fprintf(out, "%-10s %14s  %5.1f%%\n", s.Type, analyzer.FormatValue(s.Type, s.Value), s.Percentage)
	}
	return err
}
