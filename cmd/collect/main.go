package main

import (
	"os"

	"github.com/spf13/cobra"
)

// 一个仅执行一次刷新的命令行入口：适合手动触发采集与排查数据源
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	flagView     string
	flagCategory string
	flagLimit    int
	flagJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "collect",
	Short: "Refresh news views once and print the result",
	Long: "collect runs a single refresh of the news and/or trending view using the configured sources, " +
		"then prints the merged items. Snapshots and archive are written when Redis/Postgres are configured.",
	SilenceUsage: true,
	RunE:         runCollect,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources",
	RunE:  runSources,
}

func init() {
	rootCmd.Flags().StringVar(&flagView, "view", "all", "view to refresh: news, trending or all")
	rootCmd.Flags().StringVar(&flagCategory, "category", "", "only print items of this category")
	rootCmd.Flags().IntVar(&flagLimit, "limit", 20, "max items to print per view (0 = all)")
	rootCmd.Flags().BoolVar(&flagJSON, "json", false, "print items as JSON")

	rootCmd.AddCommand(sourcesCmd)
}
