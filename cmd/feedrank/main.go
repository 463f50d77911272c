// Package main 是 feedrank 命令行入口：在 JSON fixture 上运行个性化 Feed 排序，
// 用于本地调参与回放线上样本。
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "feedrank",
		Short: "Personalized feed ranking over a content fixture",
		Long: `feedrank loads candidates, users and interactions from a JSON fixture,
wires the ranking engine with the storage configured in --config, and runs
one operation per subcommand: rank a page, record an interaction, check
interest drift, or apply a grade transition.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "YAML config file (defaults apply when empty)")
	root.PersistentFlags().String("fixture", "", "JSON fixture with candidates, users and interactions")

	root.AddCommand(newRankCmd(), newRecordCmd(), newDriftCmd(), newGradeCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
