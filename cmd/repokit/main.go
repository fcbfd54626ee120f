// Command repokit 演示仓储查询：建表、生成演示数据、按条件检索博客、监听变更通知。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"repokit/errors"
)

var (
	configPath  string
	logLevel    string
	dumpMetrics bool
)

var rootCmd = &cobra.Command{
	Use:           "repokit",
	Short:         "Query blogs through the repokit repository layer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (YAML); REPOKIT_* env vars override")
	flags.StringVar(&logLevel, "log-level", "", "override log.level (debug|info|warn|error)")
	flags.BoolVar(&dumpMetrics, "metrics", false, "print repository metrics after the command")

	rootCmd.AddCommand(newMigrateCmd(), newSeedCmd(), newBlogsCmd(), newWatchCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
}

// describe 边界处统一映射错误码后输出
func describe(err error) string {
	err = errors.Normalize(err)
	msg := "error: " + err.Error()
	if p := errors.ParamOf(err); p != "" {
		msg += fmt.Sprintf(" (param %s)", p)
	}
	return msg
}
