package app

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hitoshi/authdesk/internal/database"
)

// サブコマンド名
const (
	CommandServe       = "serve"
	CommandMigrate     = "migrate"
	CommandHealthcheck = "healthcheck"
)

// Run はコマンドライン引数に応じて処理を振り分ける。
// 引数が空の場合はserveとして扱う。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// NewRootCommand はルートコマンドを生成する。
// サブコマンド未指定時はHTTPサーバーを起動する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "authdesk",
		Short:         "Session-based authentication web application",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, w)
		},
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		newServeCommand(w),
		newMigrateCommand(w),
		newHealthcheckCommand(),
	)
	return root
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   CommandServe,
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd, w)
		},
	}
}

func serve(cmd *cobra.Command, w io.Writer) error {
	cfg, err := Init(w)
	if err != nil {
		return err
	}
	return runServe(cmd.Context(), cfg)
}

// newMigrateCommand はマイグレーションコマンドを生成する。
// 方向の指定がない場合はupとして扱う。
func newMigrateCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:       CommandMigrate + " [up|down|version]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}

			cfg, err := Init(w)
			if err != nil {
				return err
			}

			if direction != "version" {
				return runMigrate(cfg, direction)
			}

			version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to read migration version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	}
}

// newHealthcheckCommand はヘルスチェックコマンドを生成する。
// 設定全体を読み込まず、ポート番号のみを使用する。
func newHealthcheckCommand() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   CommandHealthcheck,
		Short: "Probe the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealthcheck(cmd.Context(), "http://localhost:"+port)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", defaultPort(), "server port")
	return cmd
}

func defaultPort() string {
	if p := os.Getenv("SERVER_PORT"); p != "" {
		return p
	}
	return "8080"
}
