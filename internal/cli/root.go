// Package cli 实现了 vectorctl 命令行工具，通过内部 HTTP 接口操作向量化服务。
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	server  string
	apiKey  string
	timeout time.Duration
}

// NewRootCmd 构建根命令并挂载所有子命令。
func NewRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "vectorctl",
		Short: "vectorctl - 知识库向量化服务的命令行客户端",
	}
	cmd.SilenceUsage = true
	cmd.PersistentFlags().StringVar(&opts.server, "server", envOr("KBV_SERVER", "http://127.0.0.1:8081"), "服务地址")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("KBV_INTERNAL_API_KEY"), "内部接口密钥 (x-api-key)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 20*time.Minute, "请求超时时间")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newTriggerCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newDocCmd(opts))
	return cmd
}

// Execute 运行命令行入口。
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newRunCmd(opts *options) *cobra.Command {
	var (
		batchSize int
		orgID     string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "同步执行一次向量化批处理",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/internal/vectorize"
			body := map[string]interface{}{}
			if batchSize > 0 {
				body["batchSize"] = batchSize
			}
			if orgID != "" {
				path = "/api/internal/organizations/" + orgID + "/knowledge-base/vectorize"
			}
			return newClient(opts).print(cmd, "POST", path, body)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "本次处理的文档数，0 表示使用服务端默认值")
	cmd.Flags().StringVar(&orgID, "org", "", "只处理指定组织的文档")
	return cmd
}

func newTriggerCmd(opts *options) *cobra.Command {
	var (
		batchSize int
		orgID     string
		reason    string
	)
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "异步提交一次向量化批处理",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"reason": reason}
			if batchSize > 0 {
				body["batchSize"] = batchSize
			}
			if orgID != "" {
				body["organizationId"] = orgID
			}
			return newClient(opts).print(cmd, "POST", "/api/internal/vectorize/trigger", body)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "本次处理的文档数")
	cmd.Flags().StringVar(&orgID, "org", "", "只处理指定组织的文档")
	cmd.Flags().StringVar(&reason, "reason", "cli", "触发原因")
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "查看向量化进度",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/internal/vectorize/status"
			if orgID != "" {
				path += "?organizationId=" + orgID
			}
			return newClient(opts).print(cmd, "GET", path, nil)
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "只统计指定组织的文档")
	return cmd
}

func newDocCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "doc <id>",
		Short: "查看单个文档的向量化状态",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).print(cmd, "GET", "/api/internal/documents/"+args[0]+"/vectorization", nil)
		},
	}
}
