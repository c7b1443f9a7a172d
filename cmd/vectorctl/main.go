// Package main 是 vectorctl 命令行工具的入口点。
package main

import "kb-vectorizer/internal/cli"

func main() {
	cli.Execute()
}
