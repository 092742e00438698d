// authzctl 鉴权服务命令行工具
package main

import (
	"context"
	"os"

	"github.com/ceyewan/authzkit/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
