// Command storefront はストアフロントのAPIサーバー・ワーカー・管理コマンドを起動する。
//
//	storefront [serve|worker|migrate|reap|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/storefront/internal/app"
)

func main() {
	if err := app.Run(nil, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
