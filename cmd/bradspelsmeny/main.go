// Command bradspelsmeny はボードゲームカフェ貸出アプリのバックエンドを起動する。
//
// 使い方:
//
//	bradspelsmeny [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/bradspelsmeny/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "bradspelsmeny: %v\n", err)
		os.Exit(1)
	}
}
