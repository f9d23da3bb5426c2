// Command authgate はログイン・ロックアウト・監査を提供する認証サービス。
package main

import (
	"fmt"
	"os"

	"github.com/telconova/authgate/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
