// Command csvingest infers schemas for CSV files and loads them into a
// relational store.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	_ "github.com/microsoft/go-mssqldb"

	"csvingest/internal/cli"

	// register all backends with the storage registry.
	// config selects which to use, so every one is linked in.
	_ "csvingest/internal/storage/mssql"
	_ "csvingest/internal/storage/mysql"
	_ "csvingest/internal/storage/postgres"
	_ "csvingest/internal/storage/sqlite"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(3)
		}
	}()
	os.Exit(cli.Execute())
}
