// Command schemaforge applies, reverts and reports schema migrations.
//
//	schemaforge [flags] migrate|rollback|status|create-db|drop-db
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/burugo/schemaforge/drivers/db/mysql"
	_ "github.com/burugo/schemaforge/drivers/db/postgres"
	_ "github.com/burugo/schemaforge/drivers/db/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Printf("schemaforge: %v", err)
		stop()
		os.Exit(1)
	}
}
