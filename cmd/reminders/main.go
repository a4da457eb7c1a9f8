package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/access"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/cache"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/database"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/dateutil"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/engine"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	day, err := dateutil.Parse(os.Args[2])
	if err != nil {
		log.Fatalf("%v", err)
	}

	var orgID *uint
	if len(os.Args) > 3 {
		id, err := strconv.ParseUint(os.Args[3], 10, 64)
		if err != nil || id == 0 {
			log.Fatalf("Invalid organization id %q", os.Args[3])
		}
		v := uint(id)
		orgID = &v
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	database.SetupDatabase()
	cache.SetupCache()
	eng, err := engine.New(ctx, database.GetDB(), cache.GetClient())
	if err != nil {
		log.Fatalf("Engine setup failed: %v", err)
	}

	var report any
	switch command {
	case "generate":
		report, err = eng.Generator.Generate(ctx, access.System(), day, orgID)
	case "send-pending":
		report, err = eng.Dispatcher.SendPending(ctx, access.System(), dateutil.EndOfDay(day), orgID)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", command, err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatalf("Failed to print report: %v", err)
	}
}

func printUsage() {
	fmt.Println("Usage: go run cmd/reminders/main.go [command] YYYY-MM-DD [organization id]")
	fmt.Println("Commands:")
	fmt.Println("  generate     - create the reminders due for the day")
	fmt.Println("  send-pending - deliver email reminders scheduled up to the end of the day")
}
