// Command reconcile checks and repairs drift between the cached tile stock
// counters and the ground truth in pallets and bookings. Run with -check for
// a read-only report; without it, divergent counters are overwritten.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"tiletrack/internal/core"
	"tiletrack/internal/db"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	checkOnly := flag.Bool("check", false, "report issues without writing")
	tileCode := flag.String("tile", "", "limit -check output to one tile code")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := core.NewReconcileService(pool, log)

	if *checkOnly {
		issues, err := svc.CheckStock(ctx)
		if err != nil {
			log.Fatalf("check: %v", err)
		}
		shown := 0
		for _, issue := range issues {
			if *tileCode != "" && issue.TileCode != *tileCode {
				continue
			}
			shown++
			log.WithFields(logrus.Fields{
				"tile":     issue.TileCode,
				"field":    issue.Field,
				"recorded": issue.Recorded,
				"expected": issue.Expected,
			}).Warn(issue.Severity)
		}
		if shown > 0 {
			os.Exit(1)
		}
		return
	}

	report, err := svc.ReconcileStock(ctx)
	if err != nil {
		log.Fatalf("reconcile: %v", err)
	}
	log.Infof("checked %d tiles, repaired %d", report.TilesChecked, report.TilesRepaired)
}
