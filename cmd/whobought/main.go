// whobought is the terminal front end for the lookup service. Given an item
// code and a rep code it prints the accounts that bought the item, the best
// buyer per sales tier, and optionally the not-yet-buying accounts in a
// chosen tier.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ryanbass99/et-office-portal/internal/docstore"
	"github.com/ryanbass99/et-office-portal/internal/lookup"

	_ "github.com/ryanbass99/et-office-portal/internal/docstore/all"
)

func main() {
	var (
		item       string
		rep        string
		storeKind  string
		dsn        string
		table      string
		tierName   string
		limit      int
		onePerTier bool
		useIndex   bool
	)

	flag.StringVar(&item, "item", "", "item code to look up (required)")
	flag.StringVar(&rep, "rep", "", "rep code owning the accounts (required)")
	flag.StringVar(&storeKind, "store", "sqlite", "store backend (memory, sqlite, postgres)")
	flag.StringVar(&dsn, "dsn", "file:portal.db", "store connection string")
	flag.StringVar(&table, "table", "", "documents table (postgres only)")
	flag.StringVar(&tierName, "tier", "", "also list accounts in this tier (A-D) that have not bought the item")
	flag.IntVar(&limit, "limit", lookup.MaxOpportunities, "max opportunity rows")
	flag.BoolVar(&onePerTier, "one-per-tier", false, "print only the best buyer per tier")
	flag.BoolVar(&useIndex, "index", false, "answer from the precomputed item index instead of the live join")

	flag.Parse()

	if item == "" || rep == "" {
		fmt.Fprintln(os.Stderr, "usage: whobought -item CODE -rep CODE [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx := context.Background()
	store, closeStore, err := docstore.Open(ctx, storeKind, docstore.OpenConfig{DSN: dsn, Table: table})
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	svc := lookup.NewService(store)

	if useIndex {
		accounts, ok, err := svc.BuyersFromIndex(ctx, item, rep)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if !ok || len(accounts) == 0 {
			fmt.Printf("no buyers of %s for rep %s\n", item, rep)
			return
		}
		for _, id := range accounts {
			fmt.Println(id)
		}
		return
	}

	buyers, err := svc.BuyersFor(ctx, item, rep)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if len(buyers) == 0 {
		fmt.Printf("no buyers of %s for rep %s\n", item, rep)
	} else if onePerTier {
		best := lookup.BestPerTier(buyers)
		for _, t := range lookup.Tiers {
			if b, ok := best[t]; ok {
				printBuyer(t, b)
			}
		}
	} else {
		for _, b := range buyers {
			printBuyer(b.Tier, b)
		}
	}

	if tierName == "" {
		return
	}
	tier, err := lookup.ParseTier(tierName)
	if err != nil {
		log.Fatalf("%v", err)
	}
	opps, err := svc.Opportunities(ctx, rep, tier, buyers, limit)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("\ntier %s accounts that have not bought %s:\n", tier, item)
	if len(opps) == 0 {
		fmt.Println("(none)")
		return
	}
	for _, b := range opps {
		printBuyer(b.Tier, b)
	}
}

func printBuyer(t lookup.Tier, b lookup.Buyer) {
	name := b.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Printf("%s  %-12s %-32s %12.2f\n", t, b.AccountID, name, b.TrailingSales)
}
