// Command seed-watchlist loads symbols into the watchlist table from a
// text file with one symbol per line. Blank lines and lines starting
// with # are ignored.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/osvelia/propulsion/internal/config"
	"github.com/osvelia/propulsion/internal/store"
)

func main() {
	configPath := flag.String("config", "config/engine.yaml", "path to engine config")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: seed-watchlist [-config path] <symbols-file>")
		os.Exit(2)
	}

	if err := run(*configPath, flag.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, "seed-watchlist:", err)
		os.Exit(1)
	}
}

func run(configPath, symbolsPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	f, err := os.Open(symbolsPath)
	if err != nil {
		return err
	}
	defer f.Close()

	var entries []store.WatchlistEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		symbol := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if symbol == "" || strings.HasPrefix(symbol, "#") {
			continue
		}
		entries = append(entries, store.WatchlistEntry{Symbol: symbol})
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.UpsertWatchlist(ctx, entries); err != nil {
		return err
	}
	fmt.Printf("Seeded %d watchlist symbols\n", len(entries))
	return nil
}
