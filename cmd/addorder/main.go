// Command addorder places one order directly in the database.
//
//	addorder [-config path] [-db url] -i <item id> [-i <item id> ...]
//
// Repeating an id orders that item several times.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"order-shop/config"
	"order-shop/logging"
	"order-shop/orderentry"
	"order-shop/store"
)

// itemIDs collects every -i/-item occurrence.
type itemIDs []int32

func (ids *itemIDs) String() string {
	return fmt.Sprint(*ids)
}

func (ids *itemIDs) Set(v string) error {
	if len(*ids) >= orderentry.MaxItemIDs {
		return orderentry.ErrTooManyItems
	}
	id, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid item id %q", v)
	}
	*ids = append(*ids, int32(id))
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, openStore))
}

type storeOpener func(ctx context.Context, url string) (store.Store, error)

func openStore(ctx context.Context, url string) (store.Store, error) {
	return store.OpenPostgres(ctx, url)
}

func run(args []string, stdout, stderr io.Writer, open storeOpener) int {
	var ids itemIDs
	fs := flag.NewFlagSet("addorder", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("ORDERSHOP_CONFIG"), "path to a TOML config file")
	dbURL := fs.String("db", "", "database URL, overrides the config file")
	fs.Var(&ids, "i", "item id to order (repeatable)")
	fs.Var(&ids, "item", "item id to order (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if len(ids) == 0 {
		fmt.Fprintln(stderr, "Usage: addorder -i <item id> [-i <item id> ...]")
		return 1
	}

	cfg, err := config.LoadOrderEntry(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	if *dbURL != "" {
		cfg.DatabaseURL = *dbURL
	}
	logger, err := logging.New(cfg.Log, "addorder")
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Debug("open store", zap.Error(err))
		fmt.Fprintln(stderr, "Connection failed")
		return 1
	}
	defer st.Close()

	receipt, err := orderentry.Place(ctx, st, ids)
	if err != nil {
		logger.Warn("place order", zap.Int32s("items", ids), zap.Error(err))
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	logger.Info("order placed", zap.Int32("order_id", receipt.OrderID), zap.Int("lines", len(receipt.Items)))
	receipt.WriteTo(stdout)
	return 0
}
