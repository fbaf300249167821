// Command client talks to the order server.
//
//	client [-config path] [-addr host:port] [-o table|json|binary] order list
//	client [-config path] [-addr host:port] error
//	client help
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"go.uber.org/zap"

	"order-shop/client"
	"order-shop/codec"
	"order-shop/config"
	"order-shop/loadbalance"
	"order-shop/logging"
	"order-shop/message"
	"order-shop/protocol"
	"order-shop/registry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("ORDERSHOP_CONFIG"), "path to a TOML config file")
	addr := fs.String("addr", "", "server address, overrides the config file")
	output := fs.String("o", "table", "output format: table, json or binary (raw DISPLAY_ORDERS records)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stdout, "Usage: [order, error, help]")
		return 1
	}
	if *output != "table" {
		if _, err := codec.ParseCodecType(*output); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
	}

	if fs.Arg(0) == "help" {
		printHelp(stdout)
		return 0
	}

	cfg, err := config.LoadClient(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	if *addr != "" {
		cfg.Addr = *addr
		cfg.Etcd.Endpoints = nil
	}
	logger, err := logging.New(cfg.Log, "order-client")
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	defer logger.Sync()

	c, closeClient, err := newClient(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	defer closeClient()

	ctx := context.Background()
	switch fs.Arg(0) {
	case "order":
		if fs.NArg() < 2 {
			fmt.Fprintln(stdout, "Usage: order [list]")
			return 1
		}
		if fs.Arg(1) != "list" {
			fmt.Fprintf(stderr, "ERROR: unknown order command %q\n", fs.Arg(1))
			return 1
		}
		items, err := c.DisplayOrders(ctx)
		if err != nil {
			reportError(stderr, err)
			fmt.Fprintln(stderr, "ERROR: display order request failed")
			return 1
		}
		if err := printOrders(stdout, items, *output); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
		return 0
	case "error":
		req := protocol.RequestHeader{Magic: 0, Version: protocol.Version, ID: protocol.RequestDisplayOrders}
		if _, _, err := c.Execute(ctx, req, nil); err != nil {
			reportError(stderr, err)
			fmt.Fprintln(stderr, "ERROR: request failed")
			return 1
		}
		return 0
	default:
		fmt.Fprintf(stderr, "ERROR: unknown command %q\n", fs.Arg(0))
		return 1
	}
}

func newClient(cfg config.ClientConfig, logger *zap.Logger) (*client.Client, func(), error) {
	opts := []client.Option{client.WithTimeout(cfg.Timeout.Duration), client.WithLogger(logger)}
	if !cfg.Etcd.Enabled() {
		return client.New(cfg.Addr, opts...), func() {}, nil
	}

	bal, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return nil, nil, err
	}
	reg, err := registry.NewEtcdRegistry(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout.Duration, logger)
	if err != nil {
		return nil, nil, err
	}
	return client.NewWithRegistry(reg, bal, opts...), func() { reg.Close() }, nil
}

func reportError(w io.Writer, err error) {
	var serr *client.ServerError
	if errors.As(err, &serr) {
		fmt.Fprintln(w, "ERROR: server error")
		fmt.Fprintf(w, "ERROR: %s\n", serr.Message)
		return
	}
	fmt.Fprintf(w, "ERROR: %v\n", err)
}

func printOrders(w io.Writer, items []message.FullOrderItem, format string) error {
	if format != "table" {
		ct, err := codec.ParseCodecType(format)
		if err != nil {
			return err
		}
		if items == nil && ct == codec.CodecTypeJSON {
			items = []message.FullOrderItem{}
		}
		data, err := codec.GetCodec(ct).Encode(items)
		if err != nil {
			return err
		}
		if ct == codec.CodecTypeJSON {
			data = append(data, '\n')
		}
		_, err = w.Write(data)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSTATUS\tDATE\tITEM\tNAME\tQTY\tUNIT PRICE\tTOTAL")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%d\t%d\t%d\n",
			it.Order.ID, it.Order.Status, it.Order.Date,
			it.Item.ID, it.Item.Name, it.Item.Quantity, it.Item.UnitPrice, it.Item.Total())
	}
	return tw.Flush()
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "== Help ==")
	fmt.Fprintln(w, "client order list - list the most recent order items")
	fmt.Fprintln(w, "client error      - execute an invalid request")
	fmt.Fprintln(w, "client help       - show this help")
	fmt.Fprintln(w, "flags: -config path, -addr host:port, -o table|json|binary")
}
