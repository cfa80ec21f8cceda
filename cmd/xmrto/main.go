package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/normoes/xmrto-wrapper/internal/app"
	"github.com/normoes/xmrto-wrapper/internal/domain"
	"github.com/normoes/xmrto-wrapper/internal/infra"
	"github.com/normoes/xmrto-wrapper/internal/service"
)

const usage = `Usage: xmrto <command> [options]

Commands:
  create-order             Create a new BTC payment order
  create-ln-order          Create an order paying a lightning invoice
  track-order              Query or follow an existing order
  confirm-partial-payment  Proceed with an underpaid order
  check-price              Query the current conversion rate
  check-ln-routes          Check lightning routability of an invoice
  parameters               Show current service order parameters
  qrcode                   Fetch a QR code image for arbitrary data

Run 'xmrto <command> -h' for command options.
`

// envOr returns the flag value if set, the environment variable
// otherwise. Flags beat environment variables.
func envOr(flagValue, envName string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envName)
}

// commonFlags registers the options shared by every command.
func commonFlags(fs *flag.FlagSet, opts *app.Options) {
	fs.StringVar(&opts.URL, "url", "", "service URL (env XMRTO_URL)")
	fs.StringVar(&opts.APIVersion, "api", "", "API version, v2 or v3 (env API_VERSION)")
	fs.StringVar(&opts.ConfigPath, "config", "", "path to a yaml config file")
	fs.BoolVar(&opts.Debug, "debug", false, "enable debug logging")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "create-order":
		err = runCreateOrder(ctx, os.Args[2:])
	case "create-ln-order":
		err = runCreateLightningOrder(ctx, os.Args[2:])
	case "track-order":
		err = runTrackOrder(ctx, os.Args[2:])
	case "confirm-partial-payment":
		err = runConfirmPartialPayment(ctx, os.Args[2:])
	case "check-price":
		err = runCheckPrice(ctx, os.Args[2:])
	case "check-ln-routes":
		err = runCheckLightningRoutes(ctx, os.Args[2:])
	case "parameters":
		err = runParameters(ctx, os.Args[2:])
	case "qrcode":
		err = runQRCode(ctx, os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap initializes the application and reports the startup
// metrics snapshot when debug logging is on.
func bootstrap(opts app.Options) (*app.Bootstrap, error) {
	b := app.NewBootstrap()
	if err := b.Initialize(opts); err != nil {
		return nil, err
	}
	return b, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func logMetrics(b *app.Bootstrap) {
	snap := infra.GlobalMetrics.Snapshot()
	b.Logger.Debug("session metrics",
		"requests", snap.RequestsTotal,
		"retries", snap.RetriesTotal,
		"polls", snap.PollsTotal,
		"errors", snap.ErrorsTotal,
		"avg_latency", time.Duration(snap.AvgLatencyNs).String(),
	)
}

func runCreateOrder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-order", flag.ExitOnError)
	var opts app.Options
	commonFlags(fs, &opts)
	destination := fs.String("destination", "", "BTC destination address (env BTC_ADDRESS)")
	btcAmount := fs.String("btc-amount", "", "amount to receive in BTC (env BTC_AMOUNT)")
	xmrAmount := fs.String("xmr-amount", "", "amount to pay in XMR (env XMR_AMOUNT)")
	follow := fs.Bool("follow", false, "keep tracking the order after creation")
	fs.Parse(args)

	b, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer logMetrics(b)

	order, err := b.Orders.Create(ctx,
		envOr(*destination, "BTC_ADDRESS"),
		envOr(*btcAmount, "BTC_AMOUNT"),
		envOr(*xmrAmount, "XMR_AMOUNT"),
	)
	if err != nil {
		return err
	}

	if !*follow {
		return printJSON(order)
	}
	return followOrder(ctx, b, order)
}

func runCreateLightningOrder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-ln-order", flag.ExitOnError)
	var opts app.Options
	commonFlags(fs, &opts)
	invoice := fs.String("invoice", "", "lightning invoice to pay (env LN_INVOICE)")
	follow := fs.Bool("follow", false, "keep tracking the order after creation")
	fs.Parse(args)

	b, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer logMetrics(b)

	order, err := b.Orders.CreateLightning(ctx, envOr(*invoice, "LN_INVOICE"))
	if err != nil {
		return err
	}

	if !*follow {
		return printJSON(order)
	}
	return followOrder(ctx, b, order)
}

func runTrackOrder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("track-order", flag.ExitOnError)
	var opts app.Options
	commonFlags(fs, &opts)
	secret := fs.String("secret", "", "order secret key (env SECRET_KEY)")
	follow := fs.Bool("follow", false, "keep polling until the order settles")
	fs.Parse(args)

	b, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer logMetrics(b)

	order, err := b.Orders.Track(ctx, envOr(*secret, "SECRET_KEY"))
	if err != nil {
		return err
	}

	if !*follow {
		return printJSON(order)
	}
	return followOrder(ctx, b, order)
}

// followOrder runs the tracking loop, printing every snapshot as it
// arrives. The loop's stop reason decides the exit outcome.
func followOrder(ctx context.Context, b *app.Bootstrap, initial domain.Order) error {
	result := b.Orders.FollowOrder(ctx, initial, b.FollowOptions(), func(o domain.Order) {
		printJSON(o)
	})

	switch result.Reason {
	case service.StopTerminal, service.StopCancelled:
		return nil
	case service.StopAwaitConfirm:
		return fmt.Errorf("order %s is underpaid, run confirm-partial-payment to proceed", result.Last.SecretKey)
	case service.StopDeadline:
		return fmt.Errorf("order %s did not settle before the deadline", result.Last.SecretKey)
	default:
		return result.Err
	}
}

func runConfirmPartialPayment(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("confirm-partial-payment", flag.ExitOnError)
	var opts app.Options
	commonFlags(fs, &opts)
	secret := fs.String("secret", "", "order secret key (env SECRET_KEY)")
	follow := fs.Bool("follow", false, "keep tracking the order after confirming")
	fs.Parse(args)

	b, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer logMetrics(b)

	lastKnown, err := b.Orders.Track(ctx, envOr(*secret, "SECRET_KEY"))
	if err != nil {
		return err
	}

	order, err := b.Orders.Confirm(ctx, lastKnown)
	if err != nil {
		return err
	}

	if !*follow {
		return printJSON(order)
	}
	return followOrder(ctx, b, order)
}

func runCheckPrice(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check-price", flag.ExitOnError)
	var opts app.Options
	commonFlags(fs, &opts)
	btcAmount := fs.String("btc-amount", "", "amount to receive in BTC (env BTC_AMOUNT)")
	xmrAmount := fs.String("xmr-amount", "", "amount to pay in XMR (env XMR_AMOUNT)")
	follow := fs.Bool("follow", false, "keep re-fetching the quote")
	fs.Parse(args)

	b, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer logMetrics(b)

	btc := envOr(*btcAmount, "BTC_AMOUNT")
	xmr := envOr(*xmrAmount, "XMR_AMOUNT")

	if !*follow {
		quote, err := b.Prices.CheckPrice(ctx, btc, xmr)
		if err != nil {
			return err
		}
		return printJSON(quote)
	}

	result := b.Prices.FollowPrice(ctx, btc, xmr, b.FollowOptions(), func(q domain.PriceQuote) {
		printJSON(q)
	})
	if result.Reason == service.StopFailed {
		return result.Err
	}
	return nil
}

func runCheckLightningRoutes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("check-ln-routes", flag.ExitOnError)
	var opts app.Options
	commonFlags(fs, &opts)
	invoice := fs.String("invoice", "", "lightning invoice to probe (env LN_INVOICE)")
	fs.Parse(args)

	b, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer logMetrics(b)

	routes, err := b.Client.CheckLightningRoutes(ctx, envOr(*invoice, "LN_INVOICE"))
	if err != nil {
		return err
	}
	return printJSON(routes)
}

func runParameters(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("parameters", flag.ExitOnError)
	var opts app.Options
	commonFlags(fs, &opts)
	fs.Parse(args)

	b, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer logMetrics(b)

	params, err := b.Client.CheckParameters(ctx)
	if err != nil {
		return err
	}
	return printJSON(params)
}

func runQRCode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("qrcode", flag.ExitOnError)
	var opts app.Options
	commonFlags(fs, &opts)
	data := fs.String("data", "", "data to encode (env QR_DATA)")
	file := fs.String("file", "qrcode.png", "output file name")
	fs.Parse(args)

	b, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer logMetrics(b)

	raw, err := b.Client.FetchQRCode(ctx, envOr(*data, "QR_DATA"))
	if err != nil {
		return err
	}

	path, err := b.QRCodes.Save(raw, *file)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
