package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"campus-eats/internal/admission"
	"campus-eats/internal/app/api"
	"campus-eats/internal/app/notify"
	"campus-eats/internal/checkout"
	"campus-eats/internal/common/config"
	"campus-eats/internal/common/db"
	"campus-eats/internal/common/httpx"
	"campus-eats/internal/common/logger"
	"campus-eats/internal/common/mq"
	"campus-eats/internal/fulfillment"
	"campus-eats/internal/gateway"
	"campus-eats/internal/publish"
	"campus-eats/internal/store"
)

func main() {
	mode := flag.String("mode", "", "api-service | notification-subscriber")
	port := flag.Int("port", 0, "http port (api-service)")
	cfgPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	lg := logger.New("bootstrap")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path := *cfgPath
	if path == "" {
		var err error
		if path, err = config.FindConfig(); err != nil {
			fmt.Fprintln(os.Stderr, "no config.yaml found; pass --config")
			os.Exit(2)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": path})
		os.Exit(1)
	}

	switch *mode {
	case "api-service":
		if *port == 0 {
			*port = cfg.HTTP.Port
		}
		lg.Info("service_started", map[string]any{"service": "api-service", "port": *port})
		if err := runAPI(ctx, cfg, *port); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "notification-subscriber":
		lg.Info("service_started", map[string]any{"service": "notification-subscriber"})
		if err := runSubscriber(ctx, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: api-service | notification-subscriber")
		os.Exit(2)
	}
}

func runAPI(ctx context.Context, cfg config.App, port int) error {
	lg := logger.New("api-service")

	conn, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := mq.Dial(cfg.Rabbit)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Ping(); err != nil {
		return err
	}
	if err := client.DeclareAll(); err != nil {
		return err
	}

	st := store.NewPostgres(conn)
	gw := gateway.NewStripe(cfg.Stripe.APIKey)
	pub := publish.New(publish.NewAMQPTransport(client), logger.New("status-publisher"))

	co := checkout.New(st, gw, logger.New("checkout"))
	ad := admission.New(st, pub, logger.New("admission"))
	fq := fulfillment.New(st, pub, logger.New("fulfillment"))

	h := api.NewHandler(co, ad, fq, st, cfg.Stripe.WebhookSecret, lg)
	srv := httpx.New(":"+strconv.Itoa(port), api.Router(h))
	return srv.Run(ctx)
}

func runSubscriber(ctx context.Context, cfg config.App) error {
	lg := logger.New("notification-subscriber")

	client, err := mq.Dial(cfg.Rabbit)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Ping(); err != nil {
		return err
	}
	if err := client.DeclareAll(); err != nil {
		return err
	}
	return notify.Run(ctx, client, lg)
}
