// Copyright 2025 PolyCrypt GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perun.network/perun-ton-backend/api"
	"perun.network/perun-ton-backend/client"
	"perun.network/perun-ton-backend/config"
	"perun.network/perun-ton-backend/ledger"
	"perun.network/perun-ton-backend/payment"
	"perun.network/perun-ton-backend/util"
	"perun.network/perun-ton-backend/wallet/types"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
	log.Println("DONE")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	_, closer, err := util.SetupLogging(cfg.Log)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	acc, err := cfg.Account()
	if err != nil {
		return err
	}
	serviceAddr, err := types.ParseAddress(cfg.Service.Address)
	if err != nil {
		return fmt.Errorf("service address: %w", err)
	}
	prices, err := cfg.ServicePrices()
	if err != nil {
		return err
	}

	db, err := ledger.OpenDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	rpc := client.NewClient(client.Config{URL: cfg.Node.URL, APIKey: cfg.Node.APIKey, Timeout: cfg.Node.Timeout.Duration})
	backend := client.NewContractBackend(rpc)

	service, err := payment.NewService(payment.ServiceConfig{
		Account:              acc,
		Address:              serviceAddr,
		Ledger:               ledger.New(db, acc),
		Reader:               backend,
		Sender:               backend,
		Prices:               prices,
		PollingInterval:      cfg.Service.PollingInterval.Duration,
		MaxPollingAttempts:   cfg.Service.MaxPollingAttempts,
		SubscriptionInterval: cfg.Service.SubscriptionInterval.Duration,
		WatchChannels:        cfg.Service.Watch,
	})
	if err != nil {
		return err
	}
	defer service.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Service.Watch {
		n, err := service.ResumeWatching(ctx)
		if err != nil {
			return fmt.Errorf("resuming watchers: %w", err)
		}
		log.Println("Watching", n, "channels")
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.New(api.Config{Service: service}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Println("Shutdown:", err)
		}
	}()

	log.Println("Service key", hex.EncodeToString(acc.PublicKey()), "at", serviceAddr.String())
	log.Println("Listening on", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
