package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mastercactapus/sled/config"
	"github.com/mastercactapus/sled/driver"
	"github.com/mastercactapus/sled/logs"
	"github.com/mastercactapus/sled/machine"
	"github.com/mastercactapus/sled/router"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configFile string
	addr       string
	uiDir      string
	jobFile    string
}

func main() {
	var opt options
	flag.StringVar(&opt.configFile, "config", "sled.json", "Path to the configuration file.")
	flag.StringVar(&opt.addr, "addr", ":9091", "Address to bind the HTTP server to.")
	flag.StringVar(&opt.uiDir, "ui", "", "Directory of static UI files to serve at /.")
	flag.StringVar(&opt.jobFile, "job", "", "G-code file to load at start.")
	level := flag.String("log-level", "info", "Log level (debug, info, warn, error).")
	flag.Parse()

	lvl, err := logs.ParseLevel(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := logs.New(os.Stderr, lvl)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = run(ctx, opt, log)
	if err != nil {
		log.Error("exit", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opt options, log *slog.Logger) error {
	store, err := config.Load(opt.configFile, log)
	if err != nil {
		return err
	}
	cfg := store.Get()

	drv, err := driver.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		err := drv.Close()
		if err != nil {
			log.Error("close driver", "err", err)
		}
	}()

	m, err := machine.New(cfg, store, drv, log)
	if err != nil {
		return err
	}
	rt := router.New(m, log)

	if opt.jobFile != "" {
		err = loadJob(rt, opt.jobFile)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	a := newAPI(ctx, m, rt, store, opt.uiDir, log)
	srv := &http.Server{Addr: opt.addr, Handler: a}

	g.Go(func() error {
		err := m.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		store.Run(ctx, 500*time.Millisecond)
		return nil
	})
	g.Go(func() error {
		log.Info("listening", "addr", opt.addr)
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "serve http")
	})
	g.Go(func() error {
		<-ctx.Done()
		m.EmergencyStop()
		a.Close()

		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

func loadJob(rt *router.Router, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return errors.Wrap(err, "open job")
	}
	defer f.Close()

	return rt.LoadJobFromStream(f)
}
