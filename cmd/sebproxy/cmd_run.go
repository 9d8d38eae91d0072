package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/examproxy/sebproxy"
	"github.com/examproxy/sebproxy/log"
	"github.com/examproxy/sebproxy/option"
	E "github.com/sagernet/sing/common/exceptions"

	"github.com/spf13/cobra"
)

var commandRun = &cobra.Command{
	Use:   "run",
	Short: "Run service",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := run()
		if err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	mainCommand.Run = commandRun.Run
	mainCommand.AddCommand(commandRun)
}

func create() (*box.Box, context.CancelFunc, error) {
	options, err := option.Load(configPath)
	if err != nil {
		return nil, nil, E.Cause(err, "load config")
	}
	if disableColor {
		options.Log.DisableColor = true
	}
	ctx, cancel := context.WithCancel(context.Background())
	instance, err := box.New(box.Options{
		Context: ctx,
		Options: options,
	})
	if err != nil {
		cancel()
		return nil, nil, E.Cause(err, "create service")
	}
	err = instance.Start()
	if err != nil {
		cancel()
		return nil, nil, E.Cause(err, "start service")
	}
	return instance, cancel, nil
}

func run() error {
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(osSignals)
	instance, cancel, err := create()
	if err != nil {
		return err
	}
	<-osSignals
	cancel()
	closeCtx, closed := context.WithCancel(context.Background())
	go closeMonitor(closeCtx)
	err = instance.Close()
	closed()
	if err != nil {
		log.Error(E.Cause(err, "close service"))
	}
	return nil
}

func closeMonitor(ctx context.Context) {
	time.Sleep(3 * time.Second)
	select {
	case <-ctx.Done():
		return
	default:
	}
	log.Fatal("sebproxy did not close!")
}
