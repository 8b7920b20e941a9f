package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/michaelpento.lv/flasharb/cmd"
	"github.com/michaelpento.lv/flasharb/utils"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.ExecuteContext(ctx)
	log := utils.GetLogger()
	_ = log.Sync()
	if err != nil {
		stop()
		log.Error("Command failed", zap.Error(err))
		os.Exit(1)
	}
}
