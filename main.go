package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spooky-finn/go-deribit-bridge/config"
	"github.com/spooky-finn/go-deribit-bridge/domain"
	promclient "github.com/spooky-finn/go-deribit-bridge/infrastructure/prometheus"
	"github.com/spooky-finn/go-deribit-bridge/usecase"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	conf, err := config.Load()
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	go promclient.StartPromClientServer(conf.MetricsAddr, logger)

	session := usecase.NewTradingSessionUseCase(conf, logger)
	if err := session.Initialize(); err != nil {
		logger.Fatal("failed to initialize session", zap.Error(err))
	}
	defer session.Close()

	if err := session.Authenticate(); err != nil {
		logger.Fatal("failed to authenticate", zap.Error(err))
	}

	err = session.SubscribeOrderBook(conf.Instrument, func(ob *domain.OrderBook) {
		bid, ask := ob.BestBid(), ob.BestAsk()
		logger.Info("book update",
			zap.String("instrument", ob.Instrument()),
			zap.Float64("best_bid", bid.Price),
			zap.Float64("best_bid_amount", bid.Amount),
			zap.Float64("best_ask", ask.Price),
			zap.Float64("best_ask_amount", ask.Amount),
		)
	})
	if err != nil {
		logger.Fatal("failed to subscribe", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
}

func newLogger() *zap.Logger {
	if config.DebugMode {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}
