package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tgindex/entity"
	"tgindex/internal/apiclient"
	"tgindex/internal/auth"
	"tgindex/internal/botclient"
	"tgindex/internal/config"
	"tgindex/internal/http-server/middleware/jwtauth"
	"tgindex/internal/http-server/syncapi"
	"tgindex/internal/indexer"
	"tgindex/internal/ingest"
	"tgindex/internal/msgstore"
	"tgindex/internal/searchclient"
	"tgindex/internal/syncmanager"
	"tgindex/internal/upstream/gateway"
	"tgindex/lib/logger"
	"tgindex/lib/sl"
)

const shutdownTimeout = 10 * time.Second

// syncReporter ships a JSON report to the owner through the bot every time
// a chat sync finishes. Delivery is best effort.
func syncReporter(relay *botclient.Client, log *slog.Logger) syncmanager.ProgressFunc {
	return func(p entity.SyncProgress) {
		if p.Status != entity.SyncCompleted {
			return
		}
		report, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		caption := fmt.Sprintf("History sync finished: chat %d, %d messages indexed", p.ChatId, p.SyncedCount)
		if _, err = relay.SendFile(ctx, report, fmt.Sprintf("sync_report_%d.json", p.ChatId), caption, 0); err != nil {
			log.Warn("sync report delivery", sl.Err(err), sl.Chat(p.ChatId))
		}
	}
}

func main() {
	configPath := flag.String("conf", "config.json", "path to config file")
	logPath := flag.String("log", "tgindex-ingestor.log", "path to log file")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, *logPath)
	log.Info("starting ingestor", slog.String("config", *configPath), slog.String("env", conf.Env))

	var tokens *auth.JWT
	var verifier jwtauth.Verifier
	var tokenSource apiclient.TokenSource
	if conf.Auth.UseJWT {
		var err error
		tokens, err = auth.New(conf.Auth, entity.ServiceUserbot, entity.ServiceUserbot)
		if err != nil {
			log.Error("auth setup", sl.Err(err))
			os.Exit(1)
		}
		verifier = tokens
		tokenSource = tokens
	}

	httpTimeout := time.Duration(conf.SearchEngine.HTTP.Timeout) * time.Second
	engine := searchclient.New(conf.Services.Search.BaseURL, httpTimeout, conf.SearchEngine.HTTP.MaxRetries, tokenSource, log)
	gw := gateway.New(conf.Services.Gateway.BaseURL, httpTimeout, log)

	// batch size 1 degrades the buffer to per-document flushes
	batchSize := conf.SearchEngine.Batch.Size
	if !conf.SearchEngine.Batch.Enabled {
		batchSize = 1
	}
	flushInterval := time.Duration(conf.SearchEngine.Batch.FlushInterval * float64(time.Second))
	sink := indexer.NewBuffered(engine, batchSize, flushInterval, log)

	mgr, err := syncmanager.New(gw, sink, conf.Sync, log)
	if err != nil {
		log.Error("sync manager setup", sl.Err(err))
		os.Exit(1)
	}
	if conf.Services.Bot.BaseURL != "" {
		relay := botclient.New(conf.Services.Bot.BaseURL, httpTimeout, conf.SearchEngine.HTTP.MaxRetries, tokenSource, log)
		mgr.Notify(syncReporter(relay, log))
	}

	queue, err := msgstore.New(conf.Database.RelayPath, log)
	if err != nil {
		log.Error("relay storage", sl.Err(err))
		os.Exit(1)
	}
	defer queue.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Sync.Enabled {
		mgr.StartWorker(ctx)
	}

	live := ingest.New(gw, sink, engine, log)
	go func() {
		if err := live.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("live ingest stopped", sl.Err(err))
		}
	}()

	// sync control plane for the bot
	go func() {
		if err := syncapi.New(conf, log, verifier, []string{entity.ServiceBot}, mgr, queue); err != nil {
			log.Error("sync api server", sl.Err(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if conf.Sync.Enabled {
		if err := mgr.StopWorker(shCtx); err != nil {
			log.Warn("sync worker stop", sl.Err(err))
		}
	}
	if err := sink.Shutdown(shCtx); err != nil {
		log.Warn("final flush", sl.Err(err))
	}
	log.Info("ingestor stopped")
}
