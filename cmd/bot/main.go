package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tgindex/bot"
	"tgindex/entity"
	"tgindex/internal/access"
	"tgindex/internal/apiclient"
	"tgindex/internal/auth"
	"tgindex/internal/config"
	"tgindex/internal/http-server/botapi"
	"tgindex/internal/http-server/middleware/jwtauth"
	"tgindex/internal/msgstore"
	"tgindex/internal/privacy"
	"tgindex/internal/querylog"
	"tgindex/internal/search"
	"tgindex/internal/searchclient"
	"tgindex/internal/syncclient"
	"tgindex/lib/logger"
	"tgindex/lib/sl"
)

func main() {
	configPath := flag.String("conf", "config.json", "path to config file")
	logPath := flag.String("log", "tgindex-bot.log", "path to log file")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, *logPath)
	log.Info("starting bot", slog.String("config", *configPath), slog.String("env", conf.Env))

	var tokens *auth.JWT
	var verifier jwtauth.Verifier
	var tokenSource apiclient.TokenSource
	if conf.Auth.UseJWT {
		var err error
		tokens, err = auth.New(conf.Auth, entity.ServiceBot, entity.ServiceBot)
		if err != nil {
			log.Error("auth setup", sl.Err(err))
			os.Exit(1)
		}
		verifier = tokens
		tokenSource = tokens
	}

	ac := access.New(conf.Telegram.OwnerId, conf.Bot, log)

	pv, err := privacy.New(conf.Privacy.StorageFile, log)
	if err != nil {
		log.Error("privacy storage", sl.Err(err))
		os.Exit(1)
	}

	var qlog *querylog.Store
	if conf.Database.Enabled {
		qlog, err = querylog.New(conf.Database.Path, log)
		if err != nil {
			log.Error("query log storage", sl.Err(err))
			os.Exit(1)
		}
		defer qlog.Close()
	}

	queue, err := msgstore.New(conf.Database.RelayPath, log)
	if err != nil {
		log.Error("relay storage", sl.Err(err))
		os.Exit(1)
	}
	defer queue.Close()

	httpTimeout := time.Duration(conf.SearchEngine.HTTP.Timeout) * time.Second
	engine := searchclient.New(conf.Services.Search.BaseURL, httpTimeout, conf.SearchEngine.HTTP.MaxRetries, tokenSource, log)
	syncCtl := syncclient.New(conf.Services.Userbot.BaseURL, httpTimeout, conf.SearchEngine.HTTP.MaxRetries, tokenSource, log)

	pipeline := search.NewPipeline(engine, ac, pv, qlog, log)

	tgBot, err := bot.NewTgBot(conf.Telegram.BotToken, conf.Telegram.OwnerId, ac, pv, pipeline, engine, syncCtl, qlog, log)
	if err != nil {
		log.Error("bot setup", sl.Err(err))
		os.Exit(1)
	}

	// control plane: file delivery and the relay queue
	go func() {
		allowed := []string{entity.ServiceUserbot, entity.ServiceSearch}
		if err := botapi.New(conf, log, verifier, allowed, tgBot, queue); err != nil {
			log.Error("bot api server", sl.Err(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		tgBot.Stop()
	}()

	if err := tgBot.Start(); err != nil {
		log.Error("bot stopped", sl.Err(err))
		os.Exit(1)
	}
	log.Info("bot stopped")
}
