package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/Zelak312/flowarr/pwcnet"
)

type Job struct {
	ID               int64  `json:"id"`
	Source           string `json:"source" binding:"required"`
	Reference        string `json:"reference" binding:"required"`
	HighResReference string `json:"highResReference"`
	OutputPath       string `json:"outputPath" binding:"required"`
}

type FailedJob struct {
	ID           int64  `json:"id"`
	FFmpegOutput string `json:"ffmpegOutput"`
	Error        string `json:"error"`
	Job          Job    `json:"job"`
}

func main() {
	// cli arguments
	configPath := flag.String("config_path", "./config.yml", "Path to the config yml file")
	flag.Parse()

	config, err := GetConfig(*configPath)
	if err != nil {
		log.Fatal("Failed to read config: ", err)
	}

	if err := InitLogFile(config.LogPath); err != nil {
		log.Fatal("Failed to init log file: ", err)
	}

	if err := run(&config); err != nil {
		log.Error(err)
		CloseLogFile()
		os.Exit(1)
	}

	CloseLogFile()
}

func run(config *Config) (err error) {
	logger, err := CreateLogger("main")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Opening database")
	store, err := NewSqlite(config.DatabasePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	if err := store.RunMigrations(); err != nil {
		return err
	}

	wsLogger, err := CreateLogger("ws")
	if err != nil {
		return err
	}
	hub := NewHub(wsLogger)
	go hub.Run(ctx)

	jobs, err := store.GetJobs()
	if err != nil {
		return err
	}
	logger.Infof("Loaded %d unfinished jobs", len(jobs))
	queue := NewQueue(jobs, hub)

	netLogger, err := CreateLogger("pwcnet")
	if err != nil {
		return err
	}

	network, err := pwcnet.New(&pwcnet.Config{
		Model:   config.Model,
		Threads: config.Threads,
		Logger:  netLogger,
	})
	if err != nil {
		return err
	}
	defer network.Close()

	if err := network.LoadModel(config.ModelPath); err != nil {
		return err
	}

	poolLogger, err := CreateLogger("pool")
	if err != nil {
		return err
	}
	pool := NewPoolWorker(ctx, queue, store, config, network, hub, poolLogger)
	dispatcherDone := make(chan struct{})
	go func() {
		pool.RunDispatcher()
		close(dispatcherDone)
	}()

	apiLogger, err := CreateLogger("api")
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	api := NewAPI(queue, store, pool, network, hub, config, apiLogger)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.BindAddress, config.Port),
		Handler: api.NewRouter(),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Listening on ", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err = <-serverErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		err = multierror.Append(err, serr)
	}

	// Workers finish their current frame and leave their job unfinished
	<-dispatcherDone
	return err
}
