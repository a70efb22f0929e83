package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/setlistsync/internal/queue"
	"github.com/desertthunder/setlistsync/internal/server"
	"github.com/desertthunder/setlistsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// Worker runs the queue workers and scheduler under a supervisor until interrupted.
func (r *Runner) Worker(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	tree := queue.NewTree(shared.SlogLogger(r.logger), queue.TreeConfig{})
	if err := r.addWork(tree, d, int(cmd.Int("workers")), !cmd.Bool("no-scheduler")); err != nil {
		return err
	}

	r.logger.Info("workers running, press Ctrl+C to stop")
	return r.serveTree(ctx, tree)
}

// Serve runs the HTTP API next to the workers and scheduler.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	d, err := r.open(ctx)
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = net.JoinHostPort(r.config.Server.Host, strconv.Itoa(r.config.Server.Port))
	}

	tree := queue.NewTree(shared.SlogLogger(r.logger), queue.TreeConfig{})
	if !cmd.Bool("api-only") {
		if err := r.addWork(tree, d, int(cmd.Int("workers")), true); err != nil {
			return err
		}
	}

	api := &server.API{
		Jobs:         d.jobs,
		Processor:    d.processor,
		Orchestrator: d.orchestrator,
		Votes:        d.votes,
		BatchSize:    r.config.Queue.BatchSize,
		Logger:       r.logger.With("component", "api"),
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewHandler(api, r.config.Server.RequestsPerMinute),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tree.AddAPI(server.NewService(httpServer, 10*time.Second))

	r.logger.Info("serving API", "addr", addr, "api_only", cmd.Bool("api-only"))
	r.writePlain("Listening on http://%s\n", addr)
	return r.serveTree(ctx, tree)
}

// addWork adds the workers and, when enabled, the scheduler to the work layer.
func (r *Runner) addWork(tree *queue.Tree, d *deps, workers int, scheduler bool) error {
	if workers <= 0 {
		workers = r.config.Queue.Workers
	}
	if workers <= 0 {
		workers = 1
	}

	for i := range workers {
		tree.AddWork(queue.NewWorker(fmt.Sprintf("worker-%d", i+1), d.processor,
			r.config.Queue.PollInterval, r.config.Queue.BatchSize))
	}

	if scheduler {
		s := queue.NewScheduler(d.jobs, d.artists, d.shows, r.scheduleConfig(), r.logger.With("component", "scheduler"))
		if err := s.Validate(); err != nil {
			return err
		}
		tree.AddWork(s)
	}

	r.logger.Info("work layer ready", "workers", workers, "scheduler", scheduler)
	return nil
}

func (r *Runner) serveTree(ctx context.Context, tree *queue.Tree) error {
	err := tree.Serve(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		r.logger.Info("shut down")
		return nil
	}
	return err
}
