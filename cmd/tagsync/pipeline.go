package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mschirtzinger/tagsync/internal/config"
	"github.com/mschirtzinger/tagsync/internal/danbooru"
	"github.com/mschirtzinger/tagsync/internal/ratelimit"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/attach"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/dashboard"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/db"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/graph"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/queue"
	"github.com/mschirtzinger/tagsync/internal/tagstudio/source"
	tagsync "github.com/mschirtzinger/tagsync/internal/tagstudio/sync"
	"github.com/mschirtzinger/tagsync/internal/ui"
)

// pipeline runs the import and implication steps against one configuration.
type pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	out       io.Writer
	observers []tagsync.Observer
}

// importTags attaches source tags to library files and queues new tags.
func (p *pipeline) importTags(ctx context.Context) (*attach.Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}

	src, err := source.Open(p.cfg.SourcePath, source.Options{
		ChunkSize:    p.cfg.ChunkSize,
		UgoiraAsWebp: p.cfg.UgoiraAsWebp,
		Logger:       p.logger,
	})
	if err != nil {
		return nil, err
	}
	defer src.Close()

	lib, err := db.OpenContext(ctx, p.cfg.LibraryPath, p.logger)
	if err != nil {
		return nil, err
	}
	defer lib.Close()

	q := queue.New(p.cfg.QueuePath(), p.logger)
	importer := attach.New(lib, q, attach.Options{
		Colors: p.cfg.Colors,
		Logger: p.logger,
	})

	start := time.Now()
	result, err := importer.Run(ctx, src)
	if err != nil {
		return result, fmt.Errorf("import failed: %w", err)
	}
	fmt.Fprint(p.out, ui.ImportSummary(result, time.Since(start)))
	return result, nil
}

// syncImplications drains the work queue once. An abort that saved the
// queue is reported in the summary and is not an error.
func (p *pipeline) syncImplications(ctx context.Context, concurrency int) (*tagsync.Result, error) {
	if err := p.cfg.ValidateLibrary(); err != nil {
		return nil, err
	}

	lib, err := db.OpenContext(ctx, p.cfg.LibraryPath, p.logger)
	if err != nil {
		return nil, err
	}
	defer lib.Close()

	client := danbooru.NewClient().
		WithBaseURL(p.cfg.BaseURL).
		WithUserAgent(p.cfg.UserAgent).
		WithHTTPClient(&http.Client{Timeout: p.cfg.HTTPTimeout})

	scheduler := tagsync.New(tagsync.Options{
		Queue:       queue.New(p.cfg.QueuePath(), p.logger),
		Authority:   client,
		Governor:    ratelimit.New(p.cfg.RateInterval, p.cfg.RateBurst),
		Writer:      graph.NewWriter(lib),
		Concurrency: concurrency,
		Observers:   p.observers,
		Logger:      p.logger,
	})

	result, err := scheduler.Run(ctx)
	if result == nil {
		return nil, err
	}
	fmt.Fprint(p.out, ui.SyncSummary(result, err))
	if err != nil && !tagsync.IsSafeAbort(err) {
		return result, err
	}
	return result, nil
}

// startDashboard serves run progress on port and registers it as an observer.
// The returned function stops the server.
func (p *pipeline) startDashboard(port int) (func(), error) {
	server := dashboard.NewServer(&dashboard.Config{
		Port:   port,
		Logger: p.logger,
	})
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start dashboard: %w", err)
	}
	p.observers = append(p.observers, dashboard.NewHandler(server, p.logger))

	addr := server.GetAddr()
	if _, port, err := net.SplitHostPort(addr); err == nil {
		addr = net.JoinHostPort("localhost", port)
	}
	fmt.Fprintf(p.out, "%s Dashboard on http://%s (ws://%s/ws)\n", ui.RenderAccent(ui.IconInfo), addr, addr)

	return func() {
		if err := server.Stop(); err != nil {
			p.logger.Warn("dashboard shutdown failed", "error", err)
		}
	}, nil
}
