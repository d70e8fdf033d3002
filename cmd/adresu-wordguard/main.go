package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/lessucettes/adresu-wordguard/internal/config"
	"github.com/lessucettes/adresu-wordguard/internal/metrics"
	"github.com/lessucettes/adresu-wordguard/internal/policy"
	"github.com/lessucettes/adresu-wordguard/internal/profanity"
	"github.com/lessucettes/adresu-wordguard/internal/spam"
	"github.com/lessucettes/adresu-wordguard/internal/store"
	"github.com/lessucettes/adresu-wordguard/internal/validation"
	"github.com/lessucettes/adresu-wordguard/internal/wordlist"
)

var version = "dev"

const (
	reqValidate   = "validate"
	reqScan       = "scan"
	reqFilter     = "filter"
	reqAddWord    = "add_word"
	reqRemoveWord = "remove_word"
	reqListWords  = "list_words"

	actionError = "error"

	// An escaped 10000-rune body can exceed bufio's 64KiB default.
	maxLineSize = 1 << 20
)

type Request struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Text        string `json:"text,omitempty"`
	Mask        string `json:"mask,omitempty"`
	Word        string `json:"word,omitempty"`
	Author      string `json:"author,omitempty"`
	IP          string `json:"ip,omitempty"`
}

type FilterResponse struct {
	ID       string `json:"id"`
	Action   string `json:"action"`
	Filtered string `json:"filtered"`
}

type WordChangeResponse struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	Term        string `json:"term"`
	Count       int    `json:"count"`
	Version     string `json:"version"`
	LastUpdated string `json:"last_updated"`
}

type WordListResponse struct {
	ID          string   `json:"id"`
	Action      string   `json:"action"`
	Words       []string `json:"words"`
	Count       int      `json:"count"`
	Version     string   `json:"version"`
	LastUpdated string   `json:"last_updated"`
}

type app struct {
	cfg       *config.Config
	words     *wordlist.Store
	scanner   *profanity.Scanner
	collector *metrics.Collector
	dryRun    bool

	pipelineMutex   sync.RWMutex
	currentPipeline *policy.Pipeline
}

// newApp loads the dictionary from db and builds the first pipeline. A
// dictionary that cannot be loaded is fatal: without it nothing is filtered.
func newApp(ctx context.Context, cfg *config.Config, db store.Store, dryRun bool) (*app, error) {
	scanner, err := profanity.NewScanner(profanity.Options{
		Mask:               cfg.WordList.Mask,
		MaxFuzzyTermLength: cfg.WordList.MaxFuzzyTermLength,
		CacheSize:          cfg.Scanner.CacheSize,
		CacheTTL:           cfg.Scanner.CacheTTL,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		scanner: scanner,
		dryRun:  dryRun,
		words:   wordlist.New(db, wordlist.Options{Name: cfg.WordList.Name, SeedPath: cfg.WordList.SeedPath}),
	}
	if cfg.Metrics.Enabled {
		a.collector = metrics.NewCollector()
	}

	a.words.Subscribe(func(d wordlist.Dictionary) {
		stats := a.scanner.Load(d.Words, d.Version)
		if a.collector != nil {
			a.collector.ObserveLoad(stats)
		}
	})
	if _, err := a.words.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load word list: %w", err)
	}

	p, err := buildPipeline(cfg, a.scanner, a.collector)
	if err != nil {
		return nil, err
	}
	a.currentPipeline = p
	return a, nil
}

func buildPipeline(cfg *config.Config, scanner validation.Scanner, collector *metrics.Collector) (*policy.Pipeline, error) {
	detector, err := spam.NewDetector(cfg.Spam)
	if err != nil {
		return nil, fmt.Errorf("failed to create spam detector: %w", err)
	}
	validator, err := validation.NewValidator(scanner, detector, cfg.Validation.Profiles())
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	var stages []policy.PipelineStage

	type filterFactory struct {
		name        string
		constructor func() (policy.Filter, error)
	}
	factories := []filterFactory{
		{"RateLimiterFilter", func() (policy.Filter, error) { return policy.NewRateLimiterFilter(&cfg.Filters.RateLimiter) }},
		{"ContentFilter", func() (policy.Filter, error) { return policy.NewContentFilter(validator) }},
	}
	for _, factory := range factories {
		filter, err := factory.constructor()
		if err != nil {
			return nil, fmt.Errorf("failed to create filter '%s': %w", factory.name, err)
		}
		stages = append(stages, policy.PipelineStage{Filter: filter})
	}

	var (
		metricsCollector  policy.MetricsCollector
		rejectionHandlers []policy.RejectionHandler
	)
	if collector != nil {
		metricsCollector = collector
		rejectionHandlers = append(rejectionHandlers, collector)
	}
	return policy.NewPipeline(cfg, stages, rejectionHandlers, metricsCollector), nil
}

func (a *app) pipeline() *policy.Pipeline {
	a.pipelineMutex.RLock()
	defer a.pipelineMutex.RUnlock()
	return a.currentPipeline
}

// reload swaps in a pipeline built from newCfg. Settings that shape the
// dictionary or its storage only apply after a restart.
func (a *app) reload(newCfg *config.Config) {
	slog.Info("Reloading pipeline with new configuration...")
	if newCfg.DB != a.cfg.DB || newCfg.WordList != a.cfg.WordList || newCfg.Scanner != a.cfg.Scanner ||
		newCfg.Metrics != a.cfg.Metrics {
		slog.Warn("Changes to [database], [wordlist], [scanner] or [metrics] require a restart and were not applied")
	}

	newPipeline, err := buildPipeline(newCfg, a.scanner, a.collector)
	if err != nil {
		slog.Error("Failed to build new pipeline on config reload, keeping old one", "error", err)
		return
	}

	a.pipelineMutex.Lock()
	oldPipeline := a.currentPipeline
	a.currentPipeline = newPipeline
	a.pipelineMutex.Unlock()

	if oldPipeline != nil {
		go oldPipeline.Close()
	}
	slog.Info("Pipeline reloaded successfully.")
}

func (a *app) close() {
	if p := a.pipeline(); p != nil {
		_ = p.Close()
	}
}

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "./config.toml", "Path to the configuration file.")
	useDefaults := flag.Bool("use-defaults", false, "Run with internal defaults if the config file is missing.")
	validateConfig := flag.Bool("validate", false, "Validate the configuration file and exit.")
	dryRun := flag.Bool("dry-run", false, "Log what would be rejected without actually rejecting it.")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if *validateConfig {
		if err := validateConfiguration(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration is INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration is VALID.")
		return
	}
	if err := runApp(*configPath, *useDefaults, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Application run failed: %v\n", err)
		os.Exit(1)
	}
}

func runApp(configPath string, useDefaults bool, dryRun bool) error {
	cfg, defaultsUsed, err := config.Load(configPath, useDefaults)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Log.Level.ToSlogLevel()}))
	slog.SetDefault(logger)
	if dryRun {
		slog.Warn("Wordguard is running in DRY-RUN mode.")
	}
	slog.Info("Wordguard starting up", "version", version, "config_path", configPath, "using_defaults", defaultsUsed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, &cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	a, err := newApp(ctx, cfg, db, dryRun)
	if err != nil {
		return err
	}
	defer a.close()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdownChan
		slog.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	if a.collector != nil {
		go func() {
			if err := a.collector.Serve(ctx, cfg.Metrics.Listen); err != nil {
				slog.Error("Metrics server stopped", "error", err)
			}
		}()
	}
	if !defaultsUsed {
		go config.StartWatcher(ctx, configPath, a.reload, 0)
	}

	return a.processEvents(ctx, os.Stdin, os.Stdout)
}

func (a *app) processEvents(ctx context.Context, r io.Reader, w io.Writer) error {
	linesChan := make(chan []byte)
	errChan := make(chan error, 1)
	encoder := json.NewEncoder(w)

	go func() {
		defer close(errChan)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			lineCopy := make([]byte, len(scanner.Bytes()))
			copy(lineCopy, scanner.Bytes())
			linesChan <- lineCopy
		}
		if err := scanner.Err(); err != nil {
			errChan <- err
		}
		close(linesChan)
	}()

	slog.Info("Ready to process requests from stdin...")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-linesChan:
			if !ok {
				if err := <-errChan; err != nil {
					return err
				}
				slog.Info("Input stream closed, shutting down.")
				return nil
			}

			if len(line) == 0 {
				continue
			}
			var req Request
			if err := json.Unmarshal(line, &req); err != nil {
				slog.Warn("Failed to decode request JSON", "error", err, "raw_line_prefix", linePrefix(line))
				continue
			}

			if err := encoder.Encode(a.handle(ctx, &req)); err != nil {
				if errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EPIPE) {
					return nil
				}
				slog.Error("Failed to write response to stdout", "error", err)
			}
		}
	}
}

func (a *app) handle(ctx context.Context, req *Request) any {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	switch req.Type {
	case "", reqValidate:
		sub := &policy.Submission{
			ID:          req.ID,
			ContentType: validation.ContentType(req.ContentType),
			Text:        req.Text,
			Author:      req.Author,
			IP:          req.IP,
		}
		resp, err := a.pipeline().ProcessSubmission(ctx, sub, a.dryRun)
		if err != nil {
			slog.Error("Error processing submission", "submission_id", sub.ID, "error", err)
		}
		return resp

	case reqScan:
		if !a.scanner.Ready() {
			return errorResponse(req.ID, validation.MsgFilterUnavailable)
		}
		res := a.scanner.Scan(req.Text)
		return policy.PolicyResponse{ID: req.ID, Action: policy.ActionAccept, Scan: &res}

	case reqFilter:
		return FilterResponse{ID: req.ID, Action: policy.ActionAccept, Filtered: a.scanner.Filter(req.Text, req.Mask)}

	case reqAddWord, reqRemoveWord:
		return a.changeWord(ctx, req)

	case reqListWords:
		d := a.words.Snapshot()
		words := d.Words
		if words == nil {
			words = []string{}
		}
		return WordListResponse{
			ID:          req.ID,
			Action:      policy.ActionAccept,
			Words:       words,
			Count:       d.Count(),
			Version:     d.Version,
			LastUpdated: d.LastUpdated.Format(store.DateLayout),
		}

	default:
		return errorResponse(req.ID, fmt.Sprintf("unknown request type %q", req.Type))
	}
}

func (a *app) changeWord(ctx context.Context, req *Request) any {
	var (
		d   wordlist.Dictionary
		err error
	)
	if req.Type == reqAddWord {
		d, err = a.words.Add(ctx, req.Word)
	} else {
		d, err = a.words.Remove(ctx, req.Word)
	}

	var storageErr *wordlist.StorageError
	switch {
	case errors.As(err, &storageErr):
		slog.Error("Failed to persist word list change", "op", storageErr.Op, "error", err)
		return errorResponse(req.ID, "failed to save word list, please try again later")
	case err != nil:
		return errorResponse(req.ID, err.Error())
	}

	return WordChangeResponse{
		ID:          req.ID,
		Action:      policy.ActionAccept,
		Term:        wordlist.Normalize(req.Word),
		Count:       d.Count(),
		Version:     d.Version,
		LastUpdated: d.LastUpdated.Format(store.DateLayout),
	}
}

func errorResponse(id, msg string) policy.PolicyResponse {
	return policy.PolicyResponse{ID: id, Action: actionError, Msg: msg}
}

func linePrefix(line []byte) string {
	const maxPrefix = 128
	if len(line) > maxPrefix {
		return string(line[:maxPrefix])
	}
	return string(line)
}

func validateConfiguration(configPath string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	fmt.Printf("Validating configuration file: %s\n", configPath)
	cfg, _, err := config.Load(configPath, false)
	if err != nil {
		return err
	}

	if cfg.WordList.SeedPath != "" {
		if _, err := store.LoadSeedFile(cfg.WordList.SeedPath); err != nil {
			return err
		}
	}

	scanner, err := profanity.NewScanner(profanity.Options{
		Mask:               cfg.WordList.Mask,
		MaxFuzzyTermLength: cfg.WordList.MaxFuzzyTermLength,
	})
	if err != nil {
		return err
	}
	if _, err := buildPipeline(cfg, scanner, nil); err != nil {
		return err
	}
	return nil
}
