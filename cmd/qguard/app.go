package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jmylchreest/qguard/pkg/analyzer"
	"github.com/jmylchreest/qguard/pkg/config"
	"github.com/jmylchreest/qguard/pkg/ollama"
	"github.com/jmylchreest/qguard/pkg/store"
)

// projectConfigFile is looked up under the project root when neither
// --config nor QGUARD_CONFIG is given.
const projectConfigFile = ".qguard/config.json"

// app carries what every command needs.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	root     string
	analyzer *analyzer.Analyzer
	out      io.Writer

	store *store.Store
}

func newApp(args []string) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root := findProjectRoot(cwd)

	path := parseFlag(args, "--config=")
	if path == "" && os.Getenv(config.EnvConfigPath) == "" {
		if _, err := os.Stat(filepath.Join(root, projectConfigFile)); err == nil {
			path = filepath.Join(root, projectConfigFile)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return buildApp(cfg, root, os.Stdout)
}

func buildApp(cfg *config.Config, root string, out io.Writer) (*app, error) {
	log, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return &app{
		cfg:      cfg,
		log:      log,
		root:     root,
		analyzer: analyzer.New(analyzer.WithCatalog(catalog), analyzer.WithLogger(log.Named("analyzer"))),
		out:      out,
	}, nil
}

// newLogger logs to stderr; stdout carries command output and MCP traffic.
func newLogger(lc config.LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.WarnLevel)
	if lc.Level != "" {
		var err error
		if level, err = zap.ParseAtomicLevel(lc.Level); err != nil {
			return nil, fmt.Errorf("log.level: %w", err)
		}
	}

	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.Encoding = lc.Format
	zc.Sampling = nil
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	if lc.Format == "console" {
		zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zc.DisableCaller = true
		zc.DisableStacktrace = true
	}
	return zc.Build()
}

// openStore opens the history store lazily. Commands treat a nil store as
// history being disabled.
func (a *app) openStore() (*store.Store, error) {
	if a.cfg.Store.Disabled {
		return nil, nil
	}
	if a.store != nil {
		return a.store, nil
	}
	dir := a.cfg.Store.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(a.root, dir)
	}
	s, err := store.Open(dir, store.WithLogger(a.log.Named("store")))
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

// record persists r, logging rather than failing when history is unavailable.
func (a *app) record(r *store.Record) {
	s, err := a.openStore()
	if err != nil {
		a.log.Warn("history unavailable", zap.Error(err))
		return
	}
	if s == nil {
		return
	}
	if err := s.Add(r); err != nil {
		a.log.Warn("failed to record history", zap.String("file", r.FilePath), zap.Error(err))
	}
}

func (a *app) ollama() *ollama.Client {
	return ollama.New(a.cfg.Ollama, a.log.Named("ollama"))
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("close store", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
