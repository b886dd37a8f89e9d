// Command retinasim runs the retinal layer migration simulation: six cell
// populations seeded on the z=0 plane migrate up a diffusing substance
// gradient until each reaches its concentration threshold.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/talgya/retinasim/internal/api"
	"github.com/talgya/retinasim/internal/cells"
	"github.com/talgya/retinasim/internal/config"
	"github.com/talgya/retinasim/internal/diffusion"
	"github.com/talgya/retinasim/internal/engine"
	"github.com/talgya/retinasim/internal/export"
	"github.com/talgya/retinasim/internal/persistence"
)

func main() {
	slog.SetDefault(newLogger(os.Stdout, envOrDefault("RETINASIM_LOG_LEVEL", "info")))

	slog.Info("retinasim starting", "model", "retinal layer migration")

	// ── Configuration ─────────────────────────────────────────────────
	cfg := config.Default()
	if path := os.Getenv("RETINASIM_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			slog.Error("failed to load config", "path", path, "error", err)
			os.Exit(1)
		}
		cfg = loaded
		slog.Info("config loaded", "path", path)
	}
	if v := os.Getenv("RETINASIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Error("invalid RETINASIM_SEED", "value", v, "error", err)
			os.Exit(1)
		}
		cfg.Seed = seed
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Int63()
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("modelling seed", "seed", cfg.Seed)

	dbPath := envOrDefault("RETINASIM_DB", "data/retinasim.db")
	exportDir := envOrDefault("RETINASIM_EXPORT_DIR", "data/frames")
	apiPort := envIntOrDefault("RETINASIM_API_PORT", 0)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", dbPath)

	cfgYAML, err := yaml.Marshal(cfg)
	if err != nil {
		slog.Error("failed to encode config", "error", err)
		os.Exit(1)
	}
	runID, err := db.CreateRun(cfg.Seed, cfg.Steps, cfg.TotalCells(), string(cfgYAML))
	if err != nil {
		slog.Error("failed to create run", "error", err)
		os.Exit(1)
	}

	// ── Cells ─────────────────────────────────────────────────────────
	pop := cells.NewPopulation()
	spawner := cells.NewSpawner(cfg.Seed)
	if err := spawner.SpawnPopulation(pop, cfg.Bounds, cfg.Cohorts()); err != nil {
		slog.Error("failed to create cells", "error", err)
		os.Exit(1)
	}

	// ── Substance ─────────────────────────────────────────────────────
	grid, err := diffusion.NewGrid(cfg.FieldParams())
	if err != nil {
		slog.Error("failed to define substance", "error", err)
		os.Exit(1)
	}
	profile, err := cfg.InitialProfile()
	if err != nil {
		slog.Error("failed to build substance profile", "error", err)
		os.Exit(1)
	}
	grid.Initialize(profile)
	slog.Info("substance defined",
		"name", cfg.Substance.Name,
		"diffusion", cfg.Substance.DiffusionCoef,
		"decay", cfg.Substance.DecayConstant,
		"resolution", cfg.Substance.Resolution,
		"band_mean", cfg.Substance.Band.Mean,
		"band_sigma", cfg.Substance.Band.Sigma,
		"band_axis", cfg.Substance.Band.Axis,
	)

	// ── Simulation ────────────────────────────────────────────────────
	sim, err := engine.NewSimulation(grid, pop, cfg.Bounds, cfg.TimeStep, cfg.Workers)
	if err != nil {
		slog.Error("failed to create simulation", "error", err)
		os.Exit(1)
	}

	eng := engine.NewEngine(cfg.Steps)
	eng.ExportInterval = cfg.ExportInterval
	eng.ReportInterval = cfg.ReportInterval
	eng.OnStep = sim.Step
	eng.OnReport = func(tick uint64) {
		sim.Report(tick)
		if err := db.SaveLayerStats(runID, sim.CurrentStats()); err != nil {
			slog.Error("layer stats save failed", "error", err)
		}
		if err := db.UpdateRunTick(runID, tick); err != nil {
			slog.Error("run progress save failed", "error", err)
		}
	}

	var frames *export.FrameWriter
	if cfg.ExportInterval > 0 {
		framePath := filepath.Join(exportDir, runID+".jsonl.zst")
		frames, err = export.NewFrameWriter(framePath, export.Header{
			RunID:          runID,
			Seed:           cfg.Seed,
			Bounds:         cfg.Bounds,
			ExportInterval: cfg.ExportInterval,
		})
		if err != nil {
			slog.Error("failed to open frame export", "error", err)
			os.Exit(1)
		}
		slog.Info("frame export enabled", "path", framePath, "interval", cfg.ExportInterval)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	var stream *api.Hub
	if apiPort > 0 {
		stream = api.NewHub()
		server := &api.Server{
			Sim:          sim,
			Eng:          eng,
			DB:           db,
			Stream:       stream,
			RunID:        runID,
			Seed:         cfg.Seed,
			Port:         apiPort,
			CellsPerHour: 600,
		}
		server.Start()
	}

	eng.OnExport = func(tick uint64) error {
		snapshot := sim.Snapshot()
		if frames != nil {
			if err := frames.WriteFrame(tick, snapshot); err != nil {
				return err
			}
		}
		if stream != nil {
			return stream.Publish(tick, snapshot)
		}
		return nil
	}

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nSeeded %s cells in %d cohorts; running %s steps (run %s).\n",
		humanize.Comma(int64(pop.Len())), len(cfg.Cohorts()), humanize.Comma(int64(cfg.Steps)), runID)

	started := time.Now()
	runErr := eng.Run()

	if frames != nil {
		if err := frames.Close(); err != nil {
			slog.Error("frame export close failed", "error", err)
		} else {
			slog.Info("frames exported", "count", frames.Frames(), "path", frames.Path())
		}
	}

	slog.Info("final save...")
	if err := db.SaveRunState(runID, sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	chartPath := filepath.Join(exportDir, runID+"-depth.png")
	if series, err := depthSeries(db, runID); err != nil {
		slog.Error("layer history query failed", "error", err)
	} else if err := export.WriteDepthChart(chartPath, series); err != nil {
		slog.Warn("depth chart skipped", "error", err)
	} else {
		slog.Info("depth chart written", "path", chartPath)
	}

	if runErr != nil {
		slog.Error("simulation failed", "error", runErr)
		os.Exit(1)
	}

	st := sim.CurrentStats()
	fmt.Printf("Simulation completed successfully: %s settled, %s still moving after %s (%s).\n",
		humanize.Comma(int64(st.Settled)), humanize.Comma(int64(st.Moving)),
		humanize.Comma(int64(sim.CurrentTick())), time.Since(started).Round(time.Millisecond))
}

// depthSeries collects the stored mean depth of every layer for charting.
func depthSeries(db *persistence.DB, runID string) ([]export.DepthSeries, error) {
	var out []export.DepthSeries
	for _, t := range cells.AllTypes {
		rows, err := db.LayerHistory(runID, t)
		if err != nil {
			return nil, err
		}
		s := export.DepthSeries{Type: t}
		for _, r := range rows {
			s.Ticks = append(s.Ticks, float64(r.Tick))
			s.MeanDepth = append(s.MeanDepth, r.MeanDepth)
		}
		out = append(out, s)
	}
	return out, nil
}

// newLogger uses a text handler on terminals and JSON otherwise.
func newLogger(out *os.File, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		return slog.New(slog.NewTextHandler(out, opts))
	}
	return slog.New(slog.NewJSONHandler(out, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}
