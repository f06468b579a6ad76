// Command botroyale plays batches of hex-arena bot battles from the command
// line: pick a map and a roster, run N battles, and print win statistics.
// Battle records go to the configured storage backend and, optionally, to
// InfluxDB.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/ArielHorwitz/botroyale/internal/battle"
	"github.com/ArielHorwitz/botroyale/internal/config"
	"github.com/ArielHorwitz/botroyale/internal/database"
	"github.com/ArielHorwitz/botroyale/internal/influx"
	"github.com/ArielHorwitz/botroyale/internal/logging"
	"github.com/ArielHorwitz/botroyale/internal/maps"
	"github.com/ArielHorwitz/botroyale/internal/metrics"
	"github.com/ArielHorwitz/botroyale/internal/prng"
	"github.com/ArielHorwitz/botroyale/internal/storage"
	"github.com/ArielHorwitz/botroyale/internal/storage/gormstore"
	"github.com/ArielHorwitz/botroyale/internal/storage/memory"
	"github.com/ArielHorwitz/botroyale/pkg/bot"
)

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	SessionStartTime time.Time = time.Now()
)

// options are the command-line arguments of one invocation.
type options struct {
	configDir string
	mapsDir   string
	mapName   string
	bots      string
	battles   int
	seed      int64
	list      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configDir, "config", ".", "directory containing botroyale.cfg.json")
	flag.StringVar(&opts.mapsDir, "maps", "./maps", "directory of custom map files")
	flag.StringVar(&opts.mapName, "map", "default", "map to play on")
	flag.StringVar(&opts.bots, "bots", "random", "comma-separated bot names, cycled across spawns")
	flag.IntVar(&opts.battles, "battles", 1, "number of battles to play")
	flag.Int64Var(&opts.seed, "seed", 0, "base seed; battle i plays with seed+i (0 picks random seeds)")
	flag.BoolVar(&opts.list, "list", false, "list available bots and maps, then exit")
	flag.Parse()

	SlogManager = logging.NewSlogManager()

	if err := config.Load(opts.configDir); err != nil {
		// Defaults are already installed; run on those.
		fmt.Fprintf(os.Stderr, "No config loaded (%v), using defaults\n", err)
	}
	setupLogging()

	if n, err := maps.LoadDir(opts.mapsDir); err != nil {
		Logger.Warn("Failed to load custom maps", "error", err, "dir", opts.mapsDir)
	} else if n > 0 {
		Logger.Info("Loaded custom maps", "count", n, "dir", opts.mapsDir)
	}

	if opts.list {
		fmt.Println("Bots:", strings.Join(bot.Names(), ", "))
		fmt.Println("Maps:", strings.Join(maps.Names(), ", "))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := runBatch(ctx, opts); err != nil {
		Logger.Error("Batch failed", "error", err)
		os.Exit(1)
	}
}

// setupLogging directs slog output to the console and a session log file.
func setupLogging() {
	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		SlogManager.Setup(nil, config.GetString("logLevel"))
		Logger = SlogManager.Logger()
		Logger.Warn("Failed to create logs directory", "error", err, "dir", logsDir)
		return
	}
	path := logging.LogFilePath(logsDir, SessionStartTime)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		SlogManager.Setup(nil, config.GetString("logLevel"))
		Logger = SlogManager.Logger()
		Logger.Warn("Failed to open log file", "error", err, "path", path)
		return
	}
	SlogManager.Setup(file, config.GetString("logLevel"))
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", path)
}

func runBatch(ctx context.Context, opts options) error {
	def, ok := maps.Get(opts.mapName)
	if !ok {
		return fmt.Errorf("unknown map %q (available: %s)", opts.mapName, strings.Join(maps.Names(), ", "))
	}
	factories, rosterNames, err := buildRoster(len(def.Spawns), opts.bots)
	if err != nil {
		return err
	}

	recorder, err := metrics.NewRecorder()
	if err != nil {
		return fmt.Errorf("creating metrics recorder: %w", err)
	}

	zlog := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Storage backend factory; one backend instance per battle.
	var newBackend func() (storage.Backend, error)
	var dbManager *database.Manager
	switch backend := config.GetString("storage.backend"); backend {
	case "database":
		dbManager = database.NewManager(zlog)
		if err := os.MkdirAll(config.GetString("storage.outputDir"), 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		dbManager.SqliteFilePath = filepath.Join(
			config.GetString("storage.outputDir"),
			fmt.Sprintf("botroyale_%s.db", SessionStartTime.Format("20060102_150405")),
		)
		if err := dbManager.Connect(); err != nil {
			return fmt.Errorf("connecting storage database: %w", err)
		}
		if err := dbManager.Setup(); err != nil {
			return fmt.Errorf("migrating storage database: %w", err)
		}
		newBackend = func() (storage.Backend, error) {
			return gormstore.New(dbManager.DB, zlog), nil
		}
	case "memory":
		cfg := memory.Config{
			OutputDir:      config.GetString("storage.outputDir"),
			CompressOutput: config.GetBool("storage.compressOutput"),
		}
		newBackend = func() (storage.Backend, error) {
			b := memory.New(cfg)
			if err := b.Init(); err != nil {
				return nil, err
			}
			return b, nil
		}
	case "none", "":
		newBackend = func() (storage.Backend, error) { return nil, nil }
	default:
		return fmt.Errorf("unknown storage backend %q", backend)
	}

	var influxManager *influx.Manager
	if config.GetBool("influx.enabled") {
		backupPath := filepath.Join(config.GetString("logsDir"), "influx_backup.lp.gz")
		influxManager = influx.NewManager(zlog, backupPath)
		if err := influxManager.Connect(); err != nil {
			Logger.Warn("InfluxDB unavailable, statistics will be dropped", "error", err)
			influxManager = nil
		}
	}

	baseSeed := opts.seed
	if baseSeed == 0 {
		baseSeed = config.GetInt64("battle.seed")
	}

	wins := make(map[string]int)
	draws := 0
	played := 0
	var totalSteps, totalRounds int64
	batchStart := time.Now()

	for i := 0; i < opts.battles; i++ {
		seed := prng.RandomSeed()
		if baseSeed != 0 {
			seed = baseSeed + int64(i)
		}
		setup := def.Setup(seed)
		setup.APGrant = config.GetInt("battle.apGrant")
		setup.APCap = config.GetInt("battle.apCap")

		backend, err := newBackend()
		if err != nil {
			return fmt.Errorf("creating storage backend: %w", err)
		}

		b, err := battle.New(battle.Config{
			Setup:      setup,
			Bots:       factories,
			MapName:    def.Name,
			CallBudget: config.GetDurationMs("battle.callBudgetMs"),
			TurnBudget: config.GetDurationMs("battle.turnBudgetMs"),
		}, battle.Dependencies{
			Logger:  Logger,
			Metrics: recorder,
			Storage: backend,
		})
		if err != nil {
			return fmt.Errorf("creating battle %d: %w", i+1, err)
		}

		if _, err := b.PlayAll(ctx); err != nil {
			if backend != nil {
				_ = backend.Close()
			}
			if errors.Is(err, context.Canceled) {
				Logger.Info("Batch interrupted", "completed", i, "of", opts.battles)
				break
			}
			return fmt.Errorf("playing battle %d: %w", i+1, err)
		}

		rec := b.Record()
		played++
		totalSteps += int64(rec.Steps)
		totalRounds += int64(rec.Rounds)
		verdict := "draw"
		if rec.Draw {
			draws++
		} else {
			verdict = fmt.Sprintf("%s (unit %d)", rosterNames[rec.Winner], rec.Winner)
			wins[rosterNames[rec.Winner]]++
		}
		fmt.Printf("battle %d/%d: seed=%d rounds=%d steps=%d winner=%s\n",
			i+1, opts.battles, rec.Seed, rec.Rounds, rec.Steps, verdict)

		if influxManager != nil {
			if err := influxManager.WriteBattleResult(ctx, &rec, b.Duration()); err != nil {
				Logger.Warn("Failed to write battle statistics", "error", err)
			}
		}
		if backend != nil {
			if err := backend.Close(); err != nil {
				Logger.Warn("Failed to close storage backend", "error", err)
			}
			if exp, ok := backend.(storage.Exportable); ok {
				if path := exp.GetExportedFilePath(); path != "" {
					Logger.Info("Replay written", "path", path)
				}
			}
		}
	}

	if influxManager != nil {
		if played > 0 {
			err := influxManager.WriteEnginePerformance(
				ctx, int64(played), totalSteps, time.Since(batchStart))
			if err != nil {
				Logger.Warn("Failed to write engine performance statistics", "error", err)
			}
		}
		if err := influxManager.Flush(); err != nil {
			Logger.Warn("Failed to flush InfluxDB backup", "error", err)
		}
	}
	if dbManager != nil && dbManager.ShouldSaveLocal {
		if err := dbManager.DumpMemoryToDisk(); err != nil {
			Logger.Warn("Failed to dump local database to disk", "error", err)
		}
	}

	printSummary(wins, draws, totalSteps, totalRounds, time.Since(batchStart))
	return nil
}

// buildRoster resolves bot names to factories, cycling the provided names
// across every spawn on the map.
func buildRoster(spawns int, arg string) ([]bot.Factory, []string, error) {
	var names []string
	for _, name := range strings.Split(arg, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		names = []string{"random"}
	}
	if len(names) > spawns {
		return nil, nil, fmt.Errorf("%d bots named for a map with %d spawns", len(names), spawns)
	}
	factories := make([]bot.Factory, spawns)
	roster := make([]string, spawns)
	for i := range factories {
		name := names[i%len(names)]
		factory, err := bot.Get(name)
		if err != nil {
			return nil, nil, err
		}
		factories[i] = factory
		roster[i] = name
	}
	return factories, roster, nil
}

func printSummary(wins map[string]int, draws int, steps, rounds int64, elapsed time.Duration) {
	total := draws
	for _, w := range wins {
		total += w
	}
	if total == 0 {
		return
	}
	fmt.Printf("\nPlayed %s battles (%s rounds, %s steps) in %s\n",
		humanize.Comma(int64(total)),
		humanize.Comma(rounds),
		humanize.Comma(steps),
		elapsed.Round(time.Millisecond),
	)
	names := make([]string, 0, len(wins))
	for name := range wins {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if wins[names[i]] != wins[names[j]] {
			return wins[names[i]] > wins[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Printf("  %-12s %s wins (%.1f%%)\n",
			name, humanize.Comma(int64(wins[name])), 100*float64(wins[name])/float64(total))
	}
	if draws > 0 {
		fmt.Printf("  %-12s %s (%.1f%%)\n",
			"draws", humanize.Comma(int64(draws)), 100*float64(draws)/float64(total))
	}
}
