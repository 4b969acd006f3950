package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/opencity/server/internal/auth"
	"github.com/opencity/server/internal/config"
	"github.com/opencity/server/internal/data"
	"github.com/opencity/server/internal/event"
	"github.com/opencity/server/internal/handler"
	"github.com/opencity/server/internal/httpapi"
	"github.com/opencity/server/internal/metrics"
	gamenet "github.com/opencity/server/internal/net"
	"github.com/opencity/server/internal/perception"
	"github.com/opencity/server/internal/persist"
	"github.com/opencity/server/internal/sim"
	"github.com/opencity/server/internal/webhook"
	"github.com/opencity/server/internal/world"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Printf("\033[36;1m  │\033[0m            Opencity  v%s               \033[36;1m│\033[0m\n", version)
	fmt.Println("\033[36;1m  │\033[0m     authoritative town simulation server  \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Environment and config
	_ = godotenv.Load()
	cfgPath := "config/server.toml"
	if p := os.Getenv("OPENCITY_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	// 3. Store and migrations
	printSection("database")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := persist.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	printOK(fmt.Sprintf("sqlite ready at %s", cfg.Database.Path))

	residentRepo := persist.NewResidentRepo(db)
	inventoryRepo := persist.NewInventoryRepo(db)
	eventRepo := persist.NewEventRepo(db)
	worldRepo := persist.NewWorldRepo(db)
	petitionRepo := persist.NewPetitionRepo(db)
	referralRepo := persist.NewReferralRepo(db)
	feedbackRepo := persist.NewFeedbackRepo(db)

	// 4. Data tables
	printSection("data tables")
	gameMap, err := data.LoadGameMap(cfg.Server.MapPath)
	if err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	printStat("map tiles", gameMap.Width*gameMap.Height)
	printStat("buildings", len(gameMap.Buildings))

	items, err := data.LoadItemTable(cfg.Server.DataDir + "/items.yaml")
	if err != nil {
		log.Warn("item table missing, using built-ins", zap.Error(err))
		items = data.DefaultItemTable()
	}
	printStat("items", items.Count())

	jobs, err := data.LoadJobTable(cfg.Server.DataDir + "/jobs.yaml")
	if err != nil {
		log.Warn("job table missing, using built-ins", zap.Error(err))
		jobs = data.DefaultJobTable()
	}
	printStat("jobs", jobs.Count())

	// 5. World state
	printSection("world")
	ws := world.NewState(gameMap)
	ws.DevMode = !cfg.Production()

	if row, err := worldRepo.Load(ctx); err != nil {
		return fmt.Errorf("load world state: %w", err)
	} else {
		ws.Clock.WorldSecs = row.WorldSecs
		ws.Clock.TrainTimer = row.TrainTimer
		ws.Clock.RestockTimer = row.RestockTimer
		ws.PassportCounter = row.PassportCtr
	}
	if ws.Clock.TrainTimer <= 0 {
		ws.Clock.TrainTimer = sim.TrainSecs
	}
	if ws.Clock.RestockTimer <= 0 {
		ws.Clock.RestockTimer = sim.RestockSecs
	}

	rows, err := residentRepo.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("load residents: %w", err)
	}
	invByResident, err := inventoryRepo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}
	for i := range rows {
		if _, err := ws.AddResidentFromRow(&rows[i], invByResident[rows[i].ID]); err != nil {
			return fmt.Errorf("rehydrate resident: %w", err)
		}
	}
	printStat("residents restored", ws.Count())
	printStat("forage nodes", len(ws.Forage))

	jobRows := make([]persist.JobRow, 0, jobs.Count())
	for _, j := range jobs.All() {
		jobRows = append(jobRows, persist.JobRow{
			ID: j.ID, Title: j.Title, Building: j.Building,
			Wage: j.Wage, Vacancies: j.Vacancies, Role: j.Role,
		})
	}
	if err := worldRepo.SeedJobs(ctx, jobRows); err != nil {
		return fmt.Errorf("seed jobs: %w", err)
	}

	// 6. Subsystems
	printSection("subsystems")
	met := metrics.New()

	secret := cfg.Auth.TokenSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate token secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		log.Warn("token secret generated for this boot; tokens will not survive a restart")
	}
	keeper, err := auth.NewKeeper(secret)
	if err != nil {
		return fmt.Errorf("init token keeper: %w", err)
	}

	hooks := webhook.NewDispatcher(log.Named("webhook"))
	hooks.SetFailureCounter(met.WebhookFailures)
	defer hooks.Close()

	events := event.NewLog(eventRepo, log.Named("events"))
	lastEventID, err := eventRepo.LastID(ctx)
	if err != nil {
		return fmt.Errorf("load last event id: %w", err)
	}
	events.SeedIDs(lastEventID)

	economy := sim.NewEconomy(ws, items, jobs, petitionRepo, events, hooks, log.Named("economy"))
	if stock, err := worldRepo.LoadShopStock(ctx); err != nil {
		return fmt.Errorf("load shop stock: %w", err)
	} else {
		for typ, n := range stock {
			economy.ShopStock[typ] = n
		}
	}

	publicURL := os.Getenv("PUBLIC_URL")
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	deps := &handler.Deps{
		World:     ws,
		Items:     items,
		Jobs:      jobs,
		Events:    events,
		Hooks:     hooks,
		Economy:   economy,
		Residents: residentRepo,
		Petitions: petitionRepo,
		Referrals: referralRepo,
		Feedback:  feedbackRepo,
		PublicURL: publicURL,
		Log:       log.Named("handler"),
	}

	gateway := gamenet.NewGateway(keeper, cfg.Network, log.Named("net"))

	sched := sim.NewScheduler(sim.SchedulerConfig{
		World:       ws,
		Jobs:        jobs,
		Movement:    sim.NewMovement(ws),
		Needs:       sim.NewNeeds(ws, items, events, hooks, log.Named("needs")),
		Law:         sim.NewLaw(ws, events, hooks, log.Named("law")),
		Economy:     economy,
		Reflections: sim.NewReflections(ws, feedbackRepo, referralRepo, hooks, log.Named("reflect")),
		Builder:     perception.NewBuilder(ws, items),
		Events:      events,
		Hooks:       hooks,
		Metrics:     met,
		Residents:   residentRepo,
		Inventory:   inventoryRepo,
		WorldRepo:   worldRepo,
		Commands:    gateway.Commands(),
		Dispatch: func(sess *gamenet.Session, r *world.Resident, msg gamenet.ClientMessage) *gamenet.ActionResult {
			return handler.Dispatch(deps, sess, r, msg)
		},
		MaxCmdPerTick: cfg.Network.MaxCmdPerTick,
		MapURL:        "/api/map",
		Announcement: &gamenet.SystemAnnouncement{
			Type:    "system_announcement",
			Title:   cfg.Server.Name,
			Version: version,
		},
		Log: log.Named("sched"),
	})

	api := httpapi.New(cfg, sched, gameMap, events, gateway, met,
		residentRepo, referralRepo, feedbackRepo,
		httpapi.RegistrationDeps{Keeper: keeper, World: ws},
		log.Named("http"))

	// 7. Run
	go sched.Run()
	httpErr := make(chan error, 1)
	go func() { httpErr <- api.ListenAndServe() }()

	printSection("server ready")
	printReady(fmt.Sprintf("listening on :%d", cfg.Server.Port))
	printReady(fmt.Sprintf("game loop running (position %s, sim %s)", sim.PositionTick, sim.SimTick))
	fmt.Println()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdownCh:
		log.Info("shutdown signal", zap.String("signal", sig.String()))
	case err := <-httpErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	// A stuck shutdown must not hang the process forever.
	go func() {
		time.Sleep(5 * time.Second)
		fmt.Fprintln(os.Stderr, "fatal: shutdown timed out")
		os.Exit(1)
	}()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	gateway.CloseAll()
	sched.Stop()
	log.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
