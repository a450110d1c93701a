package app

import (
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/glintlabs/glint/internal/capture"
	"github.com/glintlabs/glint/internal/config"
	"github.com/glintlabs/glint/internal/dispatcher"
	"github.com/glintlabs/glint/internal/eventbus"
	"github.com/glintlabs/glint/internal/models"
	"github.com/glintlabs/glint/internal/orchestrator"
	"github.com/glintlabs/glint/internal/store"
)

// Application manages the complete application lifecycle
type Application struct {
	config       *config.Config
	eventBus     *eventbus.EventBus
	dispatcher   *dispatcher.EventDispatcher
	orchestrator *orchestrator.Orchestrator
	store        *store.Store
	logger       *zap.Logger
	model        *AppModel
}

func NewApplication(debug bool) (*Application, error) {
	logger, err := newLogger(debug)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", zap.Error(err))
		return nil, err
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	st, err := store.NewStore(dataDir)
	if err != nil {
		logger.Error("failed to open conversation store", zap.Error(err))
		return nil, err
	}

	eb := eventbus.NewEventBus()
	eb.SetErrorCallback(func(busErr eventbus.EventBusError) {
		logger.Warn("event bus degraded",
			zap.String("operation", busErr.Operation),
			zap.Int("circuit_state", int(eb.GetCircuitBreakerState())),
			zap.Error(busErr.Err))
	})
	disp := dispatcher.NewEventDispatcher(eb)

	queue := capture.NewQueue(capture.DefaultCapacity)
	trigger := capture.NewScreenTrigger()

	// Orchestrator is always created; an unconfigured profile surfaces
	// as a NotConfigured error on the first submission.
	orch := orchestrator.New(cfg, eb, queue, trigger, st, logger)

	model := &AppModel{
		appModel:   createInitialAppModel(cfg),
		dispatcher: disp,
	}

	return &Application{
		config:       cfg,
		eventBus:     eb,
		dispatcher:   disp,
		orchestrator: orch,
		store:        st,
		logger:       logger,
		model:        model,
	}, nil
}

func (app *Application) Start() error {
	app.dispatcher.Start()
	app.orchestrator.Start()

	p := tea.NewProgram(app.model)
	_, err := p.Run()

	return err
}

func (app *Application) Stop() {
	app.orchestrator.Stop()
	app.dispatcher.Stop()
	app.eventBus.Close()
	app.store.Close()
	app.logger.Sync()
}

func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	// Stdout belongs to the TUI; keep logs off the terminal.
	cfg.OutputPaths = []string{"stderr"}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func createInitialAppModel(cfg *config.Config) models.AppModel {
	return models.AppModel{
		Status: "Ready",
		Ready:  cfg.IsValid(),
	}
}
