package app

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glintlabs/glint/internal/dispatcher"
	"github.com/glintlabs/glint/internal/models"
	"github.com/glintlabs/glint/internal/update"
	"github.com/glintlabs/glint/ui/components"
)

type AppModel struct {
	appModel   models.AppModel
	dispatcher *dispatcher.EventDispatcher
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(
		update.TickCmd(),
		m.dispatcher.ListenForCoreEvents(),
	)
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Handle core events and continue listening
	if coreEvent, ok := msg.(update.CoreEventMsg); ok {
		cmd := update.HandleCoreEvent(&m.appModel, coreEvent)
		return m, tea.Batch(cmd, m.dispatcher.ListenForCoreEvents())
	}

	eventBus := m.dispatcher.GetEventBus()
	cmd := update.HandleUpdateWithEventBus(&m.appModel, msg, eventBus, m.appModel.Ready)

	return m, cmd
}

func (m *AppModel) View() string {
	var b strings.Builder

	b.WriteString(components.RenderAnswerSurface(m.appModel.State, m.appModel.Width))
	if m.appModel.State.ShowComposer {
		b.WriteString(components.RenderComposer(m.appModel.Input, m.appModel.Width))
	}
	b.WriteString("\n")
	b.WriteString(components.RenderStatus(m.appModel.Status, m.appModel.State, m.appModel.LoadingDots, m.appModel.QueueLen, m.appModel.Width))

	return b.String()
}
