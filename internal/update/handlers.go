package update

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glintlabs/glint/internal/eventbus"
	"github.com/glintlabs/glint/internal/models"
)

// HandleKeyMsgWithEventBus handles keyboard input using event bus
func HandleKeyMsgWithEventBus(appModel *models.AppModel, keyMsg tea.KeyMsg, eb *eventbus.EventBus, ready bool) tea.Cmd {
	switch keyMsg.String() {
	case "ctrl+c":
		return tea.Quit
	case "enter":
		if strings.TrimSpace(appModel.Input) != "" && ready {
			// Primary entry point: always accepted, cancels any prior request
			if err := eb.SendToCore(eventbus.AskEvent{Question: appModel.Input}); err != nil {
				appModel.Status = "Error sending question: " + err.Error()
				return nil
			}
			appModel.Input = ""
			return nil
		} else if strings.TrimSpace(appModel.Input) != "" {
			appModel.Input = ""
			appModel.Status = "No model configured - run: glint profile add"
		}
	case "ctrl+t":
		// Low-priority toggle path: dropped by the core while busy
		if err := eb.SendToCore(eventbus.ToggleAskEvent{Question: strings.TrimSpace(appModel.Input)}); err != nil {
			appModel.Status = "Error sending toggle: " + err.Error()
		}
	case "ctrl+p":
		if err := eb.SendToCore(eventbus.CaptureEvent{}); err != nil {
			appModel.Status = "Error requesting capture: " + err.Error()
		} else {
			appModel.Status = "Capturing screen"
		}
	case "esc":
		if err := eb.SendToCore(eventbus.CancelEvent{Reason: "user cancelled"}); err != nil {
			appModel.Status = "Error cancelling: " + err.Error()
		}
	case "ctrl+d":
		if err := eb.SendToCore(eventbus.CloseEvent{}); err != nil {
			appModel.Status = "Error closing: " + err.Error()
		}
	case "backspace":
		if appModel.Input != "" {
			runes := []rune(appModel.Input)
			appModel.Input = string(runes[:len(runes)-1])
		}
	default:
		// Rune-aware append so multi-byte input (and pastes) survive
		if keyMsg.Type == tea.KeyRunes || keyMsg.Type == tea.KeySpace {
			appModel.Input += keyMsg.String()
		}
	}
	return nil
}

// CoreEventMsg wraps core events for Bubble Tea
type CoreEventMsg struct {
	Event eventbus.CoreEvent
}

// HandleCoreEvent processes events from the core
func HandleCoreEvent(appModel *models.AppModel, coreEventMsg CoreEventMsg) tea.Cmd {
	switch event := coreEventMsg.Event.(type) {
	case eventbus.StateUpdateEvent:
		appModel.State = event.State
		appModel.QueueLen = event.QueueLen

		switch {
		case event.State.Err != nil:
			appModel.Status = "Error: " + event.State.Err.Error()
		case event.State.Loading:
			appModel.Status = "Thinking"
		case event.State.Streaming:
			appModel.Status = "Answering"
		default:
			appModel.Status = "Ready"
		}
	}

	return nil
}

type TickMsg time.Time

func TickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func HandleWindowSizeMsg(appModel *models.AppModel, sizeMsg tea.WindowSizeMsg) {
	appModel.Width = sizeMsg.Width
	appModel.Height = sizeMsg.Height
}

func HandleTickMsg(appModel *models.AppModel) tea.Cmd {
	// Only handle UI animations - loading dots
	if appModel.State.Loading || appModel.State.Streaming {
		appModel.LoadingDots = (appModel.LoadingDots + 1) % 4
	}
	return TickCmd()
}
