package update

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glintlabs/glint/internal/eventbus"
	"github.com/glintlabs/glint/internal/models"
)

func runeKey(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestComposerAcceptsMultibyteInput(t *testing.T) {
	eb := eventbus.NewEventBus()
	m := &models.AppModel{}

	HandleKeyMsgWithEventBus(m, runeKey("é"), eb, true)
	HandleKeyMsgWithEventBus(m, runeKey("画"), eb, true)
	HandleKeyMsgWithEventBus(m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}, eb, true)
	HandleKeyMsgWithEventBus(m, runeKey("ok"), eb, true)

	assert.Equal(t, "é画 ok", m.Input)
}

func TestBackspaceRemovesWholeRune(t *testing.T) {
	eb := eventbus.NewEventBus()
	m := &models.AppModel{Input: "aé画"}

	HandleKeyMsgWithEventBus(m, tea.KeyMsg{Type: tea.KeyBackspace}, eb, true)
	assert.Equal(t, "aé", m.Input)

	HandleKeyMsgWithEventBus(m, tea.KeyMsg{Type: tea.KeyBackspace}, eb, true)
	assert.Equal(t, "a", m.Input)

	HandleKeyMsgWithEventBus(m, tea.KeyMsg{Type: tea.KeyBackspace}, eb, true)
	HandleKeyMsgWithEventBus(m, tea.KeyMsg{Type: tea.KeyBackspace}, eb, true)
	assert.Empty(t, m.Input)
}

func TestEnterSubmitsAndClearsComposer(t *testing.T) {
	eb := eventbus.NewEventBus()
	m := &models.AppModel{Input: "what is this?"}

	HandleKeyMsgWithEventBus(m, tea.KeyMsg{Type: tea.KeyEnter}, eb, true)

	assert.Empty(t, m.Input)
	select {
	case event := <-eb.UIToCore():
		ask, ok := event.(eventbus.AskEvent)
		require.True(t, ok)
		assert.Equal(t, "what is this?", ask.Question)
	default:
		t.Fatal("no event sent to core")
	}
}

func TestEnterWithoutModelShowsHint(t *testing.T) {
	eb := eventbus.NewEventBus()
	m := &models.AppModel{Input: "question"}

	HandleKeyMsgWithEventBus(m, tea.KeyMsg{Type: tea.KeyEnter}, eb, false)

	assert.Empty(t, m.Input)
	assert.Contains(t, m.Status, "No model configured")
	select {
	case <-eb.UIToCore():
		t.Fatal("unconfigured submit must not reach the core")
	default:
	}
}
