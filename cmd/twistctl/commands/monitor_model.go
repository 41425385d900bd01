package commands

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/luizmgoncw/twist2-gui-controller/pkg/cli"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/frame"
	"github.com/luizmgoncw/twist2-gui-controller/pkg/joint"
)

// monitorModel is the bubbletea model of the monitor command.
type monitorModel struct {
	model     *joint.Model
	topic     string
	format    frame.Format
	frames    <-chan frameMsg
	logWriter *cli.LogWriter

	last       frameMsg
	received   int
	errors     int
	window     int
	rate       float64
	logContent []string

	styles   cli.Styles
	width    int
	height   int
	quitting bool
}

func newMonitorModel(model *joint.Model, topic string, format frame.Format, frames <-chan frameMsg, logWriter *cli.LogWriter) monitorModel {
	return monitorModel{
		model:     model,
		topic:     topic,
		format:    format,
		frames:    frames,
		logWriter: logWriter,
		styles:    cli.NewStyles(cli.DefaultTheme),
	}
}

type logMsg string

type rateTickMsg time.Time

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(m.listenFrames(), m.listenLogs(), m.tick())
}

func (m monitorModel) listenFrames() tea.Cmd {
	return func() tea.Msg {
		f, ok := <-m.frames
		if !ok {
			return nil
		}
		return f
	}
}

func (m monitorModel) listenLogs() tea.Cmd {
	if m.logWriter == nil {
		return nil
	}
	return func() tea.Msg {
		line, ok := <-m.logWriter.Channel()
		if !ok {
			return nil
		}
		return logMsg(line)
	}
}

func (m monitorModel) tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return rateTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyRunes:
			if len(msg.Runes) == 1 && msg.Runes[0] == 'q' {
				m.quitting = true
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case frameMsg:
		m.received++
		m.window++
		if msg.Err != nil {
			m.errors++
			m.last.Err = msg.Err
		} else {
			m.last = msg
		}
		return m, m.listenFrames()

	case logMsg:
		m.logContent = append(m.logContent, string(msg))
		if len(m.logContent) > 50 {
			m.logContent = m.logContent[len(m.logContent)-50:]
		}
		return m, m.listenLogs()

	case rateTickMsg:
		m.rate = float64(m.window)
		m.window = 0
		return m, m.tick()
	}
	return m, nil
}

// jointLines renders one gauge per joint of the last frame.
func (m monitorModel) jointLines() []string {
	v := m.last.Angles
	if v == nil {
		return []string{m.styles.Help.Render("waiting for " + m.topic + " ...")}
	}
	lines := make([]string, 0, len(v)+1)
	if len(v) != m.model.Len() {
		lines = append(lines, m.styles.Warn.Render(fmt.Sprintf("record has %d angles, model has %d", len(v), m.model.Len())))
	}
	for i, x := range v {
		name := fmt.Sprintf("#%d", i)
		lo, hi := -3.14, 3.14
		if m.model.Valid(i) {
			j := m.model.Joint(i)
			name, lo, hi = j.Name, j.Lower, j.Upper
		}
		gauge := cli.Bar(x, lo, hi, 25)
		if x < lo || x > hi {
			gauge = m.styles.Warn.Render(gauge)
		}
		lines = append(lines, fmt.Sprintf("%-22s %s %s", name, gauge, cli.FormatAngle(x)))
	}
	return lines
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	status := "no data"
	if !m.last.At.IsZero() {
		status = fmt.Sprintf("%s · %.0f Hz · %d frames", m.format, m.rate, m.received)
		if time.Since(m.last.At) > 2*time.Second {
			status = "stale · " + status
		}
	}
	if m.errors > 0 {
		status += fmt.Sprintf(" · %d bad", m.errors)
	}
	var info []string
	if m.last.Err != nil {
		info = append(info, m.styles.Warn.Render("decode error: "+m.last.Err.Error()))
	}
	info = append(info, m.logContent...)

	f := cli.Frame{
		Styles: m.styles,
		Title:  "TWISTCTL // " + m.topic,
		Status: status,
		Sections: []cli.Section{
			{Label: "Joints", Lines: m.jointLines(), Height: min(m.model.Len()+1, max(m.height-12, 1))},
			{Label: "Log", Lines: info},
		},
		Help: "q/Ctrl+C=quit",
	}
	return f.Render(m.width, m.height)
}
