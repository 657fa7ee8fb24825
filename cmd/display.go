// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/thermoline/espresso/pkg/display"
	"github.com/thermoline/espresso/pkg/link"
)

const displayControlEmitPeriod = 250 * time.Millisecond

var displayCmd = &cobra.Command{
	Use:   "display",
	Short: "Run the Display Node's interactive TUI",
	Long: `Run the Display Node: dial the Machine Node over a serial or WebSocket
link, run the mode FSM's brew/steam/water/grind processes, and present a
terminal UI showing connection state, live telemetry, and an event log.

Keys: b=brew  s=steam  w=water  g=grind  q=quit`,
	RunE: runDisplay,
}

func init() {
	rootCmd.AddCommand(displayCmd)
}

func runDisplay(cmd *cobra.Command, args []string) error {
	var connInfo string
	dial := func() (link.Transport, error) {
		t, info, err := OpenTransport()
		if err != nil {
			return nil, err
		}
		connInfo = info
		return t, nil
	}

	client, err := link.NewClient(dial, 16)
	if err != nil {
		return err
	}
	defer client.Close()

	settings := display.NewInMemorySettingsStore()
	sup := display.NewDisplaySupervisor(client, settings)

	m := newDisplayModel(sup, connInfo)
	p := tea.NewProgram(m)

	go client.Run(
		func(f *link.Frame) { p.Send(displayFrameMsg{f}) },
		func(err error) { p.Send(displayLogMsg{text: fmt.Sprintf("decode error: %v", err), isError: true}) },
		func() { p.Send(displayLogMsg{text: "link reconnected"}) },
	)

	_, err = p.Run()
	return err
}

type displayFrameMsg struct{ frame *link.Frame }
type displayLogMsg struct {
	text    string
	isError bool
}
type displayTickMsg time.Time

type displayModel struct {
	sup      *display.DisplaySupervisor
	connInfo string

	systemInfo link.SystemInfo
	haveInfo   bool
	lastSensor link.SensorFrame
	haveSensor bool

	log          []string
	logIsError   []bool
	maxLog       int
	width        int
	quitting     bool
	tempProgress progress.Model
}

func newDisplayModel(sup *display.DisplaySupervisor, connInfo string) displayModel {
	return displayModel{
		sup:          sup,
		connInfo:     connInfo,
		maxLog:       12,
		width:        80,
		tempProgress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m displayModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(displayControlEmitPeriod, func(t time.Time) tea.Msg {
		return displayTickMsg(t)
	})
}

func (m displayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "b":
			m.sup.HandleBrewButton(time.Now(), demoProfile())
			m = m.appendLog("brew button pressed", false)
		case "s":
			m.sup.HandleSteamButton(time.Now(), 145)
			m = m.appendLog("steam button pressed", false)
		case "w":
			m.sup.StartWater(time.Now(), 90, 50)
			m = m.appendLog("water dispense started", false)
		case "g":
			m.sup.StartGrind(time.Now(), display.Target{Kind: display.TargetWeight, Op: display.OpGreaterEqual, Value: 18})
			m = m.appendLog("grind started", false)
		}
		return m, nil

	case displayFrameMsg:
		return m.handleFrame(msg.frame), nil

	case displayLogMsg:
		m = m.appendLog(msg.text, msg.isError)
		return m, nil

	case displayTickMsg:
		if err := m.sup.Tick(time.Time(msg), displayControlEmitPeriod); err != nil {
			m = m.appendLog(fmt.Sprintf("tick error: %v", err), true)
		}
		return m, tickCmd()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.tempProgress.Width = msg.Width - 4
		return m, nil
	}
	return m, nil
}

func (m displayModel) handleFrame(f *link.Frame) displayModel {
	switch f.Type {
	case link.MsgSystemInfo:
		if info, err := link.DecodeSystemInfo(f.Payload); err == nil {
			m.systemInfo = info
			m.haveInfo = true
			m.sup.OnSystemInfo(info)
			m = m.appendLog(fmt.Sprintf("SystemInfo: %s %s", info.Hardware, info.Version), false)
		}
	case link.MsgSensorData:
		if s, err := link.DecodeSensorFrame(f.Payload); err == nil {
			m.lastSensor = s
			m.haveSensor = true
		}
	case link.MsgError:
		if k, err := link.DecodeErrorPayload(f.Payload); err == nil {
			m = m.appendLog(fmt.Sprintf("machine reported error: %s", k), true)
		}
	}
	return m
}

func (m displayModel) appendLog(text string, isError bool) displayModel {
	m.log = append(m.log, fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), text))
	m.logIsError = append(m.logIsError, isError)
	if len(m.log) > m.maxLog {
		m.log = m.log[len(m.log)-m.maxLog:]
		m.logIsError = m.logIsError[len(m.logIsError)-m.maxLog:]
	}
	return m
}

var (
	displayTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	displayLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	displayValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	displayErrStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	displayBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
)

func (m displayModel) View() string {
	if m.quitting {
		return "brewlink display: bye\n"
	}

	var b strings.Builder
	b.WriteString(displayTitleStyle.Render("brewlink display") + "\n\n")
	fmt.Fprintf(&b, "%s %s\n", displayLabelStyle.Render("connection:"), m.connInfo)
	fmt.Fprintf(&b, "%s %s\n", displayLabelStyle.Render("mode:"), m.sup.Mode())

	if m.haveInfo {
		fmt.Fprintf(&b, "%s hw=%s version=%s dimming=%v\n", displayLabelStyle.Render("system:"),
			m.systemInfo.Hardware, m.systemInfo.Version, m.systemInfo.Capabilities.Dimming)
	} else {
		b.WriteString(displayLabelStyle.Render("system: waiting for SystemInfo...") + "\n")
	}

	if m.haveSensor {
		fmt.Fprintf(&b, "%s temp=%.1fC pressure=%.2fbar flow=%.2fml/s\n",
			displayLabelStyle.Render("sensors:"), m.lastSensor.TemperatureC, m.lastSensor.PressureBar, m.lastSensor.PuckFlowMlps)
		fmt.Fprintf(&b, "%s %s\n", displayLabelStyle.Render("boiler:"), m.tempProgress.ViewAs(float64(m.lastSensor.TemperatureC)/100))
	}

	logLines := make([]string, len(m.log))
	for i, line := range m.log {
		if i < len(m.logIsError) && m.logIsError[i] {
			logLines[i] = displayErrStyle.Render(line)
		} else {
			logLines[i] = displayValueStyle.Render(line)
		}
	}
	b.WriteString("\n" + displayBoxStyle.Render(strings.Join(logLines, "\n")) + "\n")
	b.WriteString("\n" + displayLabelStyle.Render("b=brew  s=steam  w=water  g=grind  q=quit") + "\n")

	return b.String()
}

// demoProfile returns a small pro profile for bench demonstration, since the
// CLI has no profile store wired in; a real Display Node build would load
// the selected profile from SettingsStore.KeySelectedProfile.
func demoProfile() display.Profile {
	return display.Profile{
		ID:           "demo",
		Label:        "Demo shot",
		Type:         display.ProfilePro,
		TemperatureC: 93,
		Phases: []display.Phase{
			{
				Name:      "preinfusion",
				Kind:      display.PhasePreinfusion,
				Valve:     true,
				DurationS: 5,
				Pump:      display.PumpSetpoint{Percent: 40},
				Targets:   []display.Target{{Kind: display.TargetTime, Op: display.OpGreaterEqual, Value: 5}},
			},
			{
				Name:      "brew",
				Kind:      display.PhaseBrew,
				Valve:     true,
				DurationS: 35,
				Pump:      display.PumpSetpoint{Percent: 100},
				Targets:   []display.Target{{Kind: display.TargetVolumetric, Op: display.OpGreaterEqual, Value: 36}},
			},
		},
	}
}
