package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	wclient "github.com/wardenhq/warden/internal/client"
)

// approvalWire mirrors the JSON shape returned by approvals.list for one
// pending approval (the wire form of daemon.PendingApproval).
type approvalWire struct {
	ID          string         `json:"ID"`
	Kind        string         `json:"Kind"`
	Description string         `json:"Description"`
	Details     map[string]any `json:"Details"`
	CreatedAt   time.Time      `json:"CreatedAt"`
	TimeoutAt   time.Time      `json:"TimeoutAt"`
}

func (a approvalWire) Title() string { return fmt.Sprintf("[%s] %s", a.Kind, a.Description) }
func (a approvalWire) Description() string {
	return fmt.Sprintf("id=%s  expires %s", a.ID, a.TimeoutAt.Format(time.Kitchen))
}
func (a approvalWire) FilterValue() string { return a.Description }

// approvalsCmd implements SPEC_FULL's human-in-the-loop surface: an
// interactive list of the pending approvals on a live daemon, approved or
// denied with a keystroke. Falls back to plain text when stdout isn't a
// terminal (e.g. piped in CI), per go-isatty.
func approvalsCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Review pending write/exec/patch approvals on a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dialServer()
			if err != nil {
				return err
			}
			defer c.Close()

			if plain || !isatty.IsTerminal(os.Stdout.Fd()) {
				return runApprovalsPlain(c)
			}
			return runApprovalsTUI(c)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "force plain text mode instead of the interactive UI")
	return cmd
}

// runApprovalsPlain lists pending approvals once, for non-interactive
// contexts. It prints only; approving or denying needs the interactive UI.
func runApprovalsPlain(c *wclient.Client) error {
	approvals, err := fetchApprovals(c)
	if err != nil {
		return err
	}
	if len(approvals) == 0 {
		fmt.Println("no pending approvals")
		return nil
	}
	for _, a := range approvals {
		fmt.Printf("%s\t%s\t%s\t(expires %s)\n", a.ID, a.Kind, a.Description, a.TimeoutAt.Format(time.RFC3339))
	}
	return nil
}

func fetchApprovals(c *wclient.Client) ([]approvalWire, error) {
	raw, err := c.Call("approvals.list", struct{}{})
	if err != nil {
		return nil, err
	}
	var payload struct {
		Approvals []approvalWire `json:"approvals"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload.Approvals, nil
}

func decideApproval(c *wclient.Client, id string, approved bool) error {
	_, err := c.Call("approvals.decide", map[string]any{"id": id, "approved": approved})
	return err
}

const approvalsPollInterval = 2 * time.Second

type approvalsModel struct {
	client *wclient.Client
	list   list.Model
	err    error
	status string
}

type approvalsFetchedMsg struct {
	items []approvalWire
	err   error
}

func pollApprovalsCmd(c *wclient.Client) tea.Cmd {
	return tea.Tick(approvalsPollInterval, func(time.Time) tea.Msg {
		items, err := fetchApprovals(c)
		return approvalsFetchedMsg{items: items, err: err}
	})
}

func fetchApprovalsCmd(c *wclient.Client) tea.Cmd {
	return func() tea.Msg {
		items, err := fetchApprovals(c)
		return approvalsFetchedMsg{items: items, err: err}
	}
}

var approvalsTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "125", Dark: "205"})
var approvalsHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "242", Dark: "246"})

func newApprovalsModel(c *wclient.Client) approvalsModel {
	delegate := list.NewDefaultDelegate()
	l := list.New(nil, delegate, 0, 0)
	l.Title = "Pending approvals"
	l.Styles.Title = approvalsTitleStyle
	return approvalsModel{client: c, list: l}
}

func (m approvalsModel) Init() tea.Cmd {
	return fetchApprovalsCmd(m.client)
}

func (m approvalsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height-3)
		return m, nil

	case approvalsFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, pollApprovalsCmd(m.client)
		}
		items := make([]list.Item, len(msg.items))
		for i, a := range msg.items {
			items[i] = a
		}
		m.list.SetItems(items)
		m.err = nil
		return m, pollApprovalsCmd(m.client)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "a", "d":
			sel, ok := m.list.SelectedItem().(approvalWire)
			if !ok {
				return m, nil
			}
			approved := msg.String() == "a"
			if err := decideApproval(m.client, sel.ID, approved); err != nil {
				m.status = err.Error()
			} else if approved {
				m.status = "approved " + sel.ID
			} else {
				m.status = "denied " + sel.ID
			}
			return m, fetchApprovalsCmd(m.client)
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m approvalsModel) View() string {
	help := approvalsHelpStyle.Render("a approve  d deny  q quit")
	if m.err != nil {
		help = approvalsHelpStyle.Render(fmt.Sprintf("error: %v", m.err))
	} else if m.status != "" {
		help = approvalsHelpStyle.Render(m.status + "  |  a approve  d deny  q quit")
	}
	return m.list.View() + "\n" + help
}

func runApprovalsTUI(c *wclient.Client) error {
	p := tea.NewProgram(newApprovalsModel(c), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
