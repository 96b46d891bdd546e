package ui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Logger is the shared structured logger, writing to stderr so JSON output
// on stdout stays machine-readable. Usable before Init; Init reconfigures it
// for the color mode.
var Logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: false,
})

var (
	brandStyle  lipgloss.Style
	okStyle     lipgloss.Style
	warnStyle   lipgloss.Style
	failStyle   lipgloss.Style
	faintStyle  lipgloss.Style
	strongStyle lipgloss.Style
	askStyle    lipgloss.Style
	markStyle   lipgloss.Style
)

// Init configures color handling, styles, and the logger. Call once before
// any other ui function.
func Init(noColorFlag bool) {
	noColor := noColorFlag || os.Getenv("NO_COLOR") != ""

	// A crashed child process can leave the terminal in raw mode, which
	// turns every multi-line print into a staircase. Undo that first.
	SanitizeTerminal()

	// Assume a dark background instead of probing the terminal; the OSC
	// query can leak focus-event bytes into the next read.
	lipgloss.SetHasDarkBackground(true)

	if noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	brandStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	faintStyle = lipgloss.NewStyle().Faint(true)
	strongStyle = lipgloss.NewStyle().Bold(true)
	askStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	markStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("171"))

	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})
	if noColor {
		Logger.SetStyles(log.DefaultStyles())
	}
}

// SanitizeTerminal restores cooked mode and clears any stale SGR state.
func SanitizeTerminal() {
	cmd := exec.Command("stty", "sane")
	cmd.Stdin = os.Stdin
	_ = cmd.Run()

	fmt.Fprint(os.Stderr, "\033[0m\r")
}

func Bold(s string) string   { return strongStyle.Render(s) }
func Dim(s string) string    { return faintStyle.Render(s) }
func Red(s string) string    { return failStyle.Render(s) }
func Green(s string) string  { return okStyle.Render(s) }
func Yellow(s string) string { return warnStyle.Render(s) }

// Logo draws the hubcap mark on stderr: a message dropping into an inbox
// tray.
func Logo() {
	tray := lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "      "+markStyle.Render("▼"))
	fmt.Fprintln(os.Stderr, tray.Render("  ╭───────────╮"))
	fmt.Fprintln(os.Stderr, tray.Render("  │ ")+brandStyle.Render("h u b c a p")+tray.Render(" │"))
	fmt.Fprintln(os.Stderr, tray.Render("  ╰───────────╯"))
}

// LogoWithTagline draws the logo with a dimmed tagline under it.
func LogoWithTagline(tagline string) {
	Logo()
	if tagline != "" {
		fmt.Fprintln(os.Stderr, faintStyle.Render("  "+tagline))
	}
	fmt.Fprintln(os.Stderr)
}

// Info prints a progress line.
func Info(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", markStyle.Render("▸"), msg)
}

// Success prints a completed-step line.
func Success(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", okStyle.Render("✓"), msg)
}

// Warning prints a non-fatal problem line.
func Warning(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", warnStyle.Render("⚠"), msg)
}

// Error prints a failure line.
func Error(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", failStyle.Render("✗"), msg)
}

// Detail prints an indented, dim-labelled detail under a status line.
func Detail(key, value string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", faintStyle.Render("  "+key), value)
}

// KeyValue prints a bold key with its value, for summary blocks.
func KeyValue(key, value string) {
	fmt.Fprintf(os.Stderr, "  %s  %s\n", strongStyle.Render(key), value)
}

// SectionHeader prints a labelled divider.
func SectionHeader(label string) {
	fmt.Fprintf(os.Stderr, "\n%s\n\n", brandStyle.Render("── "+label+" ──"))
}

// EmptyState prints a dim placeholder for commands with nothing to show.
func EmptyState(msg string) {
	fmt.Fprintf(os.Stderr, "  %s\n", faintStyle.Render(msg))
}

// Table writes an aligned table to stdout.
func Table(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strongStyle.Render(strings.Join(headers, "\t")))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// CommandBanner draws a boxed banner naming the running command.
func CommandBanner(command string, subtitle string) {
	// Cursor back to column 0 in case raw mode left it mid-line.
	fmt.Fprint(os.Stderr, "\r")

	lines := []string{
		brandStyle.Render("h u b c a p") + "  " + markStyle.Render("· "+strings.ToUpper(command)),
	}
	if subtitle != "" {
		lines = append(lines, faintStyle.Render(subtitle))
	}

	box := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("63")).
		PaddingLeft(1).
		PaddingRight(1).
		Render(strings.Join(lines, "\n"))

	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, box)
	fmt.Fprintln(os.Stderr)
}

// confirmModel drives a two-option yes/no prompt.
type confirmModel struct {
	prompt   string
	onNo     bool
	decided  bool
	accepted bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y":
		m.accepted, m.decided = true, true
		return m, tea.Quit
	case "n", "N", "ctrl+c", "esc":
		m.accepted, m.decided = false, true
		return m, tea.Quit
	case "left", "h":
		m.onNo = false
	case "right", "l":
		m.onNo = true
	case "enter", " ":
		m.accepted, m.decided = !m.onNo, true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	yes := faintStyle.Render("  Yes ")
	no := faintStyle.Render("  No  ")
	if m.onNo {
		no = failStyle.Render("▸ No  ")
	} else {
		yes = okStyle.Render("▸ Yes ")
	}
	hint := faintStyle.Render("  ←/→ move · enter confirm · y/n direct")
	return fmt.Sprintf("%s\n\n  %s  %s\n\n%s", askStyle.Render(m.prompt), yes, no, hint)
}

// Confirm asks a yes/no question on stderr and blocks for the answer.
func Confirm(prompt string) (bool, error) {
	p := tea.NewProgram(confirmModel{prompt: prompt}, tea.WithOutput(os.Stderr))
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	fmt.Fprintln(os.Stderr)
	return result.(confirmModel).accepted, nil
}

// Spinner animates a progress marker on stderr until stopped. Stop may be
// called more than once.
type Spinner struct {
	msg      string
	stop     chan struct{}
	done     sync.WaitGroup
	stopOnce sync.Once
}

// NewSpinner starts the animation immediately.
func NewSpinner(msg string) *Spinner {
	s := &Spinner{msg: msg, stop: make(chan struct{})}
	s.done.Add(1)
	go s.run()
	return s
}

func (s *Spinner) run() {
	defer s.done.Done()
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(90 * time.Millisecond)
	defer ticker.Stop()

	draw := func(i int) {
		fmt.Fprintf(os.Stderr, "\r%s %s", markStyle.Render(frames[i%len(frames)]), faintStyle.Render(s.msg))
	}
	// First frame before the first tick, so short waits still show it.
	draw(0)

	for i := 1; ; i++ {
		select {
		case <-s.stop:
			fmt.Fprint(os.Stderr, "\r\033[K")
			return
		case <-ticker.C:
			draw(i)
		}
	}
}

// Stop ends the animation and clears its line.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.done.Wait()
}
