package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/d1nch8g/voiceorder/transport"
)

// Theme defines the color scheme for the terminal view.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Alert   lipgloss.Color
}

var DefaultTheme = Theme{
	Primary: lipgloss.Color("#d4a373"),
	Dim:     lipgloss.Color("#6e7681"),
	Alert:   lipgloss.Color("#e76f51"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Box    lipgloss.Style
	Card   lipgloss.Style
	Dim    lipgloss.Style
	Alert  lipgloss.Style
	Status map[transport.Status]lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(0, 1),
		Card: lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(t.Primary).
			Padding(0, 2),
		Dim:   lipgloss.NewStyle().Foreground(t.Dim),
		Alert: lipgloss.NewStyle().Foreground(t.Alert),
		Status: map[transport.Status]lipgloss.Style{
			transport.StatusOpen:       lipgloss.NewStyle().Foreground(t.Primary),
			transport.StatusConnecting: lipgloss.NewStyle().Foreground(t.Dim),
			transport.StatusClosed:     lipgloss.NewStyle().Foreground(t.Alert),
		},
	}
}

// Renderer turns a snapshot into a terminal frame. It holds no state of its
// own, so the same snapshot always renders the same text.
type Renderer struct {
	Styles Styles
	Width  int
}

func NewRenderer() *Renderer {
	return &Renderer{Styles: NewStyles(DefaultTheme), Width: 48}
}

// Render returns the full view for s.
func (r *Renderer) Render(s Snapshot) string {
	parts := []string{r.statusLine(s)}
	if s.ThankYou != nil {
		parts = append(parts, r.thankYou(*s.ThankYou))
	}
	parts = append(parts, r.menu(s), r.cart(s))
	if s.Notice != "" {
		parts = append(parts, r.Styles.Dim.Render(s.Notice))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (r *Renderer) statusLine(s Snapshot) string {
	names := make([]string, 0, len(s.Channels))
	for name := range s.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(r.Styles.Title.Render("Café"))
	for _, name := range names {
		st := s.Channels[name]
		b.WriteString("  ")
		b.WriteString(r.Styles.Status[st].Render(name + ":" + st.String()))
	}
	if s.Recording {
		b.WriteString("  ")
		b.WriteString(r.Styles.Alert.Render("● rec"))
	}
	return b.String()
}

func (r *Renderer) menu(s Snapshot) string {
	lines := []string{r.Styles.Label.Render("Menu")}
	if len(s.Menu) == 0 {
		lines = append(lines, r.Styles.Dim.Render("(no menu yet)"))
	}
	for _, it := range s.Menu {
		line := fmt.Sprintf("%-22s %7.2f", it.Name, float64(it.Price))
		if it.GlutenFree {
			line += " GF"
		}
		if !it.IsAvailable() {
			line = r.Styles.Dim.Render(line + " (sold out)")
		}
		lines = append(lines, line)
	}
	return r.Styles.Box.Width(r.Width).Render(strings.Join(lines, "\n"))
}

func (r *Renderer) cart(s Snapshot) string {
	lines := []string{r.Styles.Label.Render("Cart")}
	if len(s.Cart) == 0 {
		lines = append(lines, r.Styles.Dim.Render("(empty)"))
	}
	for _, l := range s.Cart {
		lines = append(lines, fmt.Sprintf("%s x%d", l.Item, l.Qty))
	}
	if s.Total != nil {
		lines = append(lines, fmt.Sprintf("Total: %.2f", *s.Total))
	}
	if s.Submitted {
		lines = append(lines, r.Styles.Title.Render("Order submitted"))
	}
	return r.Styles.Box.Width(r.Width).Render(strings.Join(lines, "\n"))
}

func (r *Renderer) thankYou(t ThankYou) string {
	body := fmt.Sprintf("Thank you!\nOrder %s\nTotal %.2f\n%s",
		t.OrderID, t.Total, r.Styles.Dim.Render("/ok to dismiss"))
	return r.Styles.Card.Render(body)
}
