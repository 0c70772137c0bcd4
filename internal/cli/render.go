package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/syncclient/notice"
)

const (
	nameWidth  = 14
	valueWidth = 14
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	nameStyle    = lipgloss.NewStyle().Width(nameWidth)
	valueStyle   = lipgloss.NewStyle().Width(valueWidth).Align(lipgloss.Right)
	ownRowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	otherStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	totalStyle   = lipgloss.NewStyle().Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Cell markers appended to values that are not yet confirmed by the server.
const (
	pendingMark = "*"
	failedMark  = "!"
)

// renderView draws a sheet as a text table. Pending cells end with "*",
// failed cells with "!".
func renderView(v grid.View, p model.Principal) string {
	var b strings.Builder

	who := p.Username
	if p.Admin {
		who += " (admin)"
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s · %s", v.Table, who)))
	b.WriteString("\n")

	header := []string{nameStyle.Render("Vendedor")}
	for _, f := range v.Fields {
		header = append(header, valueStyle.Render(f.Label()))
	}
	header = append(header, valueStyle.Render("Total"))
	b.WriteString(headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, header...)))
	b.WriteString("\n")

	if len(v.Rows) == 0 {
		b.WriteString(otherStyle.Render("Nenhum vendedor cadastrado"))
		b.WriteString("\n")
	}
	for _, row := range v.Rows {
		rowStyle := otherStyle
		if row.Editable {
			rowStyle = ownRowStyle
		}
		cols := []string{nameStyle.Render(row.Entity.Username)}
		for _, c := range row.Cells {
			cols = append(cols, renderCell(c, rowStyle))
		}
		cols = append(cols, totalStyle.Inherit(valueStyle).Render(row.Total.Text))
		b.WriteString(rowStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, cols...)))
		b.WriteString("\n")
	}

	footer := []string{nameStyle.Render("Total")}
	for _, t := range v.ColumnTotals {
		footer = append(footer, valueStyle.Render(t.Text))
	}
	footer = append(footer, valueStyle.Render(v.GrandTotal.Text))
	b.WriteString(totalStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, footer...)))
	b.WriteString("\n")
	return b.String()
}

func renderCell(c grid.CellView, base lipgloss.Style) string {
	switch c.State {
	case grid.Pending:
		return pendingStyle.Inherit(valueStyle).Render(c.Amount.Text + pendingMark)
	case grid.Failed:
		return failedStyle.Inherit(valueStyle).Render(c.Amount.Text + failedMark)
	}
	return base.Inherit(valueStyle).Render(c.Amount.Text)
}

func renderNotice(n notice.Notice) string {
	if n.Kind == notice.Error {
		return errorStyle.Render(n.Text)
	}
	return infoStyle.Render(n.Text)
}

func renderUsers(users []model.Entity) string {
	var b strings.Builder
	cols := lipgloss.JoinHorizontal(lipgloss.Top,
		valueStyle.Width(6).Render("ID"), " ",
		nameStyle.Render("Usuário"),
		nameStyle.Width(28).Render("E-mail"),
		nameStyle.Width(8).Render("Perfil"),
		valueStyle.Width(8).Render("Posição"),
	)
	b.WriteString(headerStyle.Render(cols))
	b.WriteString("\n")
	for _, u := range users {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			valueStyle.Width(6).Render(fmt.Sprint(u.ID)), " ",
			nameStyle.Render(u.Username),
			nameStyle.Width(28).Render(u.Email),
			nameStyle.Width(8).Render(string(u.Role)),
			valueStyle.Width(8).Render(fmt.Sprint(u.Position)),
		))
		b.WriteString("\n")
	}
	return b.String()
}

func renderHistory(records []model.WeeklyArchive) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top,
		nameStyle.Width(24).Render("Semana"),
		nameStyle.Width(16).Render("Planilha"),
		nameStyle.Render("Vendedor"),
		valueStyle.Render("Total"),
	)))
	b.WriteString("\n")
	for _, r := range records {
		week := r.WeekStart.Format("02/01/2006") + " a " + r.WeekEnd.Format("02/01")
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			nameStyle.Width(24).Render(week),
			nameStyle.Width(16).Render(string(r.Table)),
			nameStyle.Render(r.Username),
			valueStyle.Render(sheet.FormatBRL(r.Total)),
		))
		b.WriteString("\n")
	}
	return b.String()
}
