package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/salesgrid/internal/adapters/xlsx"
	"github.com/okian/salesgrid/internal/domain/grid"
	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/domain/sheet"
	"github.com/okian/salesgrid/internal/syncclient"
	"github.com/okian/salesgrid/internal/syncclient/notice"
)

// saveTimeout bounds how long a one-shot edit waits for its save.
const saveTimeout = time.Minute

// NewRootCommand builds the gridctl command tree.
func NewRootCommand(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "gridctl",
		Short:         "Terminal client for the weekly sales grid",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML config file (overrides SALESGRID_CONFIG)")
	pf.StringVar(&a.server, "server", "", "server base URL")
	pf.StringVarP(&a.username, "user", "u", "", "username")
	pf.StringVarP(&a.password, "password", "p", "", "password")
	pf.StringVarP(&a.table, "table", "t", "", "sheet: portabilidade or novo")

	root.AddCommand(
		showCommand(a),
		setCommand(a),
		watchCommand(a),
		usersCommand(a),
		exportCommand(a),
		importCommand(a),
		archiveCommand(a),
		historyCommand(a),
		loadCommand(a),
	)
	return root
}

func showCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the sheet once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, s, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)
			return a.draw(s)
		},
	}
}

func setCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:     "set SELLER DAY VALUE",
		Short:   "Write one cell and wait for the server to confirm it",
		Example: "  gridctl set ana ter 1.234,50 --table novo",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := parseDay(args[1])
			if err != nil {
				return err
			}
			_, s, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)

			if _, err := s.Edit(cmd.Context(), args[0], field, args[2]); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), saveTimeout)
			defer cancel()
			if err := a.settle(ctx, s); err != nil {
				return err
			}
			for _, ref := range s.FailedCells() {
				if ref.Entity == args[0] && ref.Field == field {
					return saveError(s)
				}
			}
			return a.draw(s)
		},
	}
}

func saveError(s *syncclient.Session) error {
	if n, ok := s.Notice(); ok && n.Kind == notice.Error {
		return errors.New(n.Text)
	}
	return errors.New("save failed")
}

func watchCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open the sheet interactively and keep it in sync",
		Long: `watch shows the sheet, refreshes it periodically and reads commands
from standard input:

  set SELLER DAY VALUE   write a cell
  retry SELLER DAY       resend a failed cell
  discard SELLER DAY     drop a failed cell's local value
  table NAME             switch sheet
  refresh                fetch now
  add USER PASSWORD [admin]
  rm USER
  passwd USER PASSWORD
  quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			redraw := make(chan struct{}, 1)
			_, s, err := a.openTable(cmd.Context(), syncclient.WithListener(func(grid.View) {
				select {
				case redraw <- struct{}{}:
				default:
				}
			}))
			if err != nil {
				return err
			}
			defer a.close(s)
			if err := s.StartLoop(cmd.Context()); err != nil {
				return err
			}
			return a.watch(cmd.Context(), s, redraw)
		},
	}
}

func usersCommand(a *App) *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts (admin)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)
			all, err := c.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			a.println(renderUsers(all))
			return nil
		},
	}

	var (
		email string
		admin bool
	)
	add := &cobra.Command{
		Use:   "add USER PASSWORD",
		Short: "Create an account; sellers get a row in both sheets",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)
			role := model.RoleUser
			if admin {
				role = model.RoleAdmin
			}
			u, err := s.AddEntity(cmd.Context(), syncclient.NewEntity{
				Username: args[0],
				Password: args[1],
				Email:    email,
				Role:     role,
			})
			if err != nil {
				return err
			}
			a.println(fmt.Sprintf("%s criado (id %d)", u.Username, u.ID))
			return nil
		},
	}
	add.Flags().StringVar(&email, "email", "", "e-mail address")
	add.Flags().BoolVar(&admin, "admin", false, "create an admin instead of a seller")

	rm := &cobra.Command{
		Use:   "rm USER",
		Short: "Delete an account and its cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)
			if err := s.RemoveEntity(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.println(args[0] + " removido")
			return nil
		},
	}

	passwd := &cobra.Command{
		Use:   "passwd USER PASSWORD",
		Short: "Reset a seller's password",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := a.openTable(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)
			if err := s.ChangePassword(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			a.println("senha alterada")
			return nil
		},
	}

	users.AddCommand(list, add, rm, passwd)
	return users
}

func exportCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Download the sheet as an xlsx workbook",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := a.tableID()
			if err != nil {
				return err
			}
			path := string(table) + ".xlsx"
			if len(args) == 1 {
				path = args[0]
			}
			c, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)

			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := c.Export(cmd.Context(), table, f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			a.println("planilha salva em " + path)
			return nil
		},
	}
}

func importCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Upload an xlsx workbook in the export layout (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			table, cells, err := xlsx.Decode(f)
			if err != nil {
				return err
			}
			if a.table != "" || table == "" {
				if table, err = a.tableID(); err != nil {
					return err
				}
			}

			c, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)
			if err := c.SaveTable(cmd.Context(), table, cells); err != nil {
				return err
			}
			a.println(fmt.Sprintf("%d vendedores importados em %s", len(cells), table))
			return nil
		},
	}
}

func archiveCommand(a *App) *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Store this week's totals and zero the sheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := a.tableID()
			if err != nil {
				return err
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			if secret == "" {
				var s *syncclient.Session
				if c, s, err = a.open(cmd.Context()); err != nil {
					return err
				}
				defer a.close(s)
			}
			resp, err := c.Archive(cmd.Context(), table, secret)
			if err != nil {
				return err
			}
			a.println(fmt.Sprintf("semana %s a %s arquivada: %d vendedores", resp.WeekStart, resp.WeekEnd, resp.Archived))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "archive secret; no login needed when set")
	return cmd
}

func historyCommand(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List archived weeks; all sheets unless --table is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, s, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close(s)
			var table sheet.TableID
			if a.table != "" {
				if table, err = sheet.ParseTable(a.table); err != nil {
					return err
				}
			}
			records, err := c.WeeklyHistory(cmd.Context(), table)
			if err != nil {
				return err
			}
			a.println(renderHistory(records))
			return nil
		},
	}
}

// draw prints the current view and notice.
func (a *App) draw(s *syncclient.Session) error {
	v, err := s.View()
	if err != nil {
		return err
	}
	a.println(renderView(v, s.Principal()))
	if n, ok := s.Notice(); ok {
		a.println(renderNotice(n))
	}
	return nil
}
