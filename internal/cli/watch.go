package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/okian/salesgrid/internal/domain/model"
	"github.com/okian/salesgrid/internal/syncclient"
)

// watch runs the interactive loop until quit, end of input or cancellation.
func (a *App) watch(ctx context.Context, s *syncclient.Session, redraw <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(a.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := a.draw(s); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-redraw:
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := a.exec(ctx, s, line)
			if err != nil {
				a.println(errorStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
		}
		if s.Expired() {
			a.println(errorStyle.Render("Sessão expirada, faça login novamente"))
			return syncclient.ErrSessionExpired
		}
		if err := a.draw(s); err != nil {
			a.println(errorStyle.Render(err.Error()))
		}
	}
}

// exec runs one interactive command and reports whether to quit.
func (a *App) exec(ctx context.Context, s *syncclient.Session, line string) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]

	need := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s: expected %d arguments", cmd, n)
		}
		return nil
	}

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "refresh", "r":
		return false, s.Refresh(ctx)
	case "table":
		if err := need(1); err != nil {
			return false, err
		}
		return false, s.Load(ctx, args[0])
	case "set":
		if err := need(3); err != nil {
			return false, err
		}
		f, err := parseDay(args[1])
		if err != nil {
			return false, err
		}
		_, err = s.Edit(ctx, args[0], f, strings.Join(args[2:], " "))
		return false, err
	case "retry":
		if err := need(2); err != nil {
			return false, err
		}
		f, err := parseDay(args[1])
		if err != nil {
			return false, err
		}
		_, err = s.Retry(ctx, args[0], f)
		return false, err
	case "discard":
		if err := need(2); err != nil {
			return false, err
		}
		f, err := parseDay(args[1])
		if err != nil {
			return false, err
		}
		return false, s.Discard(args[0], f)
	case "add":
		if err := need(2); err != nil {
			return false, err
		}
		role := model.RoleUser
		if len(args) > 2 && strings.EqualFold(args[2], "admin") {
			role = model.RoleAdmin
		}
		_, err := s.AddEntity(ctx, syncclient.NewEntity{Username: args[0], Password: args[1], Role: role})
		return false, err
	case "rm":
		if err := need(1); err != nil {
			return false, err
		}
		return false, s.RemoveEntity(ctx, args[0])
	case "passwd":
		if err := need(2); err != nil {
			return false, err
		}
		return false, s.ChangePassword(ctx, args[0], args[1])
	}
	return false, fmt.Errorf("unknown command %q", cmd)
}
