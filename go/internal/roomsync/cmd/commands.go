package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/mcdev12/gamemate/go/internal/ledger"
	"github.com/mcdev12/gamemate/go/internal/models"
	"github.com/mcdev12/gamemate/go/internal/roomsync"
)

var errQuit = errors.New("quit")

const usage = `commands:
  show                     print the score sheet
  add <v1> <v2> ...        submit a new round, one value per player
  edit <v1> <v2> ...       replace the last round
  cell <round> <player> <value>
                           change one slot (1-based round and player)
  max <n>                  set the max score, 0 clears it
  create                   start a new room as host
  join <code>              follow another room as viewer
  exit                     leave viewer mode
  help                     print this text
  quit                     leave the program`

type command struct {
	name string
	args []string
}

func parseCommand(line string) (command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, false
	}
	return command{name: strings.ToLower(fields[0]), args: fields[1:]}, true
}

// sheet is the subset of Session the command loop drives.
type sheet interface {
	State() models.GameState
	Role() models.Role
	RoomCode() string
	SubmitRound(ctx context.Context, mode roomsync.SubmitMode, values []string) error
	EditCell(ctx context.Context, round, player int, value string) error
	SetMaxScore(ctx context.Context, maxScore int) error
	CreateRoom(ctx context.Context) (string, error)
	JoinRoom(ctx context.Context, code string) error
	ExitViewer(ctx context.Context) error
}

// sessionSheet drops the document references the command loop never shows.
type sessionSheet struct {
	*roomsync.Session
}

func (s sessionSheet) SubmitRound(ctx context.Context, mode roomsync.SubmitMode, values []string) error {
	_, err := s.Session.SubmitRound(ctx, mode, values)
	return err
}

func (s sessionSheet) EditCell(ctx context.Context, round, player int, value string) error {
	_, err := s.Session.EditCell(ctx, round, player, value)
	return err
}

func (s sessionSheet) SetMaxScore(ctx context.Context, maxScore int) error {
	_, err := s.Session.SetMaxScore(ctx, maxScore)
	return err
}

func execute(ctx context.Context, s sheet, cmd command, out io.Writer) error {
	switch cmd.name {
	case "show":
		render(out, s.Role(), s.State())
		return nil

	case "add", "edit":
		if len(cmd.args) == 0 {
			return fmt.Errorf("%s needs one value per player", cmd.name)
		}
		mode := roomsync.ModeAdd
		if cmd.name == "edit" {
			mode = roomsync.ModeEdit
		}
		return s.SubmitRound(ctx, mode, cmd.args)

	case "cell":
		if len(cmd.args) != 3 {
			return errors.New("usage: cell <round> <player> <value>")
		}
		round, err := strconv.Atoi(cmd.args[0])
		if err != nil {
			return fmt.Errorf("round: %w", err)
		}
		player, err := strconv.Atoi(cmd.args[1])
		if err != nil {
			return fmt.Errorf("player: %w", err)
		}
		return s.EditCell(ctx, round-1, player-1, cmd.args[2])

	case "max":
		if len(cmd.args) != 1 {
			return errors.New("usage: max <n>")
		}
		n, err := strconv.Atoi(cmd.args[0])
		if err != nil {
			return fmt.Errorf("max score: %w", err)
		}
		return s.SetMaxScore(ctx, n)

	case "create":
		code, err := s.CreateRoom(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "hosting room %s\n", code)
		return nil

	case "join":
		if len(cmd.args) != 1 {
			return errors.New("usage: join <code>")
		}
		if err := s.JoinRoom(ctx, cmd.args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "viewing room %s\n", s.RoomCode())
		return nil

	case "exit":
		if err := s.ExitViewer(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "hosting room %s\n", s.RoomCode())
		return nil

	case "help":
		fmt.Fprintln(out, usage)
		return nil

	case "quit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q, try help", cmd.name)
	}
}

// render prints one row per round followed by totals and remaining budget.
func render(out io.Writer, role models.Role, state models.GameState) {
	state = ledger.Normalize(state)

	fmt.Fprintf(out, "room %s (%s)", state.RoomCode, strings.ToLower(string(role)))
	if state.MaxScore != nil {
		fmt.Fprintf(out, ", max %d", *state.MaxScore)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "round\t%s\n", strings.Join(state.Players, "\t"))
	for i, r := range state.Rounds {
		fmt.Fprintf(w, "%d\t%s\n", i+1, strings.Join(r, "\t"))
	}

	totals := make([]string, len(state.Players))
	remaining := make([]string, len(state.Players))
	for i := range state.Players {
		totals[i] = strconv.Itoa(ledger.PlayerTotal(state, i))
		remaining[i] = ledger.RemainingFor(state, i).String()
	}
	fmt.Fprintf(w, "total\t%s\n", strings.Join(totals, "\t"))
	fmt.Fprintf(w, "left\t%s\n", strings.Join(remaining, "\t"))
	w.Flush()
}
