// Package cli implements the commands of the interactive Aura Hub client.
// Commands read the reconciler's local view, except ranking, which asks the
// record store first; writes go to the record store through the reconciler.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aura-hub/aura-hub/internal/application/reconcile"
	"github.com/aura-hub/aura-hub/internal/domain/challenge"
	"github.com/aura-hub/aura-hub/internal/domain/gamification"
	"github.com/aura-hub/aura-hub/internal/domain/shared"
	"github.com/aura-hub/aura-hub/pkg/timeutil"
)

// ErrUsage is returned when a command gets the wrong arguments.
var ErrUsage = errors.New("usage")

// Command is one shell command.
type Command struct {
	Name  string
	Usage string
	Help  string
	Run   func(ctx context.Context, args []string) error
}

// Session binds the commands to one user's reconciler.
type Session struct {
	rec     *reconcile.Reconciler
	clock   timeutil.Clock
	rewards gamification.Rewards
	out     io.Writer
}

// NewSession creates a session writing to out.
func NewSession(rec *reconcile.Reconciler, clock timeutil.Clock, rewards gamification.Rewards, out io.Writer) *Session {
	return &Session{rec: rec, clock: clock, rewards: rewards, out: out}
}

func (s *Session) today() shared.Date {
	return shared.DateOf(s.clock.Now())
}

// Commands returns the command table.
func (s *Session) Commands() []Command {
	return []Command{
		{Name: "sync", Help: "reload challenges and records from the server", Run: s.sync},
		{Name: "challenges", Help: "list your challenges", Run: s.challenges},
		{Name: "status", Help: "show streak, aura and points", Run: s.status},
		{Name: "check", Usage: "check <challenge-id> [YYYY-MM-DD]", Help: "mark a day completed", Run: s.check(true)},
		{Name: "uncheck", Usage: "uncheck <challenge-id> [YYYY-MM-DD]", Help: "clear a completed day", Run: s.check(false)},
		{Name: "ranking", Usage: "ranking <challenge-id>", Help: "show a challenge ranking", Run: s.ranking},
		{Name: "create", Usage: "create <days|long> <title...>", Help: "create a challenge", Run: s.create},
		{Name: "join", Usage: "join <invite-code>", Help: "join a challenge by invite code", Run: s.join},
		{Name: "leave", Usage: "leave <challenge-id>", Help: "leave a challenge", Run: s.leave},
		{Name: "complete", Usage: "complete <challenge-id>", Help: "complete a long-term challenge", Run: s.complete},
		{Name: "pending", Help: "list writes not yet confirmed by the server", Run: s.pending},
	}
}

// Run dispatches one command by name.
func (s *Session) Run(ctx context.Context, name string, args []string) error {
	for _, c := range s.Commands() {
		if c.Name == name {
			err := c.Run(ctx, args)
			if errors.Is(err, ErrUsage) {
				return fmt.Errorf("%w: %s", ErrUsage, c.Usage)
			}
			return err
		}
	}
	return fmt.Errorf("unknown command %q", name)
}

func (s *Session) sync(ctx context.Context, _ []string) error {
	if err := s.rec.SyncFromServer(ctx); err != nil {
		return err
	}
	v := s.rec.Snapshot()
	fmt.Fprintf(s.out, "synced %d challenges, %d records\n", len(v.Challenges()), len(v.UserRecords()))
	return nil
}

func (s *Session) challenges(_ context.Context, _ []string) error {
	ms := s.rec.Snapshot().Challenges()
	if len(ms) == 0 {
		fmt.Fprintln(s.out, "no challenges")
		return nil
	}

	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCODE\tKIND")
	for _, m := range ms {
		kind := fmt.Sprintf("%d days", m.Challenge.DurationDays)
		if m.Challenge.IsLongTerm {
			kind = "long-term"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.Challenge.ID, m.Challenge.Title, m.Challenge.InviteCode, kind)
	}
	return tw.Flush()
}

func (s *Session) status(_ context.Context, _ []string) error {
	v := s.rec.Snapshot()
	streak := v.Streak(s.today())
	fmt.Fprintf(s.out, "streak: %d\naura: %s\npoints: %d\n", streak, gamification.Classify(streak), v.Points(s.rewards))
	if at := v.SyncedAt(); !at.IsZero() {
		fmt.Fprintf(s.out, "synced: %s\n", at.Format(time.RFC3339))
	}
	return nil
}

func (s *Session) check(completed bool) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if len(args) < 1 || len(args) > 2 {
			return ErrUsage
		}
		id, err := shared.NewChallengeID(args[0])
		if err != nil {
			return err
		}
		day := s.today()
		if len(args) == 2 {
			if day, err = shared.ParseDate(args[1]); err != nil {
				return err
			}
		}

		mid := s.rec.PostCompletion(ctx, id, day, completed)
		s.rec.Wait()

		st, ok := s.rec.Status(mid)
		switch {
		case !ok || st.State == reconcile.StateConfirmed:
			fmt.Fprintf(s.out, "%s %s: saved\n", id, day)
		case st.Err != nil:
			return fmt.Errorf("%s %s: %s: %w", id, day, st.State, st.Err)
		default:
			fmt.Fprintf(s.out, "%s %s: %s\n", id, day, st.State)
		}
		return nil
	}
}

func (s *Session) ranking(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	id, err := shared.NewChallengeID(args[0])
	if err != nil {
		return err
	}
	if _, ok := s.rec.Snapshot().Challenge(id); !ok {
		return fmt.Errorf("challenge %s is not in your list, try sync", id)
	}

	entries, err := s.rec.Ranking(ctx, id)
	if err != nil {
		if !shared.IsTransient(err) {
			return err
		}
		fmt.Fprintf(s.out, "server unreachable (%v), local ranking may miss members\n", err)
		entries = s.rec.LocalRanking(id, nil, s.today(), s.rewards).All()
	}

	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tUSER\tCOUNT\tPOINTS\tSTREAK")
	for _, e := range entries {
		name := e.DisplayName
		if name == "" {
			name = e.UserID.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\n", e.CurrentRank, name, e.Count, e.TotalPoints, e.CurrentStreak)
	}
	return tw.Flush()
}

func (s *Session) create(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return ErrUsage
	}
	p := challenge.NewChallengeParams{Title: strings.Join(args[1:], " ")}
	if args[0] == "long" {
		p.IsLongTerm = true
	} else {
		days, err := strconv.Atoi(args[0])
		if err != nil {
			return ErrUsage
		}
		p.DurationDays = days
	}

	c, err := s.rec.CreateChallenge(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "created %s, invite code %s\n", c.ID, c.InviteCode)
	return nil
}

func (s *Session) join(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	code, err := challenge.ParseInviteCode(args[0])
	if err != nil {
		return err
	}
	c, err := s.rec.JoinChallenge(ctx, code)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "joined %q (%s)\n", c.Title, c.ID)
	return nil
}

func (s *Session) leave(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	id, err := shared.NewChallengeID(args[0])
	if err != nil {
		return err
	}
	if err := s.rec.LeaveChallenge(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "left %s\n", id)
	return nil
}

func (s *Session) complete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return ErrUsage
	}
	id, err := shared.NewChallengeID(args[0])
	if err != nil {
		return err
	}
	at, err := s.rec.CompleteChallenge(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "completed %s at %s\n", id, at.Format(time.RFC3339))
	return nil
}

func (s *Session) pending(_ context.Context, _ []string) error {
	ps := s.rec.Pending()
	if len(ps) == 0 {
		fmt.Fprintln(s.out, "nothing pending")
		return nil
	}
	for _, p := range ps {
		fmt.Fprintf(s.out, "#%d %s %v\n", p.ID, p.State, p.Mutation)
	}
	return nil
}
