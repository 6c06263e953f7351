package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/financehub/internal/client/connectivity"
	"github.com/dmitrijs2005/financehub/internal/client/services"
	"github.com/dmitrijs2005/financehub/internal/timex"
)

var errUsage = errors.New("usage")

func usage(s string) error { return fmt.Errorf("%w: %s", errUsage, s) }

// status renders the prompt suffix.
func (a *App) status() string {
	s := a.state.Snapshot()
	mode := "offline"
	switch {
	case !s.Trusted:
		mode = "untrusted"
	case s.Phase == connectivity.PhaseSyncing:
		mode = "syncing"
	case s.Reachable:
		mode = "online"
	}
	if s.Pending > 0 {
		return fmt.Sprintf("(%s, %d pending)", mode, s.Pending)
	}
	return fmt.Sprintf("(%s)", mode)
}

func (a *App) Status(ctx context.Context, _ []string) error {
	s := a.state.Snapshot()
	wm, err := a.watermark.LastSync(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "device\t%s\n", a.deviceID)
	fmt.Fprintf(w, "server\t%s\n", a.config.ServerEndpointAddr)
	fmt.Fprintf(w, "trusted network\t%t\n", s.Trusted)
	fmt.Fprintf(w, "server reachable\t%t\n", s.Reachable)
	fmt.Fprintf(w, "phase\t%s\n", s.Phase)
	fmt.Fprintf(w, "pending changes\t%d\n", s.Pending)
	if !s.LastSync.IsZero() {
		fmt.Fprintf(w, "last sync\t%s\n", s.LastSync.Local().Format("2006-01-02 15:04:05"))
	}
	if wm > 0 {
		fmt.Fprintf(w, "watermark\t%s\n", timex.FromMillis(wm).Local().Format("2006-01-02 15:04:05"))
	}
	if s.LastError != "" {
		fmt.Fprintf(w, "last error\t%s\n", s.LastError)
	}
	return w.Flush()
}

// Sync runs a pass right away and waits for it.
func (a *App) Sync(ctx context.Context, _ []string) error {
	if err := syncBlocker(a.state.Snapshot()); err != nil {
		return err
	}
	select {
	case <-a.scheduler.Expedite("user"):
	case <-ctx.Done():
		return ctx.Err()
	}

	s := a.state.Snapshot()
	if s.Phase == connectivity.PhaseError {
		return fmt.Errorf("sync failed: %s", s.LastError)
	}
	fmt.Fprintf(a.out, "synced, %d pending\n", s.Pending)
	return nil
}

func (a *App) Check(ctx context.Context, _ []string) error {
	s := a.scheduler.CheckNow(ctx)
	fmt.Fprintf(a.out, "trusted=%t reachable=%t\n", s.Trusted, s.Reachable)
	return nil
}

func syncBlocker(s connectivity.Snapshot) error {
	switch {
	case !s.Trusted:
		return errors.New("not on a trusted network, run 'check' after joining one")
	case !s.Reachable:
		return errors.New("server unreachable")
	case s.Phase == connectivity.PhaseSyncing:
		return errors.New("a sync is already running")
	}
	return nil
}

// Add takes "amount title... [#tag...] [@YYYY-MM-DD]" or prompts for the
// fields when called without arguments.
func (a *App) Add(ctx context.Context, args []string) error {
	in, err := a.expenseInput(args)
	if err != nil {
		return err
	}
	e, err := a.ledger.AddExpense(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added #%d %s %s\n", e.ID, FormatAmount(e.Amount), e.Title)
	a.scheduler.RequestSync("local change")
	return nil
}

func (a *App) expenseInput(args []string) (services.ExpenseInput, error) {
	var in services.ExpenseInput
	var date string

	if len(args) > 0 {
		amount, err := ParseAmount(args[0])
		if err != nil {
			return in, err
		}
		in.Amount = amount
		var title []string
		for _, arg := range args[1:] {
			switch {
			case strings.HasPrefix(arg, "#") && len(arg) > 1:
				in.Tags = append(in.Tags, arg[1:])
			case strings.HasPrefix(arg, "@") && len(arg) > 1:
				date = arg[1:]
			default:
				title = append(title, arg)
			}
		}
		in.Title = strings.Join(title, " ")
		if in.Title == "" {
			return in, usage("add <amount> <title...> [#tag...] [@YYYY-MM-DD]")
		}
	} else {
		var err error
		if in.Title, err = GetSimpleText(a.reader, "Title", a.out); err != nil {
			return in, err
		}
		amount, err := GetSimpleText(a.reader, "Amount (e.g. 12.50)", a.out)
		if err != nil {
			return in, err
		}
		if in.Amount, err = ParseAmount(amount); err != nil {
			return in, err
		}
		if date, err = GetSimpleText(a.reader, "Date YYYY-MM-DD (empty for today)", a.out); err != nil {
			return in, err
		}
		tags, err := GetSimpleText(a.reader, "Tags, comma separated (optional)", a.out)
		if err != nil {
			return in, err
		}
		in.Tags = SplitList(tags)
	}

	var err error
	in.Year, in.Month, in.Date, err = ParseDate(date)
	return in, err
}

// List prints expenses of one month ("YYYY-MM", default current) or "all".
// Rows still waiting for sync are marked with '*'.
func (a *App) List(ctx context.Context, args []string) error {
	year, month := 0, 0
	if len(args) == 0 || args[0] != "all" {
		var err error
		period := ""
		if len(args) > 0 {
			period = args[0]
		}
		if year, month, err = ParsePeriod(period, a.now()); err != nil {
			return err
		}
	}

	list, err := a.ledger.ListExpenses(ctx, year, month)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no expenses")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	var total int64
	for _, e := range list {
		mark := " "
		if e.PendingSync {
			mark = "*"
		}
		fmt.Fprintf(w, "%s#%d\t%04d-%02d-%02d\t%s\t %s\t %s\t\n", mark, e.ID, e.Year, e.Month, e.Date,
			FormatAmount(e.Amount), e.Title, strings.Join(e.Tags, ", "))
		total += e.Amount
	}
	fmt.Fprintf(w, "\t\t%s\t total\t\t\n", FormatAmount(total))
	return w.Flush()
}

func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("delete <id>")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		return usage("delete <id>")
	}
	if err := a.ledger.DeleteExpense(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted #%d\n", id)
	a.scheduler.RequestSync("local change")
	return nil
}

func (a *App) Tag(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	var err error
	switch {
	case sub == "list":
		return a.listTags(ctx)
	case sub == "add" && len(args) == 1:
		_, err = a.ledger.AddTag(ctx, args[0])
	case sub == "rename" && len(args) == 2:
		err = a.ledger.RenameTag(ctx, args[0], args[1])
	case sub == "delete" && len(args) == 1:
		err = a.ledger.DeleteTag(ctx, args[0])
	default:
		return usage("tag [list] | tag add <name> | tag rename <old> <new> | tag delete <name>")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "ok")
	a.scheduler.RequestSync("local change")
	return nil
}

func (a *App) listTags(ctx context.Context) error {
	tags, err := a.ledger.ListTags(ctx)
	if err != nil {
		return err
	}
	if len(tags) == 0 {
		fmt.Fprintln(a.out, "no tags")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, t := range tags {
		fmt.Fprintf(w, "%s\t%s\t%04d-%02d\n", t.Name, FormatAmount(t.MonthlyAmount), t.CurrentYear, t.CurrentMonth)
	}
	return w.Flush()
}

func (a *App) Target(ctx context.Context, args []string) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	period := func(i int) (int, int, error) {
		p := ""
		if len(args) > i {
			p = args[i]
		}
		return ParsePeriod(p, a.now())
	}

	switch {
	case sub == "list" && len(args) <= 1:
		year, month, err := period(0)
		if err != nil {
			return err
		}
		return a.listTargets(ctx, year, month)

	case sub == "set" && (len(args) == 2 || len(args) == 3):
		amount, err := ParseAmount(args[1])
		if err != nil {
			return err
		}
		year, month, err := period(2)
		if err != nil {
			return err
		}
		if _, err := a.ledger.SetTarget(ctx, args[0], year, month, amount); err != nil {
			return err
		}

	case sub == "delete" && (len(args) == 1 || len(args) == 2):
		year, month, err := period(1)
		if err != nil {
			return err
		}
		if err := a.ledger.DeleteTarget(ctx, args[0], year, month); err != nil {
			return err
		}

	default:
		return usage("target [list [YYYY-MM]] | target set <tag> <amount> [YYYY-MM] | target delete <tag> [YYYY-MM]")
	}

	fmt.Fprintln(a.out, "ok")
	a.scheduler.RequestSync("local change")
	return nil
}

func (a *App) listTargets(ctx context.Context, year, month int) error {
	list, err := a.ledger.ListTargets(ctx, year, month)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "no targets")
		return nil
	}
	tags, err := a.ledger.ListTags(ctx)
	if err != nil {
		return err
	}
	names := make(map[int64]string, len(tags))
	for _, t := range tags {
		names[t.ID] = t.Name
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, t := range list {
		name, ok := names[t.TagID]
		if !ok {
			name = fmt.Sprintf("tag %d", t.TagID)
		}
		fmt.Fprintf(w, "%s\t%s / %s\n", name, FormatAmount(t.Spent), FormatAmount(t.Amount))
	}
	return w.Flush()
}

func (a *App) Backup(ctx context.Context, _ []string) error {
	res, err := a.backup.Backup(ctx)
	if err != nil {
		return err
	}
	if !res.Uploaded {
		fmt.Fprintln(a.out, "no changes since the last backup")
		return nil
	}
	fmt.Fprintf(a.out, "uploaded %s (%d bytes)\n", res.Key, res.Size)
	return nil
}

func (a *App) Restore(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("restore <path>")
	}
	latest, err := a.backup.Restore(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "restored %s to %s; start with -d %s to use it\n", latest.Key, args[0], args[0])
	return nil
}
