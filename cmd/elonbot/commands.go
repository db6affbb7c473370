package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/rocketcrew/elonbot/config"
	"github.com/rocketcrew/elonbot/crypt"
	"github.com/rocketcrew/elonbot/goals"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

// withApp runs f with a new app and closes it afterwards
func withApp(opts *rootOptions, f func(a *app) error) (err error) {
	a, err := newApp(opts)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()

	return f(a)
}

func runCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to slack and reply to direct messages, send check-ins and deadline follow-ups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) (err error) {
				if err = config.RequireKeys(a.v, config.TokenKey); err != nil {
					return err
				}

				if err = a.serveMetrics(); err != nil {
					return err
				}

				if err = a.openStores(); err != nil {
					return err
				}

				if err = a.openCompleter(cmd.Context()); err != nil {
					return err
				}

				sb := a.newBotBuilder()
				orchestrator := a.newOrchestrator(sb.Dispatcher(), sb.Names())

				bot, err := sb.
					WithMessageHandler(orchestrator).
					WithCheckins(a.newBroadcaster(sb.Dispatcher())).
					WithDeadlineSweep(orchestrator).
					WithRetention(a.retentionPolicies()...).
					Build()
				if err != nil {
					return err
				}
				defer bot.Close()

				return bot.Run()
			})
		},
	}
}

func checkinCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "checkin",
		Short: "Send the check-in to every active employee now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) (err error) {
				if err = a.openStores(); err != nil {
					return err
				}

				if err = a.openCompleter(cmd.Context()); err != nil {
					return err
				}

				bot, err := a.newBot()
				if err != nil {
					return err
				}
				defer bot.Close()

				report := a.newBroadcaster(bot).Broadcast(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "Check-ins sent: %d, failed: %d\n", report.Sent, report.Failed)

				return nil
			})
		},
	}
}

func sweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Follow up on the goals due within the next 24 hours now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) (err error) {
				if err = a.openStores(); err != nil {
					return err
				}

				if err = a.openCompleter(cmd.Context()); err != nil {
					return err
				}

				bot, err := a.newBot()
				if err != nil {
					return err
				}
				defer bot.Close()

				report := a.newOrchestrator(bot, bot.Names()).RunDeadlineSweep(cmd.Context(), time.Now())
				fmt.Fprintf(cmd.OutOrStdout(), "Goals due: %d, followed up: %d, failed: %d\n", report.Due, report.Sent, report.Failed)

				return nil
			})
		},
	}
}

func goalsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "goals",
		Short: "List and update tracked goals",
	}

	cmd.AddCommand(goalsListCmd(opts))
	cmd.AddCommand(goalsStatusCmd(opts, "complete", "Mark a goal as completed", goals.Completed))
	cmd.AddCommand(goalsStatusCmd(opts, "abandon", "Mark a goal as abandoned", goals.Abandoned))
	cmd.AddCommand(goalsStatusCmd(opts, "reopen", "Mark a goal as active again", goals.Active))
	cmd.AddCommand(goalsRescheduleCmd(opts))

	return cmd
}

func goalsListCmd(opts *rootOptions) *cobra.Command {
	var owner string
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List goals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) (err error) {
				if err = a.openStores(); err != nil {
					return err
				}

				list := a.goals.Goals(owner)
				if !all {
					active := list[:0]
					for _, g := range list {
						if g.Status == goals.Active {
							active = append(active, g)
						}
					}
					list = active
				}

				return printGoals(cmd.OutOrStdout(), list)
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only list the goals of this slack user id")
	cmd.Flags().BoolVar(&all, "all", false, "include completed and abandoned goals")

	return cmd
}

func goalsStatusCmd(opts *rootOptions, use string, short string, status goals.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <goal id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) (err error) {
				if err = a.openStores(); err != nil {
					return err
				}

				g, err := findGoal(a.goals, args[0])
				if err != nil {
					return err
				}

				if _, err = a.goals.SetStatus(g.Owner, g.ID, status); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Goal %d of %s is now %s\n", g.ID, g.Owner, status)
				return nil
			})
		},
	}
}

func goalsRescheduleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <goal id> <deadline>",
		Short: "Replace the deadline of a goal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) (err error) {
				if err = a.openStores(); err != nil {
					return err
				}

				g, err := findGoal(a.goals, args[0])
				if err != nil {
					return err
				}

				if _, err = a.goals.Reschedule(g.Owner, g.ID, args[1]); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Goal %d of %s is now due %s\n", g.ID, g.Owner, args[1])
				return nil
			})
		},
	}
}

func findGoal(s *goals.Store, rawID string) (g goals.Goal, err error) {
	id, err := cast.ToInt64E(rawID)
	if err != nil {
		return g, errors.Errorf("invalid goal id [%s]", rawID)
	}

	for _, g := range s.Goals("") {
		if g.ID == id {
			return g, nil
		}
	}

	return g, errors.Errorf("goal [%d] not found", id)
}

func printGoals(out io.Writer, list []goals.Goal) (err error) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tSTATUS\tDEADLINE\tFOLLOW-UP\tUPDATES\tDESCRIPTION")
	for _, g := range list {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%d\t%s\n", g.ID, g.Owner, g.Status, orDash(g.Deadline), g.FollowUpSent, len(g.Updates), g.Description)
	}

	return w.Flush()
}

func interactionsCmd(opts *rootOptions) *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "interactions",
		Short: "List the logged interactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) (err error) {
				if err = a.openStores(); err != nil {
					return err
				}

				from := time.Time{}
				if since > 0 {
					from = time.Now().Add(-since)
				}

				list, err := a.interactions.List(from)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tUSER\tSENTIMENT\tURGENCY\tDEADLINE\tMESSAGE\tREPLY")
				for _, i := range list {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", i.Timestamp.Format(time.RFC3339), i.UserName, i.Analysis.Sentiment, i.Analysis.Urgency,
						orDash(i.Deadline), oneLine(i.InboundMessage), oneLine(i.OutboundReply))
				}

				return w.Flush()
			})
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "only list interactions logged within this duration. 0 lists everything")

	return cmd
}

func employeesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "employees",
		Short: "List the configured employees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) (err error) {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SLACK ID\tNAME\tEMAIL\tDEPARTMENT\tACTIVE")
				for _, e := range a.roster {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", e.SlackID, e.Name, orDash(e.Email), orDash(e.Department), e.Active)
				}

				return w.Flush()
			})
		},
	}
}

func encryptCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <secret>",
		Short: "Encrypt a secret with the configured encryption key for use in the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) (err error) {
				if _, ok := a.cipher.(crypt.Noop); ok {
					return errors.Errorf("an encryption key is required, set [%s]", config.EncryptionKeyKey)
				}

				ciphertext, err := a.cipher.Encrypt(args[0])
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), ciphertext)
				return nil
			})
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
