package main

import (
	"fmt"
	"os"
	"strings"

	"church-roster/internal/conflict"
	"church-roster/internal/domain"
	"church-roster/internal/service"
	"church-roster/internal/suggestion"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rosterctl",
		Short: "Maintain the volunteer roster workbook from the command line",
		Long: `rosterctl works on a local roster workbook (xlsx with roster, aliases and volunteers sheets).
It resolves names into stable identities, checks the schedule for conflicts,
suggests volunteers for open roles and records unavailability and family groups.
Changes to identities and volunteer metadata are written back into the workbook.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("workbook", "w", os.Getenv("ROSTER_WORKBOOK"), "roster workbook (xlsx)")
	flags.String("config", os.Getenv("ROSTER_CONFIG"), "config file (yaml or json)")
	flags.String("state", "", "checkpoint file when Redis is disabled (default .<workbook>.state.json)")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newSyncCmd(),
		newRunCmd(),
		newGateCmd(),
		newHistoryCmd(),
		newIdentitiesCmd(),
		newMergeCmd(),
		newCheckCmd(),
		newSuggestCmd(),
		newAvailableCmd(),
		newUnavailableCmd(),
		newFamilyCmd(),
	)
	return rootCmd
}

// withSession 打开工作簿，执行 fn，结束后释放连接
func withSession(fn func(cmd *cobra.Command, args []string, s *session) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(cmd, args, s)
	}
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Add new names from the roster sheet to the alias table",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			res, err := s.app.Roster.Clean(cmd.Context(), s.wb.Records)
			if err != nil {
				return err
			}
			if err := s.save(cmd); err != nil {
				return err
			}
			return s.print(res)
		}),
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cleaning pipeline when the roster sheet changed since the last run",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			force, _ := cmd.Flags().GetBool("force")
			res, err := s.app.Pipeline.Run(cmd.Context(), force)
			if err != nil {
				return err
			}
			if res.Decision.Run {
				if err := s.save(cmd); err != nil {
					return err
				}
			}
			return s.print(res)
		}),
	}
	cmd.Flags().Bool("force", false, "run even if nothing changed")
	return cmd
}

func newGateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Show whether the roster sheet changed since the last run, without running",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			force, _ := cmd.Flags().GetBool("force")
			res, err := s.app.Pipeline.Preview(cmd.Context(), force)
			if err != nil {
				return err
			}
			return s.print(res)
		}),
	}
	cmd.Flags().Bool("force", false, "evaluate as a forced run")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List pipeline checkpoints, newest first",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			items, err := s.app.Pipeline.Checkpoints(cmd.Context())
			if err != nil {
				return err
			}
			return s.print(items)
		}),
	}
}

func newIdentitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identities",
		Short: "List volunteer identities and their aliases",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			items, err := s.app.Roster.ListIdentities(cmd.Context())
			if err != nil {
				return err
			}
			return s.print(items)
		}),
	}
}

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge two identities that are the same person",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			source, _ := cmd.Flags().GetString("source")
			target, _ := cmd.Flags().GetString("target")
			keep, _ := cmd.Flags().GetString("keep")
			res, err := s.app.Roster.Merge(cmd.Context(), service.MergeRequest{
				SourceID:        source,
				TargetID:        target,
				KeepDisplayName: keep,
			})
			if err != nil {
				return err
			}
			if err := s.save(cmd); err != nil {
				return err
			}
			return s.print(res)
		}),
	}
	cmd.Flags().String("source", "", "person_id to merge away")
	cmd.Flags().String("target", "", "person_id to keep")
	cmd.Flags().String("keep", "target", "display name to keep: source or target")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check a period for family, availability and overload conflicts",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			period, _ := cmd.Flags().GetString("period")
			export, _ := cmd.Flags().GetString("export")
			failOnError, _ := cmd.Flags().GetBool("fail-on-error")
			noFamily, _ := cmd.Flags().GetBool("no-family")
			noAvailability, _ := cmd.Flags().GetBool("no-availability")
			noOverload, _ := cmd.Flags().GetBool("no-overload")

			req := service.CheckRequest{
				Period: period,
				Flags: conflict.Flags{
					CheckFamily:       !noFamily,
					CheckAvailability: !noAvailability,
					CheckOverload:     !noOverload,
				},
			}
			res, err := s.app.Roster.CheckConflicts(cmd.Context(), req)
			if err != nil {
				return err
			}
			if export != "" {
				data, err := s.app.Roster.ExportConflicts(cmd.Context(), req)
				if err != nil {
					return err
				}
				if err := os.WriteFile(export, data, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
			}
			if err := s.print(res); err != nil {
				return err
			}
			if failOnError && res.HasErrors() {
				return fmt.Errorf("%d error-level conflicts in %s", res.Summary.BySeverity[domain.SeverityError], res.Period)
			}
			return nil
		}),
	}
	cmd.Flags().String("period", "", "YYYY-MM, YYYY or START..END")
	cmd.Flags().String("export", "", "also write the conflicts to this xlsx file")
	cmd.Flags().Bool("fail-on-error", false, "exit non-zero when error-level conflicts are found")
	cmd.Flags().Bool("no-family", false, "skip family conflict checks")
	cmd.Flags().Bool("no-availability", false, "skip availability checks")
	cmd.Flags().Bool("no-overload", false, "skip overload checks")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func newSuggestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest volunteers for the roles of a service date",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			date, _ := cmd.Flags().GetString("date")
			roles, _ := cmd.Flags().GetStringSlice("roles")
			limit, _ := cmd.Flags().GetInt("limit")
			noAvailability, _ := cmd.Flags().GetBool("no-availability")
			noFamily, _ := cmd.Flags().GetBool("no-family")
			noBalance, _ := cmd.Flags().GetBool("no-balance")

			res, err := s.app.Roster.Suggest(cmd.Context(), service.SuggestRequest{
				Date:  date,
				Roles: trimAll(roles),
				Limit: limit,
				Flags: suggestion.Flags{
					ConsiderAvailability: !noAvailability,
					ConsiderFamily:       !noFamily,
					ConsiderBalance:      !noBalance,
				},
			})
			if err != nil {
				return err
			}
			return s.print(res)
		}),
	}
	cmd.Flags().String("date", "", "service date YYYY-MM-DD")
	cmd.Flags().StringSlice("roles", nil, "roles to fill (default all)")
	cmd.Flags().Int("limit", 0, "candidates per role, 0 means all")
	cmd.Flags().Bool("no-availability", false, "ignore unavailability")
	cmd.Flags().Bool("no-family", false, "ignore family groups")
	cmd.Flags().Bool("no-balance", false, "ignore workload balance")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newAvailableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "available",
		Short: "Check whether a person can serve on a date",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			person, _ := cmd.Flags().GetString("person")
			date, _ := cmd.Flags().GetString("date")
			res, err := s.app.Roster.IsAvailable(cmd.Context(), person, date)
			if err != nil {
				return err
			}
			return s.print(res)
		}),
	}
	cmd.Flags().String("person", "", "person_id")
	cmd.Flags().String("date", "", "date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("person")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newUnavailableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unavailable",
		Short: "Record a period when a person cannot serve",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			person, _ := cmd.Flags().GetString("person")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			reason, _ := cmd.Flags().GetString("reason")
			notes, _ := cmd.Flags().GetString("notes")
			w, err := s.app.Roster.AddUnavailability(cmd.Context(), service.AddUnavailabilityRequest{
				PersonID:  person,
				StartDate: from,
				EndDate:   to,
				Reason:    reason,
				Notes:     notes,
			})
			if err != nil {
				return err
			}
			if err := s.save(cmd); err != nil {
				return err
			}
			return s.print(w)
		}),
	}
	cmd.Flags().String("person", "", "person_id")
	cmd.Flags().String("from", "", "first unavailable date YYYY-MM-DD")
	cmd.Flags().String("to", "", "last unavailable date; empty means indefinite")
	cmd.Flags().String("reason", "", "reason")
	cmd.Flags().String("notes", "", "notes")
	_ = cmd.MarkFlagRequired("person")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func newFamilyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "family",
		Short: "Put a person into a family group (empty group removes it)",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, _ []string, s *session) error {
			person, _ := cmd.Flags().GetString("person")
			group, _ := cmd.Flags().GetString("group")
			res, err := s.app.Roster.SetFamilyGroup(cmd.Context(), service.SetFamilyRequest{
				PersonID: person,
				GroupID:  group,
			})
			if err != nil {
				return err
			}
			if err := s.save(cmd); err != nil {
				return err
			}
			return s.print(res)
		}),
	}
	cmd.Flags().String("person", "", "person_id")
	cmd.Flags().String("group", "", "family group id")
	_ = cmd.MarkFlagRequired("person")
	return cmd
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
