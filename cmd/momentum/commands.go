package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/momentum/internal/domain"
	"github.com/rcliao/momentum/internal/gamify"
)

func contextForCmd() context.Context {
	return context.Background()
}

func addCmd() *cobra.Command {
	var (
		description string
		priority    string
		due         string
		tags        []string
		owner       string
		recur       string
		interval    int
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := domain.NewTask(resolveOwner(owner), args[0], description)
			if priority != "" {
				task.Priority = domain.Priority(priority)
			}
			if due != "" {
				ts, err := time.Parse("2006-01-02", due)
				if err != nil {
					return fmt.Errorf("invalid due date %q: %w", due, err)
				}
				task.DueDate = ts
			}
			task.Tags = tags
			if recur != "" {
				task.Recurrence = &domain.Recurrence{
					Type:     domain.RecurrenceType(recur),
					Interval: interval,
				}
			}

			created, err := engine.AddTask(cmd.Context(), task)
			if err != nil {
				return err
			}
			fmt.Println(formatTask(created))
			return nil
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "low, medium or high")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "free-text tags")
	cmd.Flags().StringVar(&owner, "owner", "", "owner member id (defaults to the selected member)")
	cmd.Flags().StringVar(&recur, "recur", "", "daily, weekly or monthly")
	cmd.Flags().IntVar(&interval, "interval", 1, "recurrence interval")
	return cmd
}

func listCmd() *cobra.Command {
	var (
		owner    string
		bucket   string
		priority string
		query    string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.TaskFilter{Search: query}
			if owner != "" {
				filter.OwnerID = &owner
			}
			if bucket != "" {
				b := domain.StatusBucket(bucket)
				filter.Bucket = &b
			}
			if priority != "" {
				p := domain.Priority(priority)
				filter.Priority = &p
			}

			fmt.Println(formatTaskList(engine.Filter(filter)))
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "filter by owner member id")
	cmd.Flags().StringVar(&bucket, "status", "", "all, active or completed")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "filter by priority")
	cmd.Flags().StringVarP(&query, "search", "s", "", "substring match over title, description and tags")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, ok := engine.Task(args[0])
			if !ok {
				return fmt.Errorf("task with ID %s not found", args[0])
			}
			fmt.Println(formatTaskDetail(task, engine.CanComplete(task.ID)))
			return nil
		},
	}
}

func completeCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Toggle a task's completion state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if task, ok := engine.Task(id); ok && !task.Completed && !force && !engine.CanComplete(id) {
				return fmt.Errorf("task has unmet dependencies (use --force to complete anyway)")
			}

			updated, err := engine.ToggleComplete(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Println(formatTask(updated))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "skip the dependency check")
	return cmd
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return engine.DeleteTask(cmd.Context(), args[0])
		},
	}
}

func depCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dep",
		Short: "Edit task dependencies",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <task-id> <depends-on-id>",
			Short: "Make a task depend on another",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return engine.AddDependency(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "rm <task-id> <depends-on-id>",
			Short: "Remove a dependency",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return engine.RemoveDependency(cmd.Context(), args[0], args[1])
			},
		},
	)
	return cmd
}

func blockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Edit blocking relations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <task-id> <blocked-id>",
			Short: "Mark a task as blocking another",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return engine.AddBlocking(cmd.Context(), args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "rm <task-id> <blocked-id>",
			Short: "Remove a blocking relation",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return engine.RemoveBlocking(cmd.Context(), args[0], args[1])
			},
		},
	)
	return cmd
}

func subtaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtask",
		Short: "Edit a task's subtasks",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <task-id> <title>",
			Short: "Add a subtask",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				updated, err := engine.AddSubtask(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Println(formatTaskDetail(updated, engine.CanComplete(updated.ID)))
				return nil
			},
		},
		&cobra.Command{
			Use:   "done <task-id> <subtask-id>",
			Short: "Toggle a subtask's completion",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := engine.ToggleSubtaskComplete(cmd.Context(), args[0], args[1])
				return err
			},
		},
		&cobra.Command{
			Use:   "rm <task-id> <subtask-id>",
			Short: "Delete a subtask",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := engine.DeleteSubtask(cmd.Context(), args[0], args[1])
				return err
			},
		},
	)
	return cmd
}

func memberCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage members",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <name>",
			Short: "Create a member (local mode only)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				member, err := engine.AddMember(cmd.Context(), domain.NewMember(args[0]))
				if err != nil {
					return err
				}
				fmt.Println(formatMember(member))
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List members",
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, m := range engine.Members() {
					fmt.Println(formatMember(m))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "select <member-id>",
			Short: "Select the active member profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return engine.SelectMember(args[0])
			},
		},
		&cobra.Command{
			Use:   "rm <member-id>",
			Short: "Delete a member and the tasks it owns",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return engine.DeleteMember(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}

func xpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "xp <member-id>",
		Short: "Show a member's XP and level progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			member, ok := engine.Member(args[0])
			if !ok {
				return fmt.Errorf("member with ID %s not found", args[0])
			}
			fmt.Printf("%s: level %d, %d XP (%d%% through the level, %d XP to next)\n",
				member.Name, member.Level, member.XP,
				gamify.ProgressPercent(member.XP), gamify.XPToNextLevel(member.XP))
			return nil
		},
	}
}

func achievementsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "achievements <member-id>",
		Short: "List a member's unlocked achievements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			unlocks, err := engine.Unlocks(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(formatUnlocks(unlocks))
			return nil
		},
	}
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage task templates",
	}

	var (
		category string
		priority string
	)
	saveCmd := &cobra.Command{
		Use:   "save <name> <title>",
		Short: "Save a reusable task shape",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tpl := domain.NewTemplate(args[0], args[1])
			tpl.Category = category
			if priority != "" {
				tpl.Priority = domain.Priority(priority)
			}
			saved, err := engine.SaveTemplate(cmd.Context(), tpl)
			if err != nil {
				return err
			}
			fmt.Printf("saved template %s (%s)\n", saved.Name, saved.ID)
			return nil
		},
	}
	saveCmd.Flags().StringVar(&category, "category", "", "template category")
	saveCmd.Flags().StringVarP(&priority, "priority", "p", "", "task priority")

	var owner string
	useCmd := &cobra.Command{
		Use:   "use <template-id>",
		Short: "Instantiate a task from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := engine.InstantiateTemplate(cmd.Context(), args[0], resolveOwner(owner))
			if err != nil {
				return err
			}
			fmt.Println(formatTask(created))
			return nil
		},
	}
	useCmd.Flags().StringVar(&owner, "owner", "", "owner member id (defaults to the selected member)")

	cmd.AddCommand(
		saveCmd,
		useCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List templates",
			RunE: func(cmd *cobra.Command, args []string) error {
				templates, err := engine.Templates(cmd.Context())
				if err != nil {
					return err
				}
				for _, tpl := range templates {
					fmt.Printf("%s  %s (%s) used %d times\n", tpl.ID, tpl.Name, tpl.Category, tpl.UseCount)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "rm <template-id>",
			Short: "Delete a template",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return engine.DeleteTemplate(cmd.Context(), args[0])
			},
		},
	)
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Copy local-only tasks into the remote store",
		Long: `Replays the local snapshot through the remote creation path. Tasks that
already exist remotely with the same title and owner are skipped.
Requires an active session (--user and --db).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			migrated, skipped, err := engine.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("migrated %d task(s), skipped %d duplicate(s)\n", migrated, skipped)
			return nil
		},
	}
}

func overdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "Emit reminders for overdue tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if n := engine.ScanOverdue(time.Now()); n == 0 {
				fmt.Println("nothing overdue")
			}
			return nil
		},
	}
}

func resolveOwner(flag string) string {
	if flag != "" {
		return flag
	}
	return engine.SelectedMember()
}
