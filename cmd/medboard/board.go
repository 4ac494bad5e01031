package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"medboard/internal/engine"
	"medboard/internal/kanban"
)

func boardCmd() *cobra.Command {
	b := &cobra.Command{
		Use:   "board",
		Short: "Show and edit a record's treatment board",
		Long:  "Every edit loads the stored board, applies the change and saves it. Edits that change nothing are not saved.",
	}
	b.AddCommand(boardShowCmd())
	b.AddCommand(boardSaveCmd())
	b.AddCommand(boardSeedCmd())
	b.AddCommand(boardColumnCmd())
	b.AddCommand(boardTaskCmd())
	return b
}

func boardShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show a board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				view, err := e.LoadBoard(ctx, email, args[0])
				if err != nil {
					return err
				}
				return printBoard(view)
			})
		},
	}
}

func boardSaveCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "save <record-id>",
		Short: "Replace a board from a JSON snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			snap, err := kanban.Decode(data)
			if err != nil {
				return err
			}
			return withIdentity(cmd.Context(), func(ctx context.Context, e engine.Engine, email string) error {
				view, err := e.SaveBoard(ctx, email, args[0], snap)
				if err != nil {
					return err
				}
				return printBoard(view)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "snapshot file, - for stdin")
	return cmd
}

func boardSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <record-id>",
		Short: "Add the default columns from medboard.yml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBoardOps(cmd.Context(), args[0], engine.BoardOp{Op: engine.OpSeedColumns})
		},
	}
}

func boardColumnCmd() *cobra.Command {
	col := &cobra.Command{Use: "column", Short: "Edit board columns"}

	var title string
	add := &cobra.Command{
		Use:   "add <record-id>",
		Short: "Append a column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBoardOps(cmd.Context(), args[0], engine.BoardOp{Op: engine.OpAddColumn, Title: title})
		},
	}
	add.Flags().StringVar(&title, "title", "", "column title")

	col.AddCommand(add)
	col.AddCommand(&cobra.Command{
		Use:   "rename <record-id> <column-id> <title>",
		Short: "Rename a column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBoardOps(cmd.Context(), args[0], engine.BoardOp{Op: engine.OpRenameColumn, ColumnID: args[1], Title: args[2]})
		},
	})
	col.AddCommand(&cobra.Command{
		Use:   "delete <record-id> <column-id>",
		Short: "Delete a column and its tasks",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBoardOps(cmd.Context(), args[0], engine.BoardOp{Op: engine.OpDeleteColumn, ColumnID: args[1]})
		},
	})
	col.AddCommand(&cobra.Command{
		Use:   "move <record-id> <column-id> <over-column-id>",
		Short: "Move a column to the position of another",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBoardOps(cmd.Context(), args[0], engine.BoardOp{Op: engine.OpMoveColumn, ActiveID: args[1], OverID: args[2]})
		},
	})
	return col
}

func boardTaskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Edit board tasks"}

	var content string
	add := &cobra.Command{
		Use:   "add <record-id> <column-id>",
		Short: "Append a task to a column",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBoardOps(cmd.Context(), args[0], engine.BoardOp{Op: engine.OpAddTask, ColumnID: args[1], Content: content})
		},
	}
	add.Flags().StringVar(&content, "content", "", "task text")

	task.AddCommand(add)
	task.AddCommand(&cobra.Command{
		Use:   "edit <record-id> <task-id> <content>",
		Short: "Replace the text of a task",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBoardOps(cmd.Context(), args[0], engine.BoardOp{Op: engine.OpEditTask, TaskID: args[1], Content: args[2]})
		},
	})
	task.AddCommand(&cobra.Command{
		Use:   "delete <record-id> <task-id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBoardOps(cmd.Context(), args[0], engine.BoardOp{Op: engine.OpDeleteTask, TaskID: args[1]})
		},
	})
	task.AddCommand(&cobra.Command{
		Use:   "move <record-id> <task-id> <over-id>",
		Short: "Move a task over another task or onto a column",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyBoardOps(cmd.Context(), args[0], engine.BoardOp{Op: engine.OpMoveTask, ActiveID: args[1], OverID: args[2]})
		},
	})
	return task
}

func applyBoardOps(ctx context.Context, recordID string, ops ...engine.BoardOp) error {
	return withIdentity(ctx, func(ctx context.Context, e engine.Engine, email string) error {
		out, err := e.ApplyOps(ctx, email, recordID, ops, true)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printBoard(out.BoardView)
		}
		if !out.Saved {
			fmt.Println("Nothing changed.")
		}
		for _, r := range out.Results {
			if r.ID != "" {
				fmt.Printf("%s: %s\n", r.Op, r.ID)
			}
		}
		return printBoard(out.BoardView)
	})
}
