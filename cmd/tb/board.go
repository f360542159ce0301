package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/taskboard/taskboard/internal/ui"
)

var boardCmd = &cobra.Command{
	Use:     "board",
	GroupID: "tasks",
	Short:   "Show the kanban board",
	Long: `Show tasks in Todo / In Progress / Done columns.

Without --once the board runs full screen and redraws whenever another
client changes the database. Press r to refetch and q to quit.`,
	Run: func(cmd *cobra.Command, args []string) {
		once, _ := cmd.Flags().GetBool("once")

		ctx := context.Background()
		db := openBackend(ctx)
		defer db.Close()

		if once {
			st := readStore(ctx, db)
			fmt.Println(ui.RenderBoard(st.Snapshot(), ui.TerminalWidth(), time.Now()))
			return
		}

		p := newProvider(db, localSources(db))
		s := mustLogin(ctx, p)
		defer p.Logout()

		m := ui.NewBoardModel(s.Store)
		defer m.Close()

		if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	boardCmd.Flags().Bool("once", false, "Print the board once and exit")

	rootCmd.AddCommand(boardCmd)
}
