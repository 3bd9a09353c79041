package cli

import (
	"sort"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

// browseCommand creates the browse command: an interactive view of the
// staged environments.
func (c *CLI) browseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse staged environments interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := c.openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			entries := st.Entries()
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].Result.CreatedAt.After(entries[j].Result.CreatedAt)
			})

			model := NewEntryListModel(entries)
			_, err = tea.NewProgram(model, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
}
