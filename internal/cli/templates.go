package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/gangsheet/pkg/sheet"
)

// templatesCommand lists the sheet templates.
func (c *CLI) templatesCommand() *cobra.Command {
	var pick bool

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List sheet templates",
		Long: `List the sheet templates: the built-in sizes plus any from the catalog
file and [[sheets]] entries in the config.

With --pick, choose a template interactively and create a sheet from it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.config()
			if err != nil {
				return err
			}
			catalog, err := cfg.SheetCatalog()
			if err != nil {
				return err
			}
			if pick {
				return c.pickTemplate(cmd.Context(), catalog.All())
			}
			fmt.Println(templateTable(catalog.All(), nil))
			printDetail("Each design adds %s to the base price.", formatPrice(sheet.PerDesignFee))
			return nil
		},
	}

	cmd.Flags().BoolVar(&pick, "pick", false, "choose a template interactively and create a sheet")

	return cmd
}

func (c *CLI) pickTemplate(ctx context.Context, templates []sheet.Sheet) error {
	final, err := tea.NewProgram(NewTemplateListModel(templates), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("template picker: %w", err)
	}
	m, ok := final.(TemplateListModel)
	if !ok || m.Selected == nil {
		printInfo("No template selected")
		return nil
	}
	return c.runNew(ctx, m.Selected.ID, nil, false)
}

// completeTemplates completes template ids for --template.
func (c *CLI) completeTemplates(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	cfg, err := c.config()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	catalog, err := cfg.SheetCatalog()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return catalog.IDs(), cobra.ShellCompDirectiveNoFileComp
}
