package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/gangsheet/pkg/artifact"
	"github.com/matzehuels/gangsheet/pkg/checkout"
	"github.com/matzehuels/gangsheet/pkg/pipeline"
)

// exportCommand renders a sheet to an image file.
func (c *CLI) exportCommand() *cobra.Command {
	var (
		output  string
		noCache bool
	)
	opts := pipeline.Options{}

	cmd := &cobra.Command{
		Use:   "export [sheet]",
		Short: "Export a sheet as a print-ready image",
		Long: `Export a sheet as a PNG or JPEG.

Final exports render at the configured print DPI; previews render at
screen resolution. Results are cached by layout, so exporting an
unchanged sheet again is instant.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.ValidateAndSetDefaults(); err != nil {
				return err
			}
			return c.runExport(cmd.Context(), args[0], opts, output, noCache)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: gang_sheet_<id>.<ext>)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "output format: png (default), jpeg")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", "", "export mode: final (default), preview")
	cmd.Flags().BoolVar(&opts.Grid, "grid", false, "draw the 1-inch guide grid (preview only)")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "ignore cached exports")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable caching")
	cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions([]string{"png", "jpeg"}, cobra.ShellCompDirectiveNoFileComp))
	cmd.RegisterFlagCompletionFunc("mode", cobra.FixedCompletions([]string{"final", "preview"}, cobra.ShellCompDirectiveNoFileComp))

	return cmd
}

// exportSheet loads a sheet and runs it through the pipeline.
func (c *CLI) exportSheet(ctx context.Context, id string, opts pipeline.Options, noCache bool) (*pipeline.Result, error) {
	ws, err := c.openWorkspace(ctx)
	if err != nil {
		return nil, err
	}
	defer ws.Close()

	_, b, err := ws.load(ctx, id)
	if err != nil {
		return nil, err
	}
	runner, err := c.newRunner(ctx, noCache)
	if err != nil {
		return nil, fmt.Errorf("initialize runner: %w", err)
	}
	defer runner.Close()

	opts.Logger = loggerFromContext(ctx)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Rendering %d design(s)...", b.Len()))
	spinner.Start()
	res, err := runner.Export(ctx, b, opts)
	if err != nil {
		spinner.StopWithError("Export failed")
		return nil, err
	}
	spinner.Stop()
	return res, nil
}

func (c *CLI) runExport(ctx context.Context, id string, opts pipeline.Options, output string, noCache bool) error {
	res, err := c.exportSheet(ctx, id, opts, noCache)
	if err != nil {
		return err
	}
	art := res.Artifact
	if output == "" {
		output = fmt.Sprintf("gang_sheet_%s%s", shortID(id), art.Format.Ext())
	}
	if err := os.WriteFile(output, art.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	printSuccess("Exported %s", res.Sheet.Name)
	printExportStats(art.Width, art.Height, art.Size(), res.CacheHit)
	printFile(output)

	if opts.Mode == string(pipeline.DefaultMode) {
		if err := c.keepArtifact(ctx, id, res); err != nil {
			printWarning("Could not store artifact: %v", err)
		}
	}
	return nil
}

// keepArtifact copies a final export to the configured artifact store.
func (c *CLI) keepArtifact(ctx context.Context, id string, res *pipeline.Result) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	store, err := newArtifactStore(ctx, cfg.Artifacts)
	if err != nil || store == nil {
		return err
	}
	key := artifact.Key(id, res.LayoutHash, res.Artifact.Format.Ext())
	obj, err := store.Put(ctx, key, res.Artifact.Data, res.Artifact.Format.MIME())
	if err != nil {
		return err
	}
	printKeyValue("Stored", obj.Location)
	return nil
}

// checkoutCommand submits a sheet to the storefront.
func (c *CLI) checkoutCommand() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "checkout [sheet]",
		Short: "Send a sheet to the storefront cart",
		Long: `Export the sheet at print resolution, upload it to the storefront's
add-to-cart endpoint, and print the checkout link.

The endpoint comes from --url or the checkout.url config setting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCheckout(cmd.Context(), args[0], endpoint)
		},
	}

	cmd.Flags().StringVar(&endpoint, "url", "", "storefront add-to-cart endpoint")

	return cmd
}

func (c *CLI) runCheckout(ctx context.Context, id, endpoint string) error {
	cfg, err := c.config()
	if err != nil {
		return err
	}
	ccfg := cfg.Checkout
	if endpoint != "" {
		ccfg.URL = endpoint
	}
	client, err := newCheckoutClient(ccfg, c.Logger)
	if err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("no checkout endpoint: pass --url or set checkout.url")
	}

	res, err := c.exportSheet(ctx, id, pipeline.Options{}, false)
	if err != nil {
		return err
	}

	spinner := newSpinnerWithContext(ctx, "Creating cart...")
	spinner.Start()
	resp, err := client.Submit(ctx, checkout.NewRequest(res, time.Now()))
	if err != nil {
		spinner.StopWithError("Checkout failed")
		return err
	}
	spinner.StopWithSuccess("Cart created")

	if err := c.markSubmitted(ctx, id); err != nil {
		printWarning("Could not mark sheet as submitted: %v", err)
	}
	printSuccess("%s · %s", res.Name, formatPrice(res.Price))
	printKeyValue("Checkout", StyleLink.Render(resp.CheckoutURL))
	return nil
}

func (c *CLI) markSubmitted(ctx context.Context, id string) error {
	ws, err := c.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()
	sess, err := ws.store.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.Submit()
	return ws.store.Set(ctx, sess)
}
