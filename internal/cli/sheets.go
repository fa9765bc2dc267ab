package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/gangsheet/pkg/design"
	"github.com/matzehuels/gangsheet/pkg/errors"
	"github.com/matzehuels/gangsheet/pkg/nest"
	"github.com/matzehuels/gangsheet/pkg/session"
	"github.com/matzehuels/gangsheet/pkg/sheet"
)

// =============================================================================
// new
// =============================================================================

// newCommand creates a sheet, optionally seeded with images.
func (c *CLI) newCommand() *cobra.Command {
	var (
		templateID string
		autoNest   bool
	)

	cmd := &cobra.Command{
		Use:   "new [images...]",
		Short: "Create a gang sheet",
		Long: `Create a draft gang sheet from a template.

Images given as arguments are uploaded right away; use --nest to pack
them immediately. Run 'gangsheet templates' to list the templates.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runNew(cmd.Context(), templateID, args, autoNest)
		},
	}

	cmd.Flags().StringVarP(&templateID, "template", "t", sheet.DefaultID, "sheet template id")
	cmd.Flags().BoolVar(&autoNest, "nest", false, "auto-nest the uploaded images")
	cmd.RegisterFlagCompletionFunc("template", c.completeTemplates)

	return cmd
}

func (c *CLI) runNew(ctx context.Context, templateID string, images []string, autoNest bool) error {
	ws, err := c.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	sess, b, err := ws.create(ctx, templateID)
	if err != nil {
		return err
	}
	printSuccess("Created sheet %s", StyleHighlight.Render(sess.ID))
	printDetail("%s · %s", b.Sheet().Name, b.Sheet().Label())

	if len(images) > 0 {
		if err := c.upload(ctx, ws, sess, b, images, autoNest); err != nil {
			return err
		}
	}

	printNewline()
	printNextStep("Add designs", fmt.Sprintf("gangsheet add %s logo.png", sess.ID))
	printNextStep("Export", fmt.Sprintf("gangsheet export %s -o sheet.png", sess.ID))
	return nil
}

// =============================================================================
// add
// =============================================================================

// addCommand uploads images to an existing sheet.
func (c *CLI) addCommand() *cobra.Command {
	var autoNest bool

	cmd := &cobra.Command{
		Use:   "add [sheet] [images...]",
		Short: "Upload images to a sheet",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := c.openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			sess, b, err := ws.loadDraft(ctx, args[0])
			if err != nil {
				return err
			}
			return c.upload(ctx, ws, sess, b, args[1:], autoNest)
		},
	}

	cmd.Flags().BoolVar(&autoNest, "nest", false, "auto-nest after uploading")

	return cmd
}

// upload decodes images into the board, reports rejections, and saves.
func (c *CLI) upload(ctx context.Context, ws *workspace, sess *session.Sheet, b *design.Board, paths []string, autoNest bool) error {
	uploads, err := readUploads(paths)
	if err != nil {
		return err
	}
	runner, err := c.newRunner(ctx, true)
	if err != nil {
		return err
	}
	defer runner.Close()

	p := newProgress(loggerFromContext(ctx))
	added, rejected, err := runner.AddUploads(ctx, b, uploads)
	if err != nil {
		return err
	}
	p.done("Decoded uploads", "files", len(uploads), "added", len(added), "rejected", len(rejected))
	for _, r := range rejected {
		printWarning("%s: %s", r.Name, errors.UserMessage(r.Err))
	}
	if len(added) == 0 {
		return errors.New(errors.ErrCodeInvalidImage, "no images were added")
	}
	if autoNest {
		res, err := runner.Nest(ctx, b, nest.Options{})
		if err != nil {
			return err
		}
		printNestResult(res)
	}
	if err := ws.save(ctx, sess, b); err != nil {
		return err
	}
	printSuccess("Added %d design(s)", len(added))
	for _, o := range added {
		printDetail("%s  %s  %dx%d px", shortID(o.ID), o.Name, o.SourceWidth, o.SourceHeight)
	}
	printKeyValue("Price", formatPrice(b.Price()))
	return nil
}

// =============================================================================
// show
// =============================================================================

// showCommand prints a sheet and its designs.
func (c *CLI) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [sheet]",
		Short: "Show a sheet and its designs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := c.openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			sess, b, err := ws.load(ctx, args[0])
			if err != nil {
				return err
			}
			printSheet(sess, b)
			return nil
		},
	}
}

func printSheet(sess *session.Sheet, b *design.Board) {
	tpl := b.Sheet()
	cv := b.Canvas()
	w, h := cv.ExportSize()

	fmt.Println(StyleTitle.Render(tpl.Name) + " " + StyleDim.Render(sess.ID))
	printKeyValue("Size", fmt.Sprintf("%s (%dx%d px at %g DPI)", tpl.Label(), w, h, cv.DPI))
	printKeyValue("Designs", fmt.Sprintf("%d / %s", b.Len(), maxDesigns(tpl)))
	printKeyValue("Price", formatPrice(b.Price()))
	printKeyValue("Status", string(sess.Status))
	if !sess.ExpiresAt.IsZero() {
		printKeyValue("Expires", sess.ExpiresAt.Local().Format("Jan 2, 2006 15:04"))
	}

	objs := b.Objects()
	if len(objs) == 0 {
		return
	}
	printNewline()
	fmt.Println(designTable(objs))
}

func maxDesigns(s sheet.Sheet) string {
	if s.MaxDesigns == 0 {
		return "unlimited"
	}
	return strconv.Itoa(s.MaxDesigns)
}

// designTable renders objects bottom first, matching the stacking order.
func designTable(objs []design.Object) string {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	rows := make([][]string, len(objs))
	for i, o := range objs {
		rows[i] = []string{
			shortID(o.ID),
			o.Name,
			fmt.Sprintf("%.0f,%.0f", o.X, o.Y),
			fmt.Sprintf("%.0fx%.0f", o.Width, o.Height),
			fmt.Sprintf("%g°", o.Rotation),
			fmt.Sprintf("%.0f%%", o.Opacity*100),
			designFlags(o),
		}
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("ID", "Name", "Pos", "Size", "Rot", "Opacity", "Flags").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if row >= 0 && row < len(objs) && !objs[row].Visible {
				return lipgloss.NewStyle().Foreground(colorDim)
			}
			return lipgloss.NewStyle()
		}).
		Render()
}

func designFlags(o design.Object) string {
	var f string
	if o.Locked {
		f += "L"
	}
	if !o.Visible {
		f += "H"
	}
	if o.FlipH {
		f += "↔"
	}
	if o.FlipV {
		f += "↕"
	}
	return f
}

// =============================================================================
// edit
// =============================================================================

// editOpts holds the flags of the edit command.
type editOpts struct {
	name      string
	x, y      float64
	width     float64
	height    float64
	rotation  float64
	rotate    float64
	opacity   float64
	flipH     bool
	flipV     bool
	lock      bool
	unlock    bool
	hide      bool
	show      bool
	reset     bool
	front     bool
	back      bool
	duplicate bool
	deleteIt  bool
}

// editCommand changes one design.
func (c *CLI) editCommand() *cobra.Command {
	var opts editOpts

	cmd := &cobra.Command{
		Use:   "edit [sheet] [design]",
		Short: "Move, resize, rotate, or restack a design",
		Long: `Edit one design on a sheet. The design may be given by a unique id prefix.

Geometry flags are ignored while a design is locked, unless --unlock is
given in the same call.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runEdit(cmd, args[0], args[1], &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.name, "name", "", "rename the design")
	f.Float64Var(&opts.x, "x", 0, "left edge in layout pixels")
	f.Float64Var(&opts.y, "y", 0, "top edge in layout pixels")
	f.Float64Var(&opts.width, "width", 0, "width in layout pixels")
	f.Float64Var(&opts.height, "height", 0, "height in layout pixels")
	f.Float64Var(&opts.rotation, "rotation", 0, "absolute rotation in degrees")
	f.Float64Var(&opts.rotate, "rotate", 0, "rotate by degrees")
	f.Float64Var(&opts.opacity, "opacity", 1, "opacity between 0 and 1")
	f.BoolVar(&opts.flipH, "flip-h", false, "toggle horizontal flip")
	f.BoolVar(&opts.flipV, "flip-v", false, "toggle vertical flip")
	f.BoolVar(&opts.lock, "lock", false, "lock the design")
	f.BoolVar(&opts.unlock, "unlock", false, "unlock the design")
	f.BoolVar(&opts.hide, "hide", false, "hide the design")
	f.BoolVar(&opts.show, "show", false, "show the design")
	f.BoolVar(&opts.reset, "reset", false, "clear rotation, flips, and opacity")
	f.BoolVar(&opts.front, "front", false, "bring to front")
	f.BoolVar(&opts.back, "back", false, "send to back")
	f.BoolVar(&opts.duplicate, "duplicate", false, "duplicate the design")
	f.BoolVar(&opts.deleteIt, "delete", false, "delete the design")
	cmd.MarkFlagsMutuallyExclusive("lock", "unlock")
	cmd.MarkFlagsMutuallyExclusive("hide", "show")
	cmd.MarkFlagsMutuallyExclusive("front", "back")

	return cmd
}

// patch builds a patch from the flags the user set.
func (o *editOpts) patch(cmd *cobra.Command) design.Patch {
	changed := cmd.Flags().Changed
	var p design.Patch
	if changed("name") {
		p.Name = &o.name
	}
	if changed("x") {
		p.X = &o.x
	}
	if changed("y") {
		p.Y = &o.y
	}
	if changed("width") {
		p.Width = &o.width
	}
	if changed("height") {
		p.Height = &o.height
	}
	if changed("rotation") {
		p.Rotation = &o.rotation
	}
	if changed("opacity") {
		p.Opacity = &o.opacity
	}
	switch {
	case o.lock:
		p.Locked = &o.lock
	case o.unlock:
		locked := false
		p.Locked = &locked
	}
	switch {
	case o.hide:
		visible := false
		p.Visible = &visible
	case o.show:
		p.Visible = &o.show
	}
	return p
}

func (c *CLI) runEdit(cmd *cobra.Command, sheetID, ref string, opts *editOpts) error {
	ctx := cmd.Context()
	ws, err := c.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	sess, b, err := ws.loadDraft(ctx, sheetID)
	if err != nil {
		return err
	}
	target, err := resolveDesign(b, ref)
	if err != nil {
		return err
	}
	id := target.ID

	if opts.deleteIt {
		b.Delete(id)
		if err := ws.save(ctx, sess, b); err != nil {
			return err
		}
		printSuccess("Deleted %s", shortID(id))
		printKeyValue("Price", formatPrice(b.Price()))
		return nil
	}

	if opts.reset {
		b.ResetTransform(id)
	}
	o, err := b.Update(id, opts.patch(cmd))
	if err != nil {
		return err
	}
	if opts.rotate != 0 {
		o, _ = b.Rotate(id, opts.rotate)
	}
	if opts.flipH {
		o, _ = b.ToggleFlip(id, design.Horizontal)
	}
	if opts.flipV {
		o, _ = b.ToggleFlip(id, design.Vertical)
	}
	switch {
	case opts.front:
		b.BringToFront(id)
	case opts.back:
		b.SendToBack(id)
	}
	if opts.duplicate {
		dup, err := b.Duplicate(id)
		if err != nil {
			return err
		}
		printSuccess("Duplicated as %s", shortID(dup.ID))
	}

	if err := ws.save(ctx, sess, b); err != nil {
		return err
	}
	printSuccess("Updated %s", shortID(o.ID))
	fmt.Println(designTable([]design.Object{o}))
	return nil
}

// =============================================================================
// nest
// =============================================================================

// nestCommand packs a sheet's designs.
func (c *CLI) nestCommand() *cobra.Command {
	var opts nest.Options

	cmd := &cobra.Command{
		Use:   "nest [sheet]",
		Short: "Auto-nest designs into rows",
		Long: `Repack every visible design into left-to-right rows, tallest first.

Only positions change. Designs that do not fit are clamped to the bottom
edge and reported as overflow.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := c.openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			sess, b, err := ws.loadDraft(ctx, args[0])
			if err != nil {
				return err
			}
			runner, err := c.newRunner(ctx, true)
			if err != nil {
				return err
			}
			defer runner.Close()

			res, err := runner.Nest(ctx, b, opts)
			if err != nil {
				return err
			}
			if err := ws.save(ctx, sess, b); err != nil {
				return err
			}
			printNestResult(res)
			return nil
		},
	}

	cmd.Flags().Float64Var(&opts.Margin, "margin", nest.DefaultMargin, "gap between designs in layout pixels")
	cmd.Flags().BoolVar(&opts.IncludeHidden, "include-hidden", false, "pack hidden designs too")

	return cmd
}

func printNestResult(res design.NestResult) {
	printSuccess("Nested %d design(s) into %d row(s)", res.Packed, res.Rows)
	if res.Skipped > 0 {
		printDetail("%d hidden design(s) left in place", res.Skipped)
	}
	if len(res.Overflow) > 0 {
		ids := make([]string, len(res.Overflow))
		for i, id := range res.Overflow {
			ids[i] = shortID(id)
		}
		printWarning("%d design(s) did not fit: %v", len(ids), ids)
	}
}

// =============================================================================
// price
// =============================================================================

// priceCommand prints a sheet's price breakdown.
func (c *CLI) priceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "price [sheet]",
		Short: "Show the price of a sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := c.openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			_, b, err := ws.load(ctx, args[0])
			if err != nil {
				return err
			}
			tpl := b.Sheet()
			n := b.Len()
			printKeyValue("Sheet", formatPrice(tpl.Price))
			printKeyValue("Designs", fmt.Sprintf("%d × %s", n, formatPrice(sheet.PerDesignFee)))
			printKeyValue("Total", StyleNumber.Render(formatPrice(sheet.CalculatePrice(tpl, n))))
			return nil
		},
	}
}

func formatPrice(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// =============================================================================
// rm
// =============================================================================

// removeCommand deletes a sheet.
func (c *CLI) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm [sheet]",
		Short: "Delete a sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := c.openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()

			if _, err := ws.store.Get(ctx, args[0]); err != nil {
				return err
			}
			if err := ws.store.Delete(ctx, args[0]); err != nil {
				return err
			}
			printSuccess("Deleted sheet %s", args[0])
			return nil
		},
	}
}
