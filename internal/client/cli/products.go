package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/catalogkeeper/internal/rpcapi"
)

const listDescriptionWidth = 40

// List prints the products visible to the current user, newest first.
func (a *App) List(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	items, err := a.api.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		dimColor.Fprintln(a.out, "No products yet. Use 'add' to create one.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tSTOCK\tOWNER\tDESCRIPTION")
	for _, p := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			p.ID, p.Name, FormatPrice(p.PriceCents), p.StockQuantity,
			p.CreatedByName, shorten(p.Description, listDescriptionWidth))
	}
	return tw.Flush()
}

// Show prints a single product in full.
func (a *App) Show(ctx context.Context, args []string) error {
	id, err := a.requireID(args)
	if err != nil {
		return err
	}

	p, err := a.api.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	a.printProduct(p)
	return nil
}

// Add prompts for the product fields and creates it. The description is
// stored encrypted with the caller's key on the server.
func (a *App) Add(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	in, err := a.promptProduct(rpcapi.ProductInput{}, false)
	if err != nil {
		return err
	}

	p, err := a.api.CreateProduct(ctx, in)
	if err != nil {
		return err
	}

	okColor.Fprintf(a.out, "Created product #%d\n", p.ID)
	return nil
}

// Edit loads a product and prompts for each field, keeping the current
// value when the user just presses Enter.
func (a *App) Edit(ctx context.Context, args []string) error {
	id, err := a.requireID(args)
	if err != nil {
		return err
	}

	p, err := a.api.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	in, err := a.promptProduct(rpcapi.ProductInput{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		PriceCents:    p.PriceCents,
		StockQuantity: p.StockQuantity,
	}, true)
	if err != nil {
		return err
	}

	if _, err := a.api.UpdateProduct(ctx, in); err != nil {
		return err
	}

	okColor.Fprintf(a.out, "Updated product #%d\n", id)
	return nil
}

// Delete removes a product after confirmation.
func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := a.requireID(args)
	if err != nil {
		return err
	}

	answer, err := getSimpleText(a.reader, fmt.Sprintf("Delete product #%d? (y/N)", id), a.out)
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		dimColor.Fprintln(a.out, "Cancelled")
		return nil
	}

	if err := a.api.DeleteProduct(ctx, id); err != nil {
		return err
	}

	okColor.Fprintf(a.out, "Deleted product #%d\n", id)
	return nil
}

func (a *App) requireID(args []string) (int64, error) {
	if err := a.requireLogin(); err != nil {
		return 0, err
	}
	if len(args) == 0 {
		return 0, errors.New("product id is required")
	}
	return ParseID(args[0])
}

// promptProduct reads every field of in. With edit set, current values are
// offered as defaults.
func (a *App) promptProduct(in rpcapi.ProductInput, edit bool) (rpcapi.ProductInput, error) {
	ask := func(prompt, current string) (string, error) {
		if edit {
			return GetTextWithDefault(a.reader, prompt, current, a.out)
		}
		return getSimpleText(a.reader, prompt, a.out)
	}

	var err error
	if in.Name, err = ask("Name", in.Name); err != nil {
		return in, err
	}
	if in.Description, err = ask("Description", in.Description); err != nil {
		return in, err
	}

	price, err := ask("Price", FormatPrice(in.PriceCents))
	if err != nil {
		return in, err
	}
	if in.PriceCents, err = ParsePrice(price); err != nil {
		return in, err
	}

	stock, err := ask("Stock quantity", strconv.FormatInt(in.StockQuantity, 10))
	if err != nil {
		return in, err
	}
	if in.StockQuantity, err = ParseQuantity(stock); err != nil {
		return in, err
	}

	return in, nil
}

func (a *App) printProduct(p *rpcapi.Product) {
	headColor.Fprintf(a.out, "#%d %s\n", p.ID, p.Name)
	fmt.Fprintf(a.out, "  Price:       %s\n", FormatPrice(p.PriceCents))
	fmt.Fprintf(a.out, "  Stock:       %d\n", p.StockQuantity)
	fmt.Fprintf(a.out, "  Description: %s\n", p.Description)
	fmt.Fprintf(a.out, "  Created by:  %s\n", p.CreatedByName)
	fmt.Fprintf(a.out, "  Created at:  %s\n", p.CreatedAt.Local().Format(time.DateTime))
	if p.UpdatedAt != nil {
		fmt.Fprintf(a.out, "  Updated at:  %s\n", p.UpdatedAt.Local().Format(time.DateTime))
	}
}

func shorten(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
