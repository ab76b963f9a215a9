package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/automarket/internal/forms"
	"github.com/rcliao/automarket/internal/model"
	"github.com/rcliao/automarket/internal/paginate"
)

// MsgNoProducts is printed for an empty catalogue.
const MsgNoProducts = "No products yet."

func init() {
	products := &cobra.Command{
		Use:     "products",
		Aliases: []string{"p"},
		Short:   "Browse and manage products",
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List products a page at a time",
		Run:     runProductsList,
	}
	list.Flags().Int("page-size", 0, "Products per page (default: $PAGE_SIZE)")
	list.Flags().Int("pages", 1, "Number of pages to reveal")
	list.Flags().Bool("all", false, "Reveal every page")
	list.Flags().BoolP("interactive", "i", false, "Reveal further pages on Enter")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a product",
		Args:  cobra.ExactArgs(1),
		Run:   runProductsGet,
	}

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		Run:   runProductsRm,
	}
	rm.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	add := &cobra.Command{
		Use:   "add",
		Short: "Add a product",
		Run:   runProductsAdd,
	}
	add.Flags().String("name", "", "Product name")
	add.Flags().String("description", "", "Product description")
	add.Flags().String("location", "", "Location")
	add.Flags().String("category", "", "Product category")
	add.Flags().String("price", "", "Price")
	add.Flags().String("discount", "", "Discount")

	analysis := &cobra.Command{
		Use:   "analysis <id>",
		Short: "Show product analytics",
		Args:  cobra.ExactArgs(1),
		Run:   runProductsAnalysis,
	}

	products.AddCommand(list, get, rm, add, analysis)
	RootCmd.AddCommand(products)
}

// productRow is one line of the product list.
type productRow struct {
	model.ProductSummary
	model.Lock
}

type productList struct {
	Products []productRow `json:"products"`
	Total    int          `json:"total"`
	HasMore  bool         `json:"has_more"`
}

func runProductsList(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	size, _ := cmd.Flags().GetInt("page-size")
	pages, _ := cmd.Flags().GetInt("pages")
	all, _ := cmd.Flags().GetBool("all")
	interactive, _ := cmd.Flags().GetBool("interactive")
	if size <= 0 {
		size = cfg.PageSize
	}

	e, err := openEnv(ctx)
	if err != nil {
		exitErr("products list", err)
	}
	defer e.Close()
	e.requireLogin(ctx, "products list")

	syncer, err := paginate.New[model.ProductSummary](e.api.Products, size,
		paginate.WithMetrics(metrics),
		paginate.WithLogger(logger),
	)
	if err != nil {
		exitErr("products list", err)
	}
	defer syncer.Close()

	out := cmd.OutOrStdout()
	if interactive {
		if err := browseProducts(ctx, syncer, os.Stdin, out, time.Now()); err != nil {
			exitErr("products list", err)
		}
		return
	}

	if all {
		pages = -1
	}
	if err := revealPages(ctx, syncer, pages); err != nil {
		exitErr("products list", err)
	}

	now := time.Now()
	view := productList{Products: rows(syncer.Visible(), now), Total: syncer.Total(), HasMore: syncer.HasMore()}
	output(out, view, func(w io.Writer) {
		if syncer.Empty() {
			fmt.Fprintln(w, MsgNoProducts)
			return
		}
		printRows(w, view.Products)
		if view.HasMore {
			fmt.Fprintf(w, "… %d of %d shown\n", len(view.Products), view.Total)
		}
	})
}

// revealPages requests n pages, or every page when n is negative.
func revealPages(ctx context.Context, s *paginate.Synchronizer[model.ProductSummary], n int) error {
	count := 0
	for _, err := range s.Pages(ctx) {
		if err != nil {
			return err
		}
		count++
		if n >= 0 && count >= n {
			break
		}
	}
	return nil
}

// browseProducts prints one page, then another each time a line is read
// from in, until the list is exhausted or "q" is entered.
func browseProducts(ctx context.Context, s *paginate.Synchronizer[model.ProductSummary], in io.Reader, out io.Writer, now time.Time) error {
	scanner := bufio.NewScanner(in)
	for {
		page, ok, err := s.NearEnd(ctx)
		if err != nil {
			return err
		}
		if ok {
			printRows(out, rows(page.Items, now))
		}
		if s.Empty() {
			fmt.Fprintln(out, MsgNoProducts)
			return nil
		}
		if !s.HasMore() {
			return nil
		}
		fmt.Fprintf(out, "-- %d of %d, Enter for more, q to quit --\n", len(s.Visible()), s.Total())
		if !scanner.Scan() || strings.TrimSpace(scanner.Text()) == "q" {
			return scanner.Err()
		}
	}
}

func rows(items []model.ProductSummary, now time.Time) []productRow {
	out := make([]productRow, len(items))
	for i, p := range items {
		out[i] = productRow{ProductSummary: p, Lock: p.Lock(now)}
	}
	return out
}

func printRows(w io.Writer, rs []productRow) {
	for _, r := range rs {
		status := "available"
		if r.Locked {
			status = fmt.Sprintf("locked (%d days left)", r.DaysLeft)
		}
		fmt.Fprintf(w, "%-6s %-30s %s\n", r.ID, truncateText(r.Name, 30), status)
		if r.Description != "" {
			fmt.Fprintf(w, "       %s\n", truncateText(r.Description, 70))
		}
	}
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

type productView struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Organisation     string        `json:"organisation"`
	MarketingMessage string        `json:"marketing_message,omitempty"`
	Lock             model.Lock    `json:"lock"`
	Primary          []model.Field `json:"primary"`
	Extra            []model.Field `json:"extra"`
}

func newProductView(id string, d model.ProductDetail, now time.Time) productView {
	v := productView{
		ID:               id,
		Name:             d.Name(),
		Organisation:     d.Organisation(),
		MarketingMessage: d.MarketingMessage(),
		Lock:             model.LockStatus(d.MarketingDate(), now),
		Extra:            d.ExtraFields(),
	}
	for _, k := range model.PrimaryFields {
		if val := model.FormatValue(k, d[k]); val != "" {
			v.Primary = append(v.Primary, model.Field{Key: k, Value: val})
		}
	}
	return v
}

func runProductsGet(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		exitErr("products get", err)
	}
	defer e.Close()
	e.requireLogin(ctx, "products get")

	d, err := e.api.Product(ctx, args[0])
	if err != nil {
		exitErr("products get", err)
	}

	v := newProductView(args[0], d, time.Now())
	output(cmd.OutOrStdout(), v, func(w io.Writer) {
		fmt.Fprintf(w, "%s (organisation: %s)\n", orNA(v.Name), v.Organisation)
		if v.Lock.Locked {
			fmt.Fprintf(w, "Locked for marketing, %d days left\n", v.Lock.DaysLeft)
		}
		for _, f := range v.Primary {
			fmt.Fprintf(w, "  %s: %s\n", f.Key, f.Value)
		}
		for _, f := range v.Extra {
			fmt.Fprintf(w, "  %s: %s\n", f.Key, f.Value)
		}
	})
}

func runProductsRm(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes && !confirm(os.Stdin, cmd.ErrOrStderr(), fmt.Sprintf("Delete product %s? [y/N] ", args[0])) {
		exitErr("products rm", fmt.Errorf("cancelled"))
	}

	e, err := openEnv(ctx)
	if err != nil {
		exitErr("products rm", err)
	}
	defer e.Close()
	e.requireLogin(ctx, "products rm")

	if err := e.api.DeleteProduct(ctx, args[0]); err != nil {
		exitErr("products rm", err)
	}
	output(cmd.OutOrStdout(), map[string]any{"deleted": true, "id": args[0]}, func(w io.Writer) {
		fmt.Fprintf(w, "Deleted product %s\n", args[0])
	})
}

// confirm asks prompt on out and reports whether the answer is y or yes.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func runProductsAdd(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	f := forms.Product{}
	f.Name, _ = cmd.Flags().GetString("name")
	f.Description, _ = cmd.Flags().GetString("description")
	f.Location, _ = cmd.Flags().GetString("location")
	f.Category, _ = cmd.Flags().GetString("category")
	f.Price, _ = cmd.Flags().GetString("price")
	f.Discount, _ = cmd.Flags().GetString("discount")

	p, err := f.Validate()
	if err != nil {
		exitErr("products add", err)
	}

	e, err := openEnv(ctx)
	if err != nil {
		exitErr("products add", err)
	}
	defer e.Close()
	e.requireLogin(ctx, "products add")

	d, err := e.api.AddProduct(ctx, p)
	if err != nil {
		exitErr("products add", err)
	}
	output(cmd.OutOrStdout(), d, func(w io.Writer) {
		fmt.Fprintf(w, "Added %s\n", orNA(d.Name()))
	})
}

func runProductsAnalysis(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		exitErr("products analysis", err)
	}
	defer e.Close()
	e.requireLogin(ctx, "products analysis")

	a, err := e.api.Analysis(ctx, args[0])
	if err != nil {
		exitErr("products analysis", err)
	}
	output(cmd.OutOrStdout(), a, func(w io.Writer) {
		fmt.Fprintln(w, a.Summary)
		if len(a.Insights) > 0 {
			fmt.Fprintln(w, "\nInsights:")
			for _, s := range a.Insights {
				fmt.Fprintf(w, "  - %s\n", s)
			}
		}
		if len(a.Recommendations) > 0 {
			fmt.Fprintln(w, "\nRecommendations:")
			for _, s := range a.Recommendations {
				fmt.Fprintf(w, "  - %s\n", s)
			}
		}
	})
}
