package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/opmodel/subctl/internal/certdir"
	"github.com/opmodel/subctl/internal/cmdtypes"
	"github.com/opmodel/subctl/internal/cmdutil"
	"github.com/opmodel/subctl/internal/core"
	oerrors "github.com/opmodel/subctl/internal/errors"
	"github.com/opmodel/subctl/internal/output"
	"github.com/opmodel/subctl/internal/pools"
	"github.com/opmodel/subctl/internal/reconcile"
)

// Installed product statuses.
const (
	productSubscribed    = "Subscribed"
	productExpired       = "Expired"
	productNotSubscribed = "Not Subscribed"
)

// listOptions holds the flags for the list command.
type listOptions struct {
	installed bool
	consumed  bool
	available bool

	all            bool
	matchInstalled bool
	noOverlap      bool
	matches        string
	onDate         string

	cmdutil.OutputFlags
}

// NewListCmd creates the list command.
func NewListCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &listOptions{}

	c := &cobra.Command{
		Use:   "list",
		Short: "List installed products, consumed or available subscriptions",
		Long: `List installed products and their subscription status (default),
entitlements consumed by this system (--consumed), or subscription
pools available from the server (--available).`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			format, err := opts.Format()
			if err != nil {
				return err
			}
			app := cmdutil.NewApp(cfg.Config)
			app.Verbose = cfg.Verbose

			switch {
			case opts.available:
				return runListAvailable(c, app, opts, format)
			case opts.consumed:
				return runListConsumed(c.OutOrStdout(), app.Deps.EntDir, format)
			default:
				return runListInstalled(c.OutOrStdout(), app.Deps.ProdDir, app.Deps.EntDir, format, time.Now())
			}
		},
	}

	c.Flags().BoolVar(&opts.installed, "installed", false, "List installed products (default)")
	c.Flags().BoolVar(&opts.consumed, "consumed", false, "List consumed entitlements")
	c.Flags().BoolVar(&opts.available, "available", false, "List available subscription pools")
	c.MarkFlagsMutuallyExclusive("installed", "consumed", "available")

	c.Flags().BoolVar(&opts.all, "all", false, "With --available, include pools that do not match this system")
	c.Flags().BoolVar(&opts.matchInstalled, "match-installed", false, "With --available, only pools covering installed products")
	c.Flags().BoolVar(&opts.noOverlap, "no-overlap", false, "With --available, hide pools overlapping current entitlements")
	c.Flags().StringVar(&opts.matches, "matches", "", "With --available, only pools whose product names contain TEXT")
	c.Flags().StringVar(&opts.onDate, "ondate", "", "With --available, pools active on DATE (YYYY-MM-DD)")
	opts.OutputFlags.AddTo(c)

	return c
}

type installedView struct {
	ProductID   string `json:"productId" yaml:"productId"`
	ProductName string `json:"productName" yaml:"productName"`
	Version     string `json:"version" yaml:"version"`
	Arch        string `json:"arch" yaml:"arch"`
	Status      string `json:"status" yaml:"status"`
}

// productStatus reports whether a valid entitlement covers productID on t.
func productStatus(entDir *certdir.EntitlementDir, productID string, t time.Time) (string, error) {
	certs, err := entDir.FindAllByProduct(productID)
	if err != nil {
		return "", err
	}
	status := productNotSubscribed
	for _, c := range certs {
		if c.ValidOn(t) {
			return productSubscribed, nil
		}
		status = productExpired
	}
	return status, nil
}

func runListInstalled(w io.Writer, prodDir *certdir.ProductDir, entDir *certdir.EntitlementDir, format output.OutputFormat, now time.Time) error {
	products, err := prodDir.InstalledProducts()
	if err != nil {
		return err
	}
	views := make([]installedView, 0, len(products))
	for _, p := range products {
		status, err := productStatus(entDir, p.ProductID, now)
		if err != nil {
			return err
		}
		views = append(views, installedView{
			ProductID: p.ProductID, ProductName: p.ProductName,
			Version: p.Version, Arch: p.Arch, Status: status,
		})
	}

	if format != output.FormatTable {
		return output.WriteStructured(w, format, views)
	}
	if len(views) == 0 {
		fmt.Fprintln(w, "No installed products found.")
		return nil
	}
	table := output.NewTable("PRODUCT", "ID", "VERSION", "ARCH", "STATUS")
	for _, v := range views {
		table.Row(v.ProductName, v.ProductID, v.Version, v.Arch, v.Status)
	}
	fmt.Fprintln(w, table.String())
	return nil
}

type consumedView struct {
	Serial       int64     `json:"serial" yaml:"serial"`
	Subscription string    `json:"subscription" yaml:"subscription"`
	SKU          string    `json:"sku" yaml:"sku"`
	Contract     string    `json:"contract,omitempty" yaml:"contract,omitempty"`
	PoolID       string    `json:"poolId" yaml:"poolId"`
	Quantity     int       `json:"quantity" yaml:"quantity"`
	Products     []string  `json:"products" yaml:"products"`
	Starts       time.Time `json:"starts" yaml:"starts"`
	Ends         time.Time `json:"ends" yaml:"ends"`
	Active       bool      `json:"active" yaml:"active"`
}

func runListConsumed(w io.Writer, entDir *certdir.EntitlementDir, format output.OutputFormat) error {
	certs, err := entDir.List()
	if err != nil {
		return err
	}
	views := make([]consumedView, 0, len(certs))
	for _, c := range certs {
		v := consumedView{
			Serial:       c.Serial,
			Subscription: c.Order.Name,
			SKU:          c.Order.SKU,
			Contract:     c.Order.Contract,
			PoolID:       c.Pool.ID,
			Quantity:     c.Quantity,
			Starts:       c.Validity.Start,
			Ends:         c.Validity.End,
			Active:       c.Validity.Valid(),
		}
		for _, p := range c.Products {
			v.Products = append(v.Products, p.Name)
		}
		views = append(views, v)
	}

	if format != output.FormatTable {
		return output.WriteStructured(w, format, views)
	}
	if len(views) == 0 {
		fmt.Fprintln(w, "No consumed subscriptions found.")
		return nil
	}
	table := output.NewTable("SUBSCRIPTION", "SKU", "SERIAL", "POOL", "QTY", "ENDS", "ACTIVE", "PROVIDES")
	for _, v := range views {
		table.Row(v.Subscription, v.SKU, strconv.FormatInt(v.Serial, 10), v.PoolID,
			strconv.Itoa(v.Quantity), v.Ends.Format(time.DateOnly), strconv.FormatBool(v.Active),
			strings.Join(v.Products, ", "))
	}
	fmt.Fprintln(w, table.String())
	return nil
}

type availableView struct {
	ProductID   string     `json:"productId" yaml:"productId"`
	ProductName string     `json:"productName" yaml:"productName"`
	Quantity    int        `json:"quantity" yaml:"quantity"`
	Consumed    int        `json:"consumed" yaml:"consumed"`
	Available   int        `json:"available" yaml:"available"`
	Bundled     int        `json:"bundledProducts" yaml:"bundledProducts"`
	Pools       []poolView `json:"pools" yaml:"pools"`
}

type poolView struct {
	ID       string    `json:"id" yaml:"id"`
	Contract string    `json:"contract,omitempty" yaml:"contract,omitempty"`
	Quantity int       `json:"quantity" yaml:"quantity"`
	Ends     time.Time `json:"ends" yaml:"ends"`
	VirtOnly bool      `json:"virtOnly" yaml:"virtOnly"`
	Provides []string  `json:"provides" yaml:"provides"`
}

func runListAvailable(c *cobra.Command, app *cmdutil.App, opts *listOptions, format output.OutputFormat) error {
	activeOn := time.Now()
	if opts.onDate != "" {
		t, err := core.ParseTimestamp(opts.onDate)
		if err != nil {
			return fmt.Errorf("%w: --ondate: %v", oerrors.ErrValidation, err)
		}
		activeOn = t
	}

	// The server evaluates compatibility against uploaded facts.
	if batch, err := app.Run(c.Context(), "Checking facts...", reconcile.NewFactsClient); err != nil {
		return err
	} else if berr := cmdutil.BatchError(batch); berr != nil {
		output.Warn("facts upload failed, pool compatibility may be stale", "err", berr)
	}

	id, err := app.Deps.Identity.Read()
	if err != nil {
		return err
	}
	stash := pools.NewStash(app.Deps.Server, id.UUID, app.Deps.EntDir, app.Deps.ProdDir)
	err = output.RunWithSpinner(c.Context(), func(ctx context.Context) error {
		return stash.Refresh(ctx, activeOn)
	}, output.WithTitle("Fetching pools..."), output.WithDisabled(app.Verbose))
	if err != nil {
		return err
	}

	merged, err := stash.MergedPools(pools.Options{
		CompatibleOnly: !opts.all,
		InstalledOnly:  opts.matchInstalled,
		NoOverlap:      opts.noOverlap,
		Matches:        opts.matches,
	})
	if err != nil {
		return err
	}

	views := availableViews(stash, pools.Sorted(merged))
	w := c.OutOrStdout()
	if format != output.FormatTable {
		return output.WriteStructured(w, format, views)
	}
	if len(views) == 0 {
		fmt.Fprintln(w, "No available subscription pools found.")
		return nil
	}
	table := output.NewTable("SUBSCRIPTION", "SKU", "POOL", "QTY", "AVAILABLE", "ENDS", "TYPE")
	for _, v := range views {
		for _, p := range v.Pools {
			kind := "physical"
			if p.VirtOnly {
				kind = "virtual"
			}
			table.Row(v.ProductName, v.ProductID, p.ID, formatQuantity(p.Quantity),
				formatQuantity(v.Available), p.Ends.Format(time.DateOnly), kind)
		}
	}
	fmt.Fprintln(w, table.String())
	fmt.Fprintln(w, output.FormatCount(len(views), "subscription"))
	return nil
}

func availableViews(stash *pools.Stash, merged []*pools.MergedPools) []availableView {
	views := make([]availableView, 0, len(merged))
	for _, m := range merged {
		m.SortVirtToTop()
		v := availableView{
			ProductID:   m.ProductID,
			ProductName: m.ProductName,
			Quantity:    m.Quantity,
			Consumed:    m.Consumed,
			Available:   m.Available(),
			Bundled:     m.BundledProducts,
		}
		for _, p := range m.Pools {
			pv := poolView{
				ID: p.ID, Contract: p.ContractNumber, Quantity: p.Quantity,
				Ends: p.EndDate.Time, VirtOnly: p.VirtOnly(),
			}
			provided, _ := stash.LookupProvidedProducts(p.ID)
			for _, pp := range provided {
				pv.Provides = append(pv.Provides, pp.ProductName)
			}
			v.Pools = append(v.Pools, pv)
		}
		views = append(views, v)
	}
	return views
}

func formatQuantity(n int) string {
	if n == core.Unlimited {
		return "Unlimited"
	}
	return strconv.Itoa(n)
}
