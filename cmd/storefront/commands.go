package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	storeerrors "github.com/jrsteele09/go-storefront/internal/errors"
	"github.com/jrsteele09/go-storefront/orders"
	"github.com/jrsteele09/go-storefront/placement"
	"github.com/jrsteele09/go-storefront/sessions"
	"github.com/jrsteele09/go-storefront/storefront"
)

type commandLine struct {
	app     *storefront.App
	in      io.Reader
	out     io.Writer
	updates <-chan placement.Snapshot
}

func usage(out io.Writer) {
	fmt.Fprint(out, `Usage: storefront <command> [flags]

Commands:
  login -u <username> -p <password>
  logout
  whoami
  register -u <username> -p <password> -email <email> -first <name> -last <name> -bank <account>
  stock
  orders
  order <id>
  refund <id>
  place -product <id> [-qty <n>]   press Enter during the countdown to cancel
`)
}

func (c *commandLine) dispatch(ctx context.Context, args []string) error {
	name, rest := args[0], args[1:]
	switch name {
	case "login":
		return c.login(ctx, rest)
	case "logout":
		c.app.Sessions().Logout()
		fmt.Fprintln(c.out, "Logged out.")
		return nil
	case "whoami":
		return c.whoami()
	case "register":
		return c.register(ctx, rest)
	case "stock":
		return c.stock(ctx)
	case "orders":
		return c.orders(ctx)
	case "order":
		return c.order(ctx, rest)
	case "refund":
		return c.refund(ctx, rest)
	case "place":
		return c.place(ctx, rest)
	case "help", "-h", "--help":
		usage(c.out)
		return nil
	}
	usage(c.out)
	return fmt.Errorf("unknown command %q", name)
}

func (c *commandLine) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}

func (c *commandLine) login(ctx context.Context, args []string) error {
	fs := c.flags("login")
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	identity, err := c.app.Sessions().Login(ctx, *username, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Logged in as %s (user id %d).\n", identity.Username, identity.UserID)
	return nil
}

func (c *commandLine) whoami() error {
	current := c.app.Sessions().Current()
	if !current.Authenticated() {
		fmt.Fprintln(c.out, "Not logged in.")
		return nil
	}
	fmt.Fprintf(c.out, "%s <%s> (user id %d)\n", current.User.Username, current.User.Email, current.User.UserID)
	return nil
}

func (c *commandLine) register(ctx context.Context, args []string) error {
	fs := c.flags("register")
	var req sessions.RegisterRequest
	fs.StringVar(&req.Username, "u", "", "username")
	fs.StringVar(&req.Password, "p", "", "password (at least 8 characters)")
	fs.StringVar(&req.Email, "email", "", "email address")
	fs.StringVar(&req.FirstName, "first", "", "first name")
	fs.StringVar(&req.LastName, "last", "", "last name")
	fs.StringVar(&req.BankAccountID, "bank", "", "bank account id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := c.app.Sessions().Register(ctx, req); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Account created successfully. You can now sign in.")
	return nil
}

func (c *commandLine) stock(ctx context.Context) error {
	products, err := c.app.Catalog().Refresh(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPRODUCT\tPRICE\tSTOCK\tWAREHOUSES")
	for _, p := range products {
		stock := strconv.Itoa(p.TotalQuantity)
		if !p.InStock() {
			stock = "out of stock"
		}
		var warehouses []string
		for _, w := range p.Warehouses {
			warehouses = append(warehouses, fmt.Sprintf("%s: %d", w.WarehouseName, w.Quantity))
		}
		fmt.Fprintf(tw, "%d\t%s\t$%.2f\t%s\t%s\n", p.ProductID, p.ProductName, p.Price, stock, strings.Join(warehouses, ", "))
	}
	return tw.Flush()
}

func (c *commandLine) orders(ctx context.Context) error {
	_, err := c.app.RefreshOrders(ctx)
	if err != nil && storeerrors.Is(err, storeerrors.ErrAuthentication) {
		return err
	}
	if err != nil {
		fmt.Fprintf(c.out, "%s Showing cached orders.\n", err)
	}

	cached := c.app.Cache().Orders()
	if len(cached) == 0 {
		fmt.Fprintln(c.out, "You do not have any tracked orders yet.")
		return nil
	}
	return c.printOrders(cached...)
}

func (c *commandLine) printOrders(list ...orders.Order) error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tSTATUS\tPRODUCT\tQTY\tTOTAL\tBANK TX\tUPDATED")
	for _, o := range list {
		updated := o.UpdatedAt
		if updated == "" {
			updated = "Unknown"
		}
		fmt.Fprintf(tw, "#%d\t%s\t%d\t%d\t%s\t%s\t%s\n",
			o.OrderID, o.Status.Label(), o.ProductID, o.Quantity, o.TotalLabel(), o.TransactionLabel(), updated)
	}
	return tw.Flush()
}

func (c *commandLine) order(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return storeerrors.Display(storeerrors.ErrValidation, "Enter a valid order ID.")
	}
	found, err := c.app.LookupOrder(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Order %d loaded.\n", found.OrderID)
	return c.printOrders(found)
}

func (c *commandLine) refund(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return storeerrors.Display(storeerrors.ErrValidation, "Enter a valid order ID.")
	}
	orderID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || orderID < 1 {
		return storeerrors.Display(storeerrors.ErrValidation, "Enter a valid order ID.")
	}

	if _, err := c.app.RequestRefund(ctx, orderID); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Refund requested for order %d.\n", orderID)
	return nil
}

// place submits an order and then watches its cancellation window; a line on
// stdin while the window is open cancels the order.
func (c *commandLine) place(ctx context.Context, args []string) error {
	fs := c.flags("place")
	productID := fs.Int64("product", 0, "product id")
	quantity := fs.Int("qty", 1, "quantity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := c.app.Catalog().Refresh(ctx); err != nil {
		return err
	}
	workflow := c.app.Placement()
	created, err := workflow.Submit(ctx, *productID, *quantity)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, workflow.Snapshot().Message)
	fmt.Fprintln(c.out, "Press Enter to cancel.")

	enter := make(chan struct{}, 1)
	go func() {
		if _, err := bufio.NewReader(c.in).ReadString('\n'); err == nil {
			enter <- struct{}{}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			workflow.Stop()
			return ctx.Err()
		case <-enter:
			if _, err := workflow.Cancel(ctx); err != nil {
				return err
			}
			fmt.Fprintln(c.out, workflow.Snapshot().Message)
			return nil
		case snap := <-c.updates:
			switch snap.State {
			case placement.PlacedCancelable:
				if snap.Session.OrderID == created.OrderID {
					fmt.Fprintf(c.out, "Cancel (%d)\n", snap.Session.Remaining)
				}
			case placement.Expired:
				fmt.Fprintf(c.out, "Order %d stands as placed.\n", created.OrderID)
				return nil
			case placement.Idle:
				return nil
			}
		}
	}
}
