package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/revelly2/smart-store-front/domain"
	"github.com/revelly2/smart-store-front/internal/access"
	"github.com/revelly2/smart-store-front/internal/console"
	"github.com/revelly2/smart-store-front/internal/report"
)

const help = `commands:
  login <username> <password>   sign in
  logout                        sign out and empty the cart
  open <path>                   check whether a view may be opened
  products [search]             list products in the current category
  category <name>               filter products by category ("All" for every one)
  add <id>                      add one unit to the cart
  qty <id> <n>                  set a cart quantity (0 removes the line)
  remove <id>                   remove a cart line
  cart                          show the cart
  clear                         empty the cart
  pay cash <amount> | pay card  complete the sale
  pending                       list sales waiting to be recorded
  flush                         record waiting sales now
  rejected                      list sales the backend refused to record
  receipt <sale id>             print a receipt
  sales [search]                list recorded sales (admin)
  dashboard                     sales summary (admin)
  quit`

// shell is a line-oriented front end for the console.
type shell struct {
	c         *console.Console
	out       io.Writer
	storeName string
	category  string
	loc       *time.Location
}

func newShell(c *console.Console, out io.Writer, storeName string) *shell {
	return &shell{c: c, out: out, storeName: storeName, category: "All", loc: time.Local}
}

// Run reads commands from in until EOF, "quit" or ctx is done.
func (s *shell) Run(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(s.out, "%s point of sale. Type \"help\" for commands.\n", s.storeName)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, s.prompt())
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
}

func (s *shell) prompt() string {
	if id, ok := s.c.Session().Identity(); ok {
		return fmt.Sprintf("%s (%s)> ", id.Username, id.Role)
	}
	return "> "
}

var errUsage = errors.New("wrong arguments, see help")

func (s *shell) exec(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(s.out, help)
	case "login":
		if len(args) != 2 {
			return errUsage
		}
		next, err := s.c.Login(ctx, args[0], args[1], "")
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "signed in, opening %s\n", next)
		if err := s.c.LoadProducts(ctx); err != nil {
			return err
		}
	case "logout":
		fmt.Fprintf(s.out, "signed out, opening %s\n", s.c.Logout(ctx))
	case "open":
		if len(args) != 1 {
			return errUsage
		}
		s.describe(s.c.Open(args[0]))
	case "products":
		s.products(strings.Join(args, " "))
	case "category":
		if len(args) == 0 {
			fmt.Fprintln(s.out, strings.Join(s.c.Categories(), ", "))
			return nil
		}
		s.category = strings.Join(args, " ")
		s.products("")
	case "add":
		id, err := intArg(args, 0)
		if err != nil {
			return err
		}
		if err := s.c.AddToCart(id); err != nil {
			return err
		}
		s.cart()
	case "qty":
		id, err := intArg(args, 0)
		if err != nil {
			return err
		}
		n, err := intArg(args, 1)
		if err != nil {
			return err
		}
		s.c.Cart().UpdateQuantity(id, n)
		s.cart()
	case "remove":
		id, err := intArg(args, 0)
		if err != nil {
			return err
		}
		s.c.Cart().Remove(id)
		s.cart()
	case "cart":
		s.cart()
	case "clear":
		s.c.Cart().Clear()
	case "pay":
		return s.pay(ctx, args)
	case "pending":
		for _, req := range s.c.Outbox().Pending() {
			fmt.Fprintf(s.out, "%s  %s  %d line(s)\n", req.Reference, req.PaymentMethod, len(req.Items))
		}
	case "rejected":
		for _, e := range s.c.Outbox().Rejected() {
			fmt.Fprintf(s.out, "%s  %s  %s\n", e.Reference, e.PaymentMethod, e.Reason)
		}
	case "flush":
		n, err := s.c.FlushOutbox(ctx)
		fmt.Fprintf(s.out, "%d sale(s) recorded\n", n)
		return err
	case "receipt":
		id, err := intArg(args, 0)
		if err != nil {
			return err
		}
		body, err := s.c.Receipt(ctx, id)
		if err != nil {
			return err
		}
		s.out.Write(body)
	case "sales":
		sales, err := s.c.Sales(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		s.sales(sales)
	case "dashboard":
		dash, err := s.c.Dashboard(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "today\t%d\t%s\n", dash.Summary.Today.Count, report.FormatCurrency(dash.Summary.Today.Total))
		fmt.Fprintf(w, "week\t%d\t%s\n", dash.Summary.Week.Count, report.FormatCurrency(dash.Summary.Week.Total))
		fmt.Fprintf(w, "month\t%d\t%s\n", dash.Summary.Month.Count, report.FormatCurrency(dash.Summary.Month.Total))
		w.Flush()
		s.sales(dash.Recent)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func (s *shell) describe(d access.Decision) {
	switch d.Outcome {
	case access.Redirect:
		fmt.Fprintf(s.out, "%s -> %s\n", d.Outcome, d.Location)
	default:
		fmt.Fprintln(s.out, d.Outcome)
	}
}

func (s *shell) products(search string) {
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, p := range s.c.Browse(search, s.category) {
		stock := strconv.FormatInt(p.Stock, 10)
		if !p.InStock() {
			stock = "out of stock"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, report.FormatCurrency(p.Price), stock)
	}
	w.Flush()
}

func (s *shell) cart() {
	cart := s.c.Cart()
	if cart.IsEmpty() {
		fmt.Fprintln(s.out, "cart is empty")
		return
	}
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, line := range cart.Lines() {
		fmt.Fprintf(w, "%d\t%s\t%d x %s\t%s\n", line.ProductID, line.Name, line.Quantity,
			report.FormatCurrency(line.UnitPrice), report.FormatCurrency(line.Subtotal()))
	}
	fmt.Fprintf(w, "\t%d item(s)\t\t%s\n", cart.TotalItems(), report.FormatCurrency(cart.TotalPrice()))
	w.Flush()
}

func (s *shell) pay(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	method := domain.PaymentMethod(args[0])
	tendered := ""
	if method == domain.PaymentCash {
		if len(args) != 2 {
			return errUsage
		}
		tendered = args[1]
	}
	conf, err := s.c.CompleteSale(ctx, method, tendered)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "sale confirmed, total %s\n", report.FormatCurrency(conf.Sale.Total))
	if method == domain.PaymentCash {
		fmt.Fprintf(s.out, "change due %s\n", report.FormatCurrency(conf.Change))
	}
	if conf.RecordErr != nil {
		fmt.Fprintf(s.out, "not recorded yet (%v), queued as %s\n", conf.RecordErr, conf.Sale.Reference)
	}
	if conf.ReceiptErr == nil {
		s.out.Write(conf.Receipt)
	}
	s.c.Checkout().Finish()
	return nil
}

func (s *shell) sales(sales []domain.Sale) {
	w := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for _, sale := range sales {
		fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%s\n", sale.ID, report.FormatDate(sale.CreatedAt, s.loc),
			sale.CashierName, sale.PaymentMethod, report.FormatCurrency(sale.Total))
	}
	w.Flush()
}

func intArg(args []string, i int) (int64, error) {
	if i >= len(args) {
		return 0, errUsage
	}
	n, err := strconv.ParseInt(args[i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", args[i])
	}
	return n, nil
}
