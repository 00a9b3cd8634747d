package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aussiebroadwan/loyalty/internal/app"
	"github.com/aussiebroadwan/loyalty/internal/guard"
	"github.com/aussiebroadwan/loyalty/pkg/loyaltysdk"
	"github.com/common-nighthawk/go-figure"
)

const usage = `usage: loyaltyctl <command> [args]

commands:
  login otp <email>     sign in with an emailed one-time code
  login google          sign in with Google in the browser
  login phone           sign in with a phone ID token
  logout                end the session
  whoami                show the signed-in profile
  users [id]            list customers, or show one
  transactions [id]     list transactions, or show one
  stores [id]           list stores, or show one
  settings              show loyalty settings
  analytics             show the dashboard analytics
  lookup <field>=<val>  find a customer by code, phone or email (store=<id> required)
  metrics               print client metrics
`

// errSignedOut reports a command refused because no session is held.
var errSignedOut = errors.New("not signed in: run `loyaltyctl login otp <email>` first")

// routes maps each data command to the page the guard protects it with.
var routes = map[string]string{
	"login":        "/login",
	"whoami":       "/dashboard",
	"users":        "/users",
	"transactions": "/transactions",
	"stores":       "/store",
	"settings":     "/settings",
	"analytics":    "/analytics",
	"lookup":       "/transactions/create",
}

func main() {
	if len(os.Args) < 2 {
		figure.NewFigure("loyaltyctl", "cybermedium", true).Print()
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := app.LoadConfig()

	application, err := app.New(cfg, nil)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	application.Client().Notifier = loyaltysdk.NotifierFunc(func(_ context.Context, n loyaltysdk.Notification) {
		fmt.Fprintf(os.Stderr, "! %s\n", n.Message)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, application, os.Args[1], os.Args[2:])
	stop()

	if shutdownErr := application.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "loyaltyctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, application *app.Application, cmd string, args []string) error {
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}

	if cmd == "metrics" {
		return application.WriteMetrics(os.Stdout)
	}
	if cmd == "logout" {
		if err := application.Session().Logout(ctx); err != nil {
			return err
		}
		fmt.Println("signed out")
		return nil
	}

	path, ok := routes[cmd]
	if !ok {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}

	res := application.Guard().Resolve(ctx, path)
	switch res.Decision {
	case guard.Redirect:
		if res.Target == guard.DefaultRules().LoginPath {
			return errSignedOut
		}
		user := application.Session().Session().User
		fmt.Printf("already signed in as %s; run `loyaltyctl logout` first\n", user.Email)
		return nil
	case guard.Forbidden:
		return fmt.Errorf("your account may not open %s", path)
	case guard.Wait:
		return errors.New("session is still loading")
	}

	return dispatch(ctx, application, cmd, args)
}

func dispatch(ctx context.Context, application *app.Application, cmd string, args []string) error {
	q := application.Queries()
	arg := func() string {
		if len(args) > 0 {
			return args[0]
		}
		return ""
	}

	switch cmd {
	case "login":
		return login(ctx, application, args)
	case "whoami":
		if err := printJSON(application.Session().FetchProfile(ctx)); err != nil {
			return err
		}
		if exp, err := application.Client().AccessTokenExpiry(); err == nil {
			fmt.Printf("access token expires %s\n", exp.Local().Format(time.RFC1123))
		}
		return nil
	case "users":
		if id := arg(); id != "" {
			return printJSON(q.User(ctx, id))
		}
		return printJSON(q.Users(ctx))
	case "transactions":
		if id := arg(); id != "" {
			return printJSON(q.Transaction(ctx, id))
		}
		return printJSON(q.Transactions(ctx))
	case "stores":
		if id := arg(); id != "" {
			return printJSON(q.Store(ctx, id))
		}
		return printJSON(q.Stores(ctx))
	case "settings":
		return printJSON(q.Settings(ctx))
	case "analytics":
		return printJSON(q.Analytics(ctx))
	case "lookup":
		params, err := parseLookup(args)
		if err != nil {
			return err
		}
		return printJSON(q.Lookup(ctx, params))
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func login(ctx context.Context, application *app.Application, args []string) error {
	if len(args) == 0 {
		return errors.New("login needs a method: otp, google or phone")
	}
	ctrl := application.Session()

	switch args[0] {
	case "otp":
		if len(args) < 2 {
			return errors.New("usage: loyaltyctl login otp <email>")
		}
		email := args[1]
		if _, err := ctrl.SendOTP(ctx, email); err != nil {
			return err
		}
		fmt.Printf("Code sent to %s. Enter it: ", email)
		code, err := readLine(os.Stdin)
		if err != nil {
			return err
		}
		st, err := ctrl.VerifyOTP(ctx, email, code)
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s\n", st.User.Email)
		return nil

	case "google":
		p, err := application.GoogleProvider(ctx, os.Stdout)
		if err != nil {
			return err
		}
		st, err := ctrl.SignIn(ctx, loyaltysdk.LoginMethodGoogle, p)
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s\n", st.User.Email)
		return nil

	case "phone":
		p, err := application.PhoneProvider(ctx, os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		if err := p.RenderButton(os.Stdout); err != nil {
			return err
		}
		st, err := ctrl.SignIn(ctx, loyaltysdk.LoginMethodPhone, p)
		if err != nil {
			return err
		}
		fmt.Printf("signed in as %s\n", st.User.Email)
		return nil
	}
	return fmt.Errorf("unknown login method %q", args[0])
}

func parseLookup(args []string) (loyaltysdk.CustomerLookupParams, error) {
	var p loyaltysdk.CustomerLookupParams
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return p, fmt.Errorf("lookup arguments are field=value, got %q", a)
		}
		switch k {
		case "store":
			p.StoreID = v
		case "code":
			p.UserStoreCode = v
		case "phone":
			p.PhoneNumber = v
		case "email":
			p.Email = v
		default:
			return p, fmt.Errorf("unknown lookup field %q", k)
		}
	}
	return p, nil
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(sc.Text()), nil
}

func printJSON[T any](v T, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
