// Command account-admin manages learner accounts directly against the store.
//
//	account-admin create -username alice -email alice@example.com [-tier premium]
//	account-admin set-tier -login alice -tier premium [-expires 2025-12-31]
//	account-admin deactivate -login alice
//	account-admin activate -login alice
//	account-admin usage -login alice
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"bytebuddy/config"
	"bytebuddy/internal/auth"
	"bytebuddy/internal/cache"
	"bytebuddy/internal/database"
	"bytebuddy/internal/logging"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/storage"
	"bytebuddy/internal/usage"
)

type app struct {
	accounts     database.AccountStore
	quota        *quota.Service
	auth         *auth.Service
	out          io.Writer
	readPassword func() (string, error)
}

func main() {
	if len(os.Args) < 2 {
		usageText(os.Stderr)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("Failed to load configuration: %v", err)
	}
	logging.SetDefault(logging.New(&logging.Config{Level: "WARN", Output: "stderr", Component: "account-admin"}))

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		fatal("Failed to open store: %v", err)
	}
	defer store.Close()

	// Writes go through the account cache so running servers drop stale principals
	var principals cache.Cache
	if cfg.Redis.Enabled {
		cs, err := cache.NewCacheService(cfg.Redis)
		if err != nil {
			fatal("Failed to connect to Redis: %v", err)
		}
		defer cs.Close()
		principals = cs
	}
	accounts := cache.NewAccountCache(store, principals, cfg.Redis.PrincipalTTL)

	policy, err := cfg.QuotaPolicy()
	if err != nil {
		fatal("Invalid quota policy: %v", err)
	}

	authCfg := auth.DefaultConfig()
	authCfg.JWTSecret = cfg.Auth.JWTSecret
	if authCfg.JWTSecret == "" {
		// Tokens issued here are discarded
		authCfg.JWTSecret = "account-admin"
	}
	authCfg.BcryptCost = cfg.Auth.BcryptCost
	authCfg.MinPasswordLength = cfg.Auth.MinPasswordLength
	authService, err := auth.NewService(accounts, authCfg)
	if err != nil {
		fatal("Failed to initialize auth: %v", err)
	}

	a := &app{
		accounts:     accounts,
		quota:        quota.NewService(store, policy),
		auth:         authService,
		out:          os.Stdout,
		readPassword: promptPassword,
	}
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fatal("%v", err)
	}
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usageText(a.out)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "create":
		return a.create(ctx, rest)
	case "set-tier":
		return a.setTier(ctx, rest)
	case "activate":
		return a.setActive(ctx, rest, true)
	case "deactivate":
		return a.setActive(ctx, rest, false)
	case "usage":
		return a.usage(ctx, rest)
	case "help", "-h", "--help":
		usageText(a.out)
		return nil
	default:
		usageText(a.out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	username := fs.String("username", "", "username")
	email := fs.String("email", "", "email address")
	fullName := fs.String("full-name", "", "display name")
	tier := fs.String("tier", string(usage.TierFree), "subscription tier")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return errors.New("create: -username and -email are required")
	}
	t, err := usage.ParseTier(*tier)
	if err != nil {
		return err
	}

	password, err := a.readPassword()
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	resp, err := a.auth.Register(ctx, auth.RegisterRequest{
		Username: *username,
		Email:    *email,
		Password: password,
		FullName: *fullName,
	})
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if t != usage.TierFree {
		if err := a.accounts.UpdateSubscription(ctx, resp.User.ID, t, nil); err != nil {
			return fmt.Errorf("create: set tier: %w", retryHint(err))
		}
	}

	fmt.Fprintf(a.out, "Created account %s (%s, %s)\n", resp.User.ID, resp.User.Username, t)
	return nil
}

func (a *app) setTier(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("set-tier", flag.ContinueOnError)
	login := fs.String("login", "", "username, email or account id")
	tier := fs.String("tier", "", "subscription tier")
	expires := fs.String("expires", "", "subscription expiry (2006-01-02)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := usage.ParseTier(*tier)
	if err != nil {
		return err
	}
	var expiresAt *time.Time
	if *expires != "" {
		at, err := time.Parse("2006-01-02", *expires)
		if err != nil {
			return fmt.Errorf("set-tier: invalid -expires: %w", err)
		}
		expiresAt = &at
	}

	acct, err := a.find(ctx, *login)
	if err != nil {
		return err
	}
	if err := a.accounts.UpdateSubscription(ctx, acct.ID, t, expiresAt); err != nil {
		return fmt.Errorf("set-tier: %w", retryHint(err))
	}

	fmt.Fprintf(a.out, "%s: %s -> %s\n", acct.Username, acct.SubscriptionTier, t)
	return nil
}

func (a *app) setActive(ctx context.Context, args []string, active bool) error {
	name := "deactivate"
	if active {
		name = "activate"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	login := fs.String("login", "", "username, email or account id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	acct, err := a.find(ctx, *login)
	if err != nil {
		return err
	}
	if err := a.accounts.SetAccountActive(ctx, acct.ID, active); err != nil {
		return fmt.Errorf("%s: %w", name, retryHint(err))
	}

	fmt.Fprintf(a.out, "%s: active=%t\n", acct.Username, active)
	return nil
}

func (a *app) usage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ContinueOnError)
	login := fs.String("login", "", "username, email or account id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	acct, err := a.find(ctx, *login)
	if err != nil {
		return err
	}
	snap, err := a.quota.Snapshot(ctx, acct)
	if err != nil {
		return fmt.Errorf("usage: %w", err)
	}

	fmt.Fprintf(a.out, "%s  tier=%s  month=%s\n", acct.Username, snap.Tier, snap.Period)
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FEATURE\tUSED\tLIMIT\tREMAINING")
	features := make([]string, 0, len(snap.Features))
	for f := range snap.Features {
		features = append(features, string(f))
	}
	sort.Strings(features)
	for _, f := range features {
		u := snap.Features[usage.Feature(f)]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", f, u.Used, u.Limit, u.Remaining)
	}
	return w.Flush()
}

// find resolves an account by username or email, then by id
func (a *app) find(ctx context.Context, login string) (*database.Account, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, errors.New("-login is required")
	}
	acct, err := a.accounts.GetAccountByLogin(ctx, login)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, database.ErrAccountNotFound) {
		return nil, err
	}
	acct, err = a.accounts.GetAccountByID(ctx, login)
	if err != nil {
		return nil, fmt.Errorf("no account matches %q", login)
	}
	return acct, nil
}

// retryHint marks writes that were stored while running servers may still
// serve the old principal
func retryHint(err error) error {
	if errors.Is(err, cache.ErrEvictionFailed) {
		return fmt.Errorf("%w (change saved, rerun the command once Redis is reachable)", err)
	}
	return err
}

// promptPassword reads without echo from a terminal, or one line from a pipe
func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func usageText(w io.Writer) {
	fmt.Fprintln(w, "Usage: account-admin <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  create      -username NAME -email EMAIL [-full-name NAME] [-tier free|premium|enterprise]")
	fmt.Fprintln(w, "  set-tier    -login LOGIN -tier TIER [-expires YYYY-MM-DD]")
	fmt.Fprintln(w, "  activate    -login LOGIN")
	fmt.Fprintln(w, "  deactivate  -login LOGIN")
	fmt.Fprintln(w, "  usage       -login LOGIN")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "account-admin: "+format+"\n", args...)
	os.Exit(1)
}
