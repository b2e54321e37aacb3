package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ipfs-social/go-backend/internal/app"
	"ipfs-social/go-backend/internal/config"
	"ipfs-social/go-backend/internal/contentstore"
	"ipfs-social/go-backend/internal/feed"
	"ipfs-social/go-backend/internal/identity"
	"ipfs-social/go-backend/internal/platform/privacylog"
	"ipfs-social/go-backend/internal/signing"
	"ipfs-social/go-backend/pkg/models"
)

const (
	exitOK           = 0
	exitInvalidInput = 10
	exitStoreFailed  = 20
	exitIdentity     = 30
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	rt     *app.Runtime
	logger *slog.Logger
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("signfeed", flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	configPath := fs.String("config", "", "Path to config.yaml (optional)")
	dataDir := fs.String("data-dir", "", "Directory for local state (optional)")
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address during watch")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if *showVersion {
		fmt.Fprintf(stdout, "signfeed version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return exitOK
	}
	rest := fs.Args()
	if len(rest) == 0 {
		printUsage(stderr)
		return exitInvalidInput
	}

	cfg, err := config.LoadFromPath(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitInvalidInput
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	logger := privacylog.NewLogger(stderr, privacylog.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	rt, err := app.Build(cfg, logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}
	defer rt.Close()

	c := &cli{stdout: stdout, stderr: stderr, rt: rt, logger: logger}
	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "whoami":
		err = c.whoami()
	case "post":
		err = c.post(ctx, cmdArgs)
	case "follow":
		err = c.follow(cmdArgs)
	case "unfollow":
		err = c.unfollow(cmdArgs)
	case "following":
		err = c.following()
	case "record":
		err = c.record(cmdArgs)
	case "feed":
		err = c.feed(ctx)
	case "watch":
		err = c.watch(ctx, cmdArgs)
	case "backup":
		err = c.backup()
	case "restore":
		err = c.restore(cmdArgs)
	default:
		printUsage(stderr)
		return exitInvalidInput
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}
	return exitOK
}

var errUsage = errors.New("invalid arguments")

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, app.ErrEmptyContent),
		errors.Is(err, signing.ErrInvalidUTF8),
		errors.Is(err, identity.ErrInvalidPublicKey),
		errors.Is(err, identity.ErrInvalidMnemonic):
		return exitInvalidInput
	case errors.Is(err, identity.ErrInvalidKeyPair),
		errors.Is(err, identity.ErrMnemonicUnavailable):
		return exitIdentity
	default:
		return exitStoreFailed
	}
}

func (c *cli) whoami() error {
	kp, err := c.rt.Service.LoadOrCreateIdentity()
	if err != nil {
		return err
	}
	return c.printJSON(map[string]any{
		"author":      kp.Author(),
		"fingerprint": identity.Fingerprint(kp.Author()),
	})
}

func (c *cli) post(ctx context.Context, args []string) error {
	content := strings.Join(args, " ")
	kp, err := c.rt.Service.LoadOrCreateIdentity()
	if err != nil {
		return err
	}
	res, err := c.rt.Service.Publish(ctx, content, kp)
	if err != nil {
		return err
	}
	return c.printJSON(entryView(models.TimelineEntry{SignedPost: res.SignedPost, Address: res.Address}))
}

func (c *cli) follow(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: follow <public-key>", errUsage)
	}
	return c.updateFollowing(func(set feed.FollowSet) (feed.FollowSet, error) {
		return c.rt.Service.Follow(set, args[0])
	})
}

func (c *cli) unfollow(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: unfollow <public-key>", errUsage)
	}
	return c.updateFollowing(func(set feed.FollowSet) (feed.FollowSet, error) {
		return c.rt.Service.Unfollow(set, args[0])
	})
}

func (c *cli) updateFollowing(update func(feed.FollowSet) (feed.FollowSet, error)) error {
	set, err := feed.LoadFollowSet(c.rt.KV)
	if err != nil {
		return err
	}
	next, err := update(set)
	if err != nil {
		return err
	}
	if err := feed.SaveFollowSet(c.rt.KV, next); err != nil {
		return err
	}
	return c.printJSON(next.Keys())
}

func (c *cli) following() error {
	set, err := feed.LoadFollowSet(c.rt.KV)
	if err != nil {
		return err
	}
	return c.printJSON(set.Keys())
}

func (c *cli) record(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: record <public-key> <address>", errUsage)
	}
	return c.rt.Service.RecordAddress(args[0], models.Address(args[1]))
}

func (c *cli) feed(ctx context.Context) error {
	set, err := feed.LoadFollowSet(c.rt.KV)
	if err != nil {
		return err
	}
	entries, err := c.rt.Service.RefreshFeed(ctx, set)
	if err != nil {
		return err
	}
	return c.printJSON(timelineView(entries))
}

func (c *cli) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	interval := fs.Duration("interval", 30*time.Second, "refresh interval")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", errUsage)
	}

	if addr := c.rt.Config.Metrics.Addr; addr != "" {
		stopMetrics := c.serveMetrics(addr)
		defer stopMetrics()
	}

	seen := make(map[models.Address]struct{})
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		if err := c.watchOnce(ctx, seen); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, contentstore.ErrStoreUnavailable) {
				return err
			}
			c.logger.Warn("feed refresh failed", "component", "cli", "operation", "feed.watch", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// watchOnce re-reads the follow list each pass so edits from another invocation apply.
func (c *cli) watchOnce(ctx context.Context, seen map[models.Address]struct{}) error {
	set, err := feed.LoadFollowSet(c.rt.KV)
	if err != nil {
		return err
	}
	entries, err := c.rt.Service.RefreshFeed(ctx, set)
	if err != nil {
		return err
	}
	fresh := make([]models.TimelineEntry, 0)
	for _, e := range entries {
		if _, ok := seen[e.Address]; ok {
			continue
		}
		seen[e.Address] = struct{}{}
		fresh = append(fresh, e)
	}
	for i := len(fresh) - 1; i >= 0; i-- {
		if err := c.printLine(entryView(fresh[i])); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.rt.Prometheus, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server failed", "component", "cli", "operation", "metrics.serve", "error", err.Error())
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

func (c *cli) backup() error {
	phrase, err := c.rt.Service.BackupPhrase()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.stdout, phrase)
	return err
}

func (c *cli) restore(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: restore <word>...", errUsage)
	}
	kp, err := c.rt.Service.RestoreIdentity(strings.Join(args, " "))
	if err != nil {
		return err
	}
	return c.printJSON(map[string]any{"author": kp.Author()})
}

type timelineEntryView struct {
	Content   string `json:"content"`
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	Address   string `json:"address"`
}

func entryView(e models.TimelineEntry) timelineEntryView {
	return timelineEntryView{
		Content:   e.Content,
		Author:    e.Author,
		Timestamp: e.Timestamp,
		Address:   e.Address.String(),
	}
}

func timelineView(entries []models.TimelineEntry) []timelineEntryView {
	out := make([]timelineEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView(e))
	}
	return out
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) printLine(v any) error {
	return json.NewEncoder(c.stdout).Encode(v)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "signfeed [-config path] [-data-dir path] [-metrics-addr host:port] <command> [args]")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  whoami")
	fmt.Fprintln(w, "  post <text>")
	fmt.Fprintln(w, "  follow <public-key>")
	fmt.Fprintln(w, "  unfollow <public-key>")
	fmt.Fprintln(w, "  following")
	fmt.Fprintln(w, "  record <public-key> <address>")
	fmt.Fprintln(w, "  feed")
	fmt.Fprintln(w, "  watch [-interval 30s]")
	fmt.Fprintln(w, "  backup")
	fmt.Fprintln(w, "  restore <word>...")
}
