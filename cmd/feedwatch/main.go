// feedwatch fetches one timeline page and prints it as JSON. It exists to
// exercise the aggregation engine end to end from a terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/cache"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/config"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/feed"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/nostr"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/relay"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

// initLogger sets up structured JSON logging. Log level is controlled by
// the LOG_LEVEL env var (debug/info/warn/error).
func initLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	// .env is optional; real env always wins.
	_ = godotenv.Load()
	initLogger()

	var (
		scope       = flag.String("scope", "global", "feed scope: following or global")
		viewer      = flag.String("viewer", os.Getenv("NOSTR_PUBKEY"), "viewer pubkey (hex), required for the following scope")
		pageSize    = flag.Int("page", 20, "page size")
		cursor      = flag.Int64("cursor", 0, "fetch entries strictly older than this unix timestamp")
		includeSelf = flag.Bool("include-self", false, "include the viewer's own posts in the following scope")
		likeTarget  = flag.String("like", "", "publish a like instead of fetching: <event-id>:<author-pubkey>")
		timeout     = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backend, backendName := cache.FromEnv()
	defer backend.Close()
	slog.Info("cache backend selected", "backend", backendName)

	relays := config.NewFileSource(os.Getenv("RELAYS_CONFIG"))
	pool := relay.NewPool()
	defer pool.Close()
	mux := relay.NewMultiplexer(pool)

	if *likeTarget != "" {
		if err := runLike(ctx, mux, relays, *likeTarget); err != nil {
			slog.Error("like failed", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg := cache.DefaultConfig()
	profiles := feed.NewProfileService(backend, cfg, mux, relays)
	defer profiles.Close()
	follows := feed.NewFollowService(backend, cfg, mux, relays)
	resolver := feed.NewReferenceResolver(mux, relays)
	counter := feed.NewEngagementCounter(mux, relays, cfg)
	engine := feed.NewEngine(mux, relays, profiles, follows, resolver, counter)

	result, err := engine.GetTimeline(ctx, feed.TimelineQuery{
		Scope:       types.FeedScope(*scope),
		Viewer:      *viewer,
		PageSize:    *pageSize,
		Cursor:      *cursor,
		IncludeSelf: *includeSelf,
	})
	if err != nil {
		if errors.Is(err, feed.ErrEmptyScope) {
			slog.Error("nothing to aggregate: the viewer follows nobody", "viewer", *viewer)
		} else {
			slog.Error("timeline fetch failed", "error", err)
		}
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		slog.Error("encoding result failed", "error", err)
		os.Exit(1)
	}

	hits, misses := feed.CacheStats()
	slog.Info("done", "cache_hits", hits, "cache_misses", misses)
}

// runLike publishes a "+" reaction. Requires NOSTR_SECRET_KEY.
func runLike(ctx context.Context, mux *relay.Multiplexer, relays config.Source, target string) error {
	parts := strings.SplitN(target, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("expected <event-id>:<author-pubkey>, got %q", target)
	}

	var signer nostr.Signer
	if sk := os.Getenv("NOSTR_SECRET_KEY"); sk != "" {
		s, err := nostr.NewLocalSigner(sk)
		if err != nil {
			return fmt.Errorf("loading signing key: %w", err)
		}
		signer = s
	}

	actions := feed.NewActions(mux, relays, signer)
	return actions.ToggleLike(ctx, parts[0], parts[1])
}
