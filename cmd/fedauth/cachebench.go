package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/fedAuth/accountcache"
)

type benchOptions struct {
	accounts    int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
	clientID    string
}

func newCacheBenchCmd() *cobra.Command {
	opts := benchOptions{}
	cmd := &cobra.Command{
		Use:   "cachebench",
		Short: "Seed the shared account cache and measure lookups",
		Long: `cachebench seeds accounts and access tokens into the Redis account cache and
measures account reads and covering-scope token lookups under concurrency. Without
--redis-addr or REDIS_ADDR it runs against an embedded miniredis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.accounts <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
				return fmt.Errorf("accounts, concurrency, and ops must be > 0")
			}
			return runCacheBench(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.accounts, "accounts", 10000, "number of accounts to seed")
	f.IntVar(&opts.concurrency, "concurrency", 64, "number of concurrent workers")
	f.IntVar(&opts.ops, "ops", 50000, "operations per phase")
	f.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	f.StringVar(&opts.prefix, "prefix", "fa-bench", "cache key prefix")
	f.StringVar(&opts.clientID, "client-id", "bench", "client id namespace")
	return cmd
}

func runCacheBench(ctx context.Context, out io.Writer, opts benchOptions) error {
	addr := opts.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("failed to start miniredis: %w", err)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Fprintf(out, "using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	defer cleanup()

	store := accountcache.NewStore(client, opts.prefix, opts.clientID)
	homes := make([]string, opts.accounts)

	fmt.Fprintf(out, "seeding %d accounts...\n", opts.accounts)
	startSeed := time.Now()
	expires := time.Now().Add(time.Hour).Unix()
	for i := 0; i < opts.accounts; i++ {
		rec := benchRecord(i)
		homes[i] = rec.HomeAccountID
		if err := store.SaveAccount(ctx, rec); err != nil {
			return fmt.Errorf("save account: %w", err)
		}
		err := store.SaveToken(ctx, rec.HomeAccountID, &accountcache.TokenEntry{
			AccessToken: fmt.Sprintf("at-%d", i),
			Scopes:      []string{"openid", "profile", "User.Read"},
			ExpiresAt:   expires,
		})
		if err != nil {
			return fmt.Errorf("save token: %w", err)
		}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	accountStats := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		_, err := store.Account(ctx, homes[r.Intn(len(homes))])
		return err
	})
	tokenStats := runPhase(opts.ops, opts.concurrency, func(r *rand.Rand) error {
		_, err := store.Token(ctx, homes[r.Intn(len(homes))], []string{"User.Read"})
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "account", accountStats)
	printStats(out, "token", tokenStats)

	if err := store.RemoveAll(ctx); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func benchRecord(i int) *accountcache.Record {
	return &accountcache.Record{
		HomeAccountID:  fmt.Sprintf("oid-%d.tenant-bench", i),
		LocalAccountID: fmt.Sprintf("oid-%d", i),
		Environment:    "login.microsoftonline.com",
		TenantID:       "tenant-bench",
		Username:       fmt.Sprintf("user%d@example.com", i),
		Name:           fmt.Sprintf("User %d", i),
		RefreshToken:   fmt.Sprintf("rt-%d", i),
		CachedAt:       time.Now().Unix() + int64(i),
	}
}
