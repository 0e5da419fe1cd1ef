package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"github.com/MrEthical07/challengeAuth/identity/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type account struct {
	id   int64
	name string
	hash string
}

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of verified accounts to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (handshake + resolve)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
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
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := challengeAuth.DefaultConfig()
	cfg.Token.PrivateKey = []byte("loadtest-signing-key-0123456789")
	cfg.Security.MaxLoginAttempts = 0

	store := memstore.New()
	engine, err := challengeAuth.New().WithConfig(cfg).WithRedis(client).WithStore(store).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}

	perm, err := engine.CreatePermission(ctx, "reports.read")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create permission: %v\n", err)
		os.Exit(1)
	}
	role, err := engine.CreateRole(ctx, "viewer", []string{perm.Name})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create role: %v\n", err)
		os.Exit(1)
	}

	seeded := make([]account, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := 0; i < *accounts; i++ {
		name := fmt.Sprintf("user%d", i)
		ident, err := engine.Register(ctx, name, name+"@loadtest.local", "pw-"+name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "register failed: %v\n", err)
			os.Exit(1)
		}
		if err := store.MarkEmailVerified(ctx, ident.ID, time.Now()); err != nil {
			fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
			os.Exit(1)
		}
		if err := engine.AddRoleToIdentity(ctx, ident.ID, role.ID); err != nil {
			fmt.Fprintf(os.Stderr, "grant failed: %v\n", err)
			os.Exit(1)
		}
		// The stored hash is what a client derives from salt and password.
		seeded[i] = account{id: ident.ID, name: name, hash: ident.PasswordHash}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	handshakeStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		return handshake(ctx, engine, seeded[r.Intn(len(seeded))])
	})
	resolveStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		acct := seeded[r.Intn(len(seeded))]
		resolved, err := engine.Resolve(ctx, acct.id)
		if err != nil {
			return err
		}
		if !resolved.HasPermission(perm.Name) {
			return fmt.Errorf("account %d lost %s", acct.id, perm.Name)
		}
		return nil
	})

	fmt.Println("---- results ----")
	printStats("handshake", handshakeStats)
	printStats("resolve", resolveStats)
}

func handshake(ctx context.Context, engine *challengeAuth.Engine, acct account) error {
	ch, err := engine.InitLogin(ctx, acct.name)
	if err != nil {
		return err
	}
	processed, err := challengeAuth.EncryptChallenge(acct.hash, ch.IV, ch.Challenge)
	if err != nil {
		return err
	}
	res, err := engine.VerifyChallenge(ctx, ch.SessionID, processed, false)
	if err != nil {
		return err
	}
	if !res.Authenticated() {
		return fmt.Errorf("unexpected login code %s", res.Code)
	}
	return nil
}

func runPhase(ops, concurrency int, seed int64, op func(r *rand.Rand) error) phaseStats {
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
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
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
	total := time.Since(start)
	return computeStats(total, latencies, failures)
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
		return phaseStats{total: total}
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

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
