// Command falcom-loadtest drives the login, MFA, validate and refresh flows
// against a Redis-backed account store and prints latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	falcomAuth "github.com/MrEthical07/falcomAuth"
	"github.com/MrEthical07/falcomAuth/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const loadPassword = "L0ad!Test"

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

// outbox keeps the last message per recipient so workers can read back codes.
type outbox struct {
	mu   sync.Mutex
	last map[string]string
}

func (o *outbox) SendEmail(_ context.Context, to, _, body string) error {
	o.mu.Lock()
	o.last[to] = body
	o.mu.Unlock()
	return nil
}

func (o *outbox) SendSMS(ctx context.Context, phone, body string) error {
	return o.SendEmail(ctx, phone, "", body)
}

func (o *outbox) code(to string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if m := codePattern.FindStringSubmatch(o.last[to]); m != nil {
		return m[1]
	}
	return ""
}

type accountState struct {
	email string
	uid   string
	token string
	mu    sync.Mutex
}

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts to register")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 2000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "loadtest", "account key prefix")
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
	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	cfg := falcomAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("falcom-loadtest-signing-key-0123456789")
	cfg.Captcha.Required = false
	cfg.Audit.Enabled = false

	box := &outbox{last: map[string]string{}}
	engine, err := falcomAuth.New().
		WithConfig(cfg).
		WithStore(redisstore.New(client, *prefix)).
		WithEmailSender(box).
		WithSMSSender(box).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]accountState, *accounts)
	fmt.Printf("registering %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := range states {
		if err := register(ctx, engine, box, i, &states[i]); err != nil {
			fmt.Fprintf(os.Stderr, "register %d failed: %v\n", i, err)
			os.Exit(1)
		}
	}
	fmt.Printf("registered in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runPhase(states, *ops, *concurrency, func(s *accountState) error {
		challenge, err := engine.Login(ctx, falcomAuth.LoginRequest{Email: s.email, Password: loadPassword})
		if err != nil {
			return err
		}
		res, err := engine.VerifyLoginOTP(ctx, challenge.UserID, box.code(s.email))
		if err != nil {
			return err
		}
		s.uid, s.token = challenge.UserID, res.Token
		return nil
	})
	validateStats := runPhase(states, *ops, *concurrency, func(s *accountState) error {
		_, err := engine.ValidateToken(ctx, s.token)
		return err
	})
	refreshStats := runPhase(states, *ops, *concurrency, func(s *accountState) error {
		res, err := engine.RefreshToken(ctx, s.token, s.uid)
		if err == nil {
			s.token = res.Token
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("login+mfa", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
}

func register(ctx context.Context, engine *falcomAuth.Engine, box *outbox, i int, s *accountState) error {
	s.email = fmt.Sprintf("load%d@example.com", i)
	if _, err := engine.Register(ctx, falcomAuth.RegisterRequest{
		FirstName: "Load",
		LastName:  "Test",
		UserName:  fmt.Sprintf("load_%d", i),
		Email:     s.email,
		Phone:     fmt.Sprintf("9%09d", i),
		Password:  loadPassword,
	}); err != nil {
		return err
	}
	return engine.ConfirmRegistration(ctx, s.email, box.code(s.email), loadPassword)
}

// runPhase spreads ops over random accounts. Operations on one account are
// serialized so a login code is never overwritten before it is read.
func runPhase(states []accountState, ops, concurrency int, op func(*accountState) error) phaseStats {
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
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				s := &states[r.Intn(len(states))]

				s.mu.Lock()
				t0 := time.Now()
				err := op(s)
				d := time.Since(t0)
				s.mu.Unlock()
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
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%-10s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name, s.ops, s.failures, s.total.Round(time.Millisecond), s.opsPerS,
		s.p50.Round(time.Microsecond), s.p95.Round(time.Microsecond), s.p99.Round(time.Microsecond))
}
