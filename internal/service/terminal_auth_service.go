package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/access-service/internal/auth"
	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/observability"
	"github.com/spec-kit/access-service/internal/repository"
)

// ErrInvalidTerminalCredentials covers unknown terminals, wrong secrets and inactive terminals alike.
var ErrInvalidTerminalCredentials = errors.New("invalid terminal credentials")

const (
	lastSeenWriteTimeout = 5 * time.Second
	verifyTimeout        = 3 * time.Second
)

// TerminalAuthService authenticates card readers. Verified (terminal, secret) pairs are cached
// for a short TTL so a rotated secret stops working within one TTL.
type TerminalAuthService struct {
	terminals repository.TerminalRepository
	hasher    auth.SecretHasher
	logger    *zap.Logger
	metrics   *observability.Metrics

	cache    *gocache.Cache
	group    singleflight.Group
	ttl      time.Duration
	throttle time.Duration
	now      func() time.Time

	pending sync.WaitGroup
	closed  atomic.Bool
}

// TerminalAuthDependencies bundles collaborators for the terminal authenticator.
type TerminalAuthDependencies struct {
	TerminalRepo repository.TerminalRepository
	Hasher       auth.SecretHasher
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// TerminalAuthOptions tunes cache lifetime and last-seen throttling.
type TerminalAuthOptions struct {
	CacheTTL         time.Duration
	LastSeenThrottle time.Duration
}

type cachedTerminal struct {
	terminal  domain.Terminal
	expiresAt time.Time

	mu                sync.Mutex
	lastSeenUpdatedAt time.Time
}

// NewTerminalAuthService builds the authenticator.
func NewTerminalAuthService(deps TerminalAuthDependencies, opts TerminalAuthOptions) *TerminalAuthService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Second
	}
	if opts.LastSeenThrottle <= 0 {
		opts.LastSeenThrottle = time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TerminalAuthService{
		terminals: deps.TerminalRepo,
		hasher:    deps.Hasher,
		logger:    logger,
		metrics:   deps.Metrics,
		cache:     gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		ttl:       opts.CacheTTL,
		throttle:  opts.LastSeenThrottle,
		now:       time.Now,
	}
}

// Validate authenticates terminalID with its base64 encoded secret.
func (s *TerminalAuthService) Validate(ctx context.Context, terminalID, encodedSecret string) (*domain.Terminal, error) {
	if terminalID == "" {
		return nil, s.reject()
	}
	secret, err := auth.DecodeTerminalSecret(encodedSecret)
	if err != nil {
		return nil, s.reject()
	}
	key := cacheKey(terminalID, secret)

	if entry, ok := s.lookup(key); ok {
		s.metrics.RecordTerminalAuth("cache_hit")
		s.touchAsync(entry)
		terminal := entry.terminal
		return &terminal, nil
	}

	// The shared lookup outlives any single caller; each caller still honours its own ctx.
	ch := s.group.DoChan(key, func() (any, error) {
		if entry, ok := s.lookup(key); ok {
			return entry, nil
		}
		verifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), verifyTimeout)
		defer cancel()
		return s.verify(verifyCtx, key, terminalID, secret)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		if errors.Is(res.Err, ErrInvalidTerminalCredentials) {
			return nil, s.reject()
		}
		return nil, res.Err
	}
	s.metrics.RecordTerminalAuth("cache_miss")
	terminal := res.Val.(*cachedTerminal).terminal
	return &terminal, nil
}

func (s *TerminalAuthService) reject() error {
	s.metrics.RecordTerminalAuth("rejected")
	return ErrInvalidTerminalCredentials
}

func (s *TerminalAuthService) lookup(key string) (*cachedTerminal, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	entry := v.(*cachedTerminal)
	if !s.now().Before(entry.expiresAt) {
		s.cache.Delete(key)
		return nil, false
	}
	return entry, true
}

func (s *TerminalAuthService) verify(ctx context.Context, key, terminalID string, secret []byte) (*cachedTerminal, error) {
	terminal, err := s.terminals.GetByID(ctx, terminalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidTerminalCredentials
		}
		return nil, fmt.Errorf("load terminal: %w", err)
	}
	if !terminal.Active {
		return nil, ErrInvalidTerminalCredentials
	}
	if err := s.hasher.Compare(terminal.SecretHash, secret); err != nil {
		if !errors.Is(err, auth.ErrMismatchedSecret) {
			s.logger.Warn("terminal secret comparison failed", zap.String("terminal_id", terminalID), zap.Error(err))
		}
		return nil, ErrInvalidTerminalCredentials
	}

	now := s.now()
	entry := &cachedTerminal{terminal: *terminal, expiresAt: now.Add(s.ttl)}
	if terminal.LastSeenAt != nil {
		entry.lastSeenUpdatedAt = *terminal.LastSeenAt
	}
	if entry.claimLastSeen(now, s.throttle) {
		if err := s.terminals.TouchLastSeen(ctx, terminalID, now); err != nil {
			s.logger.Warn("update terminal last seen failed", zap.String("terminal_id", terminalID), zap.Error(err))
		}
	}
	s.cache.Set(key, entry, s.ttl)
	return entry, nil
}

// claimLastSeen reports whether the caller should write last-seen now and records the write time.
func (e *cachedTerminal) claimLastSeen(now time.Time, throttle time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.lastSeenUpdatedAt.IsZero() && now.Sub(e.lastSeenUpdatedAt) < throttle {
		return false
	}
	e.lastSeenUpdatedAt = now
	return true
}

func (s *TerminalAuthService) touchAsync(entry *cachedTerminal) {
	if s.closed.Load() {
		return
	}
	now := s.now()
	if !entry.claimLastSeen(now, s.throttle) {
		return
	}
	terminalID := entry.terminal.ID
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), lastSeenWriteTimeout)
		defer cancel()
		if err := s.terminals.TouchLastSeen(ctx, terminalID, now); err != nil {
			s.logger.Warn("update terminal last seen failed", zap.String("terminal_id", terminalID), zap.Error(err))
		}
	}()
}

// Forget drops every cached validation of terminalID, e.g. after its secret was rotated.
func (s *TerminalAuthService) Forget(terminalID string) {
	for key, item := range s.cache.Items() {
		if entry, ok := item.Object.(*cachedTerminal); ok && entry.terminal.ID == terminalID {
			s.cache.Delete(key)
		}
	}
}

// Close stops scheduling background writes and waits for in-flight ones until ctx is done.
func (s *TerminalAuthService) Close(ctx context.Context) error {
	s.closed.Store(true)
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func cacheKey(terminalID string, secret []byte) string {
	h := sha256.New()
	h.Write([]byte(terminalID))
	h.Write([]byte{':'})
	h.Write(secret)
	return hex.EncodeToString(h.Sum(nil))
}
