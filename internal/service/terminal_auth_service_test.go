package service

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/spec-kit/access-service/internal/auth"
	"github.com/spec-kit/access-service/internal/auth/mocks"
	"github.com/spec-kit/access-service/internal/domain"
	"github.com/spec-kit/access-service/internal/repository/memory"
)

type TerminalAuthSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	hasher   *mocks.MockSecretHasher
	store    *memory.Store
	clock    *testClock
	svc      *TerminalAuthService
	terminal *domain.Terminal
	secret   []byte
	encoded  string
}

func (s *TerminalAuthSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.hasher = mocks.NewMockSecretHasher(s.ctrl)
	s.store = memory.New()
	s.clock = newTestClock()

	s.terminal = &domain.Terminal{TenantID: "tenant-1", BranchID: "branch-1", Name: "Front door", SecretHash: "stored-hash", Active: true}
	s.Require().NoError(s.store.Repos().Terminals.Create(context.Background(), s.terminal))

	s.secret = []byte("terminal-secret")
	s.encoded = base64.StdEncoding.EncodeToString(s.secret)

	s.svc = NewTerminalAuthService(TerminalAuthDependencies{
		TerminalRepo: s.store.Repos().Terminals,
		Hasher:       s.hasher,
	}, TerminalAuthOptions{CacheTTL: 5 * time.Second, LastSeenThrottle: time.Second})
	s.svc.now = s.clock.Now
}

func (s *TerminalAuthSuite) TearDownTest() {
	s.Require().NoError(s.svc.Close(context.Background()))
}

func (s *TerminalAuthSuite) lastSeen() *time.Time {
	t, err := s.store.Repos().Terminals.GetByID(context.Background(), s.terminal.ID)
	s.Require().NoError(err)
	return t.LastSeenAt
}

func (s *TerminalAuthSuite) TestCacheHitSkipsSecretComparison() {
	s.hasher.EXPECT().Compare("stored-hash", s.secret).Return(nil).Times(1)

	first, err := s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)
	second, err := s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)

	s.Equal(s.terminal.ID, first.ID)
	s.Equal(first.ID, second.ID)
}

func (s *TerminalAuthSuite) TestCacheExpiresAfterTTL() {
	s.hasher.EXPECT().Compare("stored-hash", s.secret).Return(nil).Times(2)

	_, err := s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)

	s.clock.Advance(4999 * time.Millisecond)
	_, err = s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)

	s.clock.Advance(time.Millisecond)
	_, err = s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)
}

func (s *TerminalAuthSuite) TestWrongSecretIsRejectedAndNotCached() {
	wrong := []byte("guess")
	s.hasher.EXPECT().Compare("stored-hash", wrong).Return(auth.ErrMismatchedSecret).Times(2)

	for range 2 {
		_, err := s.svc.Validate(context.Background(), s.terminal.ID, base64.StdEncoding.EncodeToString(wrong))
		s.ErrorIs(err, ErrInvalidTerminalCredentials)
	}
}

func (s *TerminalAuthSuite) TestRejectsWithoutComparingWhenNotVerifiable() {
	s.hasher.EXPECT().Compare(gomock.Any(), gomock.Any()).Times(0)

	_, err := s.svc.Validate(context.Background(), "", s.encoded)
	s.ErrorIs(err, ErrInvalidTerminalCredentials)

	_, err = s.svc.Validate(context.Background(), s.terminal.ID, "%%%")
	s.ErrorIs(err, ErrInvalidTerminalCredentials)

	_, err = s.svc.Validate(context.Background(), "missing-terminal", s.encoded)
	s.ErrorIs(err, ErrInvalidTerminalCredentials)

	s.terminal.Active = false
	s.Require().NoError(s.store.Repos().Terminals.Update(context.Background(), s.terminal))
	_, err = s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.ErrorIs(err, ErrInvalidTerminalCredentials)
}

func (s *TerminalAuthSuite) TestConcurrentMissesShareOneComparison() {
	s.hasher.EXPECT().Compare("stored-hash", s.secret).DoAndReturn(func(string, []byte) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}).Times(1)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}
}

func (s *TerminalAuthSuite) TestCancelledCallerDoesNotFailSharedVerification() {
	started := make(chan struct{})
	release := make(chan struct{})
	s.hasher.EXPECT().Compare("stored-hash", s.secret).DoAndReturn(func(string, []byte) error {
		close(started)
		<-release
		return nil
	}).Times(1)

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.svc.Validate(firstCtx, s.terminal.ID, s.encoded)
		firstErr <- err
	}()
	<-started

	secondErr := make(chan error, 1)
	go func() {
		_, err := s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	s.ErrorIs(<-firstErr, context.Canceled)

	close(release)
	s.NoError(<-secondErr)
}

func (s *TerminalAuthSuite) TestLastSeenIsThrottled() {
	s.hasher.EXPECT().Compare("stored-hash", s.secret).Return(nil).Times(1)
	start := s.clock.Now()

	_, err := s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)
	s.Require().NotNil(s.lastSeen())
	s.True(start.Equal(*s.lastSeen()))

	s.clock.Advance(500 * time.Millisecond)
	_, err = s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Close(context.Background()))
	s.True(start.Equal(*s.lastSeen()), "write inside throttle window")
}

func (s *TerminalAuthSuite) TestLastSeenWrittenInBackgroundAfterThrottle() {
	s.hasher.EXPECT().Compare("stored-hash", s.secret).Return(nil).Times(1)

	_, err := s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)

	s.clock.Advance(1500 * time.Millisecond)
	later := s.clock.Now()
	_, err = s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Close(context.Background()))
	s.True(later.Equal(*s.lastSeen()))
}

func (s *TerminalAuthSuite) TestForgetDropsCachedValidation() {
	s.hasher.EXPECT().Compare("stored-hash", s.secret).Return(nil).Times(2)

	_, err := s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)
	s.svc.Forget(s.terminal.ID)
	_, err = s.svc.Validate(context.Background(), s.terminal.ID, s.encoded)
	s.Require().NoError(err)
}

func TestTerminalAuthSuite(t *testing.T) {
	suite.Run(t, new(TerminalAuthSuite))
}

func TestCacheKeyDependsOnTerminalAndSecret(t *testing.T) {
	a := cacheKey("t1", []byte("s"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, cacheKey("t1", []byte("s")))
	assert.NotEqual(t, a, cacheKey("t2", []byte("s")))
	assert.NotEqual(t, a, cacheKey("t1", []byte("x")))
}

func TestTerminalAuthCloseHonoursContext(t *testing.T) {
	svc := NewTerminalAuthService(TerminalAuthDependencies{TerminalRepo: memory.New().Repos().Terminals}, TerminalAuthOptions{})
	svc.pending.Add(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, svc.Close(ctx), context.DeadlineExceeded)
	svc.pending.Done()
}
