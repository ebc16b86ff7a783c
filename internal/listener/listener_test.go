package listener

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "tgrelay/pkg/logx"
)

type step struct {
	ready   bool
	pollErr error
	frames  [][]byte
	recvErr error
}

func timeout() step { return step{} }
func pollErr() step { return step{pollErr: errors.New("EINTR")} }
func msg(parts ...string) step {
	frames := make([][]byte, len(parts))
	for i, p := range parts {
		frames[i] = []byte(p)
	}
	return step{ready: true, frames: frames}
}

type fakeSocket struct {
	tr      *fakeTransport
	steps   []step
	pending step

	identity string
	endpoint string
	linger   time.Duration
	ivlMin   time.Duration
	ivlMax   time.Duration
	polls    int
	closed   bool
}

func (s *fakeSocket) SetIdentity(id string) error { s.identity = id; return s.tr.identityErr }
func (s *fakeSocket) Connect(ep string) error { s.endpoint = ep; return nil }
func (s *fakeSocket) SetLinger(d time.Duration) error {
	s.linger = d
	return s.tr.optionErr
}
func (s *fakeSocket) SetReconnectInterval(base, ceiling time.Duration) error {
	s.ivlMin, s.ivlMax = base, ceiling
	return s.tr.optionErr
}
func (s *fakeSocket) Poll(d time.Duration) (bool, error) {
	s.polls++
	if len(s.steps) == 0 {
		s.tr.onExhausted()
		return false, nil
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.pollErr != nil {
		return false, st.pollErr
	}
	s.pending = st
	return st.ready, nil
}
func (s *fakeSocket) RecvMultipart() ([][]byte, error) { return s.pending.frames, s.pending.recvErr }
func (s *fakeSocket) Close() error { s.closed = true; return nil }

type fakeTransport struct {
	scripts     [][]step
	newErrs     []error
	identityErr error
	optionErr   error
	sockets     []*fakeSocket
	onExhausted func()
}

func (t *fakeTransport) NewSocket() (Socket, error) {
	if len(t.newErrs) > 0 {
		err := t.newErrs[0]
		t.newErrs = t.newErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	s := &fakeSocket{tr: t}
	if n := len(t.sockets); n < len(t.scripts) {
		s.steps = t.scripts[n]
	}
	t.sockets = append(t.sockets, s)
	return s, nil
}

type harness struct {
	l      *Listener
	tr     *fakeTransport
	mu     sync.Mutex
	got    [][][]byte
	sleeps []time.Duration
	accept bool
}

func newHarness(tr *fakeTransport) *harness {
	h := &harness{tr: tr, accept: true}
	h.l = New(Config{Endpoint: "tcp://127.0.0.1:6565"}, tr, h.publish, logx.Nop(),
		WithSleep(func(d time.Duration) { h.sleeps = append(h.sleeps, d) }))
	if tr.onExhausted == nil {
		tr.onExhausted = h.l.Stop
	}
	return h
}

func (h *harness) publish(frames [][]byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accept {
		return false
	}
	h.got = append(h.got, frames)
	return true
}

func TestConfiguresSocketAndPublishes(t *testing.T) {
	tr := &fakeTransport{scripts: [][]step{{msg("telegram", `["ok","send_message",{"text":"a"}]`), timeout()}}}
	h := newHarness(tr)

	h.l.Run()

	require.Len(t, tr.sockets, 1)
	s := tr.sockets[0]
	assert.Equal(t, "telegram", s.identity)
	assert.Equal(t, "tcp://127.0.0.1:6565", s.endpoint)
	assert.Equal(t, time.Duration(0), s.linger)
	assert.Equal(t, time.Second, s.ivlMin)
	assert.Equal(t, 30*time.Second, s.ivlMax)
	assert.True(t, s.closed)

	require.Len(t, h.got, 1)
	assert.Equal(t, "telegram", string(h.got[0][0]))
	assert.Equal(t, StateStopped, h.l.State())
	assert.Empty(t, h.sleeps)
}

func TestReconnectsAfterTenConsecutiveErrors(t *testing.T) {
	errs := make([]step, MaxConsecutiveErrors)
	for i := range errs {
		errs[i] = pollErr()
	}
	tr := &fakeTransport{scripts: [][]step{errs, {msg("id", "payload")}}}
	h := newHarness(tr)

	h.l.Run()

	require.Len(t, tr.sockets, 2)
	assert.True(t, tr.sockets[0].closed)
	assert.Equal(t, MaxConsecutiveErrors, tr.sockets[0].polls)
	assert.Equal(t, []time.Duration{ReconnectDelay}, h.sleeps)
	assert.Len(t, h.got, 1)
}

func TestCleanTimeoutResetsErrorCounter(t *testing.T) {
	var script []step
	for i := 0; i < MaxConsecutiveErrors-1; i++ {
		script = append(script, pollErr())
	}
	script = append(script, timeout())
	for i := 0; i < MaxConsecutiveErrors-1; i++ {
		script = append(script, step{ready: true, recvErr: errors.New("EAGAIN")})
	}
	tr := &fakeTransport{scripts: [][]step{script}}
	h := newHarness(tr)

	h.l.Run()

	assert.Len(t, tr.sockets, 1)
	assert.Empty(t, h.sleeps)
}

func TestSuccessfulReceiveResetsErrorCounter(t *testing.T) {
	var script []step
	for i := 0; i < MaxConsecutiveErrors-1; i++ {
		script = append(script, pollErr())
	}
	script = append(script, msg("id", "p"))
	for i := 0; i < MaxConsecutiveErrors-1; i++ {
		script = append(script, pollErr())
	}
	tr := &fakeTransport{scripts: [][]step{script}}
	h := newHarness(tr)

	h.l.Run()

	assert.Len(t, tr.sockets, 1)
	assert.Len(t, h.got, 1)
}

func TestSetupFailureRetriesWithoutCountingErrors(t *testing.T) {
	tr := &fakeTransport{
		newErrs: []error{errors.New("too many open files"), nil},
		scripts: [][]step{{msg("id", "p")}},
	}
	h := newHarness(tr)

	h.l.Run()

	assert.Equal(t, []time.Duration{SetupRetryDelay}, h.sleeps)
	require.Len(t, tr.sockets, 1)
	assert.Len(t, h.got, 1)
}

func TestIdentityFailureClosesSocketAndRetries(t *testing.T) {
	tr := &fakeTransport{identityErr: errors.New("EINVAL")}
	h := newHarness(tr)
	attempts := 0
	h.l.sleep = func(d time.Duration) {
		h.sleeps = append(h.sleeps, d)
		attempts++
		if attempts == 3 {
			h.l.Stop()
		}
	}

	h.l.Run()

	assert.Len(t, tr.sockets, 3)
	for _, s := range tr.sockets {
		assert.True(t, s.closed)
		assert.Zero(t, s.polls)
	}
	assert.Equal(t, []time.Duration{SetupRetryDelay, SetupRetryDelay, SetupRetryDelay}, h.sleeps)
}

func TestOptionFailuresAreNotFatal(t *testing.T) {
	tr := &fakeTransport{optionErr: errors.New("ENOTSUP"), scripts: [][]step{{msg("id", "p")}}}
	h := newHarness(tr)

	h.l.Run()

	assert.Len(t, h.got, 1)
}

func TestClosedChannelStopsListener(t *testing.T) {
	tr := &fakeTransport{
		scripts:     [][]step{{msg("id", "p"), msg("id", "q")}},
		onExhausted: func() { t.Fatal("listener kept polling after the channel closed") },
	}
	h := newHarness(tr)
	h.accept = false

	h.l.Run()

	assert.Equal(t, StateStopped, h.l.State())
	assert.Equal(t, 1, tr.sockets[0].polls)
	assert.True(t, tr.sockets[0].closed)
}

func TestStopBeforeRunDoesNotConnect(t *testing.T) {
	tr := &fakeTransport{}
	h := newHarness(tr)
	h.l.Stop()
	h.l.Stop()

	h.l.Run()

	assert.Empty(t, tr.sockets)
	assert.Equal(t, StateStopped, h.l.State())
}

func TestDefaultSleepWakesOnStop(t *testing.T) {
	l := New(Config{}, &fakeTransport{}, nil, logx.Nop())
	done := make(chan struct{})
	go func() {
		l.sleep(time.Hour)
		close(done)
	}()
	l.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep did not wake on Stop")
	}
}

func TestTransitions(t *testing.T) {
	assert.True(t, CanTransition(StateConnecting, StatePolling))
	assert.True(t, CanTransition(StateConnecting, StateConnecting))
	assert.True(t, CanTransition(StatePolling, StateBackoff))
	assert.True(t, CanTransition(StateBackoff, StateConnecting))
	assert.False(t, CanTransition(StateBackoff, StatePolling))
	assert.False(t, CanTransition(StateStopped, StateConnecting))
	assert.Equal(t, "backoff", StateBackoff.String())
}
