package lockverify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/wacul/ptr"

	"github.com/jerry-enebeli/lockverify/config"
	"github.com/jerry-enebeli/lockverify/internal/backend"
	"github.com/jerry-enebeli/lockverify/model"
)

// Throwaway key and its address (the first default hardhat account).
const (
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testWallet     = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testToken      = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testContract   = "0x4f0fd563be89ec8c3e7d595bf3639128c0a7c33a"
)

var testTarget = model.Target{ContractAddress: testContract, Network: "ethereum", ChainID: "0xaa36a7"}

func testConfig(baseURL string) *config.Configuration {
	return &config.Configuration{
		PrivateKey:      testPrivateKey,
		TokenAddress:    testToken,
		Network:         "ethereum",
		ChainID:         "0xaa36a7",
		ContractAddress: testContract,
		Backend:         config.BackendConfig{BaseURL: baseURL, TimeoutSec: 5},
		Resync:          config.RetryConfig{MaxAttempts: 3, DelayMs: ptr.Int(10)},
		Validate:        config.RetryConfig{MaxAttempts: 5, DelayMs: ptr.Int(10)},
		Expected:        config.ExpectedConfig{LockAmount: "1"},
		RunTimeoutSec:   30,
	}
}

func lockRecord(id, token, wallet, amount string) model.LockRecord {
	return model.LockRecord{Event: model.LockEvent{
		LockDepositID:     model.LockID(id),
		TokenAddress:      token,
		WithdrawalAddress: wallet,
		LockAmount:        amount,
	}}
}

type resyncReply struct {
	resp backend.ResyncResponse
	err  error
}

type locksReply struct {
	resp backend.LocksResponse
	err  error
}

// stubBackend replays scripted replies; the last reply repeats once the
// script runs out.
type stubBackend struct {
	mu          sync.Mutex
	resync      []resyncReply
	locks       []locksReply
	resyncTimes []time.Time
	locksCalls  int
}

func (s *stubBackend) ResyncLock(ctx context.Context, target model.Target, lockID model.LockID) (backend.ResyncResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.resyncTimes)
	s.resyncTimes = append(s.resyncTimes, time.Now())
	if i >= len(s.resync) {
		i = len(s.resync) - 1
	}
	return s.resync[i].resp, s.resync[i].err
}

func (s *stubBackend) GetLocks(ctx context.Context, wallet string, target model.Target) (backend.LocksResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.locksCalls
	s.locksCalls++
	if i >= len(s.locks) {
		i = len(s.locks) - 1
	}
	return s.locks[i].resp, s.locks[i].err
}

func (s *stubBackend) resyncCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resyncTimes)
}

func okResync() resyncReply {
	return resyncReply{resp: backend.ResyncResponse{StatusCode: http.StatusOK, Data: true, Body: `{"data":true}`}}
}

func locksOK(records ...model.LockRecord) locksReply {
	return locksReply{resp: backend.LocksResponse{StatusCode: http.StatusOK, Locks: records}}
}

// hangingServer answers nothing until the caller gives up.
func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })
	return srv
}
