package lockverify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wacul/ptr"

	"github.com/jerry-enebeli/lockverify/config"
	"github.com/jerry-enebeli/lockverify/internal/backend"
	"github.com/jerry-enebeli/lockverify/internal/fakebackend"
	"github.com/jerry-enebeli/lockverify/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	fake     *fakebackend.Server
	cnf      *config.Configuration
	verifier *Verifier
}

func newFixture(t *testing.T, opts fakebackend.Options, mutate func(*config.Configuration), vopts ...Option) *fixture {
	t.Helper()
	fake := fakebackend.New(opts)
	srv := httptest.NewServer(fake.Handler())
	t.Cleanup(srv.Close)

	cnf := testConfig(srv.URL)
	if mutate != nil {
		mutate(cnf)
	}

	submitter := &fakebackend.ChainSubmitter{Server: fake, ContractAddress: testContract, LockAmount: "1"}
	v, err := NewVerifier(cnf, backend.New(srv.URL, cnf.BackendTimeout()), submitter, vopts...)
	require.NoError(t, err)
	return &fixture{fake: fake, cnf: cnf, verifier: v}
}

func TestNewVerifierDerivesWithdrawalAddress(t *testing.T) {
	f := newFixture(t, fakebackend.Options{}, nil, WithRunID("run-1"))
	assert.Equal(t, testWallet, f.verifier.WithdrawalAddress())
	assert.Equal(t, "run-1", f.verifier.RunID())
	assert.Equal(t, model.ExpectedFields{TokenAddress: testToken, WithdrawalAddress: testWallet, LockAmount: "1"}, f.verifier.Expected())
}

func TestNewVerifierRejectsBadKey(t *testing.T) {
	cnf := testConfig("http://localhost")
	cnf.PrivateKey = "not-a-key"
	_, err := NewVerifier(cnf, &stubBackend{}, nil)
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrCodeConfiguration, CodeOf(err))
}

func TestRunHappyPath(t *testing.T) {
	f := newFixture(t, fakebackend.Options{IndexLag: 1}, nil)

	report := f.verifier.Run(context.Background())
	require.NoError(t, report.Err)
	assert.True(t, report.Passed())
	assert.Equal(t, model.LockID("1001"), report.LockID)
	assert.Equal(t, f.verifier.RunID(), report.RunID)

	require.Len(t, report.Scenarios, 4)
	for i, name := range []string{ScenarioPrepare, ScenarioSubmit, ScenarioResync, ScenarioValidate} {
		assert.Equal(t, name, report.Scenarios[i].Name)
		assert.Equal(t, StatusPassed, report.Scenarios[i].Status)
	}

	resync, _ := report.Scenario(ScenarioResync)
	assert.Equal(t, 1, resync.Attempts)
	validate, _ := report.Scenario(ScenarioValidate)
	assert.Equal(t, 2, validate.Attempts)
	assert.Equal(t, 1, f.fake.ResyncCalls())
}

func TestRunResyncFailsTwiceThenSucceeds(t *testing.T) {
	delay := 20 * time.Millisecond
	f := newFixture(t, fakebackend.Options{ResyncFailures: 2}, func(c *config.Configuration) {
		c.Resync = config.RetryConfig{MaxAttempts: 3, DelayMs: ptr.Int(int(delay / time.Millisecond))}
	})

	start := time.Now()
	report := f.verifier.Run(context.Background())
	require.NoError(t, report.Err)

	resync, ok := report.Scenario(ScenarioResync)
	require.True(t, ok)
	assert.Equal(t, StatusPassed, resync.Status)
	assert.Equal(t, 3, resync.Attempts)
	assert.GreaterOrEqual(t, time.Since(start), 2*delay)
	assert.Equal(t, 3, f.fake.ResyncCalls())
}

func TestRunResyncExhausted(t *testing.T) {
	f := newFixture(t, fakebackend.Options{ResyncFailures: 10}, nil)

	report := f.verifier.Run(context.Background())
	require.Error(t, report.Err)

	var exhausted *ResyncExhaustedError
	require.ErrorAs(t, report.Err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, exhausted.LastStatus)
	assert.Contains(t, exhausted.LastBody, "indexer busy")

	validate, _ := report.Scenario(ScenarioValidate)
	assert.Equal(t, StatusSkipped, validate.Status)
	assert.Equal(t, 1, f.fake.LocksCalls(), "only the prepare read reaches the backend")
}

func TestRunLockNeverIndexed(t *testing.T) {
	f := newFixture(t, fakebackend.Options{NeverIndex: true}, nil)

	report := f.verifier.Run(context.Background())

	var notFound *LockNotFoundError
	require.ErrorAs(t, report.Err, &notFound)
	assert.Equal(t, report.LockID, notFound.LockID)
	assert.Equal(t, 5, notFound.Attempts)
	assert.Equal(t, ErrCodeLockNotFound, CodeOf(report.Err))

	validate, _ := report.Scenario(ScenarioValidate)
	assert.Equal(t, StatusFailed, validate.Status)
	assert.Equal(t, 5, validate.Attempts)
}

func TestRunFieldMismatch(t *testing.T) {
	f := newFixture(t, fakebackend.Options{}, func(c *config.Configuration) {
		c.Expected.LockAmount = "2"
	})

	report := f.verifier.Run(context.Background())

	var mismatch *FieldMismatchError
	require.ErrorAs(t, report.Err, &mismatch)
	assert.Equal(t, "lockAmount", mismatch.Field())
	validate, _ := report.Scenario(ScenarioValidate)
	assert.Equal(t, 1, validate.Attempts)
}

func TestRunStopsWhenBackendIsDown(t *testing.T) {
	f := newFixture(t, fakebackend.Options{LocksStatus: http.StatusBadGateway}, nil)

	report := f.verifier.Run(context.Background())

	var unavailable *BackendUnavailableError
	require.ErrorAs(t, report.Err, &unavailable)
	assert.Equal(t, http.StatusBadGateway, unavailable.StatusCode)
	assert.True(t, report.LockID.IsZero(), "nothing is submitted against a broken backend")

	for _, name := range []string{ScenarioSubmit, ScenarioResync, ScenarioValidate} {
		s, _ := report.Scenario(name)
		assert.Equal(t, StatusSkipped, s.Status, name)
	}
}

func TestRunHonoursDeadline(t *testing.T) {
	f := newFixture(t, fakebackend.Options{NeverIndex: true}, func(c *config.Configuration) {
		c.Validate = config.RetryConfig{MaxAttempts: 100, DelayMs: ptr.Int(60000)}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	report := f.verifier.Run(ctx)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, ErrCodeCancelled, CodeOf(report.Err))
}

func TestStepsOutOfOrder(t *testing.T) {
	f := newFixture(t, fakebackend.Options{}, nil)
	ctx := context.Background()

	_, err := f.verifier.Resync(ctx)
	assert.ErrorIs(t, err, ErrMissingLockID)

	_, _, err = f.verifier.Validate(ctx)
	assert.ErrorIs(t, err, ErrMissingLockID)

	id, err := f.verifier.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, f.verifier.LockID())

	_, _, err = f.verifier.Validate(ctx)
	assert.ErrorIs(t, err, ErrResyncNotAttempted)
	assert.Equal(t, ErrCodeOutOfOrder, CodeOf(err))
	assert.Equal(t, 0, f.fake.LocksCalls(), "validate must not poll before a resync")

	_, err = f.verifier.Resync(ctx)
	require.NoError(t, err)
	record, _, err := f.verifier.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, record.Event.LockDepositID)

	// A new lock needs its own resync.
	_, err = f.verifier.Submit(ctx)
	require.NoError(t, err)
	_, _, err = f.verifier.Validate(ctx)
	assert.ErrorIs(t, err, ErrResyncNotAttempted)
}

func TestExistingLock(t *testing.T) {
	f := newFixture(t, fakebackend.Options{}, nil, WithLockID("77"))
	f.fake.AddLock(testContract, lockRecord("77", testToken, testWallet, "1"))
	ctx := context.Background()

	_, err := f.verifier.Resync(ctx)
	require.NoError(t, err)
	_, attempts, err := f.verifier.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestSubmitWithoutSubmitter(t *testing.T) {
	v, err := NewVerifier(testConfig("http://localhost"), &stubBackend{}, nil)
	require.NoError(t, err)

	_, err = v.Submit(context.Background())
	assert.ErrorIs(t, err, ErrMissingSubmitter)
	assert.Equal(t, ErrCodeConfiguration, CodeOf(err))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
	assert.Equal(t, ErrCodeSubmitFailed, CodeOf(&SubmitError{Err: context.Canceled}))
	assert.Equal(t, ErrCodeCancelled, CodeOf(context.Canceled))
	assert.Equal(t, ErrCodeInternal, CodeOf(assert.AnError))
}

func TestPrepareCancelledDuringRequest(t *testing.T) {
	srv := hangingServer(t)
	cnf := testConfig(srv.URL)
	v, err := NewVerifier(cnf, backend.New(srv.URL, cnf.BackendTimeout()), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	report := v.Run(ctx)
	assert.ErrorIs(t, report.Err, context.DeadlineExceeded)
	assert.Equal(t, ErrCodeCancelled, CodeOf(report.Err))
	prepare, _ := report.Scenario(ScenarioPrepare)
	assert.Equal(t, StatusFailed, prepare.Status)
}
