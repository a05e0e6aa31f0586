package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/store"
	"github.com/roach88/dicewager/internal/testutil"
	"github.com/roach88/dicewager/internal/wager"
)

type fixture struct {
	app   *fiber.App
	e     *engine.Engine
	store *store.Store
	dice  *testutil.ScriptedDice
	notes *testutil.RecordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.Register(context.Background(), engine.DefaultHouseAccount, decimal.NewFromInt(10000), "chips")
	require.NoError(t, err)

	timing := engine.DefaultTiming()
	timing.RollDelay = 0
	timing.RetryInterval = time.Millisecond
	timing.Cooldown = engine.CooldownPolicy{}

	f := &fixture{
		store: st,
		dice:  testutil.NewScriptedDice(),
		notes: testutil.NewRecordingNotifier(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.e = engine.New(st,
		engine.WithTiming(timing),
		engine.WithClock(testutil.NewManualClock(time.Time{})),
		engine.WithRoller(f.dice),
		engine.WithNotifier(f.notes),
		engine.WithArchive(st),
		engine.WithIDGenerator(testutil.NewSequentialIDs("")),
		engine.WithLogger(logger),
	)
	t.Cleanup(f.e.Close)
	f.app = New(f.e, st, logger).App()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (f *fixture) register(t *testing.T, id string, balance int64) {
	t.Helper()
	code, body := f.do(t, http.MethodPost, "/api/accounts", fiber.Map{
		"player_id": id, "balance": balance, "currency": "chips",
	})
	require.Equal(t, http.StatusCreated, code, string(body))
}

// settled waits until the session has been archived, which is the last
// thing a resolved session does.
func (f *fixture) settled(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := f.store.LoadSession(context.Background(), id)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v), string(body))
	return v
}

func pvc(id string, stake int64) fiber.Map {
	return fiber.Map{"player_id": id, "mode": "pvc", "stake": stake, "power_up": "none", "difficulty": "normal"}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	code, body := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	require.NoError(t, f.store.Close())
	code, body = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"status":"unavailable"}`, string(body))
}

func TestAccounts(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", 1000)

	code, _ := f.do(t, http.MethodPost, "/api/accounts", fiber.Map{"player_id": "alice", "balance": 5})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = f.do(t, http.MethodPost, "/api/accounts", fiber.Map{"player_id": engine.DefaultHouseAccount})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := f.do(t, http.MethodPost, "/api/accounts/alice/deposit", fiber.Map{"amount": 50})
	require.Equal(t, http.StatusOK, code, string(body))
	p := decode[wager.Player](t, body)
	assert.True(t, decimal.NewFromInt(1050).Equal(p.Balance))
	assert.Equal(t, "chips", p.Currency)

	code, _ = f.do(t, http.MethodPost, "/api/accounts/alice/deposit", fiber.Map{"amount": -5})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/accounts/ghost/deposit", fiber.Map{"amount": 5})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/accounts/ghost", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestWager_PvCWinThenContinuation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", 1000)
	f.dice.QueueRolls(5).QueueBiased(3)

	code, body := f.do(t, http.MethodPost, "/api/wagers", pvc("alice", 100))
	require.Equal(t, http.StatusCreated, code, string(body))
	res := decode[engine.Result](t, body)
	assert.Equal(t, engine.AdmissionMatched, res.Admission)
	f.settled(t, res.SessionID)

	code, body = f.do(t, http.MethodGet, "/api/sessions/"+res.SessionID, nil)
	require.Equal(t, http.StatusOK, code)
	snap := decode[wager.Snapshot](t, body)
	assert.Equal(t, wager.StateResolved, snap.State)
	assert.Equal(t, wager.OutcomeWin, snap.Outcome)
	assert.True(t, snap.Continuable)

	code, body = f.do(t, http.MethodGet, "/api/accounts/alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decimal.NewFromInt(1080).Equal(decode[wager.Player](t, body).Balance))

	f.dice.QueueRolls(5).QueueBiased(2)
	code, body = f.do(t, http.MethodPost, "/api/sessions/"+res.SessionID+"/continuation", nil)
	require.Equal(t, http.StatusCreated, code, string(body))
	childID := decode[map[string]string](t, body)["continuation_id"]
	require.NotEmpty(t, childID)

	code, body = f.do(t, http.MethodPost, "/api/continuations/"+childID+"/resolve", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	child := decode[wager.Snapshot](t, body)
	assert.Equal(t, wager.StateContinuationResolved, child.State)
	assert.True(t, decimal.NewFromInt(360).Equal(child.Payout))

	code, body = f.do(t, http.MethodGet, "/api/accounts/alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decimal.NewFromInt(1260).Equal(decode[wager.Player](t, body).Balance))

	code, _ = f.do(t, http.MethodPost, "/api/sessions/"+res.SessionID+"/continuation", nil)
	assert.Equal(t, http.StatusConflict, code, "a parent is continued once")

	code, body = f.do(t, http.MethodGet, "/api/house", nil)
	require.Equal(t, http.StatusOK, code)
	house := decode[map[string]any](t, body)
	assert.Equal(t, engine.DefaultHouseAccount, house["account"])
	assert.Equal(t, "9740", house["balance"])
}

func TestWager_Rejections(t *testing.T) {
	f := newFixture(t)
	f.register(t, "bob", 50)

	tests := []struct {
		name string
		body any
		want int
		code engine.ErrorCode
	}{
		{"unregistered", pvc("ghost", 100), http.StatusNotFound, engine.ErrCodeNotRegistered},
		{"insufficient", pvc("bob", 100), http.StatusPaymentRequired, engine.ErrCodeInsufficientFunds},
		{"zero stake", pvc("bob", 0), http.StatusBadRequest, engine.ErrCodeInvalidRequest},
		{"unknown mode", fiber.Map{"player_id": "bob", "mode": "pve", "stake": 10}, http.StatusBadRequest, engine.ErrCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/api/wagers", tt.body)
			assert.Equal(t, tt.want, code, string(body))
			eb := decode[errorBody](t, body)
			assert.Equal(t, tt.code, eb.Code)
			assert.Equal(t, engine.AdmissionRejected, eb.Status)
		})
	}

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/wagers", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestWager_QueueAndCancel(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", 1000)

	code, body := f.do(t, http.MethodPost, "/api/wagers", fiber.Map{"player_id": "alice", "mode": "pvp", "stake": 100})
	require.Equal(t, http.StatusAccepted, code, string(body))
	assert.Equal(t, engine.AdmissionWaiting, decode[engine.Result](t, body).Admission)

	code, body = f.do(t, http.MethodGet, "/api/queue/alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alice", decode[map[string]any](t, body)["player_id"])

	code, _ = f.do(t, http.MethodPost, "/api/wagers", pvc("alice", 100))
	assert.Equal(t, http.StatusConflict, code, "queued players hold their slot")

	code, _ = f.do(t, http.MethodDelete, "/api/queue/alice", nil)
	assert.Equal(t, http.StatusNoContent, code)
	code, _ = f.do(t, http.MethodDelete, "/api/queue/alice", nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = f.do(t, http.MethodGet, "/api/queue/alice", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProposals(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", 1000)
	f.dice.QueueRolls(2).QueueBiased(6)

	code, body := f.do(t, http.MethodPost, "/api/proposals", pvc("alice", 100))
	require.Equal(t, http.StatusCreated, code, string(body))
	prop := decode[engine.Proposal](t, body)
	require.NotEmpty(t, prop.ID)

	code, body = f.do(t, http.MethodPost, "/api/proposals/"+prop.ID+"/confirm", nil)
	require.Equal(t, http.StatusCreated, code, string(body))
	res := decode[engine.Result](t, body)
	f.settled(t, res.SessionID)

	code, body = f.do(t, http.MethodPost, "/api/proposals/"+prop.ID+"/confirm", nil)
	assert.Equal(t, http.StatusGone, code)
	assert.Equal(t, engine.ErrCodeProposalExpired, decode[errorBody](t, body).Code)

	code, _ = f.do(t, http.MethodPost, "/api/proposals", pvc("ghost", 100))
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDecision_NonePending(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodPost, "/api/decisions", fiber.Map{"player_id": "alice", "reroll": true})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = f.do(t, http.MethodPost, "/api/decisions", fiber.Map{"reroll": true})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, engine.ErrCodeSessionNotFound, decode[errorBody](t, body).Code)

	code, _ = f.do(t, http.MethodGet, "/api/sessions/nope?after=0&wait=soon", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPost, "/api/sessions/nope/decline", nil)
	assert.Equal(t, http.StatusNotFound, code)

	f.register(t, "alice", 1000)
	f.dice.QueueRolls(2).QueueBiased(6)
	_, body = f.do(t, http.MethodPost, "/api/wagers", pvc("alice", 100))
	id := decode[engine.Result](t, body).SessionID
	f.settled(t, id)

	code, body = f.do(t, http.MethodGet, "/api/sessions/"+id+"?after=0&wait=1s", nil)
	require.Equal(t, http.StatusOK, code)
	snap := decode[wager.Snapshot](t, body)
	assert.Positive(t, snap.Version)
	assert.Equal(t, wager.OutcomeLoss, snap.Outcome)

	// Nothing moves past the final version; the poll times out with the
	// current snapshot.
	code, body = f.do(t, http.MethodGet, "/api/sessions/"+id+"?after="+strconv.FormatInt(snap.Version, 10)+"&wait=20ms", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, snap.Version, decode[wager.Snapshot](t, body).Version)
}

func TestWriteError_Cooldown(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return writeRejection(c, &engine.WagerError{
			Code:      engine.ErrCodeCooldownActive,
			Message:   "wait",
			Remaining: 1500 * time.Millisecond,
		})
	})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	eb := decode[errorBody](t, raw)
	assert.Equal(t, int64(1500), eb.RemainingMS)
}

func TestStatusFor(t *testing.T) {
	tests := map[engine.ErrorCode]int{
		engine.ErrCodeInvalidRequest:      http.StatusBadRequest,
		engine.ErrCodeNotRegistered:       http.StatusNotFound,
		engine.ErrCodeAlreadyInSession:    http.StatusConflict,
		engine.ErrCodeMatchTimeout:        http.StatusRequestTimeout,
		engine.ErrCodeHouseUnderfunded:    http.StatusServiceUnavailable,
		engine.ErrCodeClosed:              http.StatusServiceUnavailable,
		engine.ErrorCode("SOMETHING_NEW"): http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}
