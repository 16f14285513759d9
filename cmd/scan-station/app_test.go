package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/PassportDesk/config"
	"github.com/BearBump/PassportDesk/internal/api/contract"
	"github.com/BearBump/PassportDesk/internal/cache/rediscache"
	"github.com/BearBump/PassportDesk/internal/integrations/passportapi"
	"github.com/BearBump/PassportDesk/internal/models"
	"github.com/BearBump/PassportDesk/internal/services/dispatch"
	"github.com/BearBump/PassportDesk/internal/services/feedback"
	"github.com/BearBump/PassportDesk/internal/services/transitions"
	"github.com/BearBump/PassportDesk/internal/storage/filesnapshot"
	"github.com/BearBump/PassportDesk/internal/storage/snapshot"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const (
	unitA = "a1b2c3d4-e5f6-47a8-89b0-123456789abc"
	unitB = "0f8fad5b-d9cb-469f-a165-70867728950e"
)

type fakeClient struct {
	mu      sync.Mutex
	batches []models.DispatchBatch
	respond func(batch models.DispatchBatch) (models.BulkResult, error)
}

func (c *fakeClient) BulkTransition(ctx context.Context, batch models.DispatchBatch) (models.BulkResult, error) {
	c.mu.Lock()
	c.batches = append(c.batches, batch)
	c.mu.Unlock()
	if c.respond == nil {
		return models.BulkResult{SuccessCount: len(batch.UnitIDs)}, nil
	}
	return c.respond(batch)
}

func (c *fakeClient) Batches() []models.DispatchBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.DispatchBatch(nil), c.batches...)
}

type fakePassportClient struct {
	info contract.ActionInfoResponse
	reqs []contract.TransitionRequest
}

func (c *fakePassportClient) ActionInfo(ctx context.Context, passportID, token string) (contract.ActionInfoResponse, error) {
	if token == "" {
		return contract.ActionInfoResponse{}, &passportapi.HTTPError{StatusCode: http.StatusUnauthorized}
	}
	return c.info, nil
}

func (c *fakePassportClient) Transition(ctx context.Context, passportID, token string, req contract.TransitionRequest) (contract.TransitionResponse, error) {
	c.reqs = append(c.reqs, req)
	p := c.info.Passport
	p.Status = req.ToStatus
	return contract.TransitionResponse{Passport: p, PointsAwarded: 10}, nil
}

func testFactories(store *snapshot.Memory, client *fakeClient) stationFactories {
	return stationFactories{
		newPassportClient: func(cfg *config.Config) passportClient { return &fakePassportClient{} },
		newSnapshotStore: func(cfg *config.Config) (snapshot.Store, func(), error) {
			return store, nil, nil
		},
		newClient: func(cfg *config.Config) dispatch.BulkClient { return client },
		newPlayer: func(cfg *config.Config) feedback.PlayerFactory { return nil },
	}
}

func seed(t *testing.T, store *snapshot.Memory, ids ...string) {
	t.Helper()
	items := make([]models.ScannedItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, models.ScannedItem{ID: id, RawValue: id, CapturedAt: time.Now().UTC()})
	}
	b, err := json.Marshal(items)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), b))
}

// syncBuffer is written by the feedback loop concurrently with the command.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func execute(t *testing.T, f stationFactories, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("configPath", "")

	cmd := newRootCommand(f)
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestDefaultStationFactories_SnapshotBackends(t *testing.T) {
	f := defaultStationFactories()

	path := filepath.Join(t.TempDir(), "scans", "pending.json")
	st, closeFn, err := f.newSnapshotStore(&config.Config{ScanStation: config.ScanStationConfig{SnapshotPath: path}})
	require.NoError(t, err)
	require.Nil(t, closeFn)
	fs, ok := st.(*filesnapshot.Store)
	require.True(t, ok)
	require.Equal(t, path, fs.Path())

	st, _, err = f.newSnapshotStore(&config.Config{ScanStation: config.ScanStationConfig{SnapshotBackend: "memory"}})
	require.NoError(t, err)
	_, ok = st.(*snapshot.Memory)
	require.True(t, ok)

	st, closeFn, err = f.newSnapshotStore(&config.Config{
		Redis:       config.RedisConfig{Host: "localhost", Port: 6379},
		ScanStation: config.ScanStationConfig{SnapshotBackend: "Redis"},
	})
	require.NoError(t, err)
	_, ok = st.(*rediscache.SnapshotStore)
	require.True(t, ok)
	require.NotNil(t, closeFn)
	closeFn()

	_, _, err = f.newSnapshotStore(&config.Config{ScanStation: config.ScanStationConfig{SnapshotBackend: "s3"}})
	require.Error(t, err)
}

func TestDefaultStationFactories_Client(t *testing.T) {
	f := defaultStationFactories()
	c := f.newClient(&config.Config{ScanStation: config.ScanStationConfig{APIBaseURL: "http://localhost:8080"}})
	_, ok := c.(*passportapi.Client)
	require.True(t, ok)
	_, ok = f.newPassportClient(&config.Config{}).(*passportapi.Client)
	require.True(t, ok)
	require.NotNil(t, f.newPlayer(&config.Config{}))
}

func TestQueueCommand(t *testing.T) {
	store := snapshot.NewMemory()
	f := testFactories(store, &fakeClient{})

	out, err := execute(t, f, "", "queue")
	require.NoError(t, err)
	require.Contains(t, out, "No pending scans")

	seed(t, store, unitA, unitB)

	out, err = execute(t, f, "", "queue")
	require.NoError(t, err)
	require.Contains(t, out, unitA)
	require.Contains(t, out, unitB)

	out, err = execute(t, f, "", "queue", "--json")
	require.NoError(t, err)
	var items []models.ScannedItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	require.Equal(t, unitA, items[0].ID)
}

func TestRemoveCommand(t *testing.T) {
	store := snapshot.NewMemory()
	seed(t, store, unitA, unitB)
	f := testFactories(store, &fakeClient{})

	out, err := execute(t, f, "", "remove", strings.ToUpper(unitA))
	require.NoError(t, err)
	require.Contains(t, out, "1 pending")

	_, err = execute(t, f, "", "remove", unitA)
	require.Error(t, err)
}

func TestDispatchCommand_AllSucceeded(t *testing.T) {
	store := snapshot.NewMemory()
	seed(t, store, unitA, unitB)
	client := &fakeClient{}
	f := testFactories(store, client)

	out, err := execute(t, f, "", "dispatch", "shipped", "--carrier", "DHL", "--meta", "tracking_number=TN-1")
	require.NoError(t, err)
	require.Contains(t, out, "Dispatched 2 units")

	batches := client.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, models.StatusShipped, batches[0].TargetStatus)
	require.Equal(t, []string{unitA, unitB}, batches[0].UnitIDs)
	require.Equal(t, map[string]string{"carrier": "DHL", "tracking_number": "TN-1"}, batches[0].Metadata)

	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDispatchCommand_MissingMetadataMakesNoCall(t *testing.T) {
	store := snapshot.NewMemory()
	seed(t, store, unitA)
	client := &fakeClient{}

	_, err := execute(t, testFactories(store, client), "", "dispatch", "SHIPPED")
	require.ErrorIs(t, err, dispatch.ErrValidation)
	require.Empty(t, client.Batches())
}

func TestDispatchCommand_PartialFailure(t *testing.T) {
	store := snapshot.NewMemory()
	seed(t, store, unitA, unitB)
	client := &fakeClient{respond: func(batch models.DispatchBatch) (models.BulkResult, error) {
		return models.BulkResult{
			SuccessCount: 1,
			FailedCount:  1,
			Results: []models.UnitResult{
				{PassportID: unitA, Success: true},
				{PassportID: unitB, Error: "Illegal transition"},
			},
		}, nil
	}}

	out, err := execute(t, testFactories(store, client), "", "dispatch", "RETURNED")
	require.ErrorIs(t, err, dispatch.ErrPartialFailure)
	require.Contains(t, out, "1 of 2 units failed")
	require.Contains(t, out, "Illegal transition")

	data, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	var items []models.ScannedItem
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 1)
	require.Equal(t, unitB, items[0].ID)
	require.True(t, items[0].Failed)
}

func TestRunCommand_ConsoleScansAndDispatches(t *testing.T) {
	store := snapshot.NewMemory()
	client := &fakeClient{}

	stdin := strings.Join([]string{
		"https://passports.example.com/p/" + unitA,
		"not a code",
		unitA,
		"/dispatch shipped oops carrier=DHL Express tracking_number=TN-9",
		"/list",
	}, "\n") + "\n"

	out, err := execute(t, testFactories(store, client), stdin, "run", "--no-http")
	require.NoError(t, err)
	require.Contains(t, out, "Dispatched 1 units")
	require.Contains(t, out, "[!!] ignored: oops")
	require.Contains(t, out, "scan> 0 pending")

	batches := client.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, []string{unitA}, batches[0].UnitIDs)
	require.Equal(t, "DHL Express", batches[0].Metadata["carrier"])
	require.Equal(t, "TN-9", batches[0].Metadata["tracking_number"])

	_, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunCommand_RestoresQueue(t *testing.T) {
	store := snapshot.NewMemory()
	seed(t, store, unitB)
	client := &fakeClient{}

	out, err := execute(t, testFactories(store, client), unitA+"\n/list\n", "run", "--no-http")
	require.NoError(t, err)
	require.Contains(t, out, unitA)
	require.Contains(t, out, unitB)
	require.Empty(t, client.Batches())
}

func newTestStation(t *testing.T, client *fakeClient) *station {
	t.Helper()
	st, err := openStation(&config.Config{}, testFactories(snapshot.NewMemory(), client), nil)
	require.NoError(t, err)
	require.NoError(t, st.restore(context.Background()))
	t.Cleanup(st.Close)
	return st
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestStationRouter(t *testing.T) {
	client := &fakeClient{}
	st := newTestStation(t, client)
	var primed atomic.Int32
	srv := httptest.NewServer(newStationRouter(stationHTTPOpts{st: st, prime: func() { primed.Add(1) }}))
	defer srv.Close()

	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/scan", scanRequest{Raw: unitA})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = doJSON(t, http.MethodPost, srv.URL+"/scan", scanRequest{Raw: strings.ToUpper(unitA)})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = doJSON(t, http.MethodPost, srv.URL+"/scan", scanRequest{Raw: "garbage"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = doJSON(t, http.MethodPost, srv.URL+"/scan", scanRequest{Raw: unitB})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, srv.URL+"/queue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var q queueResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&q))
	require.Len(t, q.Items, 2)
	require.Equal(t, unitB, q.Items[0].ID)
	require.False(t, q.InFlight)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/queue/"+unitB, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodDelete, srv.URL+"/queue/"+unitB, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/dispatch", dispatchRequest{ToStatus: "shipped"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Empty(t, client.Batches())

	resp = doJSON(t, http.MethodPost, srv.URL+"/dispatch", dispatchRequest{ToStatus: "shipped", Metadata: map[string]string{"carrier": "DHL"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d dispatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	require.Equal(t, 1, d.Submitted)
	require.Equal(t, 1, d.Succeeded)
	require.Empty(t, d.Error)
	require.Equal(t, 0, st.queue.Len())

	resp = doJSON(t, http.MethodPost, srv.URL+"/dispatch", dispatchRequest{ToStatus: "shipped", Metadata: map[string]string{"carrier": "DHL"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	require.Positive(t, primed.Load())
}

func TestStationRouter_NetworkFailureKeepsQueue(t *testing.T) {
	client := &fakeClient{respond: func(models.DispatchBatch) (models.BulkResult, error) {
		return models.BulkResult{}, errors.New("connection refused")
	}}
	st := newTestStation(t, client)
	_, err := st.queue.Enqueue(context.Background(), unitA)
	require.NoError(t, err)

	srv := httptest.NewServer(newStationRouter(stationHTTPOpts{st: st}))
	defer srv.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/dispatch", dispatchRequest{ToStatus: "RECALLED", Metadata: map[string]string{"recall_reference": "R-1"}})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, 1, st.queue.Len())
}

func TestDispatch_UnconfirmedResponseKeepsQueue(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer api.Close()

	store := snapshot.NewMemory()
	seed(t, store, unitA, unitB)
	f := testFactories(store, nil)
	f.newClient = func(cfg *config.Config) dispatch.BulkClient {
		return passportapi.New(api.URL, "t", time.Second)
	}

	_, err := execute(t, f, "", "dispatch", "SHIPPED", "--carrier", "DHL")
	require.ErrorIs(t, err, dispatch.ErrNetworkFailure)
	require.ErrorIs(t, err, passportapi.ErrUnconfirmedResult)

	data, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	var items []models.ScannedItem
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 2)
}

func TestRunStationHTTPServer_ContextCanceled(t *testing.T) {
	st := newTestStation(t, &fakeClient{})
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runStationHTTPServer(ctx, stationHTTPOpts{
			httpAddr: "127.0.0.1:0",
			onListen: func(addr string) { addrCh <- addr },
			st:       st,
		})
	}()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestTransitionCommand(t *testing.T) {
	pc := &fakePassportClient{info: contract.ActionInfoResponse{
		Passport:           contract.PassportView{UUID: unitA, SerialNumber: "SN-1", Status: models.StatusShipped},
		Actor:              contract.ActorView{Email: "svc@example.com", Role: models.RoleServicePartner},
		AllowedTransitions: []models.Status{models.StatusInService},
	}}
	f := testFactories(snapshot.NewMemory(), &fakeClient{})
	f.newPassportClient = func(cfg *config.Config) passportClient { return pc }

	_, err := execute(t, f, "", "transition", unitA, "in_service", "--token", "tok")
	require.ErrorIs(t, err, transitions.ErrMissingMetadata)
	require.Empty(t, pc.reqs)

	_, err = execute(t, f, "", "transition", unitA, "RECYCLED", "--token", "tok")
	require.ErrorIs(t, err, transitions.ErrIllegalTransition)

	out, err := execute(t, f, "", "transition", unitA, "in_service", "--token", "tok", "--meta", "vehicle_vin=VIN1")
	require.NoError(t, err)
	require.Contains(t, out, "SN-1 SHIPPED -> IN_SERVICE")
	require.Contains(t, out, "+10 points")
	require.Len(t, pc.reqs, 1)
	require.Equal(t, "VIN1", pc.reqs[0].Metadata["vehicle_vin"])

	_, err = execute(t, f, "", "transition", "nope", "in_service")
	require.Error(t, err)
}

func TestParsePairs(t *testing.T) {
	got, ignored := parsePairs([]string{"stray", "carrier=DHL", "Express", "=x", "lost", " condition =used=ok"})
	require.Equal(t, map[string]string{"carrier": "DHL Express", "condition": "used=ok"}, got)
	require.Equal(t, []string{"stray", "=x", "lost"}, ignored)
}
