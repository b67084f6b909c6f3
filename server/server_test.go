package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/newsdigest/pkg/domain"
	"github.com/umputun/newsdigest/pkg/job"
	jobmocks "github.com/umputun/newsdigest/pkg/job/mocks"
	"github.com/umputun/newsdigest/pkg/metrics"
	"github.com/umputun/newsdigest/pkg/reapply"
	"github.com/umputun/newsdigest/server/mocks"
)

const (
	lineArticles = `{"type":"partial_articles","articles":[` +
		`{"url":"https://ziua.ro/a","title":"A","scores":{"is_fresh":true},"ai_verdict":"VERIFIED"},` +
		`{"url":"https://ziua.ro/b","title":"B","scores":{"is_fresh":false},"ai_verdict":"VERIFIED"}]}`
	lineLog  = `{"type":"log","message":"scanning sources"}`
	lineDone = `{"type":"done"}`
)

type testEnv struct {
	ts        *httptest.Server
	registry  *job.Registry
	spam      *jobmocks.SpamStoreMock
	reapplier *mocks.ReapplierMock
	hub       *Hub
	metrics   *metrics.Metrics
}

type envOptions struct {
	body      func() io.ReadCloser // stream returned by the generator
	noSpam    bool
	noReapply bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	if opts.body == nil {
		opts.body = func() io.ReadCloser {
			return io.NopCloser(strings.NewReader(lineArticles + "\n" + lineDone + "\n"))
		}
	}

	env := &testEnv{hub: NewHub(), metrics: metrics.New()}
	submitter := &jobmocks.SubmitterMock{
		SubmitFunc: func(ctx context.Context, req domain.JobRequest) (io.ReadCloser, error) {
			return opts.body(), nil
		},
	}
	params := job.RegistryParams{
		Submitter: submitter,
		Observe:   env.hub.Observe,
		Metrics:   env.metrics,
		Interval:  10 * time.Millisecond,
	}
	if !opts.noSpam {
		env.spam = &jobmocks.SpamStoreMock{
			SpamURLsFunc:     func(ctx context.Context) ([]string, error) { return nil, nil },
			ReportSpamFunc:   func(ctx context.Context, report domain.SpamReport) error { return nil },
			UnreportSpamFunc: func(ctx context.Context, url string) error { return nil },
		}
		params.SpamStore = env.spam
	}
	env.registry = job.NewRegistry(context.Background(), params)

	p := Params{Listen: ":0", Timeout: 5 * time.Second, Version: "1.2.3", Jobs: env.registry, Hub: env.hub, Metrics: env.metrics}
	if !opts.noReapply {
		env.reapplier = &mocks.ReapplierMock{
			ReapplyFunc: func(ctx context.Context, target reapply.Target, req reapply.Request) (reapply.Report, error) {
				return reapply.Report{Origin: "ziua.ro", Matched: 2, Updated: []string{"https://ziua.ro/a"}}, nil
			},
		}
		p.Reapplier = env.reapplier
	}

	env.ts = httptest.NewServer(New(p).router)
	t.Cleanup(func() {
		env.ts.Close()
		env.registry.Close()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (code int, resp map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(ownerHeader, "ana")
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer r.Body.Close()

	data, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	if len(bytes.TrimSpace(data)) > 0 {
		require.NoError(t, json.Unmarshal(data, &resp), string(data))
	}
	return r.StatusCode, resp
}

func (e *testEnv) startJob(t *testing.T) string {
	t.Helper()
	code, resp := e.do(t, http.MethodPost, "/api/v1/jobs", `{"category":"politics","timeframe":"24h","outlet_ids":[1,2]}`)
	require.Equal(t, http.StatusCreated, code, resp)
	id, ok := resp["id"].(string)
	require.True(t, ok)
	return id
}

func (e *testEnv) waitState(t *testing.T, id string, state job.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		c, err := e.registry.Get(id)
		return err == nil && c.State() == state
	}, 5*time.Second, 5*time.Millisecond, "job %s never reached %s", id, state)
}

func urls(v any) []string {
	var res []string
	list, _ := v.([]any)
	for _, item := range list {
		switch x := item.(type) {
		case string:
			res = append(res, x)
		case map[string]any:
			res = append(res, x["url"].(string))
		}
	}
	return res
}

func TestServer_Status(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	code, resp := env.do(t, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "1.2.3", resp["version"])
	assert.NotEmpty(t, resp["time"])
	assert.NotNil(t, resp["jobs"])
}

func TestServer_Ping(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	resp, err := http.Get(env.ts.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", string(body))
}

func TestServer_StartAndGetJob(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.startJob(t)
	env.waitState(t, id, job.StateDone)

	code, resp := env.do(t, http.MethodGet, "/api/v1/jobs/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, resp["id"])
	assert.Equal(t, "done", resp["state"])
	d := resp["digest"].(map[string]any)
	assert.Equal(t, "done", d["status"])
	assert.Equal(t, []string{"https://ziua.ro/a"}, urls(d["active"]))
	assert.Equal(t, []string{"https://ziua.ro/b"}, urls(d["excluded"]))
	assert.Equal(t, "politics", d["request"].(map[string]any)["category"])

	code, resp = env.do(t, http.MethodGet, "/api/v1/jobs/current", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, resp["id"])
}

func TestServer_StartJobErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	code, resp := env.do(t, http.MethodPost, "/api/v1/jobs", `{"category":"  "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, resp["error"], "category is required")

	code, _ = env.do(t, http.MethodPost, "/api/v1/jobs", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_JobNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/jobs/nope"},
		{http.MethodDelete, "/api/v1/jobs/nope"},
		{http.MethodGet, "/api/v1/jobs/nope/selection"},
		{http.MethodGet, "/api/v1/jobs/current"},
		{http.MethodPost, "/api/v1/jobs/nope/reapply"},
	} {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			code, resp := env.do(t, tc.method, tc.path, "")
			assert.Equal(t, http.StatusNotFound, code)
			assert.Contains(t, resp["error"], "not found")
		})
	}
}

func TestServer_CancelJob(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	env := newTestEnv(t, envOptions{body: func() io.ReadCloser { return pr }})
	id := env.startJob(t)

	code, resp := env.do(t, http.MethodDelete, "/api/v1/jobs/"+id, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, resp["id"])
	env.waitState(t, id, job.StateAborted)

	_, resp = env.do(t, http.MethodGet, "/api/v1/jobs/"+id, "")
	assert.Equal(t, "aborted", resp["digest"].(map[string]any)["status"])
}

func TestServer_Selection(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.startJob(t)
	env.waitState(t, id, job.StateDone)
	path := "/api/v1/jobs/" + id + "/selection"

	code, resp := env.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"https://ziua.ro/a"}, urls(resp["selected"]))

	code, resp = env.do(t, http.MethodPut, path, `{"url":"https://ziua.ro/b","selected":true}`)
	require.Equal(t, http.StatusOK, code)
	assert.ElementsMatch(t, []string{"https://ziua.ro/a", "https://ziua.ro/b"}, urls(resp["selected"]))

	code, _ = env.do(t, http.MethodPut, path, `{"url":"https://ziua.ro/zzz","selected":true}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPut, path, `{"selected":true}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = env.do(t, http.MethodDelete, path, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"https://ziua.ro/a"}, urls(resp["selected"]))
}

func TestServer_Spam(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.startJob(t)
	env.waitState(t, id, job.StateDone)
	path := "/api/v1/jobs/" + id + "/spam"

	code, resp := env.do(t, http.MethodPost, path, `{"url":"https://ziua.ro/a"}`)
	require.Equal(t, http.StatusOK, code, resp)
	assert.Equal(t, "reported", resp["status"])
	require.Len(t, env.spam.ReportSpamCalls(), 1)
	assert.Equal(t, domain.SpamReport{URL: "https://ziua.ro/a", Origin: "ziua.ro", Title: "A"}, env.spam.ReportSpamCalls()[0].Report)

	_, resp = env.do(t, http.MethodGet, "/api/v1/jobs/"+id, "")
	d := resp["digest"].(map[string]any)
	assert.Equal(t, []string{"https://ziua.ro/a"}, urls(d["spam"]))
	assert.Empty(t, urls(d["active"]))

	code, _ = env.do(t, http.MethodDelete, path+"?url=https://ziua.ro/a", "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, env.spam.UnreportSpamCalls(), 1)
	_, resp = env.do(t, http.MethodGet, "/api/v1/jobs/"+id, "")
	assert.Equal(t, []string{"https://ziua.ro/a"}, urls(resp["digest"].(map[string]any)["active"]))

	code, _ = env.do(t, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = env.do(t, http.MethodPost, path, `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_SpamWithoutStorage(t *testing.T) {
	env := newTestEnv(t, envOptions{noSpam: true})
	id := env.startJob(t)
	env.waitState(t, id, job.StateDone)

	code, _ := env.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/spam", `{"url":"https://ziua.ro/a"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_Reapply(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.startJob(t)
	env.waitState(t, id, job.StateDone)
	path := "/api/v1/jobs/" + id + "/reapply"

	body := `{"origin":"ziua.ro","rule":{"date_selectors":["time"]},"target_url":"https://ziua.ro/a",` +
		`"target_result":{"extracted_date":"2026-10-16"},"save":true}`
	code, resp := env.do(t, http.MethodPost, path, body)
	require.Equal(t, http.StatusOK, code, resp)
	assert.Equal(t, "ziua.ro", resp["origin"])
	assert.InDelta(t, 2, resp["matched"], 0.001)

	require.Len(t, env.reapplier.ReapplyCalls(), 1)
	call := env.reapplier.ReapplyCalls()[0]
	assert.Equal(t, id, call.Target.ID())
	assert.Equal(t, "ziua.ro", call.Req.Origin)
	assert.Equal(t, []string{"time"}, call.Req.Rule.DateSelectors)
	require.NotNil(t, call.Req.TargetResult)
	assert.Equal(t, "2026-10-16", call.Req.TargetResult.Date)
	assert.True(t, call.Req.Save)

	code, _ = env.do(t, http.MethodPost, path, `{bad`)
	assert.Equal(t, http.StatusBadRequest, code)

	env.reapplier.ReapplyFunc = func(ctx context.Context, target reapply.Target, req reapply.Request) (reapply.Report, error) {
		return reapply.Report{}, fmt.Errorf("reapply: %w", reapply.ErrNoOrigin)
	}
	code, _ = env.do(t, http.MethodPost, path, `{"origin":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServer_ReapplyUnavailable(t *testing.T) {
	env := newTestEnv(t, envOptions{noReapply: true})
	id := env.startJob(t)
	code, _ := env.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/reapply", `{"origin":"ziua.ro"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServer_Events(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	env := newTestEnv(t, envOptions{body: func() io.ReadCloser { return pr }})
	id := env.startJob(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.ts.URL+"/api/v1/jobs/"+id+"/events", http.NoBody)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	next := func() (event string, data map[string]any) {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
			case line == "" && event != "":
				return event, data
			}
		}
	}

	event, data := next()
	require.Equal(t, "snapshot", event, "initial snapshot sent on connect")
	assert.Equal(t, id, data["job_id"])
	assert.Eventually(t, func() bool { return env.hub.Subscribers(id) == 1 }, time.Second, 5*time.Millisecond)

	_, err = pw.Write([]byte(lineLog + "\n" + lineArticles + "\n" + lineDone + "\n"))
	require.NoError(t, err)

	sawLog := false
	for {
		event, data = next()
		if event == "log" {
			assert.Equal(t, "scanning sources", data["message"])
			sawLog = true
			continue
		}
		require.Equal(t, "snapshot", event)
		if data["status"] == "done" {
			break
		}
	}
	assert.True(t, sawLog)
	assert.Equal(t, []string{"https://ziua.ro/a"}, urls(data["active"]))

	cancel()
	assert.Eventually(t, func() bool { return env.hub.Subscribers(id) == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_Metrics(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.startJob(t)
	env.waitState(t, id, job.StateDone)

	resp, err := http.Get(env.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "newsdigest_jobs_started_total 1")
}

func TestServer_Run(t *testing.T) {
	// find free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	reg := job.NewRegistry(context.Background(), job.RegistryParams{})
	defer reg.Close()
	srv := New(Params{Listen: fmt.Sprintf("127.0.0.1:%d", port), Timeout: 5 * time.Second, Version: "1.0.0", Jobs: reg})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ping", port))
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
