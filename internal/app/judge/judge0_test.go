package judge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"contest_judge/internal/common"
)

func enc(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestSubmitBatchEncodesPayloads(t *testing.T) {
	var got struct {
		Submissions []batchSubmission `json:"submissions"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/submissions/batch" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.URL.Query().Get("base64_encoded") != "true" {
			t.Error("base64_encoded flag missing")
		}
		if r.Header.Get("X-Auth-Token") != "secret" {
			t.Errorf("auth header = %q", r.Header.Get("X-Auth-Token"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte(`[{"token":"t1"},{"token":"t2"}]`))
	}))
	defer srv.Close()

	c := NewJudge0Client(Judge0Config{URL: srv.URL + "/", AuthToken: "secret"})
	tokens, err := c.SubmitBatch(context.Background(), []Item{
		{SourceCode: "print(input())", LanguageID: 71, Stdin: "1\n", ExpectedOutput: "1\n", CPUTimeLimitMs: 1500, MemoryLimitKb: 65536},
		{SourceCode: "print(input())", LanguageID: 71, Stdin: "2\n", ExpectedOutput: "2\n", CPUTimeLimitMs: 1500, MemoryLimitKb: 65536},
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if strings.Join(tokens, ",") != "t1,t2" {
		t.Fatalf("tokens = %v", tokens)
	}
	if len(got.Submissions) != 2 {
		t.Fatalf("sent %d submissions", len(got.Submissions))
	}
	s := got.Submissions[1]
	if s.SourceCode != enc("print(input())") || s.Stdin != enc("2\n") || s.ExpectedOutput != enc("2\n") {
		t.Fatalf("payload not base64 encoded: %+v", s)
	}
	if s.CPUTimeLimit != 1.5 || s.MemoryLimit != 65536 || s.LanguageID != 71 {
		t.Fatalf("limits not forwarded: %+v", s)
	}
}

func TestSubmitBatchRejectedItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"token":"t1"},{"language_id":["language with id 999 doesn't exist"]}]`))
	}))
	defer srv.Close()

	c := NewJudge0Client(Judge0Config{URL: srv.URL})
	_, err := c.SubmitBatch(context.Background(), []Item{{SourceCode: "x"}, {SourceCode: "y"}})
	if err == nil || !strings.Contains(err.Error(), "item 1") {
		t.Fatalf("expected item rejection error, got %v", err)
	}
}

func TestSubmitBatchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewJudge0Client(Judge0Config{URL: srv.URL})
	if _, err := c.SubmitBatch(context.Background(), []Item{{SourceCode: "x"}}); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}

func TestPollBatchDecodesVerdicts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tokens") != "t1,t2" {
			t.Errorf("tokens query = %q", r.URL.Query().Get("tokens"))
		}
		if !strings.Contains(r.URL.Query().Get("fields"), "compile_output") {
			t.Error("fields should request compile_output")
		}
		body := `{"submissions":[
			{"token":"t1","stdout":"` + enc("42\n") + `","time":"0.013","memory":3208,"status":{"id":3,"description":"Accepted"}},
			{"token":"t2","stderr":"` + enc("Traceback") + `","time":null,"memory":null,"status":{"id":11,"description":"Runtime Error (NZEC)"}}
		]}`
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewJudge0Client(Judge0Config{URL: srv.URL})
	vs, err := c.PollBatch(context.Background(), []string{"t1", "t2"})
	if err != nil {
		t.Fatalf("PollBatch: %v", err)
	}
	if vs[0].StatusID != StatusAccepted || *vs[0].Stdout != "42\n" || *vs[0].TimeMs != 13 || *vs[0].MemoryKb != 3208 {
		t.Fatalf("unexpected first verdict %+v", vs[0])
	}
	if vs[1].StatusID != StatusRuntimeNZEC || *vs[1].Stderr != "Traceback" || vs[1].TimeMs != nil {
		t.Fatalf("unexpected second verdict %+v", vs[1])
	}
}

func TestPollBatchLostToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"submissions":[null]}`))
	}))
	defer srv.Close()

	c := NewJudge0Client(Judge0Config{URL: srv.URL})
	if _, err := c.PollBatch(context.Background(), []string{"gone"}); err == nil {
		t.Fatal("expected error for unknown token")
	}
}

type scriptedClient struct {
	polls    int32
	settleAt int32
	err      error
}

func (s *scriptedClient) SubmitBatch(ctx context.Context, items []Item) ([]string, error) {
	return []string{"a"}, nil
}

func (s *scriptedClient) PollBatch(ctx context.Context, tokens []string) ([]Verdict, error) {
	n := atomic.AddInt32(&s.polls, 1)
	if s.err != nil {
		return nil, s.err
	}
	if n >= s.settleAt {
		return []Verdict{{Token: "a", StatusID: StatusAccepted}}, nil
	}
	return []Verdict{{Token: "a", StatusID: StatusProcessing}}, nil
}

func TestAwaitStopsWhenSettled(t *testing.T) {
	c := &scriptedClient{settleAt: 3}
	vs, err := Await(context.Background(), c, []string{"a"}, PollPolicy{Interval: time.Millisecond, MaxAttempts: 30}, nil)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if vs[0].StatusID != StatusAccepted || c.polls != 3 {
		t.Fatalf("got %+v after %d polls", vs, c.polls)
	}
}

func TestAwaitTimesOut(t *testing.T) {
	c := &scriptedClient{settleAt: 100}
	_, err := Await(context.Background(), c, []string{"a"}, PollPolicy{Interval: time.Millisecond, MaxAttempts: 4}, nil)
	if !errors.Is(err, common.ErrJudgeTimeout) {
		t.Fatalf("expected ErrJudgeTimeout, got %v", err)
	}
	if c.polls != 4 {
		t.Fatalf("polled %d times, want 4", c.polls)
	}
}

func TestAwaitPropagatesTransportError(t *testing.T) {
	c := &scriptedClient{err: errors.New("connection reset")}
	_, err := Await(context.Background(), c, []string{"a"}, PollPolicy{Interval: time.Millisecond, MaxAttempts: 30}, nil)
	if err == nil || c.polls != 1 {
		t.Fatalf("expected immediate failure, got %v after %d polls", err, c.polls)
	}
}
