package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"contest_judge/internal/platform/logging"
	"contest_judge/internal/platform/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const pollFields = "token,stdout,stderr,compile_output,message,time,memory,status"

// Judge0Config holds the connection settings for a Judge0 instance.
// AuthToken is sent as X-Auth-Token when the server has AUTHN_TOKEN set.
type Judge0Config struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
}

// Judge0Client uses the Judge0 batch endpoints. Payloads travel base64
// encoded in both directions.
type Judge0Client struct {
	url       string
	authToken string
	client    *http.Client
}

func NewJudge0Client(cfg Judge0Config) *Judge0Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Judge0Client{
		url:       strings.TrimRight(cfg.URL, "/"),
		authToken: cfg.AuthToken,
		client:    &http.Client{Timeout: timeout},
	}
}

type batchSubmission struct {
	SourceCode     string  `json:"source_code"`
	LanguageID     int     `json:"language_id"`
	Stdin          string  `json:"stdin,omitempty"`
	ExpectedOutput string  `json:"expected_output,omitempty"`
	CPUTimeLimit   float64 `json:"cpu_time_limit,omitempty"` // seconds
	MemoryLimit    int     `json:"memory_limit,omitempty"`   // KB
}

func (c *Judge0Client) SubmitBatch(ctx context.Context, items []Item) ([]string, error) {
	ctx, span := observability.StartSpan(ctx, "judge.submit_batch", attribute.Int("judge.items", len(items)))
	defer span.End()

	if len(items) == 0 {
		return nil, fmt.Errorf("submit batch: no items")
	}

	subs := make([]batchSubmission, 0, len(items))
	for _, it := range items {
		subs = append(subs, batchSubmission{
			SourceCode:     b64(it.SourceCode),
			LanguageID:     it.LanguageID,
			Stdin:          b64(it.Stdin),
			ExpectedOutput: b64(it.ExpectedOutput),
			CPUTimeLimit:   float64(it.CPUTimeLimitMs) / 1000,
			MemoryLimit:    it.MemoryLimitKb,
		})
	}
	bodyJSON, err := json.Marshal(map[string]interface{}{"submissions": subs})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.url+"/submissions/batch?base64_encoded=true", bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var raw []struct {
		Token string `json:"token"`
	}
	if err := c.do(req, &raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("submit batch: %w", err)
	}
	if len(raw) != len(items) {
		return nil, fmt.Errorf("submit batch: judge returned %d tokens for %d items", len(raw), len(items))
	}

	tokens := make([]string, len(raw))
	for i, r := range raw {
		if r.Token == "" {
			return nil, fmt.Errorf("submit batch: item %d rejected by judge", i)
		}
		tokens[i] = r.Token
	}
	logging.JudgeLog.WithField("items", len(items)).Debug("batch dispatched")
	return tokens, nil
}

type rawVerdict struct {
	Token         string  `json:"token"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	Time          *string `json:"time"`
	Memory        *int    `json:"memory"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

func (c *Judge0Client) PollBatch(ctx context.Context, tokens []string) ([]Verdict, error) {
	ctx, span := observability.StartSpan(ctx, "judge.poll_batch", attribute.Int("judge.items", len(tokens)))
	defer span.End()

	q := url.Values{}
	q.Set("tokens", strings.Join(tokens, ","))
	q.Set("base64_encoded", "true")
	q.Set("fields", pollFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/submissions/batch?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	var raw struct {
		Submissions []*rawVerdict `json:"submissions"`
	}
	if err := c.do(req, &raw); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("poll batch: %w", err)
	}
	if len(raw.Submissions) != len(tokens) {
		return nil, fmt.Errorf("poll batch: judge returned %d verdicts for %d tokens", len(raw.Submissions), len(tokens))
	}

	verdicts := make([]Verdict, len(tokens))
	for i, r := range raw.Submissions {
		if r == nil {
			return nil, fmt.Errorf("poll batch: judge lost token %s", tokens[i])
		}
		v, err := r.decode()
		if err != nil {
			return nil, fmt.Errorf("poll batch: token %s: %w", tokens[i], err)
		}
		if v.Token == "" {
			v.Token = tokens[i]
		}
		verdicts[i] = v
	}
	return verdicts, nil
}

func (c *Judge0Client) do(req *http.Request, out interface{}) error {
	if c.authToken != "" {
		req.Header.Set("X-Auth-Token", c.authToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call judge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("judge returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode judge response: %w", err)
	}
	return nil
}

func (r *rawVerdict) decode() (Verdict, error) {
	v := Verdict{
		Token:       r.Token,
		StatusID:    r.Status.ID,
		Description: r.Status.Description,
		MemoryKb:    r.Memory,
	}
	var err error
	if v.Stdout, err = unb64(r.Stdout); err != nil {
		return v, fmt.Errorf("stdout: %w", err)
	}
	if v.Stderr, err = unb64(r.Stderr); err != nil {
		return v, fmt.Errorf("stderr: %w", err)
	}
	if v.CompileOutput, err = unb64(r.CompileOutput); err != nil {
		return v, fmt.Errorf("compile_output: %w", err)
	}
	if v.Message, err = unb64(r.Message); err != nil {
		return v, fmt.Errorf("message: %w", err)
	}
	if r.Time != nil && *r.Time != "" {
		secs, err := strconv.ParseFloat(*r.Time, 64)
		if err != nil {
			return v, fmt.Errorf("time %q: %w", *r.Time, err)
		}
		ms := int(secs*1000 + 0.5)
		v.TimeMs = &ms
	}
	return v, nil
}

func b64(s string) string {
	if s == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func unb64(s *string) (*string, error) {
	if s == nil {
		return nil, nil
	}
	// Judge0 wraps base64 output at 60 columns.
	dec, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(*s, "\n", ""))
	if err != nil {
		return nil, err
	}
	out := string(dec)
	return &out, nil
}
