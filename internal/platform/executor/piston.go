// Package executor is the client for the remote code runner (Piston API).
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	compileTimeoutMs = 10000
	runTimeoutMs     = 3000
	unlimitedMemory  = -1
)

type Kind int

const (
	Success Kind = iota
	CompileError
	RuntimeError
	InfrastructureError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case CompileError:
		return "compile_error"
	case RuntimeError:
		return "runtime_error"
	case InfrastructureError:
		return "infrastructure_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one execution. Output is stdout for
// Success and the diagnostic text otherwise.
type Outcome struct {
	Kind   Kind
	Output string
}

func (o Outcome) IsError() bool {
	return o.Kind != Success
}

// Text is the caller-facing rendering of the outcome.
func (o Outcome) Text() string {
	switch o.Kind {
	case CompileError:
		return "Compilation Error:\n" + o.Output
	case RuntimeError:
		return "Runtime Error:\n" + o.Output
	case InfrastructureError:
		return "Error: " + o.Output
	default:
		return o.Output
	}
}

type file struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type executeRequest struct {
	Language           string `json:"language"`
	Version            string `json:"version"`
	Files              []file `json:"files"`
	Stdin              string `json:"stdin"`
	CompileTimeout     int    `json:"compile_timeout"`
	RunTimeout         int    `json:"run_timeout"`
	CompileMemoryLimit int    `json:"compile_memory_limit"`
	RunMemoryLimit     int    `json:"run_memory_limit"`
}

// Stage is one compile or run step. A nil Code (signal kill, missing field)
// counts as a failure.
type Stage struct {
	Code   *int   `json:"code"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Signal string `json:"signal,omitempty"`
}

func (s *Stage) failed() bool {
	return s.Code == nil || *s.Code != 0
}

type Response struct {
	Language string `json:"language"`
	Version  string `json:"version"`
	Compile  *Stage `json:"compile,omitempty"`
	Run      *Stage `json:"run"`
}

type Client struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:        url,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Execute runs code once with stdin. It never returns a Go error: transport
// and protocol failures become InfrastructureError outcomes. No retries.
func (c *Client) Execute(ctx context.Context, language, code, stdin string) Outcome {
	payload, err := json.Marshal(executeRequest{
		Language:           language,
		Version:            "*",
		Files:              []file{{Name: "main." + FileExtension(language), Content: code}},
		Stdin:              stdin,
		CompileTimeout:     compileTimeoutMs,
		RunTimeout:         runTimeoutMs,
		CompileMemoryLimit: unlimitedMemory,
		RunMemoryLimit:     unlimitedMemory,
	})
	if err != nil {
		return infra(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return infra(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return infra(fmt.Sprintf("Code execution timed out (max %ds)", int(c.timeout.Seconds())))
		}
		return infra("Failed to execute code - " + err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return infra(fmt.Sprintf("Code execution timed out (max %ds)", int(c.timeout.Seconds())))
		}
		return infra("Failed to execute code - " + err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return infra(fmt.Sprintf("Failed to execute code - executor returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return infra("malformed executor response: " + err.Error())
	}
	return Classify(parsed)
}

// Classify derives the outcome from the stage reports.
func Classify(r Response) Outcome {
	if r.Compile != nil && r.Compile.failed() {
		diag := r.Compile.Stderr
		if diag == "" {
			diag = r.Compile.Stdout
		}
		if diag == "" {
			diag = "Compilation failed"
		}
		return Outcome{Kind: CompileError, Output: diag}
	}

	run := r.Run
	if run == nil {
		run = &Stage{}
	}
	if run.failed() && run.Stderr != "" {
		return Outcome{Kind: RuntimeError, Output: run.Stderr}
	}

	// stderr stands in for empty stdout and still counts as a success
	out := strings.TrimSpace(run.Stdout)
	if out == "" {
		out = strings.TrimSpace(run.Stderr)
	}
	return Outcome{Kind: Success, Output: out}
}

var extensions = map[string]string{
	"python":     "py",
	"javascript": "js",
	"cpp":        "cpp",
	"java":       "java",
	"c":          "c",
	"rust":       "rs",
	"go":         "go",
}

func FileExtension(language string) string {
	if ext, ok := extensions[language]; ok {
		return ext
	}
	return "txt"
}

func infra(msg string) Outcome {
	return Outcome{Kind: InfrastructureError, Output: msg}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
