// Package fakeprovider turns a test binary into a scripted tool provider.
//
// A test package calls RunIfRequested at the top of TestMain. When the binary
// is re-executed with ModeEnv set, it behaves as the requested provider and
// exits instead of running tests. Config builds a provider config that does
// exactly that.
package fakeprovider

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagiedev/mcp-supervisor-go/internal/config"
	"github.com/wagiedev/mcp-supervisor-go/internal/jsonrpc"
)

// Environment variables read by the provider process.
const (
	ModeEnv         = "MCPSUP_FAKE_PROVIDER"
	CounterEnv      = "MCPSUP_FAKE_COUNTER"
	CrashAfterEnv   = "MCPSUP_FAKE_CRASH_AFTER"
	PingFailuresEnv = "MCPSUP_FAKE_PING_FAILURES"
	AddToolAfterEnv = "MCPSUP_FAKE_ADD_TOOL_AFTER"
)

// Modes. Every mode counts its starts in the file named by CounterEnv, if set.
const (
	// ModeEcho serves echo and add tools through the go-sdk server.
	ModeEcho = "echo"
	// ModeExit exits with status 3 right away.
	ModeExit = "exit"
	// ModeCrashAfterInit completes the handshake and exits after CrashAfterEnv.
	ModeCrashAfterInit = "crash-after-init"
	// ModeFirstThenExit behaves like ModeCrashAfterInit on its first start
	// and like ModeExit on every later one.
	ModeFirstThenExit = "first-then-exit"
	// ModeFlakyPing fails the first PingFailuresEnv pings with an error reply.
	ModeFlakyPing = "flaky-ping"
	// ModeSilent reads requests and never answers.
	ModeSilent = "silent"
	// ModeHangPing completes the handshake and never answers ping.
	ModeHangPing = "hang-ping"
	// ModeCloseStdout completes the handshake, closes stdout and keeps
	// running until killed.
	ModeCloseStdout = "close-stdout"
)

const (
	serverName      = "fake-provider"
	protocolVersion = config.DefaultProtocolVersion
	exitStatus      = 3
	crashStatus     = 2
)

// Config returns a provider config that re-executes the current test binary
// in the given mode.
func Config(name, mode string, env map[string]string) *config.ProviderConfig {
	merged := map[string]string{ModeEnv: mode}
	for k, v := range env {
		merged[k] = v
	}

	return &config.ProviderConfig{
		Name:    name,
		Command: os.Args[0],
		Args:    []string{"-test.run=^$"},
		Env:     merged,
	}
}

// RunIfRequested runs the provider and exits when ModeEnv is set.
// It returns immediately otherwise.
func RunIfRequested() {
	mode := os.Getenv(ModeEnv)
	if mode == "" {
		return
	}

	os.Exit(run(mode))
}

func run(mode string) int {
	starts := startCount()

	switch mode {
	case ModeEcho:
		return serveEcho()
	case ModeExit:
		fmt.Fprintln(os.Stderr, "fake provider refusing to start")

		return exitStatus
	case ModeFirstThenExit:
		if starts > 1 {
			fmt.Fprintln(os.Stderr, "fake provider crashed on start")

			return exitStatus
		}

		return serveScripted(mode)
	default:
		return serveScripted(mode)
	}
}

// serveEcho runs a real go-sdk server over stdio.
func serveEcho() int {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: "1.0.0"}, &mcp.ServerOptions{PageSize: 1})
	AddEchoTools(server)

	if d := durationEnv(AddToolAfterEnv); d > 0 {
		go func() {
			time.Sleep(d)
			mcp.AddTool(server, &mcp.Tool{Name: "reverse", Description: "Reverses text"}, reverse)
		}()
	}

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		fmt.Fprintln(os.Stderr, err)

		return 1
	}

	return 0
}

// TextInput is the argument of the echo and reverse tools.
type TextInput struct {
	Text string `json:"text" jsonschema:"the text to return"`
}

// AddInput is the argument of the add tool.
type AddInput struct {
	A int `json:"a" jsonschema:"first addend"`
	B int `json:"b" jsonschema:"second addend"`
}

// SumOutput is the structured result of the add tool.
type SumOutput struct {
	Sum int `json:"sum"`
}

// AddEchoTools registers the echo and add tools on server.
func AddEchoTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{Name: "echo", Description: "Returns its input"}, echo)
	mcp.AddTool(server, &mcp.Tool{Name: "add", Description: "Adds two integers"}, add)
}

func echo(_ context.Context, _ *mcp.CallToolRequest, in TextInput) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: in.Text}}}, nil, nil
}

func reverse(_ context.Context, _ *mcp.CallToolRequest, in TextInput) (*mcp.CallToolResult, any, error) {
	runes := []rune(in.Text)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}

	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(runes)}}}, nil, nil
}

func add(_ context.Context, _ *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, SumOutput, error) {
	return nil, SumOutput{Sum: in.A + in.B}, nil
}

// serveScripted answers requests line by line according to mode.
func serveScripted(mode string) int {
	if mode == ModeCrashAfterInit || mode == ModeFirstThenExit {
		crashAfter := durationEnv(CrashAfterEnv)
		if crashAfter <= 0 {
			crashAfter = 200 * time.Millisecond
		}

		go func() {
			time.Sleep(crashAfter)
			fmt.Fprintln(os.Stderr, "fake provider crashing")
			os.Exit(crashStatus)
		}()
	}

	pingFailures := intEnv(PingFailuresEnv)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		msg, err := jsonrpc.Decode(scanner.Bytes())
		if err != nil || msg.Kind() != jsonrpc.KindRequest {
			continue
		}

		if mode == ModeSilent {
			continue
		}

		var reply *jsonrpc.Message

		switch msg.Method {
		case "initialize":
			reply, err = jsonrpc.NewResult(msg.ID, &mcp.InitializeResult{
				ProtocolVersion: protocolVersion,
				ServerInfo:      &mcp.Implementation{Name: serverName, Version: "1.0.0"},
				Capabilities:    &mcp.ServerCapabilities{Tools: &mcp.ToolCapabilities{}},
			})
		case "ping":
			switch {
			case mode == ModeHangPing:
				continue
			case pingFailures > 0:
				pingFailures--
				reply = jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeInternalError, "not ready")
			default:
				reply, err = jsonrpc.NewResult(msg.ID, struct{}{})
			}
		default:
			reply = jsonrpc.NewErrorResponse(msg.ID, jsonrpc.CodeMethodNotFound, "method not found: "+msg.Method)
		}

		if err != nil {
			fmt.Fprintln(os.Stderr, err)

			return 1
		}

		line, err := jsonrpc.Encode(reply)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)

			return 1
		}

		if _, err := os.Stdout.Write(line); err != nil {
			return 1
		}

		if mode == ModeCloseStdout && msg.Method == "initialize" {
			_ = os.Stdout.Close()
			fmt.Fprintln(os.Stderr, "fake provider closed stdout")

			// A timer keeps the runtime from reporting a deadlock.
			time.Sleep(time.Hour)

			return 0
		}
	}

	return 0
}

// startCount increments and returns the start counter in CounterEnv's file.
func startCount() int {
	path := os.Getenv(CounterEnv)
	if path == "" {
		return 1
	}

	n := 0
	if data, err := os.ReadFile(path); err == nil {
		n, _ = strconv.Atoi(strings.TrimSpace(string(data)))
	}

	n++

	_ = os.WriteFile(path, []byte(strconv.Itoa(n)), 0o600)

	return n
}

// Starts returns how many times a provider using the counter file at path
// has started.
func Starts(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}

	n, _ := strconv.Atoi(strings.TrimSpace(string(data)))

	return n
}

func durationEnv(key string) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return 0
	}

	return d
}

func intEnv(key string) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}

	return n
}
