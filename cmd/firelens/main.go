// main.go - Process entry point.
// Default mode runs the MCP stdio loop with the HTTP listener (agent socket +
// admin surface) in the background. Invoked from a terminal, the process
// re-launches itself detached as an HTTP-only server, matching how an MCP
// host would keep the listener alive across editor restarts.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/firelens/firelens/internal/bridge"
	"github.com/firelens/firelens/internal/ingest"
	"github.com/firelens/firelens/internal/mcp"
	"github.com/firelens/firelens/internal/registry"
	"github.com/firelens/firelens/internal/retention"
	"github.com/firelens/firelens/internal/state"
	"github.com/firelens/firelens/internal/store"
	"github.com/firelens/firelens/internal/tools"
	"github.com/firelens/firelens/internal/util"
)

const (
	version     = "0.4.0"
	defaultPort = 7890
)

func main() {
	port := flag.Int("port", defaultPort, "Port for the local HTTP listener")
	dataDir := flag.String("data-dir", "", "Data directory (default: per-user state dir, or $FIRELENS_DATA_DIR)")
	logLevel := flag.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	serverOnly := flag.Bool("server", false, "Run the HTTP listener without the MCP stdio loop")
	showVersion := flag.Bool("version", false, "Show version")
	showHelp := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *showVersion {
		fmt.Printf("firelens v%s\n", version)
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *logLevel)
		os.Exit(2)
	}
	// Stdout belongs to the MCP protocol; all logging goes to stderr.
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if *dataDir != "" {
		os.Setenv(state.DataDirEnv, *dataDir)
	}
	dir, err := state.EnsureDataDir()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot prepare data directory")
	}

	if !*serverOnly {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			// Launched from a terminal: detach an HTTP-only server and exit.
			daemonize(*port, dir, *logLevel)
			return
		}
	}

	app, err := newApp(dir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer app.close()

	if bridge.IsServerRunning(*port) {
		if *serverOnly {
			log.Fatal().Int("port", *port).Msg("another instance is already serving HTTP")
		}
		log.Warn().Int("port", *port).Msg("another instance is serving HTTP; running MCP only")
	} else {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", *port))
		if err != nil {
			log.Fatal().Err(err).Int("port", *port).Msg("cannot bind HTTP listener")
		}
		srv := &http.Server{
			Handler:      app.routes(),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		util.SafeGo(log, func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server stopped")
			}
		})
		log.Info().Int("port", *port).Str("dataDir", dir).Msgf("firelens v%s listening", version)
	}

	if *serverOnly {
		select {}
	}

	app.runStdioLoop(os.Stdin, os.Stdout)
}

// daemonize re-launches the binary as a detached HTTP-only server.
func daemonize(port int, dataDir, logLevel string) {
	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot locate executable: %v\n", err)
		os.Exit(1)
	}
	args := []string{"--server",
		"--port", fmt.Sprintf("%d", port),
		"--data-dir", dataDir,
		"--log-level", logLevel,
	}
	cmd := exec.Command(exe, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	util.SetDetachedProcess(cmd)
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "cannot start background server: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("firelens v%s: server started (pid %d), HTTP on 127.0.0.1:%d\n", version, cmd.Process.Pid, port)
	fmt.Printf("stop with: kill %d\n", cmd.Process.Pid)
}

// app wires the long-lived components together.
type app struct {
	store     *store.Store
	registry  *registry.Registry
	pipeline  *ingest.Pipeline
	retention *retention.Engine
	mcpServer *mcp.Server
	log       zerolog.Logger
}

func newApp(dataDir string, log zerolog.Logger) (*app, error) {
	st, err := store.Open(dataDir, log)
	if err != nil {
		return nil, err
	}

	reg := registry.New(0)
	pipeline := ingest.New(st, reg, log)

	engine := retention.New(st, reg, log)
	if err := engine.Start(); err != nil {
		st.Close()
		return nil, err
	}

	server := mcp.NewServer("firelens", version)
	tools.Register(server, &tools.Deps{
		Store:    st,
		Registry: reg,
		Capture:  pipeline,
		Log:      log,
	})

	return &app{
		store:     st,
		registry:  reg,
		pipeline:  pipeline,
		retention: engine,
		mcpServer: server,
		log:       log,
	}, nil
}

func (a *app) close() {
	a.retention.Stop()
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("store close failed")
	}
}

// runStdioLoop serves the MCP protocol on stdin/stdout until EOF. Each
// request runs under a watchdog so a wedged handler cannot stall the loop
// forever.
func (a *app) runStdioLoop(in *os.File, out *os.File) {
	reader := bufio.NewReaderSize(in, 1<<20)
	writer := bridge.NewStdioWriter(out)

	for {
		msg, err := bridge.ReadStdioMessage(reader, bridge.DefaultMaxBodyBytes)
		if err != nil {
			a.log.Debug().Err(err).Msg("stdio loop ended")
			return
		}

		var req mcp.JSONRPCRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			a.writeResponse(writer, mcp.JSONRPCResponse{
				JSONRPC: "2.0",
				Error:   &mcp.JSONRPCError{Code: mcp.CodeParseError, Message: "parse error"},
			})
			continue
		}

		resp, reply := a.handleWithWatchdog(req)
		if reply {
			a.writeResponse(writer, resp)
		}
	}
}

func (a *app) handleWithWatchdog(req mcp.JSONRPCRequest) (mcp.JSONRPCResponse, bool) {
	type outcome struct {
		resp  mcp.JSONRPCResponse
		reply bool
	}
	done := make(chan outcome, 1)
	util.SafeGo(a.log, func() {
		resp, reply := a.mcpServer.HandleRequest(req)
		done <- outcome{resp, reply}
	})

	timeout := bridge.ToolCallTimeout(req.Method, req.Params)
	select {
	case o := <-done:
		return o.resp, o.reply
	case <-time.After(timeout):
		a.log.Error().Str("method", req.Method).Dur("timeout", timeout).Msg("request watchdog fired")
		return mcp.JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &mcp.JSONRPCError{Code: mcp.CodeInternalError, Message: "request timed out"},
		}, req.HasID()
	}
}

func (a *app) writeResponse(writer *bridge.StdioWriter, resp mcp.JSONRPCResponse) {
	raw, err := json.Marshal(resp)
	if err != nil {
		a.log.Error().Err(err).Msg("marshal response failed")
		return
	}
	if err := writer.WriteMessage(raw); err != nil {
		a.log.Error().Err(err).Msg("write response failed")
	}
}

func printHelp() {
	fmt.Printf(`firelens v%s - local browser debugging bridge

Usage:
  firelens [flags]           MCP mode when stdin is piped; detaches an HTTP
                             server when run from a terminal
  firelens --server [flags]  HTTP-only mode in the foreground

Flags:
  --port N        HTTP listener port (default %d)
  --data-dir DIR  Data directory (default: per-user state dir)
  --log-level L   trace, debug, info, warn, error (default info)
  --version       Print version and exit
  --help          Print this help and exit

The HTTP listener binds 127.0.0.1 only. The browser agent connects to /ws;
the admin surface (health, stats, retention, sessions) is served alongside.
`, version, defaultPort)
}
