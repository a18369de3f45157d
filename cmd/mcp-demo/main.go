// Command mcp-demo runs an example MCP server over stdio, wiring the
// library's example tools/resources/prompts providers. Structure
// follows the teacher's cmd/mcp/main.go: logging to a file (stdio is
// the wire protocol, so stdout must stay clean of log output) and a
// signal-driven shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mcpcore/mcp/examples/prompts"
	"github.com/mcpcore/mcp/examples/resources"
	"github.com/mcpcore/mcp/examples/resources/sqlitestore"
	"github.com/mcpcore/mcp/examples/tools"
	"github.com/mcpcore/mcp/internal/logger"
	"github.com/mcpcore/mcp/pkg/mcp"
	"github.com/mcpcore/mcp/pkg/server"
	stdiotransport "github.com/mcpcore/mcp/transport/stdio"
)

func main() {
	logger.SetLogOutput('f')
	logger.SetShowDateTime(true)
	logger.Info("starting mcp-demo")

	srv := server.New(stdiotransport.New(), mcp.Implementation{
		Name:    "mcp-demo",
		Version: "0.1.0",
	}, mcp.ServerCapabilities{
		Tools:     &mcp.ListChangedCapability{ListChanged: true},
		Resources: &mcp.ResourcesCapability{Subscribe: true, ListChanged: true},
		Prompts:   &mcp.ListChangedCapability{},
		Tasks:     true,
	})

	srv.RegisterTool(tools.AddTool(), tools.HandleAdd)
	srv.RegisterTool(tools.FetchMarkdownTool(), tools.HandleFetchMarkdown)
	screenshotHandler := &tools.ScreenshotHandler{Tasks: srv.Tasks()}
	srv.RegisterTool(tools.ScreenshotTool(), screenshotHandler.Handle)

	srv.RegisterResource(resources.HelloResource(), resources.HandleHelloResource)
	if store, err := openNotesStore(); err != nil {
		logger.Warn("mcp-demo: sqlite notes store unavailable", err)
	} else {
		wireNotesResources(srv, store)
		saver, err := tools.NewNoteSaver(context.Background(), store, srv)
		if err != nil {
			logger.Warn("mcp-demo: note saver unavailable", err)
		} else {
			srv.RegisterTool(tools.SaveNoteTool(), saver.Handle)
		}
	}

	if reg, err := prompts.NewRegistry(defaultPromptDir()); err != nil {
		logger.Warn("mcp-demo: prompt registry unavailable", err)
	} else {
		wirePrompts(srv, reg)
	}

	ctx, stop := signalContext()
	defer stop()

	srv.StartTaskSweeper(ctx, 30*time.Second)

	if err := srv.Serve(ctx); err != nil {
		logger.Fatal("mcp-demo: server exited with error", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("mcp-demo: received shutdown signal")
		cancel()
	}()
	return ctx, cancel
}

func defaultPromptDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcp-demo/prompts"
	}
	return filepath.Join(home, ".mcp-demo", "prompts")
}

func openNotesStore() (*sqlitestore.Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	dir := filepath.Join(home, ".mcp-demo")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return sqlitestore.Open(filepath.Join(dir, "notes.db"))
}

func wireNotesResources(srv *server.Server, store *sqlitestore.Store) {
	ctx := context.Background()
	notes, err := store.List(ctx)
	if err != nil {
		logger.Warn("mcp-demo: failed to list notes", err)
		return
	}
	for _, n := range notes {
		srv.RegisterResource(n, store.Read)
	}
}

func wirePrompts(srv *server.Server, reg *prompts.Registry) {
	list, err := reg.List()
	if err != nil {
		logger.Warn("mcp-demo: failed to list prompts", err)
		return
	}
	for _, p := range list {
		srv.RegisterPrompt(p, bindPrompt(reg, p.Name))
	}
}

func bindPrompt(reg *prompts.Registry, name string) func(ctx context.Context, args map[string]string) (mcp.PromptResult, error) {
	return func(ctx context.Context, args map[string]string) (mcp.PromptResult, error) {
		return reg.Get(ctx, name, args)
	}
}

