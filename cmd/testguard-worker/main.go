// Command testguard-worker is the child process spawned by the testguard
// coordinator (internal/workerclient). It reads line-framed commands on
// stdin, dispatches them to a registered internal/engine.Adapter, and
// writes line-framed events to stdout, per internal/protocol.
package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jpequegn/testguard/internal/engine"
	"github.com/jpequegn/testguard/internal/protocol"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	registry := engine.NewRegistry()
	registry.RegisterAdapter("go", engine.NewGoTestAdapter())

	bw := bufio.NewWriter(os.Stdout)
	defer bw.Flush()

	cmds := make(chan protocol.Message, 16)
	go pumpStdin(os.Stdin, cmds, logger)

	for msg := range cmds {
		switch m := msg.(type) {
		case protocol.DiscoverCmd:
			handleDiscover(context.Background(), registry, bw, m, logger)
		case protocol.RunCmd:
			handleRun(cmds, registry, bw, m, logger)
		case protocol.CancelCmd:
			// no run in flight; nothing to cancel
		}
		bw.Flush()
	}
}

func pumpStdin(r *os.File, cmds chan<- protocol.Message, logger *slog.Logger) {
	defer close(cmds)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		msg, ok := protocol.Decode(scanner.Bytes())
		if !ok {
			logger.Debug("worker: ignoring unparsable command line", "line", scanner.Text())
			continue
		}
		cmds <- msg
	}
}

func handleDiscover(ctx context.Context, registry *engine.Registry, bw *bufio.Writer, cmd protocol.DiscoverCmd, logger *slog.Logger) {
	adapter, err := registry.GetAdapter(cmd.Assembly)
	if err != nil {
		writeError(bw, "no adapter for assembly", err.Error(), logger)
		return
	}
	tests, err := adapter.Discover(ctx, cmd.Assembly)
	if err != nil {
		writeError(bw, "discovery failed", err.Error(), logger)
		return
	}
	if err := protocol.EncodeLine(bw, protocol.DiscoveredEvent{Tests: tests}); err != nil {
		logger.Error("worker: failed to write discovered event", "error", err)
	}
}

// handleRun executes one RunCmd, consuming cmds for an interleaved
// CancelCmd until the adapter's event stream reaches its terminal event.
func handleRun(cmds <-chan protocol.Message, registry *engine.Registry, bw *bufio.Writer, cmd protocol.RunCmd, logger *slog.Logger) {
	adapter, err := registry.GetAdapter(cmd.Assembly)
	if err != nil {
		writeError(bw, "no adapter for assembly", err.Error(), logger)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cmd.TimeoutSeconds > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, time.Duration(cmd.TimeoutSeconds)*time.Second)
		defer timeoutCancel()
	}

	events, err := adapter.Run(ctx, cmd.Assembly, cmd.Tests)
	if err != nil {
		writeError(bw, "run failed to start", err.Error(), logger)
		return
	}

	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := protocol.EncodeLine(bw, ev); err != nil {
				logger.Error("worker: failed to write event", "error", err)
			}
			bw.Flush()
			switch ev.(type) {
			case protocol.CompletedEvent, protocol.ErrorEvent:
				return
			}
		case m, ok := <-cmds:
			if !ok {
				return
			}
			if _, isCancel := m.(protocol.CancelCmd); isCancel {
				cancel()
			}
		}
	}
}

func writeError(bw *bufio.Writer, message, details string, logger *slog.Logger) {
	if err := protocol.EncodeLine(bw, protocol.ErrorEvent{Message: message, Details: details}); err != nil {
		logger.Error("worker: failed to write error event", "error", err)
	}
}
