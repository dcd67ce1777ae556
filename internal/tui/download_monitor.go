package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kelsos/safes-dump/internal/logger"
	"github.com/kelsos/safes-dump/internal/services"
)

// ErrInterrupted is returned when the user quits the monitor before the download finished
var ErrInterrupted = errors.New("download interrupted")

type DownloadMonitor struct {
	dumpService *services.DumpService
	program     *tea.Program
}

func NewDownloadMonitor(dumpService *services.DumpService) *DownloadMonitor {
	return &DownloadMonitor{
		dumpService: dumpService,
	}
}

func (dm *DownloadMonitor) Start(opts ...tea.ProgramOption) {
	cfg := dm.dumpService.GetConfig()
	model := NewModel(cfg.Endpoint, string(cfg.Pagination), cfg.PageSize)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	dm.program = tea.NewProgram(model, opts...)
}

func (dm *DownloadMonitor) send(msg tea.Msg) {
	if dm.program != nil {
		dm.program.Send(msg)
	}
}

// Run downloads in a goroutine while the TUI renders progress, and returns the
// download's outcome once the TUI exits
func (dm *DownloadMonitor) Run(ctx context.Context) (*services.DumpResult, error) {
	if dm.program == nil {
		dm.Start()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	dm.dumpService.OnBlockNumber(func(blockNumber string) {
		dm.send(BlockCaptured{BlockNumber: blockNumber})
	})
	dm.dumpService.Safes().OnPage(func(event services.PageEvent) {
		dm.send(PageUpdate{Event: event})
	})

	type outcome struct {
		result *services.DumpResult
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		cfg := dm.dumpService.GetConfig()
		dm.send(LogMessage{Message: fmt.Sprintf("downloading to %s", cfg.OutputPath)})

		result, err := dm.dumpService.Run(ctx)
		if err != nil {
			logger.Error("Download failed: %v", err)
		}
		done <- outcome{result: result, err: err}
		dm.send(DownloadFinished{Result: result, Err: err})
	}()

	if _, err := dm.program.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("failed to run TUI: %w", err)
	}

	// The TUI may exit on 'q' before the download does
	select {
	case o := <-done:
		return o.result, o.err
	default:
		cancel()
		<-done
		return nil, ErrInterrupted
	}
}
