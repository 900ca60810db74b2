package svc

import (
	"context"

	"github.com/kardianos/service"

	"sttstudio/pkg/logger"
)

// Program adapts Studio to kardianos/service's Interface so the studio can
// be installed and controlled as an OS service, running the exact same
// Run loop the CLI's `serve` command drives in the foreground.
type Program struct {
	studio *Studio
	cancel context.CancelFunc
}

// NewProgram wraps studio for service installation/control.
func NewProgram(studio *Studio) *Program {
	return &Program{studio: studio}
}

// Start is called by the service manager; it must not block.
func (p *Program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		if err := p.studio.Run(ctx); err != nil {
			logger.Error("service run exited with error", "error", err)
		}
	}()
	return nil
}

// Stop is called by the service manager on shutdown; it must not block.
func (p *Program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// Config describes the installed service.
func Config(executable string) *service.Config {
	return &service.Config{
		Name:        "sttstudio",
		DisplayName: "STT Studio",
		Description: "Batch speech-to-text subtitle generation service.",
		Executable:  executable,
		Arguments:   []string{"service-run"},
	}
}
