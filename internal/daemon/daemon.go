package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/voxd-dev/voxd/internal/bus"
	"github.com/voxd-dev/voxd/internal/config"
	"github.com/voxd-dev/voxd/internal/creds"
	"github.com/voxd-dev/voxd/internal/history"
	"github.com/voxd-dev/voxd/internal/inject"
	"github.com/voxd-dev/voxd/internal/input"
	"github.com/voxd-dev/voxd/internal/notify"
	"github.com/voxd-dev/voxd/internal/session"
	"github.com/voxd-dev/voxd/internal/state"
)

// Daemon owns the long-lived pieces: the config manager, the state machine,
// the session orchestrator and the input mediator. It exposes them over the
// control socket as single-byte commands.
type Daemon struct {
	configs  *config.Manager
	machine  *state.Machine
	engine   *session.Orchestrator
	mediator *input.Mediator
	notifier notify.Notifier

	ctx    context.Context
	cancel context.CancelFunc
}

func New() (*Daemon, error) {
	configs, err := config.NewManager()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := configs.GetConfig()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notifications.Enabled {
		notifier = notify.ForType(cfg.Notifications.Type)
	}

	var recorder history.Recorder
	if fh, err := history.NewFileHistory(); err != nil {
		log.Printf("Daemon: history disabled: %v", err)
		recorder = history.Nop{}
	} else {
		recorder = fh
	}

	machine := state.NewMachine()
	engine := session.New(
		machine,
		configs,
		notifier,
		inject.NewInserter(cfg.ToInjectConfig()),
		recorder,
		creds.Default(cfg.ProviderKeys()),
	)
	mediator := input.NewMediator(machine, engine, cfg.Input.DoubleTapWindow)
	engine.OnCommand = mediator.HandleVoiceCommand

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		configs:  configs,
		machine:  machine,
		engine:   engine,
		mediator: mediator,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	if err := d.configs.StartWatching(d.ctx); err != nil {
		log.Printf("Daemon: config watching disabled: %v", err)
	}
	defer d.configs.Stop()
	defer d.engine.Shutdown()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully", sig)
		d.cancel()
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("Daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Shutdown requested")
				return nil
			}
			log.Printf("Accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		log.Printf("Client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	if len(line) == 0 {
		fmt.Fprint(c, "ERR empty\n")
		return
	}
	cmd := line[0]

	switch cmd {
	case 't':
		d.mediator.HandleKeyPress(d.ctx)
		fmt.Fprint(c, "OK toggled\n")
	case 'g':
		d.mediator.HandleGestureToggle(d.ctx)
		fmt.Fprint(c, "OK gesture\n")
	case 'c':
		_, src := d.machine.Current()
		d.mediator.HandleCancel(src)
		fmt.Fprint(c, "OK canceled\n")
	case 's':
		status, src := d.machine.Current()
		fmt.Fprintf(c, "STATUS status=%s source=%s\n", status, src)
	case 'v':
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
	case 'q':
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
	default:
		log.Printf("Unknown command: %c", cmd)
		fmt.Fprintf(c, "ERR unknown=%q\n", cmd)
	}
}
