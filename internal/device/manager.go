// Package device manages the lifecycle of the virtual device a run executes
// on: creation or lookup, boot, attach validation, shutdown and deletion,
// plus installing and removing the application under test.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/firefly-engineering/simrun/internal/audit"
	"github.com/firefly-engineering/simrun/internal/config"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/provision"
	"github.com/firefly-engineering/simrun/internal/system"
)

// Handle references one device for the duration of a run.
type Handle struct {
	UDID     string
	Name     string
	DataPath string

	// Created is true when this run created the device
	Created bool

	mu       sync.Mutex
	state    provision.DeviceState
	frontEnd system.BackgroundProcess
}

func newHandle(dev *provision.Device, created bool) *Handle {
	return &Handle{
		UDID:     dev.UDID,
		Name:     dev.Name,
		DataPath: dev.DataPath,
		Created:  created,
		state:    dev.State,
	}
}

// State returns the last state observed for the device.
func (h *Handle) State() provision.DeviceState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s provision.DeviceState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// FrontEnd returns the front-end process this run started, if any.
func (h *Handle) FrontEnd() system.BackgroundProcess {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frontEnd
}

// Manager drives device lifecycle operations through a provisioning service.
type Manager struct {
	svc            provision.Service
	cfg            *config.RunConfiguration
	exec           system.CommandExecutor
	journal        *audit.Journal
	bootPolicy     WaitPolicy
	shutdownPolicy WaitPolicy
}

// Option configures a Manager.
type Option func(*Manager)

// WithExecutor sets the executor used for the front-end and process table.
func WithExecutor(exec system.CommandExecutor) Option {
	return func(m *Manager) {
		m.exec = exec
	}
}

// WithJournal records lifecycle events in journal.
func WithJournal(journal *audit.Journal) Option {
	return func(m *Manager) {
		m.journal = journal
	}
}

// WithBootPolicy overrides the boot wait budget.
func WithBootPolicy(p WaitPolicy) Option {
	return func(m *Manager) {
		m.bootPolicy = p
	}
}

// WithShutdownPolicy overrides the shutdown wait budget.
func WithShutdownPolicy(p WaitPolicy) Option {
	return func(m *Manager) {
		m.shutdownPolicy = p
	}
}

// NewManager creates a Manager for one run configuration.
func NewManager(svc provision.Service, cfg *config.RunConfiguration, opts ...Option) *Manager {
	m := &Manager{
		svc:            svc,
		cfg:            cfg,
		exec:           system.DefaultExecutor(),
		bootPolicy:     DefaultBootPolicy,
		shutdownPolicy: DefaultShutdownPolicy,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) log(udid, stage string) *slog.Logger {
	return logging.ForDevice(udid, stage)
}

func (m *Manager) record(eventType audit.EventType, udid, stage, details string) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Record(eventType, udid, stage, details); err != nil {
		logging.Debug("failed to write journal entry", "device", udid, "error", err)
	}
}

// generateName derives a device name from the process identity.
func generateName() string {
	token := strings.SplitN(uuid.New().String(), "-", 2)[0]
	return fmt.Sprintf("%s-%d-%s", config.DeviceNamePrefix, os.Getpid(), token)
}

// CreateDevice creates a device of the configured type and runtime.
// An empty name is replaced with a generated one.
func (m *Manager) CreateDevice(ctx context.Context, name string) (*Handle, error) {
	if name == "" {
		name = generateName()
	}

	dev, err := m.svc.CreateDevice(ctx, provision.CreateSpec{
		Name:       name,
		DeviceType: m.cfg.DeviceType,
		Runtime:    m.cfg.Runtime,
	})
	if err != nil {
		m.log("", "create").Error("device creation failed", "name", name, "error", err)
		return nil, errors.Provisioning(fmt.Sprintf("failed to create device %q", name), err)
	}

	m.log(dev.UDID, "create").Debug("device created", "name", dev.Name, "state", dev.State)
	m.record(audit.EventCreate, dev.UDID, "create", "name="+dev.Name)
	return newHandle(dev, true), nil
}

// FindDevice looks up a device by identifier. It returns nil and no error
// when the device does not exist.
func (m *Manager) FindDevice(ctx context.Context, udid string) (*Handle, error) {
	dev, err := m.svc.Device(ctx, udid)
	if err != nil {
		return nil, errors.Provisioning("failed to query device set", err)
	}
	if dev == nil {
		return nil, nil
	}
	return newHandle(dev, false), nil
}

// AttachToRunningDevice checks that an existing device can host the run:
// it must be Booted and, unless running headless, have an interactive
// front-end. It never changes device state.
func (m *Manager) AttachToRunningDevice(ctx context.Context, h *Handle) error {
	log := m.log(h.UDID, "attach")

	dev, err := m.svc.Device(ctx, h.UDID)
	if err != nil {
		log.Warn("cannot attach: device query failed", "error", err)
		return errors.Provisioning("failed to query device set", err)
	}
	if dev == nil {
		log.Warn("cannot attach: device not found")
		return errors.DeviceNotFound(h.UDID)
	}
	h.setState(dev.State)

	if dev.State != provision.StateBooted {
		log.Warn("cannot attach: device not booted", "state", dev.State)
		return errors.DeviceNotBooted(h.UDID, string(dev.State))
	}

	if !m.cfg.Headless {
		fe, err := FindFrontEnd(ctx, m.exec, h.UDID)
		if err != nil {
			log.Warn("cannot attach: process table scan failed", "error", err)
			return errors.Wrap(errors.ExitNoFrontEnd, "failed to look for a front-end", err)
		}
		if fe == nil {
			log.Warn("cannot attach: no interactive front-end for device")
			return errors.NoFrontEnd(h.UDID)
		}
		log.Debug("found front-end", "pid", fe.PID)
	}

	return nil
}

// Boot boots the device and waits until it reports Booted. In headless
// mode a boot request goes to the service; otherwise the interactive
// front-end is started and boots the device itself. On timeout the
// front-end started here is terminated.
func (m *Manager) Boot(ctx context.Context, h *Handle) error {
	log := m.log(h.UDID, "boot")

	if m.cfg.Headless {
		// The request's own result is informational; convergence is
		// decided by observed state.
		go func() {
			if err := m.svc.Boot(ctx, h.UDID, provision.BootOptions{Headless: true}); err != nil {
				log.Debug("boot request reported an error", "error", err)
			}
		}()
	} else {
		proc, err := StartFrontEnd(m.exec, m.cfg.DeveloperDir, h.UDID)
		if err != nil {
			log.Error("front-end launch failed", "error", err)
			return errors.Wrap(errors.ExitNoFrontEnd, fmt.Sprintf("failed to start front-end for %s", h.UDID), err)
		}
		h.mu.Lock()
		h.frontEnd = proc
		h.mu.Unlock()
		log.Debug("front-end started", "pid", proc.Pid())
	}
	m.record(audit.EventBoot, h.UDID, "boot", fmt.Sprintf("headless=%t", m.cfg.Headless))

	if err := m.WaitForBooted(ctx, h); err != nil {
		m.TerminateFrontEnd(h)
		return err
	}
	return nil
}

// WaitForBooted polls until the device is Booted or the boot budget is spent.
func (m *Manager) WaitForBooted(ctx context.Context, h *Handle) error {
	res, err := m.waitForState(ctx, h.UDID, provision.StateBooted, m.bootPolicy)
	if err != nil {
		return errors.Wrap(errors.ExitBootTimeout, fmt.Sprintf("boot wait for %s interrupted", h.UDID), err)
	}
	if res.missing {
		return errors.DeviceNotFound(h.UDID)
	}
	if !res.reached {
		m.log(h.UDID, "boot").Error("device did not boot", "attempts", res.attempts, "waited", res.waited)
		return errors.BootTimeout(h.UDID, res.waited)
	}
	h.setState(provision.StateBooted)
	return nil
}

// TerminateFrontEnd stops the front-end this run started, if any.
func (m *Manager) TerminateFrontEnd(h *Handle) {
	h.mu.Lock()
	proc := h.frontEnd
	h.frontEnd = nil
	h.mu.Unlock()

	if proc == nil {
		return
	}
	if err := proc.Terminate(); err != nil {
		m.log(h.UDID, "front-end").Warn("failed to terminate front-end", "pid", proc.Pid(), "error", err)
		return
	}
	m.log(h.UDID, "front-end").Debug("front-end terminated", "pid", proc.Pid())
}

// Shutdown requests a shutdown without waiting for it to converge.
func (m *Manager) Shutdown(ctx context.Context, h *Handle) error {
	if err := m.svc.Shutdown(ctx, h.UDID); err != nil {
		m.log(h.UDID, "shutdown").Warn("shutdown request failed", "error", err)
		return errors.Wrap(errors.ExitGeneralError, fmt.Sprintf("failed to shut down device %s", h.UDID), err)
	}
	m.record(audit.EventShutdown, h.UDID, "shutdown", "")
	return nil
}

// WaitForShutdown polls until the device is Shutdown. It returns false when
// the shutdown budget is spent; callers proceed with deletion regardless.
func (m *Manager) WaitForShutdown(ctx context.Context, h *Handle) bool {
	log := m.log(h.UDID, "shutdown")

	res, err := m.waitForState(ctx, h.UDID, provision.StateShutdown, m.shutdownPolicy)
	if err != nil {
		log.Warn("shutdown wait interrupted", "error", err)
		return false
	}
	if res.missing || res.reached {
		h.setState(provision.StateShutdown)
		return true
	}

	log.Warn("device did not shut down in time", "error", errors.ShutdownTimeout(h.UDID), "attempts", res.attempts)
	return false
}

// Delete removes the device from the device set.
func (m *Manager) Delete(ctx context.Context, h *Handle) error {
	if err := m.svc.Delete(ctx, h.UDID); err != nil {
		m.log(h.UDID, "delete").Error("device deletion failed", "error", err)
		return errors.DeleteFailed(h.UDID, err)
	}
	m.record(audit.EventDelete, h.UDID, "delete", "")
	return nil
}
