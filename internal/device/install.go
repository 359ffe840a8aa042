package device

import (
	"context"
	"fmt"
	"os"

	"github.com/firefly-engineering/simrun/internal/audit"
	"github.com/firefly-engineering/simrun/internal/errors"
	"github.com/firefly-engineering/simrun/internal/logging"
	"github.com/firefly-engineering/simrun/internal/provision"
)

// Installer installs and removes the application under test.
type Installer struct {
	svc     provision.Service
	journal *audit.Journal
}

// NewInstaller creates an Installer. journal may be nil.
func NewInstaller(svc provision.Service, journal *audit.Journal) *Installer {
	return &Installer{svc: svc, journal: journal}
}

// Install installs the bundle at bundlePath onto the device.
func (i *Installer) Install(ctx context.Context, bundlePath, bundleID string, h *Handle) error {
	log := logging.ForDevice(h.UDID, "install")

	if _, err := os.Stat(bundlePath); err != nil {
		log.Error("app bundle is not readable", "bundle", bundlePath, "error", err)
		return errors.InstallFailed(bundlePath, h.UDID, err)
	}

	if err := i.svc.Install(ctx, h.UDID, bundlePath); err != nil {
		log.Error("install failed", "bundle", bundlePath, "error", err)
		return errors.InstallFailed(bundlePath, h.UDID, err)
	}

	log.Debug("app installed", "bundle", bundlePath, "bundle_id", bundleID)
	i.record(audit.EventInstall, h.UDID, "install", bundleID)
	return nil
}

// Uninstall removes the application. Callers running cleanup treat the
// error as advisory.
func (i *Installer) Uninstall(ctx context.Context, bundleID string, h *Handle) error {
	if err := i.svc.Uninstall(ctx, h.UDID, bundleID); err != nil {
		logging.ForDevice(h.UDID, "uninstall").Warn("uninstall failed", "bundle_id", bundleID, "error", err)
		return fmt.Errorf("failed to uninstall %s from %s: %w", bundleID, h.UDID, err)
	}
	return nil
}

func (i *Installer) record(eventType audit.EventType, udid, stage, details string) {
	if i.journal == nil {
		return
	}
	if err := i.journal.Record(eventType, udid, stage, details); err != nil {
		logging.Debug("failed to write journal entry", "device", udid, "error", err)
	}
}
