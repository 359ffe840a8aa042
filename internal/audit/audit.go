// Package audit keeps a per-device journal of run lifecycle events.
// Entries are JSON Lines, one file per device, and exist for diagnosis
// only; they are not a results store.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventCreate   EventType = "create"
	EventBoot     EventType = "boot"
	EventInstall  EventType = "install"
	EventLaunch   EventType = "launch"
	EventExit     EventType = "exit"
	EventFinish   EventType = "finish"
	EventShutdown EventType = "shutdown"
	EventDelete   EventType = "delete"
	EventError    EventType = "error"
)

const journalExt = ".jsonl"

// Event represents a single journal entry.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Device    string    `json:"device"`
	Stage     string    `json:"stage,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Journal writes and reads lifecycle events for devices.
// Events are stored in {dir}/{udid}.jsonl.
type Journal struct {
	dir string
	mu  sync.Mutex
}

// NewJournal creates a journal rooted at dir.
func NewJournal(dir string) *Journal {
	return &Journal{dir: dir}
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// path returns the journal file for a device, confined to the journal dir
func (j *Journal) path(udid string) (string, error) {
	if udid == "" {
		return "", fmt.Errorf("journal entry has no device")
	}
	return securejoin.SecureJoin(j.dir, udid+journalExt)
}

// Log appends an event to the device's journal.
func (j *Journal) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	path, err := j.path(event.Device)
	if err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Record is a convenience method that creates and logs an event.
func (j *Journal) Record(eventType EventType, udid, stage, details string) error {
	return j.Log(Event{
		Type:    eventType,
		Device:  udid,
		Stage:   stage,
		Details: details,
	})
}

// Events reads all events for a device in the order they were written.
func (j *Journal) Events(udid string) ([]Event, error) {
	path, err := j.path(udid)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading journal: %w", err)
	}
	return events, nil
}

// Devices lists the devices that have a journal, sorted.
func (j *Journal) Devices() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	var devices []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), journalExt) {
			continue
		}
		devices = append(devices, strings.TrimSuffix(e.Name(), journalExt))
	}
	sort.Strings(devices)
	return devices, nil
}

// Remove deletes the journal for a device.
func (j *Journal) Remove(udid string) error {
	path, err := j.path(udid)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
