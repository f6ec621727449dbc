// Package notify delivers "file updated" notices to the user.
package notify

import (
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/Ning0612/filesync/internal/logger"
)

// Notifier displays a short notice to the user
type Notifier interface {
	Notify(title, message string) error
}

// Desktop shows native desktop notifications
type Desktop struct{}

// NewDesktop creates a desktop notifier
func NewDesktop() *Desktop {
	return &Desktop{}
}

// Notify implements Notifier
func (Desktop) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Log writes notifications to a logger instead of the desktop
type Log struct {
	log logger.Logger
}

// NewLog creates a logging notifier
func NewLog(log logger.Logger) *Log {
	return &Log{log: log}
}

// Notify implements Notifier
func (n *Log) Notify(title, message string) error {
	n.log.Info("notification", "title", title, "message", message)
	return nil
}

// Nop discards notifications
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(string, string) error { return nil }

// Fallback tries Primary and, once it fails, uses Secondary for the rest of
// the process lifetime. Headless hosts have no notification daemon.
type Fallback struct {
	Primary   Notifier
	Secondary Notifier

	mu     sync.Mutex
	failed bool
}

// Notify implements Notifier
func (f *Fallback) Notify(title, message string) error {
	f.mu.Lock()
	failed := f.failed
	f.mu.Unlock()

	if !failed {
		err := f.Primary.Notify(title, message)
		if err == nil {
			return nil
		}
		logger.Get().Warn("desktop notifications unavailable, falling back to log", "error", err)
		f.mu.Lock()
		f.failed = true
		f.mu.Unlock()
	}
	return f.Secondary.Notify(title, message)
}

// Recorder keeps notifications in memory
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Message is one recorded notification
type Message struct {
	Title string
	Body  string
}

// Notify implements Notifier
func (r *Recorder) Notify(title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Title: title, Body: message})
	return nil
}

// Messages returns a copy of what was recorded
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
