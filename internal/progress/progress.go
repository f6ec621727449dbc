package progress

import (
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Ning0612/filesync/internal/logger"
)

// Reporter handles progress reporting for staged downloads
type Reporter interface {
	// Start begins tracking a new file transfer
	Start(path string, totalBytes int64)
	// Update reports progress on current transfer
	Update(bytesTransferred int64)
	// Complete marks the current transfer as complete
	Complete()
	// Error reports an error on current transfer
	Error(err error)
	// SetTotal sets the total number of files to process
	SetTotal(totalFiles int, totalBytes int64)
	// OverallProgress reports overall sync progress
	OverallProgress(filesCompleted int, bytesCompleted int64)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type           UpdateType
	CurrentFile    string
	CurrentBytes   int64
	CurrentTotal   int64
	FilesCompleted int
	FilesTotal     int
	BytesCompleted int64
	BytesTotal     int64
	BytesPerSecond float64
	Error          error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateStart UpdateType = iota
	UpdateProgress
	UpdateComplete
	UpdateError
	UpdateOverall
)

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback       Callback
	mu             sync.Mutex
	currentFile    string
	currentTotal   int64
	currentBytes   int64
	filesTotal     int
	bytesTotal     int64
	filesCompleted int
	bytesCompleted int64
	startTime      time.Time
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
	}
}

// SetTotal sets the total number of files and bytes to sync
func (r *CallbackReporter) SetTotal(totalFiles int, totalBytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filesTotal = totalFiles
	r.bytesTotal = totalBytes
}

// Start begins tracking a new file transfer
func (r *CallbackReporter) Start(path string, totalBytes int64) {
	r.mu.Lock()
	r.currentFile = path
	r.currentTotal = totalBytes
	r.currentBytes = 0
	r.startTime = time.Now()

	// Capture values for callback outside lock
	update := Update{
		Type:           UpdateStart,
		CurrentFile:    path,
		CurrentTotal:   totalBytes,
		FilesCompleted: r.filesCompleted,
		FilesTotal:     r.filesTotal,
		BytesCompleted: r.bytesCompleted,
		BytesTotal:     r.bytesTotal,
	}
	callback := r.callback
	r.mu.Unlock()

	// Call callback outside lock to prevent deadlock
	if callback != nil {
		callback(update)
	}
}

// Update reports progress on current transfer
func (r *CallbackReporter) Update(bytesTransferred int64) {
	r.mu.Lock()
	r.currentBytes = bytesTransferred

	var bytesPerSecond float64
	elapsed := time.Since(r.startTime).Seconds()
	if elapsed > 0 {
		bytesPerSecond = float64(bytesTransferred) / elapsed
	}

	update := Update{
		Type:           UpdateProgress,
		CurrentFile:    r.currentFile,
		CurrentBytes:   bytesTransferred,
		CurrentTotal:   r.currentTotal,
		FilesCompleted: r.filesCompleted,
		FilesTotal:     r.filesTotal,
		BytesCompleted: r.bytesCompleted + bytesTransferred,
		BytesTotal:     r.bytesTotal,
		BytesPerSecond: bytesPerSecond,
	}
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Complete marks the current transfer as complete
func (r *CallbackReporter) Complete() {
	r.mu.Lock()
	// peers do not advertise sizes, so the total may only be known now
	size := r.currentTotal
	if r.currentBytes > size {
		size = r.currentBytes
	}
	r.filesCompleted++
	r.bytesCompleted += size

	update := Update{
		Type:           UpdateComplete,
		CurrentFile:    r.currentFile,
		CurrentBytes:   size,
		CurrentTotal:   size,
		FilesCompleted: r.filesCompleted,
		FilesTotal:     r.filesTotal,
		BytesCompleted: r.bytesCompleted,
		BytesTotal:     r.bytesTotal,
	}
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// Error reports an error on current transfer
func (r *CallbackReporter) Error(err error) {
	r.mu.Lock()
	update := Update{
		Type:           UpdateError,
		CurrentFile:    r.currentFile,
		FilesCompleted: r.filesCompleted,
		FilesTotal:     r.filesTotal,
		BytesCompleted: r.bytesCompleted,
		BytesTotal:     r.bytesTotal,
		Error:          err,
	}
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// OverallProgress reports overall sync progress
func (r *CallbackReporter) OverallProgress(filesCompleted int, bytesCompleted int64) {
	r.mu.Lock()
	update := Update{
		Type:           UpdateOverall,
		FilesCompleted: filesCompleted,
		FilesTotal:     r.filesTotal,
		BytesCompleted: bytesCompleted,
		BytesTotal:     r.bytesTotal,
	}
	callback := r.callback
	r.mu.Unlock()

	if callback != nil {
		callback(update)
	}
}

// NewLogReporter returns a reporter that logs per-file transfers.
// Byte-level updates are not logged.
func NewLogReporter(log logger.Logger) *CallbackReporter {
	return NewCallbackReporter(func(u Update) {
		switch u.Type {
		case UpdateStart:
			log.Debug("fetching file", "path", u.CurrentFile,
				"file", u.FilesCompleted+1, "files", u.FilesTotal)
		case UpdateComplete:
			log.Info("fetched file", "path", u.CurrentFile,
				"size", FormatBytes(u.CurrentTotal),
				"progress", FormatProgress(u.FilesCompleted, u.FilesTotal))
		case UpdateError:
			log.Warn("fetch failed", "path", u.CurrentFile, "error", u.Error)
		case UpdateOverall:
			log.Info("staging finished", "files", u.FilesCompleted,
				"bytes", FormatBytes(u.BytesCompleted))
		}
	})
}

// ProgressWriter wraps an io.Writer to track write progress
type ProgressWriter struct {
	writer      io.Writer
	reporter    Reporter
	transferred int64
}

// NewProgressWriter creates a new progress-tracking writer. A nil reporter
// counts bytes without reporting them.
func NewProgressWriter(w io.Writer, reporter Reporter) *ProgressWriter {
	if reporter == nil {
		reporter = NullReporter{}
	}
	return &ProgressWriter{
		writer:   w,
		reporter: reporter,
	}
}

// Write implements io.Writer
func (pw *ProgressWriter) Write(p []byte) (n int, err error) {
	n, err = pw.writer.Write(p)
	if n > 0 {
		pw.transferred += int64(n)
		pw.reporter.Update(pw.transferred)
	}
	return n, err
}

// Transferred returns the bytes written so far
func (pw *ProgressWriter) Transferred() int64 {
	return pw.transferred
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Start(path string, totalBytes int64)                      {}
func (NullReporter) Update(bytesTransferred int64)                            {}
func (NullReporter) Complete()                                                {}
func (NullReporter) Error(err error)                                          {}
func (NullReporter) SetTotal(totalFiles int, totalBytes int64)                {}
func (NullReporter) OverallProgress(filesCompleted int, bytesCompleted int64) {}

// FormatBytes formats bytes into human-readable IEC units
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatProgress renders "n/total (pct%)"
func FormatProgress(current, total int) string {
	if total <= 0 {
		return ""
	}
	return humanize.Comma(int64(current)) + "/" + humanize.Comma(int64(total)) +
		" (" + humanize.FtoaWithDigits(float64(current)*100/float64(total), 1) + "%)"
}
