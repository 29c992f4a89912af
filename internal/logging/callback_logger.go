package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// redactedHeaders never reach the audit file
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"X-Cron-Secret": true,
}

// CallbackEntry is one vendor webhook delivery, as written to the audit file.
type CallbackEntry struct {
	Timestamp  time.Time           `json:"timestamp"`
	Provider   string              `json:"provider"`
	RemoteAddr string              `json:"remote_addr"`
	Headers    map[string][]string `json:"headers"`
	Body       string              `json:"body"`
	Outcome    string              `json:"outcome"`
	Error      string              `json:"error,omitempty"`
}

// NewCallbackEntry captures a delivery. body is passed in because the handler
// has already consumed r.Body.
func NewCallbackEntry(r *http.Request, provider string, body []byte) CallbackEntry {
	headers := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		if redactedHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		headers[k] = v
	}
	return CallbackEntry{
		Timestamp:  time.Now().UTC(),
		Provider:   provider,
		RemoteAddr: r.RemoteAddr,
		Headers:    headers,
		Body:       string(body),
	}
}

// CallbackRecorder accepts webhook deliveries for auditing.
type CallbackRecorder interface {
	Record(entry CallbackEntry)
}

// NoopCallbackRecorder discards everything
type NoopCallbackRecorder struct{}

func (NoopCallbackRecorder) Record(CallbackEntry) {}

// CallbackLogger writes webhook deliveries as JSON lines, asynchronously,
// rotating files by size and keeping at most maxFiles of them.
type CallbackLogger struct {
	fileTemplate  string // e.g. "/var/log/media-gateway/callbacks-%s.jsonl"
	maxSize       int64
	maxFiles      int
	flushInterval time.Duration

	mu          sync.Mutex
	currentFile string
	file        *os.File
	writer      *bufio.Writer
	currentSize int64

	entries chan CallbackEntry
	doneCh  chan struct{}
	wg      sync.WaitGroup
	closed  bool
	dropped int64
}

// NewCallbackLogger opens the first file and starts the writer goroutine.
// bufferSize bounds the queue; entries beyond it are dropped.
func NewCallbackLogger(fileTemplate string, maxSize int64, maxFiles, bufferSize int, flushInterval time.Duration) (*CallbackLogger, error) {
	if maxFiles <= 0 {
		maxFiles = 1
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	logger := &CallbackLogger{
		fileTemplate:  fileTemplate,
		maxSize:       maxSize,
		maxFiles:      maxFiles,
		flushInterval: flushInterval,
		entries:       make(chan CallbackEntry, bufferSize),
		doneCh:        make(chan struct{}),
	}

	if err := logger.openFile(); err != nil {
		return nil, err
	}

	logger.wg.Add(1)
	go logger.run()

	return logger, nil
}

// newFileName stamps the template with the current time (20060102150405.000000)
func (l *CallbackLogger) newFileName() string {
	return fmt.Sprintf(l.fileTemplate, time.Now().Format("20060102150405.000000"))
}

// openFile must be called with mu held or before run starts
func (l *CallbackLogger) openFile() error {
	l.currentFile = l.newFileName()
	dir := filepath.Dir(l.currentFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(l.currentFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	l.currentSize = fi.Size()
	l.file = file
	l.writer = bufio.NewWriter(file)
	return nil
}

// rotateIfNeeded starts a new file when n more bytes would cross maxSize.
// Reports whether a rotation happened.
func (l *CallbackLogger) rotateIfNeeded(n int) (bool, error) {
	if l.maxSize <= 0 || l.currentSize == 0 || l.currentSize+int64(n) < l.maxSize {
		return false, nil
	}
	if err := l.writer.Flush(); err != nil {
		return false, err
	}
	if err := l.file.Close(); err != nil {
		return false, err
	}
	return true, l.openFile()
}

// cleanupOldFiles keeps the newest maxFiles files
func (l *CallbackLogger) cleanupOldFiles() error {
	matches, err := filepath.Glob(fmt.Sprintf(l.fileTemplate, "*"))
	if err != nil {
		return err
	}
	// Timestamps in names sort chronologically
	sort.Strings(matches)
	for i := 0; i < len(matches)-l.maxFiles; i++ {
		if matches[i] == l.currentFile {
			continue
		}
		_ = os.Remove(matches[i])
	}
	return nil
}

func (l *CallbackLogger) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-l.entries:
			l.write(entry)
		case <-ticker.C:
			l.mu.Lock()
			_ = l.writer.Flush()
			l.mu.Unlock()
		case <-l.doneCh:
			for {
				select {
				case entry := <-l.entries:
					l.write(entry)
				default:
					l.mu.Lock()
					_ = l.writer.Flush()
					_ = l.file.Close()
					l.mu.Unlock()
					return
				}
			}
		}
	}
}

func (l *CallbackLogger) write(entry CallbackEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	rotated, err := l.rotateIfNeeded(len(data))
	if err != nil {
		l.mu.Unlock()
		L().Warn("callback log rotation failed")
		return
	}
	_, _ = l.writer.Write(data)
	l.currentSize += int64(len(data))
	l.mu.Unlock()

	if rotated {
		_ = l.cleanupOldFiles()
	}
}

// Record queues an entry. When the queue is full the entry is dropped.
func (l *CallbackLogger) Record(entry CallbackEntry) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	select {
	case l.entries <- entry:
	default:
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
	}
}

// Dropped returns how many entries were discarded because the queue was full
func (l *CallbackLogger) Dropped() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Shutdown flushes pending entries and closes the file. Safe to call twice.
func (l *CallbackLogger) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	close(l.doneCh)
	l.wg.Wait()
}
