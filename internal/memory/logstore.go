package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "log/slog"
)

// LogStore appends completed exchanges to a JSONL file, one object per
// line. It is write-only: nothing in the runtime reads it back. Writes
// go through a buffered channel so a slow disk never stalls the voice
// loop; when the buffer is full the turn is dropped.
type LogStore struct {
	ch   chan Turn
	done chan struct{}
	f    *os.File
}

const logStoreBuffer = 64

// NewLogStore opens (or creates) a dated JSONL file under dir and
// starts the writer. An empty dir disables persistence: the returned
// store is nil, and a nil store accepts and discards turns.
func NewLogStore(dir string) (*LogStore, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	name := filepath.Join(dir, "conversations-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	s := &LogStore{
		ch:   make(chan Turn, logStoreBuffer),
		done: make(chan struct{}),
		f:    f,
	}
	go s.run()
	return s, nil
}

func (s *LogStore) run() {
	defer close(s.done)
	enc := json.NewEncoder(s.f)
	for t := range s.ch {
		if err := enc.Encode(t); err != nil {
			log.Warn("Failed to append conversation log", "err", err)
		}
	}
}

// AppendTurn queues a turn for persistence. It never blocks; if the
// writer is behind, the turn is dropped.
func (s *LogStore) AppendTurn(userText, assistantText string) {
	if s == nil {
		return
	}
	t := Turn{UserText: userText, AssistantText: assistantText, Timestamp: time.Now()}
	select {
	case s.ch <- t:
	default:
		log.Debug("Conversation log buffer full, dropping turn")
	}
}

// Close drains pending turns and closes the file.
func (s *LogStore) Close() error {
	if s == nil {
		return nil
	}
	close(s.ch)
	<-s.done
	return s.f.Close()
}
