// Package syncq keeps mutating CLI commands that could not reach the server
// and replays them later. Each command carries its idempotency key, so a
// replay of something the server already applied is rejected, not repeated.
package syncq

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	QueuedAt       time.Time      `json:"queued_at"`
}

// NewCommand stamps a fresh idempotency key unless key is already set.
func NewCommand(method, path string, body map[string]any, key string) Command {
	if key == "" {
		key = uuid.NewString()
	}
	return Command{Method: method, Path: path, Body: body, IdempotencyKey: key, QueuedAt: time.Now().UTC()}
}

type Queue struct {
	mu   sync.Mutex
	path string
}

// Open uses dir/queue.json; the file appears on the first Push.
func Open(dir string) (*Queue, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Queue{path: filepath.Join(dir, "queue.json")}, nil
}

func (q *Queue) Load() ([]Command, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *Queue) load() ([]Command, error) {
	raw, err := os.ReadFile(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) save(commands []Command) error {
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}

func (q *Queue) Push(cmd Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	commands, err := q.load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return q.save(commands)
}

// Sender delivers one command. Offline reports whether err means the server
// was unreachable, in which case the command stays queued.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
	Offline(err error) bool
}

type Outcome struct {
	Command Command
	Err     error
}

type ReplayResult struct {
	Applied  []Outcome
	Rejected []Outcome
	Pending  int
}

// Replay sends commands in queue order. It stops at the first offline failure
// so later commands never overtake earlier ones; rejected commands are
// dropped and reported.
func (q *Queue) Replay(ctx context.Context, s Sender) (ReplayResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var res ReplayResult
	commands, err := q.load()
	if err != nil {
		return res, err
	}
	i := 0
	for ; i < len(commands); i++ {
		err := s.Send(ctx, commands[i])
		if err != nil && s.Offline(err) {
			break
		}
		if err != nil {
			res.Rejected = append(res.Rejected, Outcome{Command: commands[i], Err: err})
			continue
		}
		res.Applied = append(res.Applied, Outcome{Command: commands[i]})
	}
	rest := commands[i:]
	res.Pending = len(rest)
	return res, q.save(rest)
}
