package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/doggy8088/Minesweeper3D/internal/game"
	"github.com/doggy8088/Minesweeper3D/internal/logger"
	"github.com/doggy8088/Minesweeper3D/internal/metrics"
)

// inboxSize bounds a room's pending journal tasks. Submission blocks if
// the backlog ever grows this deep, preserving order instead of
// dropping entries.
const inboxSize = 1024

type task struct {
	fn   func(doc *Document)
	stop bool          // final write, move to archive, retire the actor
	done chan struct{} // closed when the task completes; nil for fire-and-forget
}

type actor struct {
	code  string
	inbox chan task
}

// Store serialises journal writes with one actor goroutine per open
// room. Tasks for a room apply in submission order; rooms never wait on
// each other. Disk errors are logged and skipped so gameplay never
// stalls on the journal.
type Store struct {
	roomsDir   string
	archiveDir string

	mu     sync.Mutex
	actors map[string]*actor

	now func() time.Time
}

func NewStore(dataDir string) (*Store, error) {
	s := &Store{
		roomsDir:   filepath.Join(dataDir, "rooms"),
		archiveDir: filepath.Join(dataDir, "archive"),
		actors:     make(map[string]*actor),
		now:        time.Now,
	}
	if err := os.MkdirAll(s.roomsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create rooms dir: %w", err)
	}
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return s, nil
}

func (s *Store) activePath(code string) string {
	return filepath.Join(s.roomsDir, code+".json")
}

// submit hands a task to the room's actor, spawning one when needed.
// The send happens under the store lock so a task can never land on an
// actor that already retired; a full inbox is retried off-lock.
func (s *Store) submit(code string, t task) {
	for {
		s.mu.Lock()
		a, ok := s.actors[code]
		if !ok {
			a = &actor{code: code, inbox: make(chan task, inboxSize)}
			s.actors[code] = a
			go s.run(a)
		}
		select {
		case a.inbox <- t:
			s.mu.Unlock()
			return
		default:
		}
		s.mu.Unlock()
		time.Sleep(time.Millisecond)
	}
}

func (s *Store) run(a *actor) {
	doc := s.load(a.code)

	for t := range a.inbox {
		if t.fn != nil {
			t.fn(doc)
		}

		if !t.stop {
			if t.fn != nil { // pure barriers don't rewrite the file
				s.persist(doc)
			}
			if t.done != nil {
				close(t.done)
			}
			continue
		}

		s.persist(doc)
		if err := s.moveToArchive(doc); err != nil {
			logger.Error("journal archive failed", "room", a.code, "error", err)
			metrics.JournalWriteErrors.Inc()
		}
		if t.done != nil {
			close(t.done)
		}
		s.retire(a)
		return
	}
}

// retire removes the actor and drains tasks that raced in behind the
// archive. Those are dropped: the room is gone, only their waiters are
// released.
func (s *Store) retire(a *actor) {
	s.mu.Lock()
	if s.actors[a.code] == a {
		delete(s.actors, a.code)
	}
	s.mu.Unlock()

	for {
		select {
		case t := <-a.inbox:
			logger.Warn("journal task after archive dropped", "room", a.code)
			if t.done != nil {
				close(t.done)
			}
		default:
			return
		}
	}
}

func (s *Store) load(code string) *Document {
	doc := &Document{RoomCode: code}
	data, err := os.ReadFile(s.activePath(code))
	if err != nil {
		return doc
	}
	if err := json.Unmarshal(data, doc); err != nil {
		logger.Warn("journal unreadable, starting fresh", "room", code, "error", err)
		*doc = Document{RoomCode: code}
	}
	return doc
}

func (s *Store) persist(doc *Document) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		logger.Error("journal marshal failed", "room", doc.RoomCode, "error", err)
		metrics.JournalWriteErrors.Inc()
		return
	}
	if err := os.WriteFile(s.activePath(doc.RoomCode), data, 0o644); err != nil {
		logger.Error("journal write failed", "room", doc.RoomCode, "error", err)
		metrics.JournalWriteErrors.Inc()
	}
}

func (s *Store) moveToArchive(doc *Document) error {
	stamp := time.UnixMilli(doc.ClosedAt).Format("20060102_150405")
	dst := filepath.Join(s.archiveDir, fmt.Sprintf("%s_%s.json", doc.RoomCode, stamp))
	return os.Rename(s.activePath(doc.RoomCode), dst)
}

// Create opens the journal for a new room.
func (s *Store) Create(code, hostName string, settings game.Settings) {
	ts := s.now().UnixMilli()
	s.submit(code, task{fn: func(doc *Document) {
		doc.RoomCode = code
		doc.CreatedAt = ts
		doc.HostName = hostName
		doc.Settings = settings
		doc.Events = append(doc.Events, Event{Type: "room_created", Timestamp: ts})
	}})
}

// SetGuest records the guest's name once the seat fills.
func (s *Store) SetGuest(code, guestName string) {
	s.submit(code, task{fn: func(doc *Document) {
		doc.GuestName = guestName
	}})
}

// AppendEvent adds a lifecycle entry.
func (s *Store) AppendEvent(code, eventType, detail string) {
	ts := s.now().UnixMilli()
	s.submit(code, task{fn: func(doc *Document) {
		doc.Events = append(doc.Events, Event{Type: eventType, Detail: detail, Timestamp: ts})
	}})
}

// AppendChat adds a delivered danmaku message.
func (s *Store) AppendChat(code string, msg ChatMessage) {
	s.submit(code, task{fn: func(doc *Document) {
		doc.Messages = append(doc.Messages, msg)
	}})
}

// StartGame opens a new game record.
func (s *Store) StartGame(code string, startingPlayer game.Role, settings game.Settings) {
	ts := s.now().UnixMilli()
	s.submit(code, task{fn: func(doc *Document) {
		doc.Games = append(doc.Games, GameRecord{
			StartedAt:      ts,
			StartingPlayer: startingPlayer,
			Settings:       settings,
		})
	}})
}

// AppendMove records an action inside the current game, in the order
// the moves were broadcast.
func (s *Store) AppendMove(code string, mv Move) {
	if mv.Timestamp == 0 {
		mv.Timestamp = s.now().UnixMilli()
	}
	s.submit(code, task{fn: func(doc *Document) {
		if len(doc.Games) == 0 {
			logger.Warn("journal move without an open game", "room", code)
			return
		}
		g := &doc.Games[len(doc.Games)-1]
		g.Moves = append(g.Moves, mv)
	}})
}

// EndGame closes the current game record with its result.
func (s *Store) EndGame(code string, result Result) {
	ts := s.now().UnixMilli()
	s.submit(code, task{fn: func(doc *Document) {
		if len(doc.Games) == 0 {
			logger.Warn("journal result without an open game", "room", code)
			return
		}
		g := &doc.Games[len(doc.Games)-1]
		g.EndedAt = ts
		g.Result = &result
	}})
}

// Snapshot returns a copy of the room's document after all previously
// submitted tasks have applied.
func (s *Store) Snapshot(code string) Document {
	reply := make(chan Document, 1)
	done := make(chan struct{})
	s.submit(code, task{
		fn: func(doc *Document) {
			reply <- doc.Clone()
		},
		done: done,
	})
	<-done

	select {
	case doc := <-reply:
		return doc
	default:
		// Task was dropped behind an archive; the room is gone.
		return Document{RoomCode: code}
	}
}

// Flush blocks until every previously submitted task for the room has
// applied. It does not rewrite the file.
func (s *Store) Flush(code string) {
	done := make(chan struct{})
	s.submit(code, task{done: done})
	<-done
}

// Archive stamps the close, appends the final room_closed event, moves
// the file into the archive directory, and retires the room's actor.
// The returned channel closes when the file move has completed.
func (s *Store) Archive(code, reason string) <-chan struct{} {
	ts := s.now()
	done := make(chan struct{})
	s.submit(code, task{
		fn: func(doc *Document) {
			doc.ClosedAt = ts.UnixMilli()
			doc.Events = append(doc.Events, Event{
				Type:      "room_closed",
				Detail:    reason,
				Timestamp: ts.UnixMilli(),
			})
		},
		stop: true,
		done: done,
	})
	return done
}

// ArchiveOrphans moves active journals whose rooms are no longer live
// into the archive directory. Runs at boot, before any room exists, and
// may run again at any point later.
func (s *Store) ArchiveOrphans(liveCodes []string) int {
	live := make(map[string]bool, len(liveCodes))
	for _, code := range liveCodes {
		live[code] = true
	}

	entries, err := os.ReadDir(s.roomsDir)
	if err != nil {
		logger.Error("journal orphan scan failed", "error", err)
		return 0
	}

	stamp := s.now().Format("20060102_150405")
	moved := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		code := strings.TrimSuffix(name, ".json")
		if live[code] {
			continue
		}

		s.mu.Lock()
		_, open := s.actors[code]
		s.mu.Unlock()
		if open {
			continue
		}

		dst := filepath.Join(s.archiveDir, fmt.Sprintf("%s_%s.json", code, stamp))
		if err := os.Rename(filepath.Join(s.roomsDir, name), dst); err != nil {
			logger.Error("journal orphan move failed", "file", name, "error", err)
			metrics.JournalWriteErrors.Inc()
			continue
		}
		moved++
	}
	if moved > 0 {
		logger.Info("archived orphaned journals", "count", moved)
	}
	return moved
}

// Close flushes every open journal. Still-open rooms stay in the active
// directory; the next boot's orphan sweep archives them.
func (s *Store) Close() {
	s.mu.Lock()
	codes := make([]string, 0, len(s.actors))
	for code := range s.actors {
		codes = append(codes, code)
	}
	s.mu.Unlock()

	for _, code := range codes {
		s.Flush(code)
	}
}
