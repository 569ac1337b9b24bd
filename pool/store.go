package pool

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sw965/brawler/model/actorcritic"
)

const MetadataFileName = "metadata.json"

type saveJob struct {
	id     string
	model  *actorcritic.Checkpoint // nil なら metadata のみ
	record Record
	done   chan struct{}
}

// Store persists snapshots under dir/<id>/. Saves run one at a time on a
// single worker in the order they were queued. A deletion waits for the
// latest queued save of the same id before removing files. Failures are
// logged and never returned.
type Store struct {
	dir    string
	logger zerolog.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []saveJob
	inflight map[string]chan struct{}
	closed   bool

	stopped  chan struct{}
	deleting sync.WaitGroup

	// テスト用
	beforeWrite func(id string)
}

func NewStore(dir string, logger zerolog.Logger) *Store {
	s := &Store{
		dir:      dir,
		logger:   logger.With().Str("component", "pool_store").Logger(),
		inflight: map[string]chan struct{}{},
		stopped:  make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Save queues a write of the snapshot. A nil model rewrites metadata.json only.
func (s *Store) Save(id string, model *actorcritic.Checkpoint, record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn().Str("id", id).Msg("store closed, dropping save")
		return
	}
	job := saveJob{id: id, model: model, record: record, done: make(chan struct{})}
	s.queue = append(s.queue, job)
	s.inflight[id] = job.done
	s.cond.Signal()
}

// Delete removes dir/<id> once any queued save of id has finished. It does
// not block the caller.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	wait := s.inflight[id]
	s.deleting.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.deleting.Done()
		if wait != nil {
			<-wait
		}
		if err := os.RemoveAll(s.dirOf(id)); err != nil {
			s.logger.Warn().Err(err).Str("id", id).Msg("failed to delete snapshot")
		}
	}()
}

func (s *Store) dirOf(id string) string {
	return filepath.Join(s.dir, id)
}

// Exists reports whether id has a directory on disk or a save still queued.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	_, pending := s.inflight[id]
	s.mu.Unlock()
	if pending {
		return true
	}
	_, err := os.Stat(s.dirOf(id))
	return err == nil
}

func (s *Store) run() {
	defer close(s.stopped)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		if s.beforeWrite != nil {
			s.beforeWrite(job.id)
		}
		if err := s.write(job); err != nil {
			s.logger.Warn().Err(err).Str("id", job.id).Msg("failed to save snapshot")
		}

		s.mu.Lock()
		if s.inflight[job.id] == job.done {
			delete(s.inflight, job.id)
		}
		s.mu.Unlock()
		close(job.done)
	}
}

func (s *Store) write(job saveJob) error {
	dir := s.dirOf(job.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if job.model != nil {
		data, err := json.Marshal(job.model)
		if err != nil {
			return err
		}
		if err := actorcritic.WriteFileAtomic(filepath.Join(dir, actorcritic.ModelFileName), data); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(job.record, "", "  ")
	if err != nil {
		return err
	}
	return actorcritic.WriteFileAtomic(filepath.Join(dir, MetadataFileName), data)
}

// Close drains the save queue and waits for pending deletions.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.stopped
	s.deleting.Wait()
}

// ReadRecord reads dir/<id>/metadata.json.
func ReadRecord(dir, id string) (Record, error) {
	var r Record
	data, err := os.ReadFile(filepath.Join(dir, id, MetadataFileName))
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, err
	}
	return r, nil
}

// ReadRecords reads every snapshot record under dir without loading models,
// highest Elo first. Unreadable entries are passed to skip (may be nil) and
// left out. A missing dir yields no records.
func ReadRecords(dir string, skip func(id string, err error)) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var rs []Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := ReadRecord(dir, entry.Name())
		if err != nil {
			if skip != nil {
				skip(entry.Name(), err)
			}
			continue
		}
		rs = append(rs, r)
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Elo != rs[j].Elo {
			return rs[i].Elo > rs[j].Elo
		}
		return rs[i].ID < rs[j].ID
	})
	return rs, nil
}
