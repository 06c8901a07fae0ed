package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrSubjectBusy means another generation for the same subject is running.
var ErrSubjectBusy = errors.New("generation already running for subject")

// SubjectLocker serializes generation per subject across triggers.
type SubjectLocker interface {
	Acquire(ctx context.Context, subjectID uint) (release func(), err error)
}

const defaultLockTTL = 5 * time.Minute

// compare-and-delete so an expired holder cannot drop a newer lock
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker holds a TTL-bounded lock per subject so that several
// processes share one view of running generations. A held lock is
// refreshed every third of its TTL until released, so the TTL only bounds
// how long a crashed holder blocks the subject.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		prefix: "coverly:lock:subject:",
		logger: logger,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, subjectID uint) (func(), error) {
	key := fmt.Sprintf("%s%d", l.prefix, subjectID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire subject lock: %w", err)
	}
	if !ok {
		return nil, ErrSubjectBusy
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(key, token, subjectID, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// Release must run even if the caller's context is already done
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.logger.Warn("Failed to release subject lock", zap.Uint("subject_id", subjectID), zap.Error(err))
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(key, token string, subjectID uint, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			held, err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn("Failed to refresh subject lock", zap.Uint("subject_id", subjectID), zap.Error(err))
				continue
			}
			if held == 0 {
				l.logger.Warn("Subject lock expired before release", zap.Uint("subject_id", subjectID))
				return
			}
		}
	}
}

// LocalLocker is the in-process fallback when no Redis is configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[uint]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[uint]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, subjectID uint) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[subjectID]; busy {
		return nil, ErrSubjectBusy
	}
	l.held[subjectID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, subjectID)
			l.mu.Unlock()
		})
	}, nil
}
