// Package cache stores decoded payloads keyed by a digest of the request.
package cache

import (
	"container/list"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "unflate:"

type Cache interface {
	// Get returns the cached value for key; ok is false on a miss
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
}

// Key derives a cache key from the request body and the options it was
// decoded with.
func Key(body []byte, options ...string) string {
	h := sha256.New()

	for _, o := range options {
		h.Write([]byte(o))
		h.Write([]byte{0})
	}

	h.Write(body)

	return fmt.Sprintf("%s%x", keyPrefix, h.Sum(nil))
}

// Redis is a Cache backed by a redis server.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Entry
}

func NewRedis(address, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "unable to reach redis at '%s'", address)
	}

	return &Redis{
		client: client,
		ttl:    ttl,
		log:    logrus.WithField("pkg", "cache"),
	}, nil
}

func (r *Redis) Get(key string) ([]byte, bool, error) {
	value, err := r.client.Get(key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}

		return nil, false, errors.Wrap(err, "unable to get from redis")
	}

	return value, true, nil
}

func (r *Redis) Set(key string, value []byte) error {
	if err := r.client.Set(key, value, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "unable to set in redis")
	}

	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type memoryEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// Memory is an in-process LRU Cache with a TTL. Used when no redis server is
// configured.
type Memory struct {
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	entries map[string]*list.Element
	order   *list.List // front is most recently used
	mu      *sync.Mutex
}

func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	return &Memory{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		mu:         &sync.Mutex{},
	}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}

	e := el.Value.(*memoryEntry)

	if m.ttl > 0 && !m.now().Before(e.expires) {
		m.remove(el)
		return nil, false, nil
	}

	m.order.MoveToFront(el)

	return e.value, true, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.remove(el)
	}

	m.entries[key] = m.order.PushFront(&memoryEntry{
		key:     key,
		value:   value,
		expires: m.now().Add(m.ttl),
	})

	for m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		m.remove(m.order.Back())
	}

	return nil
}

func (m *Memory) remove(el *list.Element) {
	m.order.Remove(el)
	delete(m.entries, el.Value.(*memoryEntry).key)
}

// Len returns the number of entries held, expired or not
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.order.Len()
}
