package store

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rushteam/feedrank/core"
)

// BadgerStore 是基于 Badger 的嵌入式 KeyValueStore，用于单机部署时的持久层缓存。
//
// 设计原则：
//   - 普通 key 使用 "k/" 前缀，TTL 交给 Badger 的 entry 过期
//   - zset 成员存为 "z/<key>/<member>"，value 为 8 字节分数
//   - hash 字段存为 "h/<key>/<field>"
//
// 使用场景：
//   - 无 Redis 的单机部署（Path 指向本地目录）
//   - 测试（InMemory 模式）
type BadgerStore struct {
	db *badger.DB
}

// BadgerConfig 是 Badger 打开参数。
type BadgerConfig struct {
	Path     string
	InMemory bool
}

// NewBadgerStore 打开（或创建）Badger 数据库。
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreFromDB 复用已打开的 Badger 实例，Close 时会关闭它。
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (b *BadgerStore) Name() string { return "badger" }

func plainKey(key string) []byte { return []byte("k/" + key) }

func zsetPrefix(key string) []byte { return []byte("z/" + key + "/") }

func hashPrefix(key string) []byte { return []byte("h/" + key + "/") }

func (b *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(plainKey(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrStoreNotFound
	}
	return out, err
}

func (b *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(plainKey(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (b *BadgerStore) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(plainKey(key)); err != nil {
			return err
		}
		for _, prefix := range [][]byte{zsetPrefix(key), hashPrefix(key)} {
			keys, err := collectKeys(txn, prefix)
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (b *BadgerStore) BatchGet(_ context.Context, keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			item, err := txn.Get(plainKey(k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[k] = v
		}
		return nil
	})
	return result, err
}

func (b *BadgerStore) BatchSet(_ context.Context, kvs map[string][]byte, ttl time.Duration) error {
	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for k, v := range kvs {
		e := badger.NewEntry(plainKey(k), v)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		if err := wb.SetEntry(e); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (b *BadgerStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(score))
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(zsetPrefix(key), member...), buf)
	})
}

func (b *BadgerStore) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	type pair struct {
		member string
		score  float64
	}
	var pairs []pair
	prefix := zsetPrefix(key)

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var score float64
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return errors.New("badger: corrupt zset score")
				}
				score = math.Float64frombits(binary.BigEndian.Uint64(val))
				return nil
			}); err != nil {
				return err
			}
			if score < min || score > max {
				continue
			}
			member := strings.TrimPrefix(string(item.Key()), string(prefix))
			pairs = append(pairs, pair{member: member, score: score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].score < pairs[j].score
	})
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.member)
	}
	return out, nil
}

func (b *BadgerStore) HSet(_ context.Context, key, field string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append(hashPrefix(key), field...), value)
	})
}

func (b *BadgerStore) HGetAll(_ context.Context, key string) (map[string][]byte, error) {
	result := make(map[string][]byte)
	prefix := hashPrefix(key)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			result[strings.TrimPrefix(string(item.Key()), string(prefix))] = v
		}
		return nil
	})
	return result, err
}

func (b *BadgerStore) HDel(_ context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, f := range fields {
			if err := txn.Delete(append(hashPrefix(key), f...)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func collectKeys(txn *badger.Txn, prefix []byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

var _ core.Store = (*BadgerStore)(nil)
var _ core.KeyValueStore = (*BadgerStore)(nil)
