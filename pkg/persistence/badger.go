package persistence

import (
	"context"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/betbot/batchauction/internal/encoding"
)

// BadgerOptions Badger 打开参数
type BadgerOptions struct {
	Path          string
	EncryptionKey []byte // 32 字节；为空则不加密
	ReadOnly      bool
	InMemory      bool // 测试用
}

// BadgerStore 以 Badger KV 保存规范字节，key 为 solution/<id>
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore 打开 Badger 数据库
func OpenBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("badger store: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	if len(opts.EncryptionKey) > 0 {
		// 加密模式下 Badger 要求配置索引缓存
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &BadgerStore{db: db}, nil
}

func solutionKey(id string) []byte {
	return []byte("solution/" + id)
}

func (s *BadgerStore) Save(ctx context.Context, id string, sol *encoding.Solution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("badger store: id is empty")
	}
	data, err := encoding.EncodeSolution(sol)
	if err != nil {
		return errors.Wrapf(err, "encode solution %s", id)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(solutionKey(id), data)
	})
}

func (s *BadgerStore) Load(ctx context.Context, id string) (*encoding.Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(solutionKey(strings.TrimSpace(id)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrNotExists
		}
		return nil, err
	}
	return encoding.DecodeSolution(data)
}

// IDs 已保存的批次 ID（按 key 顺序）
func (s *BadgerStore) IDs() ([]string, error) {
	var out []string
	prefix := []byte("solution/")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return out, err
}

func (s *BadgerStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
