package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/betbot/batchauction/internal/encoding"
	"github.com/betbot/batchauction/pkg/logger"
)

// ErrNotExists 表示数据不存在
var ErrNotExists = errors.New("persistence data not exists")

// SolutionStore 按批次 ID 保存规范编码后的解
type SolutionStore interface {
	Save(ctx context.Context, id string, sol *encoding.Solution) error
	Load(ctx context.Context, id string) (*encoding.Solution, error)
	Close() error
}

// Open 按类型打开解存储：json（目录）或 badger（数据库目录）
func Open(kind, path string) (SolutionStore, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "json":
		return NewJSONSolutionStore(path), nil
	case "badger":
		return OpenBadgerStore(BadgerOptions{Path: path})
	default:
		return nil, errors.Errorf("unknown store kind %q", kind)
	}
}

// solutionEnvelope JSON 文件中的解：规范字节 + 内容哈希
type solutionEnvelope struct {
	ID      string        `json:"id"`
	Hash    common.Hash   `json:"hash"`
	Data    hexutil.Bytes `json:"data"`
	SavedAt time.Time     `json:"saved_at"`
}

// JSONSolutionStore 每个解一个 JSON 文件：<dir>/solution_<id>_v1.json
type JSONSolutionStore struct {
	dir string
}

// NewJSONSolutionStore 创建基于目录的解存储
func NewJSONSolutionStore(dir string) *JSONSolutionStore {
	return &JSONSolutionStore{dir: dir}
}

var keySanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func (s *JSONSolutionStore) path(id string) string {
	// 批次 ID 来自外部输入，做文件名安全化
	safe := keySanitizer.ReplaceAllString("solution:"+id+":v1", "_")
	return filepath.Join(s.dir, safe+".json")
}

// Save 先写临时文件再 rename，避免读到半个文件
func (s *JSONSolutionStore) Save(ctx context.Context, id string, sol *encoding.Solution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encoding.EncodeSolution(sol)
	if err != nil {
		return errors.Wrapf(err, "encode solution %s", id)
	}
	b, err := json.MarshalIndent(solutionEnvelope{
		ID:      id,
		Hash:    crypto.Keccak256Hash(data),
		Data:    data,
		SavedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}

	path := s.path(id)
	logger.Debugf("[persistence] Save: %s", path)
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *JSONSolutionStore) Load(ctx context.Context, id string) (*encoding.Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.path(id)
	logger.Debugf("[persistence] Load: %s", path)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotExists
		}
		return nil, err
	}
	if len(b) == 0 {
		return nil, ErrNotExists
	}
	var env solutionEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrapf(err, "solution %s", id)
	}
	if crypto.Keccak256Hash(env.Data) != env.Hash {
		return nil, errors.Errorf("solution %s: hash mismatch", id)
	}
	return encoding.DecodeSolution(env.Data)
}

func (s *JSONSolutionStore) Close() error { return nil }
