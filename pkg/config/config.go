package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/betbot/batchauction/pkg/logger"
)

// 环境变量前缀
const envPrefix = "PRICEFINDER_"

// 默认值
const (
	DefaultLogLevel      = "info"
	DefaultSolveTimeout  = 10 * time.Second
	DefaultParallelism   = 4
	DefaultStoreKind     = "json"
	DefaultStorePath     = "data/solutions"
	DefaultAPIListen     = ":8080"
	DefaultAPIDB         = "data/batchauction.db"
	DefaultTokenDecimals = 18
)

// TokenConfig 代币登记信息，仅用于展示（符号、精度）与地址校验
type TokenConfig struct {
	ID       uint16
	Symbol   string
	Address  common.Address
	Decimals int32
}

// SolverConfig 求解参数
type SolverConfig struct {
	Numeraire     uint16        // 记账单位代币
	MaxIterations int           // 求解循环迭代上限，0 表示按订单数自动确定
	SolveTimeout  time.Duration // 单次求解的墙钟上限
	Parallelism   int           // 同时进行的求解数
}

// StoreConfig 解的存储
type StoreConfig struct {
	Kind string // json | badger
	Path string
}

// APIConfig HTTP 服务
type APIConfig struct {
	Listen    string
	DBPath    string // SQLite 文件
	SolveRate int    // 每秒允许的求解请求数，0 表示不限
}

// Config 应用配置
type Config struct {
	LogLevel      string
	LogFile       string
	Solver        SolverConfig
	Store         StoreConfig
	API           APIConfig
	MetricsListen string // 为空则不启动 /debug/vars
	Tokens        []TokenConfig
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
	Solver   struct {
		Numeraire     *uint16 `yaml:"numeraire" json:"numeraire"`
		MaxIterations int     `yaml:"max_iterations" json:"max_iterations"`
		SolveTimeout  string  `yaml:"solve_timeout" json:"solve_timeout"` // 例如 "5s"
		Parallelism   int     `yaml:"parallelism" json:"parallelism"`
	} `yaml:"solver" json:"solver"`
	Store struct {
		Kind string `yaml:"kind" json:"kind"`
		Path string `yaml:"path" json:"path"`
	} `yaml:"store" json:"store"`
	API struct {
		Listen    string `yaml:"listen" json:"listen"`
		DB        string `yaml:"db" json:"db"`
		SolveRate int    `yaml:"solve_rate" json:"solve_rate"`
	} `yaml:"api" json:"api"`
	MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`
	Tokens        []struct {
		ID       uint16 `yaml:"id" json:"id"`
		Symbol   string `yaml:"symbol" json:"symbol"`
		Address  string `yaml:"address" json:"address"`
		Decimals *int32 `yaml:"decimals" json:"decimals"`
	} `yaml:"tokens" json:"tokens"`
}

// LoadFromFile 加载配置（优先级：配置文件 > 环境变量 > 默认值）。filePath 为空时只用环境变量与默认值
func LoadFromFile(filePath string) (*Config, error) {
	cf := &ConfigFile{}
	if filePath != "" {
		var err error
		cf, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	timeout := parseDurationEnv(envPrefix+"SOLVE_TIMEOUT", DefaultSolveTimeout)
	if cf.Solver.SolveTimeout != "" {
		d, err := time.ParseDuration(cf.Solver.SolveTimeout)
		if err != nil {
			return nil, fmt.Errorf("solver.solve_timeout 无效: %w", err)
		}
		timeout = d
	}

	numeraire := uint16(parseIntEnv(envPrefix+"NUMERAIRE", 0))
	if cf.Solver.Numeraire != nil {
		numeraire = *cf.Solver.Numeraire
	}

	c := &Config{
		LogLevel: getValueFromSources(cf.LogLevel, getEnv(envPrefix+"LOG_LEVEL", DefaultLogLevel)),
		LogFile:  getValueFromSources(cf.LogFile, getEnv(envPrefix+"LOG_FILE", "")),
		Solver: SolverConfig{
			Numeraire:     numeraire,
			MaxIterations: getIntFromSources(cf.Solver.MaxIterations, parseIntEnv(envPrefix+"MAX_ITERATIONS", 0)),
			SolveTimeout:  timeout,
			Parallelism:   getIntFromSources(cf.Solver.Parallelism, parseIntEnv(envPrefix+"PARALLELISM", DefaultParallelism)),
		},
		Store: StoreConfig{
			Kind: strings.ToLower(getValueFromSources(cf.Store.Kind, getEnv(envPrefix+"STORE_KIND", DefaultStoreKind))),
			Path: getValueFromSources(cf.Store.Path, getEnv(envPrefix+"STORE_PATH", DefaultStorePath)),
		},
		API: APIConfig{
			Listen:    getValueFromSources(cf.API.Listen, getEnv(envPrefix+"API_LISTEN", DefaultAPIListen)),
			DBPath:    getValueFromSources(cf.API.DB, getEnv(envPrefix+"API_DB", DefaultAPIDB)),
			SolveRate: getIntFromSources(cf.API.SolveRate, parseIntEnv(envPrefix+"API_SOLVE_RATE", 0)),
		},
		MetricsListen: getValueFromSources(cf.MetricsListen, getEnv(envPrefix+"METRICS_LISTEN", "")),
	}

	for i, t := range cf.Tokens {
		tc := TokenConfig{ID: t.ID, Symbol: strings.TrimSpace(t.Symbol), Decimals: DefaultTokenDecimals}
		if t.Decimals != nil {
			tc.Decimals = *t.Decimals
		}
		if t.Address != "" {
			if !common.IsHexAddress(t.Address) {
				return nil, fmt.Errorf("tokens[%d].address 不是合法地址: %s", i, t.Address)
			}
			tc.Address = common.HexToAddress(t.Address)
		}
		c.Tokens = append(c.Tokens, tc)
	}
	return c, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Solver.MaxIterations < 0 {
		return fmt.Errorf("solver.max_iterations 不能为负数")
	}
	if c.Solver.SolveTimeout <= 0 {
		return fmt.Errorf("solver.solve_timeout 必须大于 0")
	}
	if c.Solver.Parallelism <= 0 {
		return fmt.Errorf("solver.parallelism 必须大于 0")
	}
	switch c.Store.Kind {
	case "json", "badger":
	default:
		return fmt.Errorf("未知的存储类型: %s (支持 json, badger)", c.Store.Kind)
	}
	if c.API.SolveRate < 0 {
		return fmt.Errorf("api.solve_rate 不能为负数")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path 不能为空")
	}

	seen := make(map[uint16]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if seen[t.ID] {
			return fmt.Errorf("代币 %d 重复登记", t.ID)
		}
		seen[t.ID] = true
		if t.Decimals < 0 || t.Decimals > 36 {
			return fmt.Errorf("代币 %d 精度无效: %d", t.ID, t.Decimals)
		}
	}
	return nil
}

// Token 查询登记的代币，未登记时返回默认精度与数字符号
func (c *Config) Token(id uint16) TokenConfig {
	for _, t := range c.Tokens {
		if t.ID == id {
			if t.Symbol == "" {
				t.Symbol = strconv.Itoa(int(id))
			}
			return t
		}
	}
	return TokenConfig{ID: id, Symbol: strconv.Itoa(int(id)), Decimals: DefaultTokenDecimals}
}

// Logger 日志配置
func (c *Config) Logger() logger.Config {
	return logger.Config{
		Level:      c.LogLevel,
		OutputFile: c.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}
}

// getValueFromSources 配置文件中的非空值优先
func getValueFromSources(configValue, envValue string) string {
	if configValue != "" {
		return configValue
	}
	return envValue
}

// getIntFromSources 配置文件中的非零值优先
func getIntFromSources(configValue, envValue int) int {
	if configValue != 0 {
		return configValue
	}
	return envValue
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseDurationEnv 解析时长环境变量，例如 "500ms"
func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
