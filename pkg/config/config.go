package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"

	"github.com/zoeyai/shapeid/pkg/vision/imgproc"
	"github.com/zoeyai/shapeid/pkg/vision/ncc"
)

// 支持的匹配后端名称
var backends = map[string]bool{
	"ncc":    true,
	"opencv": true,
}

// Config 识别配置
type Config struct {
	// Threshold 标注阈值
	Threshold float64 `json:"threshold"`
	// Area 搜索区域: full / top / bottom
	Area string `json:"area"`
	// Library 模板库目录或 YAML 清单
	Library string `json:"library"`
	// Workers 并发数
	Workers int `json:"workers"`
	// Backend 匹配后端: ncc / opencv
	Backend string `json:"backend"`
	// Method 相关方法: ccoeff / ccorr
	Method string `json:"method"`
	// Label 是否在胜出模板旁绘制名称
	Label bool `json:"label"`
	// Output 标注图输出路径
	Output string `json:"output"`
	// LogLevel 日志级别
	LogLevel string `json:"log_level"`
	// LogFile 日志文件，为空时只输出到控制台
	LogFile string `json:"log_file"`
	// ListenAddr gRPC 服务监听地址
	ListenAddr string `json:"listen_addr"`
	// WebSocketAddr WebSocket 服务监听地址，为空时不启动
	WebSocketAddr string `json:"ws_addr"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Threshold:  0.05,
		Area:       imgproc.AreaFull.String(),
		Workers:    defaultWorkers(),
		Backend:    "ncc",
		Method:     "ccoeff",
		Output:     "annotated.png",
		LogLevel:   "info",
		ListenAddr: "localhost:50061",
	}
}

// defaultWorkers 物理核数，获取失败时使用逻辑核数
func defaultWorkers() int {
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Validate 校验配置，不做静默回退
func (c *Config) Validate() error {
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("阈值无效: %v", c.Threshold)
	}
	if _, err := imgproc.ParseArea(c.Area); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("并发数不能为负数: %d", c.Workers)
	}
	if !backends[c.Backend] {
		return fmt.Errorf("未知匹配后端: %q", c.Backend)
	}
	if _, err := ncc.ParseMethod(c.Method); err != nil {
		return err
	}
	return nil
}

// ParsedArea 返回解析后的搜索区域
func (c *Config) ParsedArea() (imgproc.Area, error) {
	return imgproc.ParseArea(c.Area)
}

// Manager 配置管理器
type Manager struct {
	configDir  string
	configFile string
	mu         sync.RWMutex
}

// NewManager 创建配置管理器
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return NewManagerWithDir(filepath.Join(homeDir, ".shapeid"))
}

// NewManagerWithDir 使用指定目录创建配置管理器
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// ensureDir 确保配置目录存在
func (m *Manager) ensureDir() error {
	return os.MkdirAll(m.configDir, 0755)
}

// Load 加载配置，文件中缺少的字段使用默认值
func (m *Manager) Load() (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return DefaultConfig(), fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := config.Validate(); err != nil {
		return DefaultConfig(), fmt.Errorf("配置无效: %w", err)
	}

	return config, nil
}

// Save 保存配置
func (m *Manager) Save(config *Config) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureDir(); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(m.configFile, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// Clear 清除配置
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return nil
	}

	return os.Remove(m.configFile)
}

// GetConfigDir 获取配置目录
func (m *Manager) GetConfigDir() string {
	return m.configDir
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}

// 全局配置管理器
var defaultManager = NewManager()

// GetDefaultManager 获取默认配置管理器
func GetDefaultManager() *Manager {
	return defaultManager
}

// Load 使用默认管理器加载配置
func Load() (*Config, error) {
	return defaultManager.Load()
}

// Save 使用默认管理器保存配置
func Save(config *Config) error {
	return defaultManager.Save(config)
}

// Clear 使用默认管理器清除配置
func Clear() error {
	return defaultManager.Clear()
}
