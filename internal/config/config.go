// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（MONGODB_URI、JWT_SECRET）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
// 凭据（连接串、签名密钥）只从环境变量读取，不存储在 YAML 中
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Name string `yaml:"name"` // MongoDB 数据库名
}

type AuthConfig struct {
	TokenTTL string `yaml:"token_ttl"` // 例如 "168h"
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env       Environment
	MongoURI  string
	MongoDB   string
	APIPort   string
	JWTSecret string
	TokenTTL  time.Duration
}

// DefaultTokenTTL 令牌默认有效期（7 天）
const DefaultTokenTTL = 7 * 24 * time.Hour

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 环境变量覆盖，构建最终配置
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	cfg := &Config{
		Env:       env,
		MongoURI:  getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:   getEnv("MONGO_DB", yamlCfg.Database.Name),
		APIPort:   getEnv("PORT", yamlCfg.Server.Port),
		JWTSecret: getEnv("JWT_SECRET", "dev_jwt_secret"),
		TokenTTL:  parseTTL(getEnv("JWT_EXPIRES_IN", yamlCfg.Auth.TokenTTL)),
	}

	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server:   ServerConfig{Port: "5000"},
		Database: DatabaseConfig{Name: "learning_platform"},
		Auth:     AuthConfig{TokenTTL: "168h"},
	}

	// 2. 加载 {env}.yaml（环境特定配置，覆盖默认值）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// parseTTL 解析令牌有效期，非法或缺失时回落到默认 7 天
func parseTTL(s string) time.Duration {
	if s == "" {
		return DefaultTokenTTL
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return DefaultTokenTTL
	}
	return d
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏连接串中的密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Mongo: %s/%s, Port: %s, TokenTTL: %s}",
		c.Env, maskPassword(c.MongoURI), c.MongoDB, c.APIPort, c.TokenTTL)
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:/]+:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}
