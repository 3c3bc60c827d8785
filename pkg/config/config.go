package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = 3000
	DefaultDatabaseURL = "postgres://localhost:5432/backend_dev"
	DefaultRedisURL    = "redis://localhost:6379"
	DefaultJWTSecret   = "dev-secret-change-me"
	DefaultServiceName = "backend"
	DefaultServiceDir  = "backend"

	// ServicePathEnv redirects discovery to an explicit service directory.
	ServicePathEnv = "BACKENDCTL_SERVICE_PATH"
)

// Service is the per-invocation input to the supervisor.
type Service struct {
	DatabaseURL string   `yaml:"database_url,omitempty"`
	RedisURL    string   `yaml:"redis_url,omitempty"`
	JWTSecret   string   `yaml:"jwt_secret,omitempty"`
	Port        int      `yaml:"port,omitempty"`
	ServicePath string   `yaml:"service_path,omitempty"`
	Command     []string `yaml:"command,omitempty"`
}

// File is the optional ~/.backendctl/config.yaml.
type File struct {
	Service     Service `yaml:"service"`
	ServiceName string  `yaml:"service_name,omitempty"`
	ServiceDir  string  `yaml:"service_dir,omitempty"`
}

// Defaults returns the development defaults used when nothing else is set.
func Defaults() Service {
	return Service{
		DatabaseURL: DefaultDatabaseURL,
		RedisURL:    DefaultRedisURL,
		JWTSecret:   DefaultJWTSecret,
		Port:        DefaultPort,
	}
}

// Merge overlays the non-zero fields of over onto base.
func Merge(base, over Service) Service {
	out := base
	if over.DatabaseURL != "" {
		out.DatabaseURL = over.DatabaseURL
	}
	if over.RedisURL != "" {
		out.RedisURL = over.RedisURL
	}
	if over.JWTSecret != "" {
		out.JWTSecret = over.JWTSecret
	}
	if over.Port > 0 {
		out.Port = over.Port
	}
	if over.ServicePath != "" {
		out.ServicePath = over.ServicePath
	}
	if len(over.Command) > 0 {
		out.Command = append([]string{}, over.Command...)
	}
	return out
}

// Validate checks that every required field is present.
func (s Service) Validate() error {
	if s.DatabaseURL == "" {
		return errors.New("missing database url")
	}
	if s.RedisURL == "" {
		return errors.New("missing redis url")
	}
	if s.JWTSecret == "" {
		return errors.New("missing jwt secret")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return errors.Errorf("invalid port %d", s.Port)
	}
	return nil
}

func (f *File) Name() string {
	if f == nil || f.ServiceName == "" {
		return DefaultServiceName
	}
	return f.ServiceName
}

func (f *File) Dir() string {
	if f == nil || f.ServiceDir == "" {
		return DefaultServiceDir
	}
	return f.ServiceDir
}

func LoadFromFile(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg File
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config yaml")
	}
	return &cfg, nil
}

func LoadOptional(path string) (*File, error) {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, errors.Wrap(err, "stat config")
	}
	return LoadFromFile(path)
}
