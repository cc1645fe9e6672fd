package internal

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/gistblog/internal/api"
	"github.com/starford/gistblog/internal/blog"
	"github.com/starford/gistblog/internal/editlock"
	"github.com/starford/gistblog/internal/gist"
	"github.com/starford/gistblog/internal/query"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Gist   GistConfig        `yaml:"gist"`
	Blog   BlogConfig        `yaml:"blog"`
	Auth   AuthConfig        `yaml:"auth"`
	Lock   LockConfig        `yaml:"lock"`
	Mirror MirrorConfig      `yaml:"mirror"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Gist.Validate(); err != nil {
		return fmt.Errorf("gist: %w", err)
	}
	if err := c.Blog.Validate(); err != nil {
		return fmt.Errorf("blog: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Lock.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// GistConfig describes the bucket and how to reach it.
type GistConfig struct {
	ID           string        `yaml:"id"`
	APIURL       string        `yaml:"api_url"`
	IndexFile    string        `yaml:"index_file"`
	Description  string        `yaml:"description"`
	Token        string        `yaml:"token"`
	Timeout      time.Duration `yaml:"timeout"`
	VersionCheck bool          `yaml:"version_check"`
}

// Validate validates the gist configuration.
func (c *GistConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ID, validation.Required),
		validation.Field(&c.APIURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.IndexFile, validation.Required),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be an absolute URL")
	}
	return nil
}

// BlogConfig holds presentation settings.
type BlogConfig struct {
	PageSize  int    `yaml:"page_size"`
	Neighbors string `yaml:"neighbors"`
}

// Validate validates the blog configuration.
func (c *BlogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PageSize, validation.Min(1)),
		validation.Field(&c.Neighbors, validation.By(func(value any) error {
			_, err := query.ParseNeighbors(value.(string))
			return err
		})),
	)
}

// NeighborMode returns the parsed neighbors setting.
func (c *BlogConfig) NeighborMode() query.Neighbors {
	n, _ := query.ParseNeighbors(c.Neighbors)
	return n
}

// AuthConfig holds authentication configuration for API writes.
//
// Mode controls how writes are authorized:
//   - "passthrough" (default): the caller's bearer token is used as the gist
//     credential for that request.
//   - "token": the caller must present Token; writes use gist.token.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = api.ModePassthrough
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(api.ModePassthrough, api.ModeToken)),
	); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if c.Mode == api.ModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", api.ModeToken)
	}
	return nil
}

// LockConfig enables the redis editor lock when RedisAddr is set.
type LockConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// Enabled reports whether writes should take the editor lock.
func (c *LockConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// Validate validates the lock configuration.
func (c *LockConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.TTL, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	return nil
}

// MirrorConfig points at the local mirror directory used by export and watch.
type MirrorConfig struct {
	Path string `yaml:"path"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Gist: GistConfig{
			APIURL:      gist.DefaultBaseURL,
			IndexFile:   blog.DefaultIndexFile,
			Description: blog.DefaultDescription,
			Timeout:     30 * time.Second,
		},
		Blog: BlogConfig{
			PageSize:  query.DefaultPageSize,
			Neighbors: query.NeighborsStorage.String(),
		},
		Auth: AuthConfig{
			Mode: api.ModePassthrough,
		},
		Lock: LockConfig{
			TTL: editlock.DefaultTTL,
		},
		Mirror: MirrorConfig{
			Path: "./mirror",
		},
	}
}
