// Package registry 维护静态的订阅源表（源地址、话题提示、文章页选择器）。
package registry

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_sources.yaml
var defaultSourcesFS embed.FS

// Selectors 描述文章页上正文、图片与作者的 CSS 选择器
type Selectors struct {
	Content string `yaml:"content"`
	Image   string `yaml:"image"`
	Author  string `yaml:"author"`
}

// Source 一个订阅源，进程生命周期内只读
type Source struct {
	Key         string    `yaml:"key"`
	DisplayName string    `yaml:"name"`
	FeedURL     string    `yaml:"feed_url"`
	TrendingURL string    `yaml:"trending_url"`
	TopicHint   string    `yaml:"topic"`
	Selectors   Selectors `yaml:"selectors"`
}

// Name 返回展示名，未配置时回退为 key
func (s Source) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.Key
}

type file struct {
	Sources []Source `yaml:"sources"`
}

// Registry 有序、只读的源表
type Registry struct {
	sources []Source
}

// New 按给定顺序构建源表
func New(sources []Source) *Registry {
	r := &Registry{sources: make([]Source, len(sources))}
	copy(r.sources, sources)
	return r
}

// Sources 按声明顺序返回源表副本
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// TrendingSources 返回提供“最多阅读”订阅的源
func (r *Registry) TrendingSources() []Source {
	var out []Source
	for _, s := range r.sources {
		if s.TrendingURL != "" {
			out = append(out, s)
		}
	}
	return out
}

// Default 返回内嵌的默认源表
func Default() (*Registry, error) {
	data, err := defaultSourcesFS.ReadFile("default_sources.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded sources: %w", err)
	}
	return parse(data, "embedded sources")
}

// Load 从 path 读取源表；path 为空时使用内嵌默认表
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sources %s: %w", path, err)
	}
	return parse(data, path)
}

func parse(data []byte, name string) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	if err := validate(f.Sources); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return New(f.Sources), nil
}

func validate(sources []Source) error {
	seen := make(map[string]bool, len(sources))
	for i, s := range sources {
		if strings.TrimSpace(s.Key) == "" {
			return fmt.Errorf("source %d: key is required", i)
		}
		if seen[s.Key] {
			return fmt.Errorf("source %q: duplicate key", s.Key)
		}
		seen[s.Key] = true
		if err := checkURL(s.FeedURL); err != nil {
			return fmt.Errorf("source %q: feed_url: %w", s.Key, err)
		}
		if s.TrendingURL != "" {
			if err := checkURL(s.TrendingURL); err != nil {
				return fmt.Errorf("source %q: trending_url: %w", s.Key, err)
			}
		}
	}
	return nil
}

func checkURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}
