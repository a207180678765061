package config

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Parser reads configuration files in either supported format.
type Parser struct {
	luaParser *LuaConfigParser
}

// NewParser creates a Parser that can handle both Lua and YAML files.
func NewParser() (*Parser, error) {
	luaParser, err := NewLuaConfigParser()
	if err != nil {
		return nil, fmt.Errorf("failed to create Lua parser: %w", err)
	}
	return &Parser{luaParser: luaParser}, nil
}

// ParseFile reads and parses a configuration file. The format is taken from
// the extension (.lua, .yaml, .yml) and detected from the content otherwise.
func (p *Parser) ParseFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return p.ParseFormat(content, FormatFromPath(path))
}

// ParseFromFS reads and parses a configuration file from fsys.
func (p *Parser) ParseFromFS(fsys fs.FS, path string) (*Config, error) {
	content, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from FS %s: %w", path, err)
	}
	return p.ParseFormat(content, FormatFromPath(path))
}

// ParseReader parses configuration from an io.Reader in the named format
// ("lua" or "yaml").
func (p *Parser) ParseReader(r io.Reader, format string) (*Config, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return p.ParseFormat(content, f)
}

// ParseFormat parses content in format f, detecting the format when f is
// FormatUnknown. Environment references in string options are expanded.
func (p *Parser) ParseFormat(content []byte, f Format) (*Config, error) {
	if f == FormatUnknown {
		f = DetectFormat(content)
	}

	var (
		cfg *Config
		err error
	)
	switch f {
	case FormatLua:
		cfg, err = p.luaParser.Parse(content)
	case FormatYAML:
		cfg, err = parseYAML(content)
	default:
		return nil, fmt.Errorf("unsupported format %v", f)
	}
	if err != nil {
		return nil, err
	}
	ExpandEnvConfig(cfg)
	return cfg, nil
}

// Close releases resources associated with the parser.
func (p *Parser) Close() error {
	if p.luaParser != nil {
		return p.luaParser.Close()
	}
	return nil
}

// FormatFromPath maps a file extension to a Format.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return FormatLua
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// luaConfigPattern matches an assignment to taskmon.config at the start of
// a line.
var luaConfigPattern = regexp.MustCompile(`(?m)^\s*taskmon\.config\s*=`)

// DetectFormat reports FormatLua for content assigning taskmon.config and
// FormatYAML for anything else.
func DetectFormat(content []byte) Format {
	if luaConfigPattern.Match(content) {
		return FormatLua
	}
	return FormatYAML
}

// Load parses and validates the configuration file at path.
func Load(path string) (*Config, error) {
	p, err := NewParser()
	if err != nil {
		return nil, err
	}
	defer p.Close()

	cfg, err := p.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
