package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

const (
	TypeStdio = "stdio"
	TypeSSE   = "sse"
	TypeHTTP  = "http"
)

// ErrInvalidServer marks a server entry that cannot be used.
var ErrInvalidServer = errors.New("invalid server")

// ErrNoServers is returned for documents without a mcpServers or servers
// section.
var ErrNoServers = errors.New("no mcpServers or servers section")

// Files are the discovery file names looked up in the working directory.
var Files = []string{".mcp.json", ".mcp.yaml", "mcp.json", "mcp.yaml", "server_config.json"}

// Find returns the first discovery file present in dir.
func Find(dir string) (string, error) {
	for _, name := range Files {
		path := filepath.Join(dir, name)

		if _, err := os.Stat(path); err != nil {
			continue
		}

		return path, nil
	}

	return "", errors.Newf("no server configuration found, looked for %v", Files)
}

func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)

	if err != nil {
		return nil, errors.Wrap(err, "failed to read server configuration")
	}

	config, err := Decode(data)

	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	return config, nil
}

// Decode reads a JSON or YAML discovery document. Servers keep the order
// of the document. A server entry that fails to decode or validate is kept
// with Err set so that only that server is skipped. A name listed under
// both sections is kept once; the second entry is reported as invalid.
func Decode(data []byte) (*Config, error) {
	config, err := decodeJSON(data)

	if err != nil {
		config, err = decodeYAML(data)
	}

	if err != nil {
		if errors.Is(err, ErrNoServers) {
			return nil, err
		}

		return nil, errors.New("failed to parse config file")
	}

	return config, nil
}

type Config struct {
	Servers []Server
}

type Server struct {
	Name string `json:"-" yaml:"-"`

	Type string `json:"type" yaml:"type"`

	URL     string            `json:"url" yaml:"url"`
	Headers map[string]string `json:"headers" yaml:"headers"`

	Command string            `json:"command" yaml:"command"`
	Env     map[string]string `json:"env" yaml:"env"`
	Args    []string          `json:"args" yaml:"args"`

	Err error `json:"-" yaml:"-"`
}

// Validate normalizes the server type and checks the fields it needs.
func (s *Server) Validate() error {
	switch s.Type {
	case "", TypeStdio:
		s.Type = TypeStdio

		if s.Command == "" {
			return errors.Mark(errors.Newf("server %s: command is required", s.Name), ErrInvalidServer)
		}

	case TypeSSE, TypeHTTP, "streamable-http":
		if s.Type == "streamable-http" {
			s.Type = TypeHTTP
		}

		if s.URL == "" {
			return errors.Mark(errors.Newf("server %s: url is required", s.Name), ErrInvalidServer)
		}

	default:
		return errors.Mark(errors.Newf("server %s: unsupported type %q", s.Name, s.Type), ErrInvalidServer)
	}

	return nil
}

type jsonFile struct {
	Servers    *orderedmap.OrderedMap[string, json.RawMessage] `json:"servers"`
	MCPServers *orderedmap.OrderedMap[string, json.RawMessage] `json:"mcpServers"`
}

func decodeJSON(data []byte) (*Config, error) {
	var file jsonFile

	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	if file.MCPServers == nil && file.Servers == nil {
		return nil, ErrNoServers
	}

	config := &Config{}

	for _, m := range []*orderedmap.OrderedMap[string, json.RawMessage]{file.MCPServers, file.Servers} {
		if m == nil {
			continue
		}

		for pair := m.Oldest(); pair != nil; pair = pair.Next() {
			s := Server{}

			if err := json.Unmarshal(pair.Value, &s); err != nil {
				s.Err = errors.Mark(errors.Wrapf(err, "server %s", pair.Key), ErrInvalidServer)
			}

			config.add(pair.Key, s)
		}
	}

	return config, nil
}

type yamlFile struct {
	Servers    *orderedmap.OrderedMap[string, yaml.Node] `yaml:"servers"`
	MCPServers *orderedmap.OrderedMap[string, yaml.Node] `yaml:"mcpServers"`
}

func decodeYAML(data []byte) (*Config, error) {
	var file yamlFile

	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	if file.MCPServers == nil && file.Servers == nil {
		return nil, ErrNoServers
	}

	config := &Config{}

	for _, m := range []*orderedmap.OrderedMap[string, yaml.Node]{file.MCPServers, file.Servers} {
		if m == nil {
			continue
		}

		for pair := m.Oldest(); pair != nil; pair = pair.Next() {
			s := Server{}

			if err := pair.Value.Decode(&s); err != nil {
				s.Err = errors.Mark(errors.Wrapf(err, "server %s", pair.Key), ErrInvalidServer)
			}

			config.add(pair.Key, s)
		}
	}

	return config, nil
}

func (c *Config) add(name string, s Server) {
	s.Name = name

	for _, existing := range c.Servers {
		if existing.Name == name {
			c.Servers = append(c.Servers, Server{
				Name: name,
				Err:  errors.Mark(errors.Newf("server %s: defined more than once", name), ErrInvalidServer),
			})

			return
		}
	}

	if s.Err == nil {
		s.Err = s.Validate()
	}

	c.Servers = append(c.Servers, s)
}
