package config

import (
	"fmt"
	"maps"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/ruteri/pdo-contract-client/common"
	"github.com/ruteri/pdo-contract-client/interfaces"
)

// ConfigurationError reports a problem with a specific configuration file.
type ConfigurationError struct {
	File    string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("error in configuration file %s: %s", e.File, e.Message)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

type ClientConfig struct {
	Identity string `toml:"Identity"`
}

type KeyConfig struct {
	FileName   string   `toml:"FileName"`
	SearchPath []string `toml:"SearchPath"`
	Passphrase string   `toml:"Passphrase"`
}

type ContractConfig struct {
	DataDirectory string `toml:"DataDirectory"`
}

type ServiceConfig struct {
	EnclaveServiceDatabaseFile string `toml:"EnclaveServiceDatabaseFile"`
	RequireAttestation         bool   `toml:"RequireAttestation"`
}

type LoggingConfig struct {
	Debug bool `toml:"Debug"`
	JSON  bool `toml:"JSON"`
}

// Config is the client configuration assembled from one or more TOML files.
type Config struct {
	Client   ClientConfig            `toml:"Client"`
	Key      KeyConfig               `toml:"Key"`
	Contract ContractConfig          `toml:"Contract"`
	Service  ServiceConfig           `toml:"Service"`
	Ledger   interfaces.LedgerConfig `toml:"Ledger"`
	Logging  LoggingConfig           `toml:"Logging"`
}

// KeyFileName is the configured key file, or <identity>_private.pem.
func (c *Config) KeyFileName() string {
	if c.Key.FileName != "" {
		return c.Key.FileName
	}
	return c.Client.Identity + "_private.pem"
}

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Key:      KeyConfig{SearchPath: []string{".", "./keys"}},
		Contract: ContractConfig{DataDirectory: common.DefaultDataDirectory},
		Service:  ServiceConfig{EnclaveServiceDatabaseFile: "eservice-db.bolt"},
		Ledger: interfaces.LedgerConfig{
			Type:         "memory",
			PollInterval: "2s",
			PollAttempts: 30,
		},
	}
}

// LoadFiles locates every file in searchPath, expands it against vars and
// deep-merges the results in order, later files winning.
func LoadFiles(files []string, searchPath []string, vars map[string]any) (map[string]any, error) {
	found := make([]string, 0, len(files))
	for _, file := range files {
		path, err := common.FindFileInPath(file, searchPath)
		if err != nil {
			return nil, &ConfigurationError{File: file, Message: err.Error(), Err: err}
		}
		found = append(found, path)
	}

	merged := map[string]any{}
	for _, path := range found {
		parsed, err := LoadFile(path, vars)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, parsed)
	}

	return merged, nil
}

// LoadFile parses a single configuration file.
func LoadFile(path string, vars map[string]any) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{File: path, Message: fmt.Sprintf("IO error; %v", err), Err: err}
	}
	return Parse(path, string(raw), vars)
}

// Parse expands and decodes configuration text. name is used in errors.
func Parse(name string, text string, vars map[string]any) (map[string]any, error) {
	text = stripComments(text)

	if len(vars) > 0 {
		expanded, err := expandExpressions(text, vars)
		if err != nil {
			return nil, &ConfigurationError{File: name, Message: fmt.Sprintf("Value error; %v", err)}
		}
		text = substituteVariables(expanded, vars)
	}

	parsed := map[string]any{}
	if err := toml.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, &ConfigurationError{File: name, Message: fmt.Sprintf("Value error; %v", err)}
	}
	return parsed, nil
}

// Decode overlays a merged configuration map onto the defaults.
func Decode(merged map[string]any) (*Config, error) {
	encoded, err := toml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode configuration: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(encoded, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return cfg, nil
}

// Load is LoadFiles followed by Decode.
func Load(files []string, searchPath []string, vars map[string]any) (*Config, error) {
	merged, err := LoadFiles(files, searchPath, vars)
	if err != nil {
		return nil, err
	}
	return Decode(merged)
}

// deepMerge merges src into dst. Nested tables are merged; any other value
// in src replaces the one in dst.
func deepMerge(dst, src map[string]any) map[string]any {
	out := maps.Clone(dst)
	for key, value := range src {
		srcTable, srcIsTable := value.(map[string]any)
		dstTable, dstIsTable := out[key].(map[string]any)
		if srcIsTable && dstIsTable {
			out[key] = deepMerge(dstTable, srcTable)
			continue
		}
		out[key] = value
	}
	return out
}
