package config

import "time"

// Config is the root configuration for handoff.
type Config struct {
	Storage  StorageConfig              `json:"storage"`
	Delegate DelegateConfig             `json:"delegate"`
	MCP      map[string]MCPServerConfig `json:"mcp"`
	Events   EventsConfig               `json:"events"`
}

// StorageConfig configures the chain checkpoint store.
type StorageConfig struct {
	Dir string `json:"dir"` // chain state directory (default: $HANDOFF_PATH/chains)
}

// DelegateConfig holds delegation settings.
type DelegateConfig struct {
	MaxDepth       int      `json:"max_depth"`       // maximum chain depth (default: 3)
	DefaultTimeout Duration `json:"default_timeout"` // per-task execution timeout
	WorkDir        string   `json:"work_dir,omitempty"`
}

// MCPServerConfig describes how to launch one MCP tool server over stdio.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
