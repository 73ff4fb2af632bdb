package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Output types.
const (
	OutputStdout    = "stdout"
	OutputMQTT      = "mqtt"
	OutputWebSocket = "websocket"
	OutputFilter    = "filter"
	OutputCopy      = "copy"
	OutputSchema    = "schema"
)

// Message formats of a listener.
const (
	MessageText = "text"
	MessageJSON = "json"
)

// Unlimited disables the keepalive reaper for a listener.
const Unlimited = "unlimited"

// Config is the root of the agent configuration.
type Config struct {
	Log       LogConfig        `json:"log" yaml:"log"`
	Metrics   MetricsConfig    `json:"metrics" yaml:"metrics"`
	Storage   StorageConfig    `json:"storage" yaml:"storage"`
	Listeners []ListenerConfig `json:"listeners" yaml:"listeners"`
	Routes    []RouteConfig    `json:"routes" yaml:"routes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	// File, when set, receives a JSON copy of every log record.
	File string `json:"file" yaml:"file"`
}

// MetricsConfig configures the /metrics endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// StorageConfig configures the JSON state file. An empty Path disables
// persistence.
type StorageConfig struct {
	Path string `json:"path" yaml:"path"`
	// Permission and DirectoryPermission are octal strings such as "0644".
	Permission          string `json:"permission" yaml:"permission"`
	DirectoryPermission string `json:"directory_permission" yaml:"directory_permission"`
	PrettyPrint         *bool  `json:"pretty_print" yaml:"pretty_print"`
}

// FileMode returns the parsed file permission.
func (s StorageConfig) FileMode() (os.FileMode, error) {
	return parseMode(s.Permission)
}

// DirMode returns the parsed directory permission.
func (s StorageConfig) DirMode() (os.FileMode, error) {
	return parseMode(s.DirectoryPermission)
}

// Pretty reports whether the state file is indented. Defaults to true.
func (s StorageConfig) Pretty() bool {
	return s.PrettyPrint == nil || *s.PrettyPrint
}

func parseMode(s string) (os.FileMode, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil || n > 0o777 {
		return 0, fmt.Errorf("invalid permission %q: want an octal mode like 0644", s)
	}
	return os.FileMode(n), nil
}

// ListenerConfig configures one TCP input.
type ListenerConfig struct {
	ID   string `json:"id" yaml:"id"`
	Tag  string `json:"tag" yaml:"tag"`
	Bind string `json:"bind" yaml:"bind"`
	Port int    `json:"port" yaml:"port"`
	// Keepalive is the idle ceiling in seconds, or "unlimited".
	Keepalive Seconds `json:"keepalive" yaml:"keepalive"`
	// LingerTimeout enables SO_LINGER with this many seconds.
	LingerTimeout     *int   `json:"linger_timeout" yaml:"linger_timeout"`
	Backlog           int    `json:"backlog" yaml:"backlog"`
	Delimiter         string `json:"delimiter" yaml:"delimiter"`
	Format            string `json:"format" yaml:"format"`
	Encoding          string `json:"encoding" yaml:"encoding"`
	ReusePort         bool   `json:"reuse_port" yaml:"reuse_port"`
	Workers           int    `json:"workers" yaml:"workers"`
	ResolveHostname   bool   `json:"resolve_hostname" yaml:"resolve_hostname"`
	SourceAddressKey  string `json:"source_address_key" yaml:"source_address_key"`
	SourceHostnameKey string `json:"source_hostname_key" yaml:"source_hostname_key"`
}

// KeepaliveDuration returns the keepalive ceiling, nil for unlimited.
func (l ListenerConfig) KeepaliveDuration() (*time.Duration, error) {
	return l.Keepalive.Duration()
}

// Seconds is a duration in whole seconds, or "unlimited". It accepts
// numbers and strings in both YAML and JSON.
type Seconds string

// UnmarshalJSON accepts a number or a string.
func (s *Seconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Seconds(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	*s = Seconds(n.String())
	return nil
}

// Duration parses s. Empty and "unlimited" yield nil.
func (s Seconds) Duration() (*time.Duration, error) {
	v := strings.TrimSpace(string(s))
	if v == "" || strings.EqualFold(v, Unlimited) {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid keepalive %q: want seconds or %q", v, Unlimited)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid keepalive %d: must be >= 0", n)
	}
	d := time.Duration(n) * time.Second
	return &d, nil
}

// RouteConfig sends events whose tag matches Match to Outputs.
type RouteConfig struct {
	Match   string         `json:"match" yaml:"match"`
	Outputs []OutputConfig `json:"outputs" yaml:"outputs"`
}

// OutputConfig configures one output. Which fields apply depends on Type.
type OutputConfig struct {
	Type string `json:"type" yaml:"type"`

	// mqtt
	Broker      string `json:"broker,omitempty" yaml:"broker,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty" yaml:"topic_prefix,omitempty"`
	QoS         int    `json:"qos,omitempty" yaml:"qos,omitempty"`
	Retained    bool   `json:"retained,omitempty" yaml:"retained,omitempty"`
	ClientID    string `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`

	// websocket
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// mqtt and websocket: batches buffered between the router and the
	// network; 0 means the output default
	QueueSize int `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`

	// filter
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	// schema: path to a JSON Schema document records must satisfy
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`

	// filter, schema and copy
	Outputs []OutputConfig `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}
