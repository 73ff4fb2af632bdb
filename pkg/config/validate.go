package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/logwire/logwire/pkg/emit"
	"github.com/logwire/logwire/pkg/logging"
)

// FieldError is one validation problem.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// ValidationError lists every problem found by Validate.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Has reports whether field has a problem.
func (e *ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

type validator struct {
	errs []FieldError
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the whole configuration and returns a *ValidationError
// describing every problem, or nil.
func (c *Config) Validate() error {
	v := &validator{}

	if !logging.ValidLevel(c.Log.Level) {
		v.add("log.level", "unknown level %q (want debug, info, warn or error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		v.add("log.format", "unknown format %q (want text or json)", c.Log.Format)
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			v.add("metrics.addr", "%v", err)
		}
	}
	if _, err := c.Storage.FileMode(); err != nil {
		v.add("storage.permission", "%v", err)
	}
	if _, err := c.Storage.DirMode(); err != nil {
		v.add("storage.directory_permission", "%v", err)
	}

	ids := make(map[string]bool)
	addrs := make(map[string]bool)
	for i, l := range c.Listeners {
		field := func(name string) string { return fmt.Sprintf("listeners[%d].%s", i, name) }

		if ids[l.ID] {
			v.add(field("id"), "duplicate id %q", l.ID)
		}
		ids[l.ID] = true
		if l.Tag == "" {
			v.add(field("tag"), "tag is required")
		}
		if l.Port < 1 || l.Port > 65535 {
			v.add(field("port"), "port must be between 1 and 65535")
		} else {
			addr := net.JoinHostPort(l.Bind, strconv.Itoa(l.Port))
			if addrs[addr] {
				v.add(field("port"), "%s is already used by another listener", addr)
			}
			addrs[addr] = true
		}
		if _, err := l.KeepaliveDuration(); err != nil {
			v.add(field("keepalive"), "%v", err)
		}
		if l.LingerTimeout != nil && *l.LingerTimeout < 0 {
			v.add(field("linger_timeout"), "must be >= 0")
		}
		if l.Backlog < 0 {
			v.add(field("backlog"), "must be >= 0")
		}
		if l.Workers < 0 {
			v.add(field("workers"), "must be >= 0")
		}
		if l.Delimiter == "" {
			v.add(field("delimiter"), "delimiter is required")
		}
		switch l.Format {
		case MessageText, MessageJSON:
		default:
			v.add(field("format"), "unknown format %q (want text or json)", l.Format)
		}
		if l.Encoding != "" {
			if _, err := htmlindex.Get(l.Encoding); err != nil {
				v.add(field("encoding"), "unknown encoding %q", l.Encoding)
			}
		}
	}

	for i, r := range c.Routes {
		prefix := fmt.Sprintf("routes[%d]", i)
		if !emit.ValidPattern(r.Match) {
			v.add(prefix+".match", "invalid tag pattern %q", r.Match)
		}
		if len(r.Outputs) == 0 {
			v.add(prefix+".outputs", "at least one output is required")
		}
		v.outputs(prefix+".outputs", r.Outputs)
	}

	if len(v.errs) > 0 {
		return &ValidationError{Errors: v.errs}
	}
	return nil
}

func (v *validator) outputs(prefix string, outputs []OutputConfig) {
	for i, o := range outputs {
		field := fmt.Sprintf("%s[%d]", prefix, i)
		switch o.Type {
		case OutputStdout:
		case OutputMQTT:
			if o.Broker == "" {
				v.add(field+".broker", "broker is required")
			}
			if o.QoS < 0 || o.QoS > 2 {
				v.add(field+".qos", "qos must be 0, 1 or 2")
			}
			if o.QueueSize < 0 {
				v.add(field+".queue_size", "queue_size must not be negative")
			}
		case OutputWebSocket:
			if !strings.HasPrefix(o.URL, "ws://") && !strings.HasPrefix(o.URL, "wss://") {
				v.add(field+".url", "url must start with ws:// or wss://")
			}
			if o.QueueSize < 0 {
				v.add(field+".queue_size", "queue_size must not be negative")
			}
		case OutputFilter:
			if o.Expression == "" {
				v.add(field+".expression", "expression is required")
			} else if _, err := emit.NewFilter(o.Expression); err != nil {
				v.add(field+".expression", "%v", err)
			}
			v.outputs(field+".outputs", o.Outputs)
		case OutputSchema:
			if o.Schema == "" {
				v.add(field+".schema", "schema file is required")
			} else if _, err := emit.LoadSchema(o.Schema); err != nil {
				v.add(field+".schema", "%v", err)
			}
			v.outputs(field+".outputs", o.Outputs)
		case OutputCopy:
			if len(o.Outputs) == 0 {
				v.add(field+".outputs", "copy needs at least one output")
			}
			v.outputs(field+".outputs", o.Outputs)
		default:
			v.add(field+".type", "unknown output type %q", o.Type)
		}
	}
}
