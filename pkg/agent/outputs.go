package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/logwire/logwire/pkg/config"
	"github.com/logwire/logwire/pkg/emit"
	"github.com/logwire/logwire/pkg/emit/mqttout"
	"github.com/logwire/logwire/pkg/emit/wsout"
	"github.com/logwire/logwire/pkg/logging"
)

// outputBuilder turns output configuration into connected outputs.
type outputBuilder struct {
	log    *slog.Logger
	stdout io.Writer
}

func (b *outputBuilder) build(ctx context.Context, cfgs []config.OutputConfig) ([]emit.Output, error) {
	outputs := make([]emit.Output, 0, len(cfgs))
	for _, c := range cfgs {
		out, err := b.one(ctx, c)
		if err != nil {
			_ = closeAll(outputs)
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

func (b *outputBuilder) one(ctx context.Context, c config.OutputConfig) (emit.Output, error) {
	switch c.Type {
	case config.OutputStdout:
		return emit.NewStdout(b.stdout), nil

	case config.OutputMQTT:
		return mqttout.New(mqttout.Config{
			Broker:      c.Broker,
			TopicPrefix: c.TopicPrefix,
			QoS:         byte(c.QoS),
			Retained:    c.Retained,
			ClientID:    c.ClientID,
			Username:    c.Username,
			Password:    c.Password,
			QueueSize:   c.QueueSize,
		}, mqttout.WithLogger(b.log.With(logging.KeyOutput, "mqtt")))

	case config.OutputWebSocket:
		return wsout.Dial(ctx, c.URL,
			wsout.WithLogger(b.log.With(logging.KeyOutput, "websocket")),
			wsout.WithQueueSize(c.QueueSize),
		)

	case config.OutputFilter:
		children, err := b.build(ctx, c.Outputs)
		if err != nil {
			return nil, err
		}
		f, err := emit.NewFilter(c.Expression, children...)
		if err != nil {
			_ = closeAll(children)
			return nil, err
		}
		f.SetLogger(b.log.With(logging.KeyOutput, "filter"))
		return f, nil

	case config.OutputSchema:
		children, err := b.build(ctx, c.Outputs)
		if err != nil {
			return nil, err
		}
		s, err := emit.LoadSchema(c.Schema, children...)
		if err != nil {
			_ = closeAll(children)
			return nil, err
		}
		s.SetLogger(b.log.With(logging.KeyOutput, "schema"))
		return s, nil

	case config.OutputCopy:
		children, err := b.build(ctx, c.Outputs)
		if err != nil {
			return nil, err
		}
		return emit.NewCopy(children...), nil
	}
	return nil, fmt.Errorf("unknown output type %q", c.Type)
}

func closeAll(outputs []emit.Output) error {
	var errs []error
	for _, out := range outputs {
		if c, ok := out.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
