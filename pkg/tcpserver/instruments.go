package tcpserver

import "github.com/logwire/logwire/pkg/metrics"

// instruments holds one listener's metric series. Metrics that were never
// initialized are skipped.
type instruments struct {
	listener    string
	accepts     *metrics.CounterVec
	live        *metrics.GaugeVec
	reaps       *metrics.CounterVec
	bytes       *metrics.CounterVec
	messages    *metrics.CounterVec
	messageSize *metrics.HistogramVec
}

func newInstruments(listener string) *instruments {
	inst := &instruments{listener: listener}
	if metrics.ConnectionsAccepted != nil {
		inst.accepts, _ = metrics.ConnectionsAccepted.WithLabels(listener)
	}
	if metrics.ConnectionsActive != nil {
		inst.live, _ = metrics.ConnectionsActive.WithLabels(listener)
	}
	if metrics.ConnectionsReaped != nil {
		inst.reaps, _ = metrics.ConnectionsReaped.WithLabels(listener)
	}
	if metrics.BytesReceived != nil {
		inst.bytes, _ = metrics.BytesReceived.WithLabels(listener)
	}
	if metrics.MessagesTotal != nil {
		inst.messages, _ = metrics.MessagesTotal.WithLabels(listener)
	}
	if metrics.MessageSize != nil {
		inst.messageSize, _ = metrics.MessageSize.WithLabels(listener)
	}
	return inst
}

func (i *instruments) accepted() {
	if i == nil {
		return
	}
	if i.accepts != nil {
		_ = i.accepts.Inc()
	}
	i.active(1)
}

func (i *instruments) active(delta float64) {
	if i != nil && i.live != nil {
		i.live.Add(delta)
	}
}

func (i *instruments) reaped() {
	if i != nil && i.reaps != nil {
		_ = i.reaps.Inc()
	}
}

func (i *instruments) received(n int) {
	if i != nil && i.bytes != nil {
		_ = i.bytes.Add(float64(n))
	}
}

func (i *instruments) message(size int) {
	if i == nil {
		return
	}
	if i.messages != nil {
		_ = i.messages.Inc()
	}
	if i.messageSize != nil {
		i.messageSize.Observe(float64(size))
	}
}

func (i *instruments) connError(kind string) {
	if i == nil || metrics.ConnectionErrors == nil {
		return
	}
	if vec, err := metrics.ConnectionErrors.WithLabels(i.listener, kind); err == nil {
		_ = vec.Inc()
	}
}
