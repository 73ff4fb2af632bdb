package input

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logwire/logwire/pkg/emit"
	"github.com/logwire/logwire/pkg/reactor"
	"github.com/logwire/logwire/pkg/storage"
	"github.com/logwire/logwire/pkg/tcpserver"
)

type emitted struct {
	tag string
	rec emit.Record
}

// chanRouter sends every emitted record to a channel.
type chanRouter struct {
	ch  chan emitted
	err error
}

func newChanRouter() *chanRouter {
	return &chanRouter{ch: make(chan emitted, 64)}
}

func (r *chanRouter) Emit(tag string, _ time.Time, rec emit.Record) error {
	r.ch <- emitted{tag: tag, rec: rec}
	return r.err
}

func (r *chanRouter) EmitArray(tag string, events []emit.Event) error {
	for _, ev := range events {
		_ = r.Emit(tag, ev.Time, ev.Record)
	}
	return r.err
}

func (r *chanRouter) EmitStream(tag string, es emit.EventStream) error {
	return r.EmitArray(tag, es)
}

func (r *chanRouter) next(t *testing.T) emitted {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(3 * time.Second):
		t.Fatal("no record emitted")
		return emitted{}
	}
}

func newServer(t *testing.T) *tcpserver.Server {
	t.Helper()
	loop := reactor.New()
	go func() { _ = loop.Run(context.Background()) }()
	srv := tcpserver.NewServer(loop)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Terminate(ctx)
		loop.Stop()
		<-loop.Done()
	})
	return srv
}

func dial(t *testing.T, in *TCP) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", in.Listener().Addr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTCP_EmitsOneRecordPerMessage(t *testing.T) {
	router := newChanRouter()
	in := NewTCP(TCPConfig{ID: "tcp1", Tag: "app.tcp", Bind: "127.0.0.1"}, router)
	require.NoError(t, in.Start(newServer(t)))
	assert.Equal(t, "tcp1", in.Listener().Name())

	c := dial(t, in)
	_, err := c.Write([]byte("foo\nba"))
	require.NoError(t, err)
	_, err = c.Write([]byte("r\nbaz\n"))
	require.NoError(t, err)

	for _, want := range []string{"foo", "bar", "baz"} {
		got := router.next(t)
		assert.Equal(t, "app.tcp", got.tag)
		assert.Equal(t, emit.Record{"message": want}, got.rec)
	}
	assert.Equal(t, int64(3), in.Messages())
}

func TestTCP_SourceKeysAndDelimiter(t *testing.T) {
	router := newChanRouter()
	in := NewTCP(TCPConfig{
		ID:                "tcp2",
		Tag:               "net",
		Bind:              "127.0.0.1",
		Delimiter:         "|",
		SourceAddressKey:  "client_addr",
		SourceHostnameKey: "client_host",
	}, router)
	require.NoError(t, in.Start(newServer(t)))

	c := dial(t, in)
	_, err := c.Write([]byte("one|"))
	require.NoError(t, err)

	got := router.next(t)
	assert.Equal(t, "one", got.rec["message"])
	assert.Equal(t, "127.0.0.1", got.rec["client_addr"])
	assert.Equal(t, "127.0.0.1", got.rec["client_host"])
}

func TestTCP_JSONFormat(t *testing.T) {
	router := newChanRouter()
	in := NewTCP(TCPConfig{
		ID:               "tcp-json",
		Tag:              "app.json",
		Bind:             "127.0.0.1",
		Format:           FormatJSON,
		SourceAddressKey: "host",
	}, router)
	require.NoError(t, in.Start(newServer(t)))

	c := dial(t, in)
	_, err := c.Write([]byte(`{"level":"error","status":503,"tags":["db"]}` + "\n[1,2]\nplain text\n"))
	require.NoError(t, err)

	got := router.next(t).rec
	assert.Equal(t, "error", got["level"])
	assert.EqualValues(t, 503, got["status"])
	assert.Equal(t, []any{"db"}, got["tags"])
	assert.Equal(t, "127.0.0.1", got["host"])
	assert.NotContains(t, got, MessageKey)

	assert.Equal(t, emit.Record{"message": "[1,2]", "host": "127.0.0.1"}, router.next(t).rec)
	assert.Equal(t, emit.Record{"message": "plain text", "host": "127.0.0.1"}, router.next(t).rec)
}

func TestTCP_Encoding(t *testing.T) {
	router := newChanRouter()
	in := NewTCP(TCPConfig{ID: "tcp-latin1", Tag: "legacy", Bind: "127.0.0.1", Encoding: "latin1"}, router)
	require.NoError(t, in.Start(newServer(t)))

	c := dial(t, in)
	_, err := c.Write([]byte("caf\xe9\n"))
	require.NoError(t, err)
	assert.Equal(t, "café", router.next(t).rec["message"])
}

func TestTCP_UnknownEncoding(t *testing.T) {
	in := NewTCP(TCPConfig{ID: "tcp-bad", Tag: "t", Bind: "127.0.0.1", Encoding: "klingon"}, newChanRouter())
	err := in.Start(newServer(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown encoding "klingon"`)
	assert.Nil(t, in.Listener())
}

func TestTCP_RouterErrorKeepsConnection(t *testing.T) {
	router := newChanRouter()
	router.err = errors.New("output down")
	in := NewTCP(TCPConfig{ID: "tcp3", Tag: "t", Bind: "127.0.0.1"}, router)
	require.NoError(t, in.Start(newServer(t)))

	c := dial(t, in)
	_, err := c.Write([]byte("a\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, "a", router.next(t).rec["message"])
	assert.Equal(t, "b", router.next(t).rec["message"])
}

func TestTCP_PersistsMessageTotal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	st := storage.NewJSONStore(path)
	st.Put("tcp4.messages", int64(10))

	router := newChanRouter()
	in := NewTCP(TCPConfig{ID: "tcp4", Tag: "t", Bind: "127.0.0.1"}, router, WithStorage(st))
	require.NoError(t, in.Start(newServer(t)))
	assert.Equal(t, int64(10), in.Messages())

	c := dial(t, in)
	_, err := c.Write([]byte("x\n"))
	require.NoError(t, err)
	router.next(t)

	require.NoError(t, in.Stop(context.Background()))
	require.NoError(t, st.Save())

	reloaded := storage.NewJSONStore(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, int64(11), reloaded.FetchInt("tcp4.messages", 0))
}

func TestTCP_BindError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	in := NewTCP(TCPConfig{ID: "tcp5", Tag: "t", Bind: "127.0.0.1", Port: taken.Addr().(*net.TCPAddr).Port}, newChanRouter())
	err = in.Start(newServer(t))
	var bindErr *tcpserver.BindError
	assert.ErrorAs(t, err, &bindErr)
	assert.Nil(t, in.Listener())
	assert.NoError(t, in.Stop(context.Background()))
}

func TestTCP_StalledOutputDoesNotBlockLoop(t *testing.T) {
	loop := reactor.New()
	go func() { _ = loop.Run(context.Background()) }()
	srv := tcpserver.NewServer(loop)

	release := make(chan struct{})
	sent := make(chan string, 4)
	queue := emit.NewQueue("stalled", func(ctx context.Context, _ string, es emit.EventStream) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		for _, ev := range es {
			sent <- ev.Record[MessageKey].(string)
		}
		return nil
	})
	stalled := emit.OutputFunc(func(tag string, es emit.EventStream, chain emit.Chain) error {
		queue.Enqueue(tag, es)
		return chain.Next()
	})
	table, err := emit.NewTable([]emit.Route{{Pattern: "app.**", Outputs: []emit.Output{stalled}}})
	require.NoError(t, err)

	t.Cleanup(func() {
		close(release)
		_ = queue.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Terminate(ctx)
		loop.Stop()
		<-loop.Done()
	})

	in := NewTCP(TCPConfig{ID: "tcp1", Tag: "app.tcp", Bind: "127.0.0.1"}, table)
	require.NoError(t, in.Start(srv))

	c := dial(t, in)
	_, err = c.Write([]byte("hello\nworld\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return in.Messages() == 2 }, 5*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, loop.Do(ctx, func() error { return nil }))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	select {
	case m := <-sent:
		t.Fatalf("output delivered %q while stalled", m)
	default:
	}
}
