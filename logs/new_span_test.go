package logs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/reusee/dscope"
	"github.com/reusee/stacktester/modes"
)

func TestNewSpan(t *testing.T) {
	buf := new(bytes.Buffer)
	dscope.New(new(Module), modes.ForTest(t)).Fork(
		func() Writer {
			return buf
		},
	).Call(func(
		newSpan NewSpan,
	) {
		ctx := context.Background()

		ctx1, span1 := newSpan(ctx, "")

		ctx11, span11 := newSpan(ctx1, "")

		ctx12, span12 := newSpan(ctx11, span1)
		_ = ctx12

		lines := strings.Split(string(buf.Bytes()), "\n")
		if !strings.Contains(lines[0], "logs.span="+string(span1)) {
			t.Fatalf("got %v", lines[0])
		}
		if !strings.Contains(lines[1], "logs.span="+string(span11)) {
			t.Fatalf("got %v", lines[1])
		}
		if !strings.Contains(lines[2], "logs.span="+string(span12)) {
			t.Fatalf("got %v", lines[2])
		}
		if !strings.Contains(lines[1], "parent="+string(span1)) {
			t.Fatalf("got %v", lines[1])
		}
		if !strings.Contains(lines[2], "parent="+string(span1)) {
			t.Fatalf("got %v", lines[2])
		}
		if !strings.Contains(lines[2], "creator="+string(span11)) {
			t.Fatalf("got %v", lines[2])
		}

	})
}

func TestWrapSpan(t *testing.T) {
	dscope.New(new(Module), modes.ForTest(t)).Fork(
		func() Writer {
			return new(bytes.Buffer)
		},
	).Call(func(
		newSpan NewSpan,
	) {
		ctx, span := newSpan(context.Background(), "", "prefix", []byte("test"))
		err := WrapSpan(ctx, io.EOF)
		if !errors.Is(err, io.EOF) {
			t.Fatalf("got %v", err)
		}
		got, ok := SpanOf(err)
		if !ok || got != span {
			t.Fatalf("got %v", got)
		}

		// the inner span is kept
		outer, _ := newSpan(context.Background(), "")
		if got, _ := SpanOf(WrapSpan(outer, err)); got != span {
			t.Fatalf("got %v", got)
		}

		if WrapSpan(ctx, nil) != nil {
			t.Fatal()
		}
		if err := WrapSpan(context.Background(), io.EOF); err != io.EOF {
			t.Fatalf("got %v", err)
		}
	})
}

func TestHandlerWithAttrs(t *testing.T) {
	buf := new(bytes.Buffer)
	dscope.New(new(Module), modes.ForTest(t)).Fork(
		func() Writer {
			return buf
		},
	).Call(func(
		logger Logger,
		newSpan NewSpan,
	) {
		ctx, span := newSpan(context.Background(), "")
		buf.Reset()
		logger.With("thread", "main").InfoContext(ctx, "foo")
		if !strings.Contains(buf.String(), "logs.span="+string(span)) {
			t.Fatalf("got %s", buf.String())
		}
	})
}
