package router

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/relay/internal/metrics"
)

func TestRouteStep(t *testing.T) {
	r := Route{"a", "b", "c"}
	hop, rest, err := r.Step()
	require.NoError(t, err)
	assert.Equal(t, Address("a"), hop)
	assert.Equal(t, Route{"b", "c"}, rest)

	_, _, err = Route{}.Step()
	require.ErrorIs(t, err, ErrUnknownRoute)
}

func TestSendDeliversToRegisteredMailbox(t *testing.T) {
	rtr := New(nil)
	mb := rtr.NewMailbox("dest", AllowAll{}, AllowAll{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := rtr.Send(ctx, nil, RoutedMessage{
		Payload: []byte("hi"),
		Onward:  Route{"dest"},
		Source:  "src",
	})
	require.NoError(t, err)

	select {
	case msg := <-mb.Messages():
		assert.Equal(t, []byte("hi"), msg.Payload)
		assert.Empty(t, msg.Onward)
		assert.Equal(t, Address("src"), msg.Source)
	case <-ctx.Done():
		t.Fatal("message never arrived")
	}
}

func TestSendToUnknownAddressIsError(t *testing.T) {
	rtr := New(nil)
	err := rtr.Send(context.Background(), nil, RoutedMessage{Onward: Route{"nowhere"}})
	require.ErrorIs(t, err, ErrUnknownRoute)
}

func TestSendStepsMultiHopRouteOnce(t *testing.T) {
	rtr := New(nil)
	mb := rtr.NewMailbox("hop1", AllowAll{}, AllowAll{})

	err := rtr.Send(context.Background(), nil, RoutedMessage{
		Onward: Route{"hop1", "hop2"},
	})
	require.NoError(t, err)

	msg := <-mb.Messages()
	assert.Equal(t, Route{"hop2"}, msg.Onward)
}

func TestSendRespectsIncomingAccessControl(t *testing.T) {
	rtr := New(nil)
	rtr.NewMailbox("dest", DenyAll{}, AllowAll{})

	err := rtr.Send(context.Background(), nil, RoutedMessage{Onward: Route{"dest"}, Source: "src"})
	require.Error(t, err)
}

func TestSendRespectsOutgoingAccessControl(t *testing.T) {
	rtr := New(nil)
	rtr.NewMailbox("dest", AllowAll{}, AllowAll{})
	src := rtr.NewMailbox("src", AllowAll{}, DenyAll{})

	err := rtr.Send(context.Background(), src, RoutedMessage{Onward: Route{"dest"}, Source: "src"})
	require.Error(t, err)
}

func TestSendHonorsContextCancellationWhenInboxFull(t *testing.T) {
	rtr := New(nil)
	rtr.NewMailbox("dest", AllowAll{}, AllowAll{})

	// Fill the buffered inbox (capacity 32) without draining it.
	for i := 0; i < 32; i++ {
		require.NoError(t, rtr.Send(context.Background(), nil, RoutedMessage{Onward: Route{"dest"}}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := rtr.Send(ctx, nil, RoutedMessage{Onward: Route{"dest"}})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStopUnregistersMailbox(t *testing.T) {
	rtr := New(nil)
	rtr.NewMailbox("dest", AllowAll{}, AllowAll{})

	require.NoError(t, rtr.Stop("dest"))
	err := rtr.Send(context.Background(), nil, RoutedMessage{Onward: Route{"dest"}})
	require.ErrorIs(t, err, ErrUnknownRoute)
}

func TestStopUnknownAddressIsError(t *testing.T) {
	rtr := New(nil)
	require.ErrorIs(t, rtr.Stop("nope"), ErrUnknownRoute)
}

func TestAccessControlVariants(t *testing.T) {
	msg := RoutedMessage{}

	assert.False(t, (DenyAll{}).Decide("a", "b", msg))
	assert.True(t, (AllowAll{}).Decide("a", "b", msg))

	assert.True(t, (LocalOriginOnly{}).Decide("a", "b", msg))
	assert.False(t, (LocalOriginOnly{}).Decide("", "b", msg))

	assert.True(t, (AllowSourceAddress{Addr: "a"}).Decide("a", "b", msg))
	assert.False(t, (AllowSourceAddress{Addr: "a"}).Decide("x", "b", msg))

	assert.True(t, (AllowDestinationAddress{Addr: "b"}).Decide("a", "b", msg))
	assert.False(t, (AllowDestinationAddress{Addr: "b"}).Decide("a", "x", msg))

	any := AnyOf{DenyAll{}, AllowSourceAddress{Addr: "a"}}
	assert.True(t, any.Decide("a", "b", msg))
	assert.False(t, any.Decide("z", "b", msg))
}

func TestCredentialAccessControlDeniesWithNoVerifier(t *testing.T) {
	cac := CredentialAccessControl{}
	assert.False(t, cac.Decide("a", "b", RoutedMessage{}))
}

func TestSendRecordsMetrics(t *testing.T) {
	rtr := New(nil)
	m := metrics.NewRegistry(prometheus.NewRegistry())
	rtr.SetMetrics(m)
	assert.Same(t, m, rtr.Metrics())

	rtr.NewMailbox("dest", AllowAll{}, AllowAll{})
	require.NoError(t, rtr.Send(context.Background(), nil, RoutedMessage{Onward: Route{"dest"}}))
	require.Error(t, rtr.Send(context.Background(), nil, RoutedMessage{Onward: Route{"missing"}}))

	assert.Equal(t, float64(1), counterValue(t, m.MessagesRouted))
	assert.Equal(t, float64(1), counterValue(t, m.MessagesFailed))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}
