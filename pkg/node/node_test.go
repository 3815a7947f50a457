package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/gridcore/pkg/capabilities"
	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/eventbus"
	"github.com/stacklok/gridcore/pkg/grid"
	"github.com/stacklok/gridcore/pkg/node/mocks"
)

type fakeFactory struct {
	mu        sync.Mutex
	failNext  error
	sessions  map[grid.SessionID]bool
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{sessions: make(map[grid.SessionID]bool)}
}

func (f *fakeFactory) NewSession(_ context.Context, stereotype, _ capabilities.Capabilities) (grid.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return grid.Session{}, err
	}
	id := grid.NewSessionID()
	f.sessions[id] = true
	return grid.Session{ID: id, Stereotype: stereotype}, nil
}

func (f *fakeFactory) StopSession(_ context.Context, sessionID grid.SessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, sessionID)
	return nil
}

func (f *fakeFactory) ExecuteWebDriverCommand(_ context.Context, _ grid.SessionID, _, _ string, _ []byte) (int, []byte, error) {
	return 200, []byte(`{"value":null}`), nil
}

func stereotype(browser string) capabilities.Capabilities {
	return capabilities.Capabilities{"browserName": browser}
}

func TestNewSessionClaimsFreeMatchingSlot(t *testing.T) {
	factory := newFakeFactory()
	n := NewLocal("node-1", "http://node-1:4444", []capabilities.Capabilities{stereotype("cheese")}, factory, "1.0", grid.OSInfo{}, nil)

	status, err := n.Status(context.Background())
	require.NoError(t, err)
	slotID := status.Slots[0].ID

	session, err := n.NewSession(context.Background(), slotID, stereotype("cheese"))
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)

	status, err = n.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, status.FreeSlotCount())
}

func TestNewSessionRejectsAlreadyBusySlot(t *testing.T) {
	factory := newFakeFactory()
	n := NewLocal("node-1", "http://node-1:4444", []capabilities.Capabilities{stereotype("cheese")}, factory, "1.0", grid.OSInfo{}, nil)
	status, _ := n.Status(context.Background())
	slotID := status.Slots[0].ID

	_, err := n.NewSession(context.Background(), slotID, stereotype("cheese"))
	require.NoError(t, err)

	_, err = n.NewSession(context.Background(), slotID, stereotype("cheese"))
	require.Error(t, err)
	assert.True(t, errors.IsRetryableRequest(err))
}

func TestNewSessionFactoryRetryableFailureFreesReservation(t *testing.T) {
	factory := newFakeFactory()
	factory.failNext = errors.NewRetryableRequestError("temporary shortage", nil)
	n := NewLocal("node-1", "http://node-1:4444", []capabilities.Capabilities{stereotype("cheese")}, factory, "1.0", grid.OSInfo{}, nil)
	status, _ := n.Status(context.Background())
	slotID := status.Slots[0].ID

	_, err := n.NewSession(context.Background(), slotID, stereotype("cheese"))
	require.Error(t, err)
	assert.True(t, errors.IsRetryableRequest(err))

	status, err = n.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.FreeSlotCount(), "reservation must be released on failure")
}

func TestStopFreesSlotAndExecuteRequiresLiveSession(t *testing.T) {
	factory := newFakeFactory()
	n := NewLocal("node-1", "http://node-1:4444", []capabilities.Capabilities{stereotype("cheese")}, factory, "1.0", grid.OSInfo{}, nil)
	status, _ := n.Status(context.Background())
	slotID := status.Slots[0].ID

	session, err := n.NewSession(context.Background(), slotID, stereotype("cheese"))
	require.NoError(t, err)

	code, _, err := n.ExecuteWebDriverCommand(context.Background(), session.ID, "GET", "/url", nil)
	require.NoError(t, err)
	assert.Equal(t, 200, code)

	require.NoError(t, n.Stop(context.Background(), session.ID))

	_, _, err = n.ExecuteWebDriverCommand(context.Background(), session.ID, "GET", "/url", nil)
	require.Error(t, err)
	assert.True(t, errors.IsNoSuchSession(err))

	status, _ = n.Status(context.Background())
	assert.Equal(t, 1, status.FreeSlotCount())
}

func TestDrainEmitsCompleteWhenIdle(t *testing.T) {
	factory := newFakeFactory()
	bus := eventbus.New(0)
	defer bus.Close()
	completed := make(chan any, 1)
	bus.Subscribe(eventbus.TopicNodeDrainComplete, func(payload any) { completed <- payload })
	n := NewLocal("node-1", "http://node-1:4444", []capabilities.Capabilities{stereotype("cheese")}, factory, "1.0", grid.OSInfo{}, bus)

	require.NoError(t, n.Drain(context.Background()))
	assert.True(t, n.IsDraining())

	select {
	case payload := <-completed:
		assert.Equal(t, grid.NodeID("node-1"), payload)
	case <-time.After(time.Second):
		t.Fatal("NodeDrainComplete was not published for an idle node")
	}

	status, _ := n.Status(context.Background())
	assert.Equal(t, grid.Draining, status.Availability)

	_, err := n.NewSession(context.Background(), status.Slots[0].ID, stereotype("cheese"))
	require.Error(t, err)
	assert.True(t, errors.IsRetryableRequest(err))
}

func TestNewSessionInvokesFactoryWithRequestedCapabilities(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	factory := mocks.NewMockSessionFactory(ctrl)
	n := NewLocal("node-1", "http://node-1:4444", []capabilities.Capabilities{stereotype("cheese")}, factory, "1.0", grid.OSInfo{}, nil)
	status, _ := n.Status(context.Background())
	slotID := status.Slots[0].ID

	want := stereotype("cheese")
	factory.EXPECT().
		NewSession(gomock.Any(), stereotype("cheese"), want).
		Return(grid.Session{ID: "sess-1", Stereotype: want}, nil)

	session, err := n.NewSession(context.Background(), slotID, want)
	require.NoError(t, err)
	assert.Equal(t, grid.SessionID("sess-1"), session.ID)

	factory.EXPECT().StopSession(gomock.Any(), grid.SessionID("sess-1")).Return(nil)
	require.NoError(t, n.Stop(context.Background(), session.ID))
}
