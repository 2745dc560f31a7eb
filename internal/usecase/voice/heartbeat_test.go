package voice_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seriesbell/internal/usecase/voice"
)

func TestHeartbeat_BeatAndLastBeat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hb := voice.NewHeartbeat(e.store.Repositories(), e.clock.Now, nil)

	_, ok, err := hb.LastBeat(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	e.clock.Set(t0.Add(30 * time.Second))
	require.NoError(t, hb.Beat(ctx))

	last, ok, err := hb.LastBeat(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, last.Equal(t0.Add(30*time.Second)), "last beat = %s", last)
}

func TestHeartbeat_LastBeatUnparsable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.store.Repositories().Meta.Set(ctx, voice.HeartbeatKey, "yesterday"))

	_, _, err := voice.NewHeartbeat(e.store.Repositories(), e.clock.Now, nil).LastBeat(ctx)
	assert.Error(t, err)
}

func TestHeartbeat_RecoverFromCrash(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	hb := voice.NewHeartbeat(e.store.Repositories(), e.clock.Now, nil)

	// 7 is stamped by a beat, 9 joins after the last beat
	e.at(t, 0, nil, member("7", "C"))
	e.clock.Set(t0.Add(40 * time.Second))
	require.NoError(t, hb.Beat(ctx))
	e.at(t, 45*time.Second, nil, member("9", "C"))

	// restart much later with a fresh tracker
	e.clock.Set(t0.Add(time.Hour))
	closed, err := hb.RecoverFromCrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	assert.Equal(t, []row{{Channel: "C", Join: t0.Unix(), Leave: t0.Unix() + 40}}, e.sessions(t, "7"))
	assert.Empty(t, e.sessions(t, "9"), "session opened after the last beat cannot be measured")

	active, err := e.store.Repositories().Voice.FindActiveSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestHeartbeat_RecoverWithoutHeartbeat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.at(t, 0, nil, member("7", "C"))

	closed, err := voice.NewHeartbeat(e.store.Repositories(), e.clock.Now, nil).RecoverFromCrash(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
	assert.Empty(t, e.sessions(t, "7"))
}

func TestHeartbeat_StartStop(t *testing.T) {
	e := newEnv(t)
	hb := voice.NewHeartbeat(e.store.Repositories(), nil, nil)

	require.NoError(t, hb.Start(context.Background()))
	require.NoError(t, hb.Start(context.Background()), "second start is a no-op")
	hb.Stop()
	hb.Stop()
}

func TestHeartbeat_InvalidSchedule(t *testing.T) {
	e := newEnv(t)
	hb := voice.NewHeartbeat(e.store.Repositories(), nil, nil)
	hb.SetSchedule("every now and then")

	assert.Error(t, hb.Start(context.Background()))
}

func TestHeartbeat_RecoverNothingOpen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// a closed session must survive recovery untouched
	e.at(t, 0, nil, member("7", "C"))
	e.at(t, time.Minute, ptr(member("7", "C")), member("7", ""))
	before := e.sessions(t, "7")
	require.Len(t, before, 1)

	closed, err := voice.NewHeartbeat(e.store.Repositories(), e.clock.Now, nil).RecoverFromCrash(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
	assert.Equal(t, before, e.sessions(t, "7"))
}
