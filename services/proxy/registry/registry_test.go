package registry

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deltaproxy/deltaproxy/services/proxy/session"
)

func TestRegisterReportsFirstEverOnce(t *testing.T) {
	var launches int32
	r := New(WithBrowserLauncher(func(string) { atomic.AddInt32(&launches, 1) }))

	first := r.Register("alpha", session.New("r1"))
	second := r.Register("alpha", session.New("r2"))

	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&launches))
}

func TestLookupReturnsCurrentSession(t *testing.T) {
	r := New()
	s1 := session.New("r1")
	r.Register("alpha", s1)

	got, ok := r.Lookup("alpha")
	require.True(t, ok)
	assert.Same(t, s1, got)
}

func TestRegisterRotatesSession(t *testing.T) {
	r := New()
	s1 := session.New("r1")
	s2 := session.New("r2")
	r.Register("alpha", s1)
	r.Register("alpha", s2)

	got, _ := r.Lookup("alpha")
	assert.Same(t, s2, got)
	assert.False(t, r.IsCurrent("alpha", s1))
	assert.True(t, r.IsCurrent("alpha", s2))
}

func TestDeregisterIgnoresStaleHandle(t *testing.T) {
	r := New()
	s1 := session.New("r1")
	s2 := session.New("r2")
	r.Register("alpha", s1)
	r.Register("alpha", s2) // s1 is now stale

	r.Deregister("alpha", s1)

	got, ok := r.Lookup("alpha")
	require.True(t, ok)
	assert.Same(t, s2, got)
}

func TestDeregisterEmptyFiresOnEmpty(t *testing.T) {
	var fired int32
	r := New(WithOnEmpty(func() { atomic.AddInt32(&fired, 1) }))
	s := session.New("r1")
	r.Register("alpha", s)

	r.Deregister("alpha", s)

	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Equal(t, 0, r.Len())
}

func TestArmTimeoutTearsDownAfterDuration(t *testing.T) {
	r := New(WithStartupTimeout(10 * time.Millisecond))
	s := session.New("r1")
	r.Register("alpha", s)
	r.ArmTimeout("alpha", s)

	require.Eventually(t, func() bool {
		_, ok := r.Lookup("alpha")
		return !ok
	}, 200*time.Millisecond, 5*time.Millisecond)
}

func TestCancelTimeoutPreventsTeardown(t *testing.T) {
	r := New(WithStartupTimeout(10 * time.Millisecond))
	s := session.New("r1")
	r.Register("alpha", s)
	r.ArmTimeout("alpha", s)
	r.CancelTimeout("alpha")

	time.Sleep(30 * time.Millisecond)
	_, ok := r.Lookup("alpha")
	assert.True(t, ok)
}
