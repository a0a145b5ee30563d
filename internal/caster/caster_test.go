package caster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantir/abilitymod/internal/engine"
	"github.com/vantir/abilitymod/internal/mod"
	"github.com/vantir/abilitymod/internal/patch"
	"github.com/vantir/abilitymod/internal/queue"
	"github.com/vantir/abilitymod/internal/resource"
	"github.com/vantir/abilitymod/internal/testutil"
)

type fakeResources struct {
	buffers  map[int32][]byte
	replaced int
	fetchErr error
}

func (f *fakeResources) Fetch(abilityID int32) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	buf, ok := f.buffers[abilityID]
	if !ok {
		return nil, errors.New("no such resource")
	}
	return buf, nil
}

func (f *fakeResources) Replace(abilityID int32, buf []byte) error {
	f.buffers[abilityID] = buf
	f.replaced++
	return nil
}

type fakeHost struct {
	casts   []int32
	targets []Target
	err     error
}

func (f *fakeHost) RequestCast(ctx context.Context, abilityID int32, target Target) error {
	if f.err != nil {
		return f.err
	}
	f.casts = append(f.casts, abilityID)
	f.targets = append(f.targets, target)
	return nil
}

type fakeTargeting struct {
	target Target
	err    error
}

func (f *fakeTargeting) Acquire(ctx context.Context, abilityID int32) (Target, error) {
	return f.target, f.err
}

func encodedAbility(t *testing.T) []byte {
	t.Helper()
	buf, err := resource.BinaryCodec{}.Encode(&resource.Ability{
		ID: 100,
		Groups: []*resource.OperationGroup{{
			ID: 1,
			Operations: []*resource.Operation{{
				TypeTag:    10,
				Properties: []*resource.Property{{TypeTag: 2, Value: mod.Int(5)}},
			}},
		}},
	})
	require.NoError(t, err)
	return buf
}

func TestSession_PersistentApplyPatchesBuffer(t *testing.T) {
	resources := &fakeResources{buffers: map[int32][]byte{100: encodedAbility(t)}}
	s := NewSession(Config{
		Mode:      ModePersistent,
		Patcher:   patch.New(nil),
		Codec:     resource.BinaryCodec{},
		Resources: resources,
	})

	err := s.Apply(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(99))})
	require.NoError(t, err)
	assert.Equal(t, 1, resources.replaced)

	tree, err := resource.BinaryCodec{}.Decode(resources.buffers[100])
	require.NoError(t, err)
	assert.Equal(t, mod.Int(99), tree.Groups[0].Operations[0].Property(2).Value)
}

func TestSession_PersistentEnqueueAppliesImmediately(t *testing.T) {
	resources := &fakeResources{buffers: map[int32][]byte{100: encodedAbility(t)}}
	s := NewSession(Config{
		Mode:      ModePersistent,
		Patcher:   patch.New(nil),
		Codec:     resource.BinaryCodec{},
		Resources: resources,
	})

	err := s.Enqueue(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(99))})
	require.NoError(t, err)
	assert.Equal(t, 1, resources.replaced)
}

func TestSession_PersistentApplyErrors(t *testing.T) {
	t.Run("no resource provider", func(t *testing.T) {
		s := NewSession(Config{Mode: ModePersistent, Patcher: patch.New(nil), Codec: resource.BinaryCodec{}})
		assert.Error(t, s.Apply(100, nil))
	})

	t.Run("no patch engine", func(t *testing.T) {
		s := NewSession(Config{Mode: ModePersistent, Resources: &fakeResources{}})
		assert.Error(t, s.Apply(100, nil))
	})

	t.Run("fetch fails", func(t *testing.T) {
		s := NewSession(Config{
			Mode:      ModePersistent,
			Patcher:   patch.New(nil),
			Codec:     resource.BinaryCodec{},
			Resources: &fakeResources{fetchErr: errors.New("boom")},
		})
		assert.Error(t, s.Apply(100, nil))
	})

	t.Run("undecodable buffer", func(t *testing.T) {
		s := NewSession(Config{
			Mode:      ModePersistent,
			Patcher:   patch.New(nil),
			Codec:     resource.BinaryCodec{},
			Resources: &fakeResources{buffers: map[int32][]byte{100: []byte("junk")}},
		})
		assert.Error(t, s.Apply(100, nil))
	})
}

func TestSession_TransientEnqueueRoutesToStore(t *testing.T) {
	store := queue.NewStore()
	eng := engine.New(store)
	eng.Bind(func(*engine.PropertyCall) {})

	s := NewSession(Config{Mode: ModeTransient, Store: store, Engine: eng})

	err := s.Enqueue(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(99))})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Pending(100, 1))
}

func TestSession_TransientEnqueueNotReady(t *testing.T) {
	store := queue.NewStore()
	s := NewSession(Config{Mode: ModeTransient, Store: store, Engine: engine.New(store)})

	err := s.Enqueue(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(99))})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Zero(t, store.Pending(100, 1), "nothing queued when not ready")
}

func TestSession_TransientApplyDelegatesToEnqueue(t *testing.T) {
	store := queue.NewStore()
	eng := engine.New(store)
	eng.Bind(func(*engine.PropertyCall) {})
	s := NewSession(Config{Mode: ModeTransient, Store: store, Engine: eng})

	require.NoError(t, s.Apply(100, []mod.Modification{testutil.SetProp(1, 10, 2, mod.Int(99))}))
	assert.Equal(t, 1, store.Pending(100, 1))
}

func TestSession_Cast(t *testing.T) {
	host := &fakeHost{}
	targeting := &fakeTargeting{target: Target{CasterRef: 42, Position: mod.Vec{X: 1, Y: 2, Z: 3}}}
	s := NewSession(Config{Mode: ModePersistent, Host: host, Targeting: targeting})

	require.NoError(t, s.Cast(context.Background(), 100))
	require.Len(t, host.casts, 1)
	assert.Equal(t, int32(100), host.casts[0])
	assert.Equal(t, uint64(42), host.targets[0].CasterRef)
}

func TestSession_CastWithoutTargeting(t *testing.T) {
	host := &fakeHost{}
	s := NewSession(Config{Mode: ModePersistent, Host: host})

	require.NoError(t, s.Cast(context.Background(), 100))
	assert.Equal(t, Target{}, host.targets[0], "zero target when no targeting facility")
}

func TestSession_CastErrors(t *testing.T) {
	t.Run("no host", func(t *testing.T) {
		s := NewSession(Config{Mode: ModePersistent})
		assert.Error(t, s.Cast(context.Background(), 100))
	})

	t.Run("transient not ready", func(t *testing.T) {
		store := queue.NewStore()
		s := NewSession(Config{Mode: ModeTransient, Store: store, Engine: engine.New(store), Host: &fakeHost{}})
		err := s.Cast(context.Background(), 100)
		assert.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("targeting fails", func(t *testing.T) {
		s := NewSession(Config{
			Mode:      ModePersistent,
			Host:      &fakeHost{},
			Targeting: &fakeTargeting{err: errors.New("no target")},
		})
		assert.Error(t, s.Cast(context.Background(), 100))
	})

	t.Run("host refuses", func(t *testing.T) {
		s := NewSession(Config{Mode: ModePersistent, Host: &fakeHost{err: errors.New("on cooldown")}})
		assert.Error(t, s.Cast(context.Background(), 100))
	})
}

func TestSession_BuilderCastsThroughSession(t *testing.T) {
	store := queue.NewStore()
	eng := engine.New(store)
	eng.Bind(func(*engine.PropertyCall) {})
	host := &fakeHost{}
	s := NewSession(Config{Mode: ModeTransient, Store: store, Engine: eng, Host: host})

	b := mod.NewBuilder(100)
	b.SetProperty(1, 10, 2, mod.Int(99))
	require.NoError(t, b.Cast(context.Background(), s))

	assert.Equal(t, 1, store.Pending(100, 1))
	assert.Equal(t, []int32{100}, host.casts)
}

func TestSession_ModeSwitch(t *testing.T) {
	s := NewSession(Config{Mode: ModePersistent})
	assert.Equal(t, ModePersistent, s.Mode())
	assert.Equal(t, "persistent", s.Mode().String())

	s.SetMode(ModeTransient)
	assert.Equal(t, ModeTransient, s.Mode())
	assert.Equal(t, "transient", s.Mode().String())
}
