package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lorekeeper/pkg/types"
)

func TestSchedule(t *testing.T) {
	tests := []struct {
		name string
		in   []types.Corpus
		want []types.Corpus
	}{
		{"all reversed", []types.Corpus{types.CorpusDocs, types.CorpusClient, types.CorpusGamedata, types.CorpusCode}, types.AllCorpora},
		{"subset", []types.Corpus{types.CorpusDocs, types.CorpusCode}, []types.Corpus{types.CorpusCode, types.CorpusDocs}},
		{"duplicates", []types.Corpus{types.CorpusClient, types.CorpusClient, types.CorpusGamedata}, []types.Corpus{types.CorpusGamedata, types.CorpusClient}},
		{"single", []types.Corpus{types.CorpusDocs}, []types.Corpus{types.CorpusDocs}},
		{"empty", nil, []types.Corpus{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Schedule(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Schedule([]types.Corpus{"wiki"})
	assert.ErrorIs(t, err, types.ErrUnknownCorpus)
}

func TestCorpusDependencies_FollowDeclaredOrder(t *testing.T) {
	pos := make(map[types.Corpus]int)
	for i, c := range types.AllCorpora {
		pos[c] = i
	}
	for corpus, deps := range CorpusDependencies {
		for _, dep := range deps {
			assert.Less(t, pos[dep], pos[corpus], "%s depends on %s", corpus, dep)
		}
	}
	assert.Equal(t, []types.Corpus{types.CorpusGamedata, types.CorpusClient}, lookupCorpora(types.CorpusClient))
}

func TestIndexLock(t *testing.T) {
	var l IndexLock
	assert.True(t, l.TryAcquire())
	assert.True(t, l.Held())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.False(t, l.Held())

	locks := newLockSet()
	release, err := locks.acquire(types.CorpusCode)
	require.NoError(t, err)
	_, err = locks.acquire(types.CorpusCode)
	assert.ErrorIs(t, err, ErrIndexingInProgress)
	_, err = locks.acquire(types.CorpusDocs)
	assert.NoError(t, err, "locks are per corpus")
	release()
	assert.False(t, locks.held(types.CorpusCode))
}

func TestSameVersion(t *testing.T) {
	tests := []struct {
		name    string
		stored  string
		current string
		want    bool
	}{
		{"equal", "1.0.0", "1.0.0", true},
		{"equal without patch", "1.0", "1.0.0", true},
		{"minor bump", "1.2.0", "1.10.0", false},
		{"patch bump", "1.0.2", "1.0.10", false},
		{"major bump", "1.9.9", "2.0.0", false},
		{"empty stored", "", "1.0.0", false},
		{"garbage", "v-next", "1.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sameVersion(tt.stored, tt.current))
		})
	}
}
