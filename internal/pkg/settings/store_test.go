package settings

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/moisture-node/internal/pkg/nvram"
)

func TestStore_SaveLoad(t *testing.T) {
	region := nvram.NewMem(RecordSize)
	st := NewStore(region)

	s := configured()
	require.True(t, st.Save(&s))

	loaded, valid := st.Load()
	assert.True(t, valid)
	assert.Equal(t, s, loaded)
}

func TestStore_LoadBlankRegion(t *testing.T) {
	st := NewStore(nvram.NewMem(RecordSize))

	s, valid := st.Load()
	assert.False(t, valid)
	assert.Equal(t, Defaults(), s)
}

func TestStore_IncompleteRecordClearsMarker(t *testing.T) {
	region := nvram.NewMem(RecordSize)
	st := NewStore(region)

	s := configured()
	s.Wet = 0
	require.True(t, st.Save(&s))

	_, valid := st.Load()
	assert.False(t, valid)
}

func TestStore_GeneratesStableClientID(t *testing.T) {
	region := nvram.NewMem(RecordSize)
	st := NewStore(region)

	s := configured()
	s.ClientID = ""
	require.True(t, st.Save(&s))
	require.True(t, strings.HasPrefix(s.ClientID, "MoistureSensor-"))
	assert.LessOrEqual(t, len(s.ClientID), ClientIDSize)

	first := s.ClientID
	for i := 0; i < 3; i++ {
		require.True(t, st.Save(&s))
		loaded, valid := st.Load()
		require.True(t, valid)
		assert.Equal(t, first, loaded.ClientID)
		s = loaded
	}
}

func TestStore_CommitFailureIsNonFatal(t *testing.T) {
	region := nvram.NewMem(RecordSize)
	st := NewStore(region)

	region.FailCommits(errors.New("write cycle exhausted"))
	s := configured()
	assert.False(t, st.Save(&s))

	// the in-memory copy keeps its values even though the commit failed
	assert.Equal(t, "mqtt.local", s.Broker)
	assert.Equal(t, 1, region.Commits())
}
