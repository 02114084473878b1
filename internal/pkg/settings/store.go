package settings

import (
	"go.uber.org/zap"

	"github.com/anicoll/moisture-node/internal/pkg/nvram"
	"github.com/anicoll/moisture-node/pkg/ident"
)

// Store reads and writes the settings record at offset zero of an NVRAM
// region. Every Save rewrites the full record; callers must not assume
// partial writes.
type Store struct {
	region nvram.Region
	logger *zap.Logger
}

func NewStore(region nvram.Region) *Store {
	return &Store{
		region: region,
		logger: zap.L(),
	}
}

// Load reads the record and reports whether it carries the validity marker.
// A missing or unreadable marker yields the built-in defaults, matching
// first-boot behaviour.
func (st *Store) Load() (Settings, bool) {
	buf := make([]byte, RecordSize)
	if _, err := st.region.ReadAt(buf, 0); err != nil {
		st.logger.Error("failed to read settings record", zap.Error(err))
		return Defaults(), false
	}
	s, marker, err := decode(buf)
	if err != nil {
		st.logger.Error("failed to decode settings record", zap.Error(err))
		return Defaults(), false
	}
	if marker != validMarker {
		return Defaults(), false
	}
	return s, true
}

// Save re-evaluates the validity marker, populates the client identifier if
// it has never been generated, and writes the whole record back in a single
// write. A failed commit is logged and reported as false; the in-memory copy
// stays authoritative, at the risk of losing settings on power cycle.
func (st *Store) Save(s *Settings) bool {
	if s.ClientID == "" {
		id, err := ident.Generate(clientIDRoot, 4)
		if err != nil {
			st.logger.Error("failed to generate client id", zap.Error(err))
		} else {
			s.ClientID = id
			st.logger.Info("generated client id", zap.String("client_id", id))
		}
	}

	marker := uint16(0)
	if s.Valid() {
		marker = validMarker
	}

	if _, err := st.region.WriteAt(encode(*s, marker), 0); err != nil {
		st.logger.Error("failed to write settings record", zap.Error(err))
		return false
	}
	if err := st.region.Commit(); err != nil {
		st.logger.Error("settings commit failed, running on in-memory copy", zap.Error(err))
		return false
	}
	return true
}
