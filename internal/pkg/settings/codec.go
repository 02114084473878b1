package settings

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// record is the exact on-NVRAM layout. The marker comes first so a blank
// region can never masquerade as configured.
type record struct {
	Marker       uint16
	SSID         [SSIDSize]byte
	WifiPass     [PasswordSize]byte
	Broker       [AddressSize]byte
	Port         uint16
	User         [UsernameSize]byte
	Pass         [PasswordSize]byte
	TopicRoot    [TopicSize]byte
	Wet          int32
	Dry          int32
	SleepSeconds uint32
	Debug        byte
	ClientID     [ClientIDSize]byte
}

// RecordSize is the full serialized record length in bytes.
var RecordSize = binary.Size(record{})

func encode(s Settings, marker uint16) []byte {
	rec := record{
		Marker:       marker,
		Port:         s.Port,
		Wet:          s.Wet,
		Dry:          s.Dry,
		SleepSeconds: s.SleepSeconds,
	}
	if s.Debug {
		rec.Debug = 1
	}
	copyField(rec.SSID[:], s.SSID)
	copyField(rec.WifiPass[:], s.WifiPass)
	copyField(rec.Broker[:], s.Broker)
	copyField(rec.User[:], s.User)
	copyField(rec.Pass[:], s.Pass)
	copyField(rec.TopicRoot[:], s.TopicRoot)
	copyField(rec.ClientID[:], s.ClientID)

	buf := bytes.NewBuffer(make([]byte, 0, RecordSize))
	_ = binary.Write(buf, binary.LittleEndian, rec)
	return buf.Bytes()
}

func decode(b []byte) (Settings, uint16, error) {
	if len(b) < RecordSize {
		return Settings{}, 0, fmt.Errorf("record too short: %d bytes", len(b))
	}
	rec := record{}
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &rec); err != nil {
		return Settings{}, 0, fmt.Errorf("decode record: %w", err)
	}
	return Settings{
		SSID:         fieldString(rec.SSID[:]),
		WifiPass:     fieldString(rec.WifiPass[:]),
		Broker:       fieldString(rec.Broker[:]),
		Port:         rec.Port,
		User:         fieldString(rec.User[:]),
		Pass:         fieldString(rec.Pass[:]),
		TopicRoot:    fieldString(rec.TopicRoot[:]),
		Wet:          rec.Wet,
		Dry:          rec.Dry,
		SleepSeconds: rec.SleepSeconds,
		Debug:        rec.Debug != 0,
		ClientID:     fieldString(rec.ClientID[:]),
	}, rec.Marker, nil
}

func copyField(dst []byte, s string) {
	if len(s) >= len(dst) {
		s = s[:len(dst)-1] // keep a terminator
	}
	copy(dst, s)
}

func fieldString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
