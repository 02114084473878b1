// Package settings owns the persisted device configuration record: its field
// capacities, validity contract, binary layout and the store that moves it in
// and out of NVRAM.
package settings

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/samber/lo"
)

// Field capacities of the persisted record, in bytes. String values must fit
// with room for a terminator; the command processor enforces this at parse
// time.
const (
	SSIDSize     = 100
	PasswordSize = 50
	AddressSize  = 30
	UsernameSize = 50
	ClientIDSize = 25
	TopicSize    = 150
)

// validMarker is the sentinel distinguishing "fully configured" from "never
// configured" in the first field of the record.
const validMarker uint16 = 0xDAB0

// clientIDRoot prefixes generated broker client identifiers.
const clientIDRoot = "MoistureSensor"

// Settings is the in-memory form of the persisted record.
type Settings struct {
	SSID         string
	WifiPass     string
	Broker       string
	Port         uint16
	User         string
	Pass         string
	TopicRoot    string
	Wet          int32
	Dry          int32
	SleepSeconds uint32
	Debug        bool
	ClientID     string
}

// Defaults returns the built-in record: everything empty except the standard
// broker port, which leaves the record invalid until configured.
func Defaults() Settings {
	return Settings{Port: 1883}
}

// Valid reports whether the record is complete enough to run the node:
// all of ssid, wifi password, broker, topic root and client id set, and
// port, wet and dry non-zero.
func (s *Settings) Valid() bool {
	required := []string{s.SSID, s.WifiPass, s.Broker, s.TopicRoot, s.ClientID}
	if !lo.EveryBy(required, func(v string) bool { return v != "" }) {
		return false
	}
	return s.Port != 0 && s.Wet != 0 && s.Dry != 0
}

// Dump writes every operator-settable field as key=value lines, the same
// shape the command protocol accepts.
func (s *Settings) Dump(w io.Writer) {
	fmt.Fprintf(w, "ssid=%s\n", s.SSID)
	fmt.Fprintf(w, "wifipass=%s\n", s.WifiPass)
	fmt.Fprintf(w, "broker=%s\n", s.Broker)
	fmt.Fprintf(w, "port=%d\n", s.Port)
	fmt.Fprintf(w, "topicroot=%s\n", s.TopicRoot)
	fmt.Fprintf(w, "user=%s\n", s.User)
	fmt.Fprintf(w, "pass=%s\n", s.Pass)
	fmt.Fprintf(w, "wet=%d\n", s.Wet)
	fmt.Fprintf(w, "dry=%d\n", s.Dry)
	fmt.Fprintf(w, "sleeptime=%d\n", s.SleepSeconds)
	fmt.Fprintf(w, "debug=%d\n", lo.Ternary(s.Debug, 1, 0))
	fmt.Fprintf(w, "clientid=%s\n", s.ClientID)
	fmt.Fprintf(w, "settings are %s\n", lo.Ternary(s.Valid(), "complete", "incomplete"))
}

type document struct {
	SSID         string `json:"ssid"`
	WifiPass     string `json:"wifipass"`
	Broker       string `json:"broker"`
	Port         uint16 `json:"port"`
	TopicRoot    string `json:"topicroot"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	Wet          int32  `json:"wet"`
	Dry          int32  `json:"dry"`
	SleepSeconds uint32 `json:"sleeptime"`
	Debug        bool   `json:"debug"`
	ClientID     string `json:"clientid"`
}

// JSON renders the record for the remote `settings` command. Credentials are
// included in plaintext: this is a single-tenant device and recoverability
// wins over secrecy.
func (s *Settings) JSON() ([]byte, error) {
	return json.Marshal(document{
		SSID:         s.SSID,
		WifiPass:     s.WifiPass,
		Broker:       s.Broker,
		Port:         s.Port,
		TopicRoot:    s.TopicRoot,
		User:         s.User,
		Pass:         s.Pass,
		Wet:          s.Wet,
		Dry:          s.Dry,
		SleepSeconds: s.SleepSeconds,
		Debug:        s.Debug,
		ClientID:     s.ClientID,
	})
}
