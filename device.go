package identity

import (
	"fmt"

	"github.com/mileusna/useragent"
)

// DeviceInfo is a descriptive, non-authoritative device signature. It is
// used for display and audit color, never for authorization decisions.
type DeviceInfo struct {
	DeviceName       string `json:"device_name,omitempty"`
	DeviceType       string `json:"device_type,omitempty"`
	Browser          string `json:"browser,omitempty"`
	OS               string `json:"os,omitempty"`
	Platform         string `json:"platform,omitempty"`
	UserAgent        string `json:"user_agent,omitempty"`
	Language         string `json:"language,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	CookiesEnabled   bool   `json:"cookies_enabled,omitempty"`
	Online           bool   `json:"online,omitempty"`
}

const (
	DeviceTypeDesktop = "desktop"
	DeviceTypeMobile  = "mobile"
	DeviceTypeTablet  = "tablet"
	DeviceTypeBot     = "bot"
	DeviceTypeUnknown = "unknown"
)

type uaDeviceCollector struct{}

// NewDeviceCollector returns the default collector, which derives the device
// signature from the client user agent.
func NewDeviceCollector() DeviceCollector {
	return uaDeviceCollector{}
}

func (uaDeviceCollector) Collect(env EnvironmentHints) DeviceInfo {
	ua := useragent.Parse(env.UserAgent)

	info := DeviceInfo{
		Browser:          ua.Name,
		OS:               ua.OS,
		Platform:         env.Platform,
		UserAgent:        env.UserAgent,
		Language:         env.Language,
		ScreenResolution: env.ScreenResolution,
		Timezone:         env.Timezone,
		CookiesEnabled:   env.CookiesEnabled,
		Online:           env.Online,
		DeviceType:       deviceType(ua),
	}

	if info.Platform == "" {
		info.Platform = ua.OS
	}

	info.DeviceName = deviceName(ua)

	return info
}

func deviceType(ua useragent.UserAgent) string {
	switch {
	case ua.Bot:
		return DeviceTypeBot
	case ua.Tablet:
		return DeviceTypeTablet
	case ua.Mobile:
		return DeviceTypeMobile
	case ua.Desktop:
		return DeviceTypeDesktop
	default:
		return DeviceTypeUnknown
	}
}

func deviceName(ua useragent.UserAgent) string {
	browser := ua.Name
	if browser == "" {
		browser = "Unknown Browser"
	}

	os := ua.OS
	if os == "" {
		os = "Unknown OS"
	}

	if ua.Device != "" {
		return fmt.Sprintf("%s on %s (%s)", browser, os, ua.Device)
	}

	return fmt.Sprintf("%s on %s", browser, os)
}

// nameMatchIdentifier treats identical device names as the same device.
// The comparison is an exact string match: device names come from our own
// collector, so casing is already canonical, and a looser match would let
// two distinct user-agent strings collapse into one session.
type nameMatchIdentifier struct{}

// NewDeviceIdentifier returns the default name-match identifier.
func NewDeviceIdentifier() DeviceIdentifier {
	return nameMatchIdentifier{}
}

func (nameMatchIdentifier) SameDevice(device DeviceInfo, session *Session) bool {
	if session == nil {
		return false
	}
	return device.DeviceName != "" && device.DeviceName == session.DeviceName
}
