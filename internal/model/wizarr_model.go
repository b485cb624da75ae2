package model

import "time"

type InviteSettings struct {
	InviteCode string
	Libraries  []string
	Policy     *UserPolicy
	Expiration *time.Time
	ReturnURL  string
	IsValid    bool
}

type UserPolicy struct {
	IsAdministrator                bool `json:"isAdministrator"`
	EnableMediaPlayback            bool `json:"enableMediaPlayback"`
	EnableAudioPlaybackTranscoding bool `json:"enableAudioPlaybackTranscoding"`
	EnableVideoPlaybackTranscoding bool `json:"enableVideoPlaybackTranscoding"`
	EnablePlaybackRemuxing         bool `json:"enablePlaybackRemuxing"`
	EnableContentDownloading       bool `json:"enableContentDownloading"`
	EnableLiveTvAccess             bool `json:"enableLiveTvAccess"`
	EnableRemoteAccess             bool `json:"enableRemoteAccess"`
}

// DefaultUserPolicy is applied to accounts created without invite settings.
func DefaultUserPolicy() UserPolicy {
	return UserPolicy{
		IsAdministrator:                false,
		EnableMediaPlayback:            true,
		EnableAudioPlaybackTranscoding: true,
		EnableVideoPlaybackTranscoding: true,
		EnablePlaybackRemuxing:         true,
		EnableContentDownloading:       false,
		EnableLiveTvAccess:             false,
		EnableRemoteAccess:             true,
	}
}
