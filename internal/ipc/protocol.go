// Package ipc serves the local control protocol: newline-delimited JSON
// requests and responses over a unix socket.
package ipc

import (
	"time"

	"github.com/audiowrench/wrenchd/internal/control"
)

// Request is a single control command.
type Request struct {
	Command string `json:"command"`
	Path    string `json:"path,omitempty"`
	Volume  *int   `json:"volume,omitempty"`
}

// Response answers one request. Data is only set for query commands.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// StatusData is the payload of the status command.
type StatusData struct {
	State      string `json:"state"`
	Track      string `json:"track,omitempty"`
	Playlist   string `json:"playlist,omitempty"`
	Volume     int    `json:"volume"`
	Favorite   bool   `json:"favorite"`
	ElapsedMs  *int64 `json:"elapsed_ms,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
	Queue      int    `json:"queue_length"`
	Playlists  int    `json:"playlists"`
}

func statusData(snap control.Snapshot) StatusData {
	return StatusData{
		State:      string(snap.State),
		Track:      snap.Track,
		Playlist:   snap.DisplayName,
		Volume:     snap.Volume,
		Favorite:   snap.Favorite,
		ElapsedMs:  millis(snap.Elapsed),
		DurationMs: millis(snap.Duration),
		Queue:      snap.QueueLength,
		Playlists:  snap.PlaylistCount,
	}
}

func millis(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}
