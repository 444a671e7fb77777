package rpc

// WireMessage is the on-the-wire shape of ChatService.Connect's frames.
// Content is either Text or Audio — exactly one should be set; this
// mirrors the spec's Text(string)|Audio(bytes) variant without needing a
// generated union type.
type WireMessage struct {
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
	Text      string `json:"text,omitempty"`
	Audio     []byte `json:"audio,omitempty"`
}

// ReportedChannel is one channel entry in a ReportRequest, snapshotting
// a worker's locally held ChannelCore.
type ReportedChannel struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Limit int             `json:"limit"`
	Users []ReportedUser  `json:"users"`
}

// ReportedUser is one connected user entry within a ReportedChannel.
type ReportedUser struct {
	ID string `json:"id"`
}

// SystemStats is the lightweight resource snapshot folded into each
// ReportRequest, sampled via gopsutil.
type SystemStats struct {
	Goroutines int     `json:"goroutines"`
	RSSBytes   uint64  `json:"rss_bytes"`
	Load1      float64 `json:"load1"`
}

// ReportRequest is sent worker -> manager on the Report stream.
type ReportRequest struct {
	Channels []ReportedChannel `json:"channels"`
	Stats    SystemStats       `json:"stats"`
}

// ShutdownCommand is the manager's instruction to drop a user (or an
// entire channel, if UserID is empty) held by the worker.
type ShutdownCommand struct {
	ChannelID int64  `json:"channel_id"`
	UserID    string `json:"user_id,omitempty"`
}

// ReportResponse is sent manager -> worker on the return leg of the
// Report stream. Shutdown is nil on ticks that carry no command.
type ReportResponse struct {
	Shutdown *ShutdownCommand `json:"shutdown,omitempty"`
}
