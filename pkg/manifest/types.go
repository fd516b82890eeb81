package manifest

// HandlerType enumerates the native handler kinds a manifest route can bind.
type HandlerType string

const (
	HandlerInproc HandlerType = "inproc"
	HandlerWasm   HandlerType = "wasm"
)

// WatchMode selects how the route script is watched for edits.
type WatchMode string

const (
	WatchFSNotify WatchMode = "fsnotify"
	WatchPoll     WatchMode = "poll"
	WatchOff      WatchMode = "off"
)
