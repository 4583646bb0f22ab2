package constant

// Global function names a sideloaded Lua plugin may define. CanHandleURL and
// Streams are required, Title is optional.
const (
	CanHandleURLFn = "CanHandleURL"
	StreamsFn      = "Streams"
	TitleFn        = "Title"
)
