package http

// TimeFormat is the layout of HTTP timestamps (RFC 7231, 7.1.1.1). Always
// render them in UTC.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
