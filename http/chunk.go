package http

// Chunk is a piece of request content handed from the transport to the
// application. A chunk is either plain data or special: carrying EOF or a
// terminal error instead of bytes. Once a special chunk was produced by an
// input source, all the subsequent reads keep producing the same one.
type Chunk struct {
	Err  error
	Data []byte
	Last bool
	EOF  bool
}

// DataChunk wraps a byte slice WITHOUT COPYING it.
func DataChunk(data []byte, last bool) Chunk {
	return Chunk{Data: data, Last: last}
}

func EOFChunk() Chunk {
	return Chunk{EOF: true, Last: true}
}

func ErrorChunk(err error) Chunk {
	return Chunk{Err: err, Last: true}
}

// Special reports whether the chunk carries terminal state instead of data.
func (c Chunk) Special() bool {
	return c.EOF || c.Err != nil
}

// Zero reports whether the chunk is the zero value, i.e. no chunk at all.
func (c Chunk) Zero() bool {
	return c.Data == nil && !c.Last && !c.EOF && c.Err == nil
}
