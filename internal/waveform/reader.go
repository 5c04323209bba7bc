package waveform

// Reader parses one downloaded file into zero or more traces.
type Reader interface {
	Read(path string) ([]Trace, error)
}

// ReaderFunc adapts a function to the Reader interface.
type ReaderFunc func(path string) ([]Trace, error)

// Read calls f(path).
func (f ReaderFunc) Read(path string) ([]Trace, error) {
	return f(path)
}
