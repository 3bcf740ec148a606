package ports

// BatchSource is a line-oriented resource feeding the bulk dispatcher.
type BatchSource interface {
	// Name identifies the source in logs and errors.
	Name() string
	// ReadLines returns every line in order.
	ReadLines() ([]string, error)
}
