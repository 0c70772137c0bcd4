package dedupe

// Option configures NewInMemoryDeduper.
type Option func(*ringDeduper)

// WithMaxSize bounds how many ids are remembered. Values below 1 are ignored.
func WithMaxSize(maxSize int) Option {
	return func(d *ringDeduper) {
		if maxSize > 0 {
			d.maxSize = maxSize
		}
	}
}
