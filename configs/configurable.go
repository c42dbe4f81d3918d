package configs

// Configurable is a value type loaded from a fixed path of the config files.
type Configurable interface {
	ConfigPath() string
}

// Lookup returns the first value configured at the path T declares, or the zero T.
func Lookup[T Configurable](loader Loader) T {
	var zero T
	return First[T](loader, zero.ConfigPath())
}
