package utils

// GetOrDefault returns the value if the pointer is not nil, otherwise returns the default value
func GetOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr == nil {
		return defaultVal
	}
	return *ptr
}

func ToPtr[T any](v T) *T {
	return &v
}

// StringPtrOrNil returns nil for an empty string.
func StringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
