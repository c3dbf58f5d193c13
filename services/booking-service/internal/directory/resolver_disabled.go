//go:build !protogen

package directory

// NewResolver is a no-op without generated proto code.
func NewResolver(_ string) (Resolver, error) {
	return nil, nil
}
