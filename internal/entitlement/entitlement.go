// Package entitlement is the boundary to the platform's package/purchase
// service. The core only asks one question: may this subject take this
// instrument right now.
package entitlement

import "context"

// Subject identifies the authenticated caller as provided by the platform's
// identity collaborator. Age is optional; zero means unknown.
type Subject struct {
	ID  string
	Age int
}

// Checker decides whether a subject may access an instrument.
type Checker interface {
	Check(ctx context.Context, subject Subject, instrumentID string) (bool, error)
}

// Package bundles instruments behind a purchasable unit with optional age
// bounds, mirroring the platform's test packages.
type Package struct {
	Name        string   `mapstructure:"name"`
	Instruments []string `mapstructure:"instruments"`
	MinAge      int      `mapstructure:"min-age"`
	MaxAge      int      `mapstructure:"max-age"`
}

// Static grants access from a fixed package list. A subject is entitled to an
// instrument when any package carries it and admits the subject's age; age
// bounds of zero are not enforced, and an unknown age passes unbounded
// packages only.
type Static struct {
	packages []Package
}

// NewStatic builds a checker over the configured packages.
func NewStatic(packages []Package) *Static {
	return &Static{packages: packages}
}

func (s *Static) Check(_ context.Context, subject Subject, instrumentID string) (bool, error) {
	for _, pkg := range s.packages {
		if !containsInstrument(pkg.Instruments, instrumentID) {
			continue
		}
		if admits(pkg, subject.Age) {
			return true, nil
		}
	}
	return false, nil
}

func containsInstrument(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func admits(pkg Package, age int) bool {
	if pkg.MinAge == 0 && pkg.MaxAge == 0 {
		return true
	}
	if age == 0 {
		return false
	}
	if pkg.MinAge > 0 && age < pkg.MinAge {
		return false
	}
	if pkg.MaxAge > 0 && age > pkg.MaxAge {
		return false
	}
	return true
}

// AllowAll grants every subject every instrument. Used when entitlement is
// handled upstream of this service.
type AllowAll struct{}

func (AllowAll) Check(context.Context, Subject, string) (bool, error) { return true, nil }
