package scenario

import "github.com/brianvoe/gofakeit/v7"

// ValueProvider supplies plausible incidental field values.
type ValueProvider interface {
	IPv4() string
	Username() string
}

// FakerProvider draws values from gofakeit.
type FakerProvider struct {
	faker *gofakeit.Faker
}

// NewFakerProvider returns a provider seeded for reproducible runs.
func NewFakerProvider(seed uint64) *FakerProvider {
	return &FakerProvider{faker: gofakeit.New(seed)}
}

// IPv4 returns a dotted-quad address.
func (p *FakerProvider) IPv4() string { return p.faker.IPv4Address() }

// Username returns a login-style user name.
func (p *FakerProvider) Username() string { return p.faker.Username() }
