package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/archon-research/stl/redstone-calldata/internal/domain/entity"
	"github.com/archon-research/stl/redstone-calldata/internal/ports/outbound"
)

// MockPackageProvider implements outbound.SignedPackageProvider for testing.
type MockPackageProvider struct {
	mu       sync.Mutex
	FetchFn  func(ctx context.Context, req outbound.PackageRequest) (*entity.SignedPackages, error)
	Requests []outbound.PackageRequest
}

func (m *MockPackageProvider) Name() string {
	return "mock"
}

func (m *MockPackageProvider) FetchSignedPackages(ctx context.Context, req outbound.PackageRequest) (*entity.SignedPackages, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.FetchFn != nil {
		return m.FetchFn(ctx, req)
	}
	return nil, errors.New("FetchSignedPackages not mocked")
}

// CallCount returns the number of FetchSignedPackages calls.
func (m *MockPackageProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// StaticProvider returns a provider that always answers with packages.
func StaticProvider(packages []entity.SignedDataPackage, unsignedMetadata string) *MockPackageProvider {
	return &MockPackageProvider{
		FetchFn: func(_ context.Context, _ outbound.PackageRequest) (*entity.SignedPackages, error) {
			return &entity.SignedPackages{Packages: packages, UnsignedMetadata: unsignedMetadata}, nil
		},
	}
}
